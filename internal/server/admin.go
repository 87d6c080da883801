package server

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/avalanche/internal/httputil"
	"github.com/banshee-data/avalanche/internal/snapshot"
)

// Admin holds the debug handles opened by AttachAdminRoutes.
type Admin struct {
	dbs []*sql.DB
}

// AttachAdminRoutes mounts the tsweb debug pages on mux, with a tailsql
// console over every store in Dir and a per-store backup download.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) (*Admin, error) {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return nil, fmt.Errorf("create tailsql server: %w", err)
	}

	stores, err := s.Stores()
	if err != nil {
		return nil, err
	}
	a := &Admin{}
	for _, st := range stores {
		db, err := snapshot.OpenDB(filepath.Join(s.Dir, st.Name))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.dbs = append(a.dbs, db)
		tsql.SetDB("sqlite://"+st.Name, db, &tailsql.DBOptions{
			Label: strings.TrimSuffix(st.Name, filepath.Ext(st.Name)),
		})
	}
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Download a consistent copy of a store (?store=name.db)", http.HandlerFunc(s.backup))
	return a, nil
}

// Close releases the database handles.
func (a *Admin) Close() error {
	var errs []error
	for _, db := range a.dbs {
		errs = append(errs, db.Close())
	}
	a.dbs = nil
	return errors.Join(errs...)
}

// backup writes a VACUUM INTO copy of a store to a temp file and streams it.
func (s *Server) backup(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("store")
	path, err := s.storePath(name)
	if err != nil {
		writeError(w, err)
		return
	}
	db, err := snapshot.OpenDB(path)
	if err != nil {
		writeError(w, err)
		return
	}
	defer db.Close()

	tmp, err := os.MkdirTemp("", "soc-backup-")
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	defer os.RemoveAll(tmp)
	backupPath := filepath.Join(tmp, name)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("create backup: %v", err))
		return
	}
	httputil.Attachment(w, "application/octet-stream", "backup-"+name)
	http.ServeFile(w, r, backupPath)
}
