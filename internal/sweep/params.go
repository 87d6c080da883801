package sweep

import (
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/avalanche/internal/models"
)

type setter func(p *models.Params, v float64)

var setters = map[string]setter{
	"num_particles":      func(p *models.Params, v float64) { p.NumParticles = int(v) },
	"critical_value":     func(p *models.Params, v float64) { p.CriticalValue = v },
	"abelian":            func(p *models.Params, v float64) { p.Abelian = v != 0 },
	"conservation_level": func(p *models.Params, v float64) { p.ConservationLevel = v },
	"max_iterations":     func(p *models.Params, v float64) { p.MaxIterations = int(v) },
	"p":                  func(p *models.Params, v float64) { p.P = v },
	"f":                  func(p *models.Params, v float64) { p.F = v },
}

var aliases = map[string]string{
	"particles":    "num_particles",
	"conservation": "conservation_level",
}

// CanonicalParam resolves a parameter name or alias.
func CanonicalParam(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	if a, ok := aliases[n]; ok {
		n = a
	}
	if _, ok := setters[n]; !ok {
		return "", fmt.Errorf("unknown parameter %q (known: %s)", name, strings.Join(ParamNames(), ", "))
	}
	return n, nil
}

// ParamNames lists the sweepable model parameters.
func ParamNames() []string {
	out := make([]string, 0, len(setters))
	for k := range setters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SetParam assigns v to the named field of p. Integer fields truncate.
func SetParam(p *models.Params, name string, v float64) error {
	n, err := CanonicalParam(name)
	if err != nil {
		return err
	}
	setters[n](p, v)
	return nil
}
