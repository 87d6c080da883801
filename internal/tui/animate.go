// Package tui animates a stored snapshot sequence in the terminal.
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/banshee-data/avalanche/internal/lattice"
)

// DefaultInterval is the delay between frames while playing.
const DefaultInterval = 30 * time.Millisecond

// Ramp is the colour scale from the lowest to the highest cell value.
var Ramp = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

// Frames is a random-access snapshot sequence.
type Frames interface {
	Frame(i int) ([]float64, error)
}

// Options configures an animation.
type Options struct {
	Count        int // number of frames
	SaveEvery    int // driving steps between frames
	Interval     time.Duration
	WithBoundary bool
	Autoplay     bool
}

type tickMsg time.Time

// Model is a bubbletea model stepping through frames.
type Model struct {
	src  Frames
	opts Options

	index   int
	playing bool
	frame   *lattice.Grid[float64]
	lo, hi  float64
	err     error

	keys  keyMap
	help  help.Model
	cells []lipgloss.Style
}

// New loads the first frame. The colour range starts from the first and
// last frames and widens as other frames are shown.
func New(src Frames, opts Options) Model {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.SaveEvery <= 0 {
		opts.SaveEvery = 1
	}
	m := Model{
		src:     src,
		opts:    opts,
		playing: opts.Autoplay,
		lo:      math.Inf(1),
		hi:      math.Inf(-1),
		keys:    defaultKeys(),
		help:    help.New(),
	}
	for _, c := range Ramp {
		m.cells = append(m.cells, lipgloss.NewStyle().Background(lipgloss.Color(c)))
	}
	if opts.Count > 1 {
		m.load(opts.Count - 1)
	}
	m.load(0)
	return m
}

func (m *Model) load(i int) {
	if m.opts.Count == 0 {
		m.err = fmt.Errorf("no frames to show")
		return
	}
	vals, err := m.src.Frame(i)
	if err == nil {
		m.frame, err = lattice.FromFlat(vals)
	}
	if err != nil {
		m.err = fmt.Errorf("frame %d: %w", i, err)
		return
	}
	m.index, m.err = i, nil
	for _, v := range vals {
		m.lo, m.hi = math.Min(m.lo, v), math.Max(m.hi, v)
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Index returns the current frame index.
func (m Model) Index() int { return m.index }

// Playing reports whether the animation advances on its own.
func (m Model) Playing() bool { return m.playing }

// Init starts the clock when autoplaying.
func (m Model) Init() tea.Cmd {
	if m.playing {
		return m.tick()
	}
	return nil
}

// Update handles key presses and animation ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if !m.playing {
			return m, nil
		}
		if m.index >= m.opts.Count-1 {
			m.playing = false
			return m, nil
		}
		m.load(m.index + 1)
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Play):
			m.playing = !m.playing
			if m.playing && m.index >= m.opts.Count-1 {
				m.load(0)
			}
			if m.playing {
				return m, m.tick()
			}
		case key.Matches(msg, m.keys.Next):
			m.playing = false
			if m.index < m.opts.Count-1 {
				m.load(m.index + 1)
			}
		case key.Matches(msg, m.keys.Prev):
			m.playing = false
			if m.index > 0 {
				m.load(m.index - 1)
			}
		case key.Matches(msg, m.keys.First):
			m.playing = false
			m.load(0)
		case key.Matches(msg, m.keys.Last):
			m.playing = false
			m.load(m.opts.Count - 1)
		}
	}
	return m, nil
}

// Title is the caption of the current frame.
func (m Model) Title() string {
	return fmt.Sprintf("Iteration %d/%d", m.index*m.opts.SaveEvery, m.opts.Count*m.opts.SaveEvery)
}

// View renders the title, the lattice and the key help.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.Title()))
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}
	if m.frame != nil {
		b.WriteString(m.renderGrid())
	}
	state := "paused"
	if m.playing {
		state = "playing"
	}
	b.WriteString(statusStyle.Render(fmt.Sprintf("%s  range [%g, %g]", state, m.lo, m.hi)))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderGrid() string {
	g := m.frame
	lo, n := lattice.BoundarySize, g.L()
	if m.opts.WithBoundary {
		lo, n = 0, g.Width()
	}
	var b strings.Builder
	for r := lo; r < lo+n; r++ {
		for c := lo; c < lo+n; c++ {
			b.WriteString(m.cells[m.shade(g.At(r, c))].Render("  "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// shade maps v onto a Ramp index.
func (m Model) shade(v float64) int {
	if m.hi <= m.lo {
		return 0
	}
	i := int((v - m.lo) / (m.hi - m.lo) * float64(len(Ramp)-1))
	return max(0, min(len(Ramp)-1, i))
}

// Run animates src until the user quits.
func Run(src Frames, opts Options) error {
	_, err := tea.NewProgram(New(src, opts), tea.WithAltScreen()).Run()
	return err
}
