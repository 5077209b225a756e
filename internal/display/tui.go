package display

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"bybitbook/internal/aggregation"
	"bybitbook/internal/config"
	"bybitbook/internal/types"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	bidStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	askStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	staleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
)

type tickMsg time.Time

// latest holds the most recent view; the apply loop writes, the UI reads
type latest struct {
	mu   sync.RWMutex
	view types.BookView
	set  bool
}

func (l *latest) store(view types.BookView) {
	l.mu.Lock()
	l.view = view
	l.set = true
	l.mu.Unlock()
}

func (l *latest) load() (types.BookView, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.view, l.set
}

// TUI renders the book in a full-screen terminal UI
type TUI struct {
	program *tea.Program
	latest  *latest
}

// NewTUI creates the terminal UI; a book with no update for staleAfter is
// marked stale even while the feed is silent
func NewTUI(cfg config.DisplayConfig, staleAfter time.Duration) *TUI {
	l := &latest{}
	m := newModel(cfg, staleAfter, l)
	return &TUI{
		program: tea.NewProgram(m, tea.WithAltScreen()),
		latest:  l,
	}
}

// Update never blocks; the UI picks the view up on its next refresh
func (t *TUI) Update(view types.BookView) {
	t.latest.store(view)
}

func (t *TUI) Run() error {
	_, err := t.program.Run()
	return err
}

func (t *TUI) Quit() {
	t.program.Quit()
}

type model struct {
	latest     *latest
	aggregator *aggregation.Aggregator
	top        int
	interval   time.Duration
	staleAfter time.Duration
	view       types.BookView
	hasView    bool
}

func newModel(cfg config.DisplayConfig, staleAfter time.Duration, l *latest) model {
	top := cfg.Top
	if top <= 0 {
		top = 10
	}
	interval := cfg.UpdateInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	tick := cfg.TickLevel
	if !types.IsValidTickLevel(tick) {
		tick = types.Tick01
	}
	return model{
		latest:     l,
		aggregator: aggregation.New(tick),
		top:        top,
		interval:   interval,
		staleAfter: staleAfter,
	}
}

func (m model) refresh() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return m.refresh()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "+", "up":
			m.aggregator.SetTickLevel(types.GetNextTickLevel(m.aggregator.GetTickLevel()))
		case "-", "down":
			m.aggregator.SetTickLevel(types.GetPreviousTickLevel(m.aggregator.GetTickLevel()))
		}
		return m, nil
	case tickMsg:
		m.view, m.hasView = m.latest.load()
		if m.hasView && !m.view.Stale {
			m.view.Stale = isStale(m.view.Stats, m.staleAfter, time.Time(msg))
		}
		return m, m.refresh()
	}
	return m, nil
}

func isStale(stats types.Stats, staleAfter time.Duration, now time.Time) bool {
	if !stats.Synchronized {
		return true
	}
	return staleAfter > 0 && now.Sub(stats.LastAppliedAt) > staleAfter
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("%s  tick %g", m.view.Symbol, float64(m.aggregator.GetTickLevel()))))
	if m.view.Stale {
		b.WriteString("  " + staleStyle.Render("STALE"))
	}
	b.WriteString("\n\n")

	if !m.hasView || len(m.view.Bids) == 0 || len(m.view.Asks) == 0 {
		b.WriteString(labelStyle.Render("Order book is empty."))
		b.WriteString("\n\n" + labelStyle.Render("q quit"))
		return b.String()
	}

	asks := m.aggregator.AggregateAsks(m.view.Asks)
	bids := m.aggregator.AggregateBids(m.view.Bids)
	if len(asks) > m.top {
		asks = asks[:m.top]
	}
	if len(bids) > m.top {
		bids = bids[:m.top]
	}

	// asks are printed best-last so the spread sits in the middle
	for i := len(asks) - 1; i >= 0; i-- {
		b.WriteString(askStyle.Render(fmt.Sprintf("%16s %14s", asks[i].Price.String(), asks[i].Size.String())))
		b.WriteString("\n")
	}

	stats := m.view.Stats
	b.WriteString(labelStyle.Render(fmt.Sprintf("%16s %14s", "mid "+stats.MidPrice.StringFixed(2), "spread "+stats.Spread.String())))
	b.WriteString("\n")

	for _, level := range bids {
		b.WriteString(bidStyle.Render(fmt.Sprintf("%16s %14s", level.Price.String(), level.Size.String())))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(labelStyle.Render(fmt.Sprintf("DEPTH 0.5%%  bids %s  asks %s", stats.BidLiquidity05Pct.StringFixed(2), stats.AskLiquidity05Pct.StringFixed(2))))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render(fmt.Sprintf("DEPTH 2%%    bids %s  asks %s", stats.BidLiquidity2Pct.StringFixed(2), stats.AskLiquidity2Pct.StringFixed(2))))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render(fmt.Sprintf("update %d  events %d  malformed %d", stats.LastUpdateID, stats.EventsApplied, stats.MalformedEntries)))
	b.WriteString("\n\n" + labelStyle.Render("q quit  +/- tick"))
	return b.String()
}
