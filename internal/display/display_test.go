package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"bybitbook/internal/config"
	"bybitbook/internal/types"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
)

func lvl(price, size string) types.PriceLevel {
	return types.PriceLevel{Price: decimal.RequireFromString(price), Size: decimal.RequireFromString(size)}
}

func TestLogDisplayUpdate(t *testing.T) {
	tests := []struct {
		name string
		view types.BookView
		want []string
	}{
		{
			name: "both sides",
			view: types.BookView{Bids: []types.PriceLevel{lvl("100", "2")}, Asks: []types.PriceLevel{lvl("101", "3")}},
			want: []string{"Best Bid: 100=2", "Best Ask: 101=3"},
		},
		{
			name: "empty book",
			view: types.BookView{},
			want: []string{"Order book is empty."},
		},
		{
			name: "one side empty",
			view: types.BookView{Bids: []types.PriceLevel{lvl("100", "2")}},
			want: []string{"Order book is empty."},
		},
		{
			name: "stale book",
			view: types.BookView{Bids: []types.PriceLevel{lvl("100", "2")}, Asks: []types.PriceLevel{lvl("101", "3")}, Stale: true},
			want: []string{"Best Bid: 100=2 (stale)", "Best Ask: 101=3 (stale)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewLogDisplay(&buf).Update(tt.view)

			got := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d lines, got %q", len(tt.want), buf.String())
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("line %d: expected %q, got %q", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		mode    string
		wantErr bool
	}{
		{mode: ModeLog},
		{mode: ModeTUI},
		{mode: ModeNone},
		{mode: "web", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			d, err := New(config.DisplayConfig{Mode: tt.mode}, time.Second, &bytes.Buffer{})
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil || d == nil {
				t.Fatalf("New failed: %v", err)
			}
		})
	}
}

func TestLineDisplayRunBlocksUntilQuit(t *testing.T) {
	d := NewLogDisplay(&bytes.Buffer{})
	done := make(chan error, 1)
	go func() { done <- d.Run() }()

	select {
	case <-done:
		t.Fatal("Run returned before Quit")
	case <-time.After(50 * time.Millisecond):
	}

	d.Quit()
	d.Quit()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Quit")
	}
}

func TestModel(t *testing.T) {
	l := &latest{}
	m := newModel(config.DisplayConfig{Top: 1, TickLevel: types.Tick1}, 0, l)

	if !strings.Contains(m.View(), "Order book is empty.") {
		t.Errorf("expected empty notice before the first view, got %q", m.View())
	}

	l.store(types.BookView{
		Symbol: "BTCUSDT",
		Bids:   []types.PriceLevel{lvl("100.5", "2"), lvl("99", "1")},
		Asks:   []types.PriceLevel{lvl("101.2", "3")},
	})
	next, _ := m.Update(tickMsg(time.Now()))
	m = next.(model)

	out := m.View()
	if !strings.Contains(out, "BTCUSDT") || !strings.Contains(out, "100") || !strings.Contains(out, "102") {
		t.Errorf("unexpected render %q", out)
	}
	if strings.Contains(out, "99 ") {
		t.Errorf("expected only the top level per side, got %q", out)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'+'}})
	m = next.(model)
	if m.aggregator.GetTickLevel() != types.Tick10 {
		t.Errorf("expected tick 10 after +, got %g", float64(m.aggregator.GetTickLevel()))
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestModelMarksSilentBookStale(t *testing.T) {
	l := &latest{}
	m := newModel(config.DisplayConfig{Top: 1}, 30*time.Second, l)

	applied := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.store(types.BookView{
		Symbol: "BTCUSDT",
		Bids:   []types.PriceLevel{lvl("100", "1")},
		Asks:   []types.PriceLevel{lvl("101", "1")},
		Stats:  types.Stats{Synchronized: true, LastAppliedAt: applied},
	})

	tests := []struct {
		name  string
		now   time.Time
		stale bool
	}{
		{name: "fresh", now: applied.Add(10 * time.Second), stale: false},
		{name: "silent past stale_after", now: applied.Add(31 * time.Second), stale: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, _ := m.Update(tickMsg(tt.now))
			got := next.(model)
			if got.view.Stale != tt.stale {
				t.Errorf("expected stale=%v, got %v", tt.stale, got.view.Stale)
			}
			if strings.Contains(got.View(), "STALE") != tt.stale {
				t.Errorf("STALE marker mismatch in %q", got.View())
			}
		})
	}
}
