package display

import (
	"fmt"
	"io"
	"sync"

	"bybitbook/internal/types"

	"github.com/charmbracelet/lipgloss"
)

// LogDisplay prints the best bid and ask after every update
type LogDisplay struct {
	*quitter

	mu    sync.Mutex
	out   io.Writer
	bid   lipgloss.Style
	ask   lipgloss.Style
	muted lipgloss.Style
}

func NewLogDisplay(out io.Writer) *LogDisplay {
	r := lipgloss.NewRenderer(out)
	return &LogDisplay{
		quitter: newQuitter(),
		out:     out,
		bid:     r.NewStyle().Foreground(lipgloss.Color("42")),
		ask:     r.NewStyle().Foreground(lipgloss.Color("196")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// Update writes the top of book, or a notice when either side is empty
func (d *LogDisplay) Update(view types.BookView) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(view.Bids) == 0 || len(view.Asks) == 0 {
		fmt.Fprintln(d.out, d.muted.Render("Order book is empty."))
		return
	}

	suffix := ""
	if view.Stale {
		suffix = d.muted.Render(" (stale)")
	}
	fmt.Fprintln(d.out, d.bid.Render("Best Bid: "+formatLevel(view.Bids[0]))+suffix)
	fmt.Fprintln(d.out, d.ask.Render("Best Ask: "+formatLevel(view.Asks[0]))+suffix)
}

func formatLevel(level types.PriceLevel) string {
	return level.Price.String() + "=" + level.Size.String()
}
