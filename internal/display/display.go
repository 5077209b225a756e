package display

import (
	"fmt"
	"io"
	"sync"
	"time"

	"bybitbook/internal/config"
	"bybitbook/internal/types"
)

const (
	ModeLog  = "log"
	ModeTUI  = "tui"
	ModeNone = "none"
)

// New creates the display selected by cfg.Mode; line output goes to out
func New(cfg config.DisplayConfig, staleAfter time.Duration, out io.Writer) (types.Display, error) {
	switch cfg.Mode {
	case ModeLog, "":
		return NewLogDisplay(out), nil
	case ModeTUI:
		return NewTUI(cfg, staleAfter), nil
	case ModeNone:
		return newQuitter(), nil
	default:
		return nil, fmt.Errorf("unknown display mode: %s", cfg.Mode)
	}
}

// quitter is the no-op display; it also gives line displays their Run/Quit
type quitter struct {
	quit chan struct{}
	once sync.Once
}

func newQuitter() *quitter {
	return &quitter{quit: make(chan struct{})}
}

func (q *quitter) Update(types.BookView) {}

func (q *quitter) Run() error {
	<-q.quit
	return nil
}

func (q *quitter) Quit() {
	q.once.Do(func() { close(q.quit) })
}
