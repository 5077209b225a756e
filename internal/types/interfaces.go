package types

// PriceAggregator defines the interface for price aggregation
type PriceAggregator interface {
	// SetTickLevel updates the tick level for aggregation
	SetTickLevel(tick TickLevel)

	// GetTickLevel returns the current tick level
	GetTickLevel() TickLevel

	// AggregateBids buckets bid levels given in priority order (highest first)
	AggregateBids(levels []PriceLevel) []PriceLevel

	// AggregateAsks buckets ask levels given in priority order (lowest first)
	AggregateAsks(levels []PriceLevel) []PriceLevel
}

// BookView is a read-only, point-in-time copy of the book handed to displays
type BookView struct {
	Symbol string
	Bids   []PriceLevel // priority order
	Asks   []PriceLevel // priority order
	Stats  Stats
	Stale  bool
}

// Display defines the interface for orderbook visualization
type Display interface {
	// Update hands the display a fresh view of the book
	Update(view BookView)

	// Run starts the display and blocks until it exits or Quit is called
	Run() error

	// Quit signals the display to quit
	Quit()
}
