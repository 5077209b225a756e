package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickLevel represents available tick size options for price aggregation
type TickLevel float64

const (
	Tick001 TickLevel = 0.01
	Tick01  TickLevel = 0.1
	Tick1   TickLevel = 1.0
	Tick10  TickLevel = 10.0
	Tick50  TickLevel = 50.0
	Tick100 TickLevel = 100.0
)

// AvailableTickLevels defines the available tick levels in order of precision
var AvailableTickLevels = []TickLevel{
	Tick001,
	Tick01,
	Tick1,
	Tick10,
	Tick50,
	Tick100,
}

// PriceLevel represents a single price level in the order book.
// A level stored in a book always has a strictly positive Size.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Stats holds statistical information about the order book
type Stats struct {
	Symbol           string
	Synchronized     bool
	EventsApplied    int64
	SnapshotsApplied int64
	MalformedEntries int64
	Resets           int64
	LastUpdateID     int64
	LastEventTime    time.Time // exchange timestamp of the last applied event
	LastAppliedAt    time.Time // local time the last event was applied
	BidLevels        int
	AskLevels        int
	BestBid          decimal.Decimal
	BestAsk          decimal.Decimal
	MidPrice         decimal.Decimal
	Spread           decimal.Decimal

	// Liquidity depth metrics (in base asset units)
	BidLiquidity05Pct decimal.Decimal // Total bid size within 0.5% of mid
	AskLiquidity05Pct decimal.Decimal // Total ask size within 0.5% of mid
	BidLiquidity2Pct  decimal.Decimal // Total bid size within 2% of mid
	AskLiquidity2Pct  decimal.Decimal // Total ask size within 2% of mid

	TotalBidsQty decimal.Decimal
	TotalAsksQty decimal.Decimal
	TotalDelta   decimal.Decimal // TotalBidsQty - TotalAsksQty (positive = more bids)
}

// IsValidTickLevel reports whether tick is one of AvailableTickLevels
func IsValidTickLevel(tick TickLevel) bool {
	for _, available := range AvailableTickLevels {
		if available == tick {
			return true
		}
	}
	return false
}

// GetNextTickLevel returns the next tick level in the sequence, wrapping around
func GetNextTickLevel(current TickLevel) TickLevel {
	for i, tick := range AvailableTickLevels {
		if tick == current {
			return AvailableTickLevels[(i+1)%len(AvailableTickLevels)]
		}
	}
	return AvailableTickLevels[0]
}

// GetPreviousTickLevel returns the previous tick level in the sequence, wrapping around
func GetPreviousTickLevel(current TickLevel) TickLevel {
	n := len(AvailableTickLevels)
	for i, tick := range AvailableTickLevels {
		if tick == current {
			return AvailableTickLevels[(i-1+n)%n]
		}
	}
	return AvailableTickLevels[0]
}
