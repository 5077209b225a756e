package orderbook

import (
	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"bybitbook/internal/types"
)

const priceLevelsBTreeDegree = 32

// Side identifies one half of the book
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// Level is a (price, size) pair held by a BookSide
type Level = types.PriceLevel

// BookSide maps price to size with unique prices, iterated in priority
// order: bids highest price first, asks lowest price first.
type BookSide struct {
	side   Side
	levels *btree.BTreeG[Level]
}

func newBookSide(side Side) *BookSide {
	less := func(a, b Level) bool { return a.Price.LessThan(b.Price) }
	if side == Bid {
		less = func(a, b Level) bool { return a.Price.GreaterThan(b.Price) }
	}
	return &BookSide{
		side:   side,
		levels: btree.NewG(priceLevelsBTreeDegree, less),
	}
}

// Side returns which half of the book this is
func (s *BookSide) Side() Side {
	return s.side
}

// Len returns the number of price levels
func (s *BookSide) Len() int {
	return s.levels.Len()
}

// Set applies the per-entry rule: a zero size removes the price,
// anything else inserts or overwrites it.
func (s *BookSide) Set(price, size decimal.Decimal) {
	if size.IsZero() {
		s.levels.Delete(Level{Price: price})
		return
	}
	s.levels.ReplaceOrInsert(Level{Price: price, Size: size})
}

// Get returns the size resting at price
func (s *BookSide) Get(price decimal.Decimal) (decimal.Decimal, bool) {
	level, ok := s.levels.Get(Level{Price: price})
	if !ok {
		return decimal.Zero, false
	}
	return level.Size, true
}

// Best returns the first level in priority order
func (s *BookSide) Best() (Level, bool) {
	return s.levels.Min()
}

// Ascend walks levels in priority order until fn returns false
func (s *BookSide) Ascend(fn func(level Level) bool) {
	s.levels.Ascend(btree.ItemIteratorG[Level](fn))
}

// Levels returns up to n levels in priority order; n <= 0 returns all of them
func (s *BookSide) Levels(n int) []Level {
	size := s.levels.Len()
	if n > 0 && n < size {
		size = n
	}
	out := make([]Level, 0, size)
	s.levels.Ascend(func(level Level) bool {
		out = append(out, level)
		return len(out) < size
	})
	return out
}

// TotalSize sums the size across every level
func (s *BookSide) TotalSize() decimal.Decimal {
	total := decimal.Zero
	s.levels.Ascend(func(level Level) bool {
		total = total.Add(level.Size)
		return true
	})
	return total
}

// SizeWithin sums size from the best level outwards while price stays
// on the near side of limit (>= limit for bids, <= limit for asks).
func (s *BookSide) SizeWithin(limit decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	s.levels.Ascend(func(level Level) bool {
		if s.side == Bid && level.Price.LessThan(limit) {
			return false
		}
		if s.side == Ask && level.Price.GreaterThan(limit) {
			return false
		}
		total = total.Add(level.Size)
		return true
	})
	return total
}

// Clear removes every level
func (s *BookSide) Clear() {
	s.levels.Clear(false)
}
