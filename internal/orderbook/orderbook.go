package orderbook

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"bybitbook/internal/exchange"
	"bybitbook/internal/types"

	"github.com/shopspring/decimal"
)

// MalformedPolicy decides what happens to an event holding an unparseable entry
type MalformedPolicy string

const (
	// SkipMalformed keeps entries applied before the bad one and drops the
	// bad entry and the rest of its list. The other side is still applied.
	SkipMalformed MalformedPolicy = "skip"

	// RejectMalformed validates the whole event first. A bad entry leaves
	// the event unapplied and resets the book until the next snapshot.
	RejectMalformed MalformedPolicy = "reject"
)

// ParseMalformedPolicy maps a config string to a MalformedPolicy; empty means skip
func ParseMalformedPolicy(s string) (MalformedPolicy, error) {
	switch MalformedPolicy(s) {
	case "", SkipMalformed:
		return SkipMalformed, nil
	case RejectMalformed:
		return RejectMalformed, nil
	default:
		return "", fmt.Errorf("unknown malformed policy %q", s)
	}
}

// State is the synchronization state of the book
type State int

const (
	AwaitingSnapshot State = iota
	Synchronized
)

func (s State) String() string {
	if s == Synchronized {
		return "synchronized"
	}
	return "awaiting_snapshot"
}

// Options configures an OrderBook
type Options struct {
	Symbol          string
	Policy          MalformedPolicy
	RequireSnapshot bool // drop deltas until the first snapshot
}

// OrderBook is a local replica of one symbol's book, mutated only through
// Apply and Reset. It is safe for concurrent readers, but events must still
// come from a single goroutine in arrival order.
type OrderBook struct {
	mu   sync.RWMutex
	opts Options
	bids *BookSide
	asks *BookSide

	state            State
	lastUpdateID     int64
	lastEventTime    time.Time
	lastAppliedAt    time.Time
	eventsApplied    int64
	snapshotsApplied int64
	malformedEntries int64
	resets           int64

	now func() time.Time
}

// New creates an empty OrderBook with the default options
func New() *OrderBook {
	return NewWithOptions(Options{})
}

// NewWithOptions creates an empty OrderBook awaiting its first snapshot
func NewWithOptions(opts Options) *OrderBook {
	if opts.Policy == "" {
		opts.Policy = SkipMalformed
	}
	return &OrderBook{
		opts:  opts,
		bids:  newBookSide(Bid),
		asks:  newBookSide(Ask),
		state: AwaitingSnapshot,
		now:   time.Now,
	}
}

// Symbol returns the symbol the book was created for
func (ob *OrderBook) Symbol() string {
	return ob.opts.Symbol
}

// Apply folds a snapshot or delta into the book
func (ob *OrderBook) Apply(ev exchange.BookEvent) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	switch ev.Type {
	case exchange.Snapshot:
	case exchange.Delta:
		if ob.state == AwaitingSnapshot && ob.opts.RequireSnapshot {
			return ErrAwaitingSnapshot
		}
	case exchange.Invalid:
		ob.reset()
		return ErrInvalidEvent
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	}

	if ob.opts.Policy == RejectMalformed {
		return ob.applyAtomic(ev)
	}
	return ob.applyPartial(ev)
}

// applyPartial mutates entry by entry (must be called with mutex locked)
func (ob *OrderBook) applyPartial(ev exchange.BookEvent) error {
	if ev.Type == exchange.Snapshot {
		ob.bids.Clear()
		ob.asks.Clear()
		ob.state = Synchronized
	}

	bidErr := applyEntries(ob.bids, ev.Bids)
	askErr := applyEntries(ob.asks, ev.Asks)
	ob.record(ev)

	switch {
	case bidErr != nil && askErr != nil:
		ob.malformedEntries += 2
		return errors.Join(bidErr, askErr)
	case bidErr != nil:
		ob.malformedEntries++
		return bidErr
	case askErr != nil:
		ob.malformedEntries++
		return askErr
	}
	return nil
}

// applyAtomic parses everything before touching the book (must be called with mutex locked)
func (ob *OrderBook) applyAtomic(ev exchange.BookEvent) error {
	bids, err := parseEntries(Bid, ev.Bids)
	if err == nil {
		var asks []entry
		asks, err = parseEntries(Ask, ev.Asks)
		if err == nil {
			if ev.Type == exchange.Snapshot {
				ob.bids.Clear()
				ob.asks.Clear()
				ob.state = Synchronized
			}
			for _, e := range bids {
				ob.bids.Set(e.price, e.size)
			}
			for _, e := range asks {
				ob.asks.Set(e.price, e.size)
			}
			ob.record(ev)
			return nil
		}
	}

	ob.malformedEntries++
	ob.reset()
	return err
}

// record updates bookkeeping after an event (must be called with mutex locked)
func (ob *OrderBook) record(ev exchange.BookEvent) {
	ob.eventsApplied++
	if ev.Type == exchange.Snapshot {
		ob.snapshotsApplied++
	}
	ob.lastUpdateID = ev.UpdateID
	ob.lastEventTime = ev.EventTime
	ob.lastAppliedAt = ob.now()
}

// Reset clears both sides; the book is stale until the next snapshot
func (ob *OrderBook) Reset() {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.reset()
}

func (ob *OrderBook) reset() {
	ob.bids.Clear()
	ob.asks.Clear()
	ob.state = AwaitingSnapshot
	ob.resets++
}

// BestLevels returns the best bid and ask. ok is false unless both sides
// hold at least one level.
func (ob *OrderBook) BestLevels() (bid, ask Level, ok bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.bestLevels()
}

func (ob *OrderBook) bestLevels() (bid, ask Level, ok bool) {
	bid, bidOK := ob.bids.Best()
	ask, askOK := ob.asks.Best()
	if !bidOK || !askOK {
		return Level{}, Level{}, false
	}
	return bid, ask, true
}

// Depth returns up to n levels of one side in priority order; n <= 0 returns all
func (ob *OrderBook) Depth(side Side, n int) []Level {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if side == Bid {
		return ob.bids.Levels(n)
	}
	return ob.asks.Levels(n)
}

// State returns the current synchronization state
func (ob *OrderBook) State() State {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.state
}

// Synchronized reports whether a snapshot has been applied since start or reset
func (ob *OrderBook) Synchronized() bool {
	return ob.State() == Synchronized
}

// Stale reports whether readers should distrust the book: it is not
// synchronized, or maxAge > 0 and nothing was applied within maxAge of now.
func (ob *OrderBook) Stale(maxAge time.Duration, now time.Time) bool {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.stale(maxAge, now)
}

func (ob *OrderBook) stale(maxAge time.Duration, now time.Time) bool {
	if ob.state != Synchronized {
		return true
	}
	return maxAge > 0 && now.Sub(ob.lastAppliedAt) > maxAge
}

// Stats returns a freshly computed copy of the book statistics
func (ob *OrderBook) Stats() types.Stats {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.stats()
}

// View returns a consistent copy of the top depth levels plus stats
func (ob *OrderBook) View(depth int, staleAfter time.Duration) types.BookView {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return types.BookView{
		Symbol: ob.opts.Symbol,
		Bids:   ob.bids.Levels(depth),
		Asks:   ob.asks.Levels(depth),
		Stats:  ob.stats(),
		Stale:  ob.stale(staleAfter, ob.now()),
	}
}

// stats must be called with mutex locked
func (ob *OrderBook) stats() types.Stats {
	s := types.Stats{
		Symbol:           ob.opts.Symbol,
		Synchronized:     ob.state == Synchronized,
		EventsApplied:    ob.eventsApplied,
		SnapshotsApplied: ob.snapshotsApplied,
		MalformedEntries: ob.malformedEntries,
		Resets:           ob.resets,
		LastUpdateID:     ob.lastUpdateID,
		LastEventTime:    ob.lastEventTime,
		LastAppliedAt:    ob.lastAppliedAt,
		BidLevels:        ob.bids.Len(),
		AskLevels:        ob.asks.Len(),
		TotalBidsQty:     ob.bids.TotalSize(),
		TotalAsksQty:     ob.asks.TotalSize(),
	}
	s.TotalDelta = s.TotalBidsQty.Sub(s.TotalAsksQty)

	bid, ask, ok := ob.bestLevels()
	if !ok {
		return s
	}

	s.BestBid = bid.Price
	s.BestAsk = ask.Price
	s.Spread = ask.Price.Sub(bid.Price)
	s.MidPrice = bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))

	threshold05Pct := s.MidPrice.Mul(decimal.RequireFromString("0.005"))
	threshold2Pct := s.MidPrice.Mul(decimal.RequireFromString("0.02"))

	s.BidLiquidity05Pct = ob.bids.SizeWithin(s.MidPrice.Sub(threshold05Pct))
	s.AskLiquidity05Pct = ob.asks.SizeWithin(s.MidPrice.Add(threshold05Pct))
	s.BidLiquidity2Pct = ob.bids.SizeWithin(s.MidPrice.Sub(threshold2Pct))
	s.AskLiquidity2Pct = ob.asks.SizeWithin(s.MidPrice.Add(threshold2Pct))
	return s
}

type entry struct {
	price decimal.Decimal
	size  decimal.Decimal
}

func parseEntry(side Side, index int, raw exchange.RawLevel) (entry, error) {
	fail := func(err error) (entry, error) {
		return entry{}, &ApplyError{Side: side, Index: index, Entry: raw, Err: err}
	}

	if len(raw) != 2 {
		return fail(fmt.Errorf("expected [price, size], got %d fields", len(raw)))
	}
	price, err := decimal.NewFromString(raw[0])
	if err != nil {
		return fail(fmt.Errorf("invalid price %q: %w", raw[0], err))
	}
	size, err := decimal.NewFromString(raw[1])
	if err != nil {
		return fail(fmt.Errorf("invalid size %q: %w", raw[1], err))
	}
	if outOfScale(price) {
		return fail(fmt.Errorf("price %q exponent out of range", raw[0]))
	}
	if outOfScale(size) {
		return fail(fmt.Errorf("size %q exponent out of range", raw[1]))
	}
	if size.IsNegative() {
		return fail(fmt.Errorf("negative size %s", raw[1]))
	}
	// deleting a level that cannot exist is still a no-op
	if !size.IsZero() && !price.IsPositive() {
		return fail(fmt.Errorf("non-positive price %s", raw[0]))
	}
	return entry{price: price, size: size}, nil
}

// maxExponent bounds the decimal exponent of prices and sizes. Ordering
// compares rescale both operands, which gets expensive for huge exponents.
const maxExponent = 64

func outOfScale(d decimal.Decimal) bool {
	exp := d.Exponent()
	return exp > maxExponent || exp < -maxExponent
}

func parseEntries(side Side, raws []exchange.RawLevel) ([]entry, error) {
	out := make([]entry, 0, len(raws))
	for i, raw := range raws {
		e, err := parseEntry(side, i, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// applyEntries applies raws in order and stops at the first malformed entry
func applyEntries(side *BookSide, raws []exchange.RawLevel) error {
	for i, raw := range raws {
		e, err := parseEntry(side.Side(), i, raw)
		if err != nil {
			return err
		}
		side.Set(e.price, e.size)
	}
	return nil
}
