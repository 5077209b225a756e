package exchange

import (
	"context"
	"errors"
	"time"
)

// ExchangeName represents supported exchange identifiers
type ExchangeName string

const (
	Bybit ExchangeName = "bybit"
)

// Category is the Bybit market category a feed is attached to
type Category string

const (
	Spot    Category = "spot"
	Linear  Category = "linear"
	Inverse Category = "inverse"
)

var (
	ErrNotConnected      = errors.New("feed not connected")
	ErrSubscribeRejected = errors.New("subscription rejected")
)

// Feed defines the interface an exchange adapter exposes to the order book engine.
// Events are delivered in arrival order; the channel closes when the
// connection ends, after which Err reports why (nil for a clean close).
type Feed interface {
	// GetName returns the exchange name
	GetName() ExchangeName

	// GetSymbol returns the trading symbol
	GetSymbol() string

	// Topic returns the subscribed stream topic
	Topic() string

	// Connect dials, sends the subscribe handshake and starts reading
	Connect(ctx context.Context) error

	// Events returns the channel of decoded book events
	Events() <-chan BookEvent

	// Done is closed once the connection has ended
	Done() <-chan struct{}

	// Err returns the error that ended the connection, if any
	Err() error

	// Close closes the connection gracefully
	Close() error

	// Health returns connection health information
	Health() HealthStatus
}

// Listener receives connection lifecycle notifications from a Feed.
type Listener interface {
	OnSubscribed(topic string)
	OnError(err error)
	OnClosed(reason string)
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Subscribed func(topic string)
	Error      func(err error)
	Closed     func(reason string)
}

func (l ListenerFuncs) OnSubscribed(topic string) {
	if l.Subscribed != nil {
		l.Subscribed(topic)
	}
}

func (l ListenerFuncs) OnError(err error) {
	if l.Error != nil {
		l.Error(err)
	}
}

func (l ListenerFuncs) OnClosed(reason string) {
	if l.Closed != nil {
		l.Closed(reason)
	}
}

// EventType tags a BookEvent as a full snapshot or an incremental delta
type EventType string

const (
	Snapshot EventType = "snapshot"
	Delta    EventType = "delta"

	// Invalid marks a book frame the adapter could not decode. Updates were
	// lost, so the engine resets and waits for the next snapshot.
	Invalid EventType = "invalid"
)

// RawLevel is a single undecoded [price, size] entry as it came off the wire.
// Prices and sizes stay strings until the engine parses them.
type RawLevel []string

// BookEvent represents a canonical snapshot or delta for one symbol
type BookEvent struct {
	Type      EventType
	Exchange  ExchangeName
	Symbol    string
	UpdateID  int64     // exchange update id, informational
	Seq       int64     // cross-sequence number, informational
	EventTime time.Time // exchange timestamp
	Bids      []RawLevel
	Asks      []RawLevel
}

// HealthStatus represents connection health information
type HealthStatus struct {
	Connected    bool
	Subscribed   bool
	ConnID       string
	LastMessage  time.Time
	MessageCount int64
	ErrorCount   int64
	ClosedAt     *time.Time
}
