package orderbook

import (
	"errors"
	"fmt"
	"strings"

	"bybitbook/internal/exchange"
)

var (
	// ErrMalformedEntry is returned when an entry is not a [price, size] pair
	// of exact decimals.
	ErrMalformedEntry = errors.New("malformed book entry")

	// ErrAwaitingSnapshot is returned for a delta that arrives before any
	// snapshot when the book requires one.
	ErrAwaitingSnapshot = errors.New("delta received before snapshot")

	ErrUnknownEventType = errors.New("unknown book event type")

	// ErrInvalidEvent is returned after the feed reported an undecodable
	// book frame; the book has been reset.
	ErrInvalidEvent = errors.New("undecodable book event, book reset")
)

// ApplyError describes the entry that stopped an update from being applied.
// It matches ErrMalformedEntry with errors.Is.
type ApplyError struct {
	Side  Side
	Index int
	Entry exchange.RawLevel
	Err   error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("%s: %s entry %d [%s]: %v",
		ErrMalformedEntry, e.Side, e.Index, strings.Join(e.Entry, ", "), e.Err)
}

func (e *ApplyError) Is(target error) bool {
	return target == ErrMalformedEntry
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}
