package bybit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"bybitbook/internal/exchange"
)

// MessageKind classifies a decoded frame
type MessageKind int

const (
	KindIgnored MessageKind = iota
	KindSubscribeAck
	KindPong
	KindBook
)

func (k MessageKind) String() string {
	switch k {
	case KindSubscribeAck:
		return "subscribe_ack"
	case KindPong:
		return "pong"
	case KindBook:
		return "book"
	default:
		return "ignored"
	}
}

// Message is the result of decoding one text frame
type Message struct {
	Kind    MessageKind
	Success bool
	RetMsg  string
	ConnID  string
	Event   exchange.BookEvent
}

// DecodeMessage parses one text frame. Only frames with topic, type and data
// become book events; acks and pongs are reported so the adapter can track
// the handshake, everything else is KindIgnored. A book frame whose data
// cannot be decoded is returned as an exchange.Invalid event together with
// the decode error.
func DecodeMessage(raw []byte) (Message, error) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to decode message: %w", err)
	}

	switch {
	case msg.Op == "ping" || msg.Op == "pong":
		return Message{Kind: KindPong, Success: msg.Success == nil || *msg.Success, RetMsg: msg.RetMsg, ConnID: msg.ConnID}, nil
	case msg.Success != nil:
		return Message{Kind: KindSubscribeAck, Success: *msg.Success, RetMsg: msg.RetMsg, ConnID: msg.ConnID}, nil
	case msg.Topic == "" || msg.Type == "" || isNull(msg.Data):
		return Message{Kind: KindIgnored}, nil
	}

	var eventType exchange.EventType
	switch msg.Type {
	case "snapshot":
		eventType = exchange.Snapshot
	case "delta":
		eventType = exchange.Delta
	default:
		return Message{Kind: KindIgnored}, nil
	}

	var data OrderbookData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		// the frame was a book update, so the book can no longer be trusted
		return Message{
			Kind: KindBook,
			Event: exchange.BookEvent{
				Type:      exchange.Invalid,
				Exchange:  exchange.Bybit,
				EventTime: time.UnixMilli(msg.TS),
			},
		}, fmt.Errorf("failed to decode %s data: %w", msg.Type, err)
	}

	return Message{
		Kind: KindBook,
		Event: exchange.BookEvent{
			Type:      eventType,
			Exchange:  exchange.Bybit,
			Symbol:    data.Symbol,
			UpdateID:  data.UpdateID,
			Seq:       data.SeqNum,
			EventTime: time.UnixMilli(msg.TS),
			Bids:      convertLevels(data.Bids),
			Asks:      convertLevels(data.Asks),
		},
	}, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// convertLevels keeps every entry; anything that is not an array of strings
// or numbers is passed on as-is so the engine reports it as malformed
func convertLevels(entries []json.RawMessage) []exchange.RawLevel {
	levels := make([]exchange.RawLevel, len(entries))
	for i, entry := range entries {
		var fields []json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil {
			levels[i] = exchange.RawLevel{string(entry)}
			continue
		}
		level := make(exchange.RawLevel, len(fields))
		for j, field := range fields {
			level[j] = fieldText(field)
		}
		levels[i] = level
	}
	return levels
}

// fieldText unquotes JSON strings and returns numbers (or anything else)
// as their literal text
func fieldText(field json.RawMessage) string {
	var s string
	if err := json.Unmarshal(field, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(field, &n); err == nil {
		return n.String()
	}
	return string(field)
}

// Topic builds the orderbook stream topic for a depth and symbol
func Topic(depth int, symbol string) string {
	return fmt.Sprintf("orderbook.%d.%s", depth, symbol)
}
