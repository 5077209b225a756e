package bybit

import "encoding/json"

// WSMessage represents any text frame Bybit sends on a public stream:
// book pushes carry topic/type/data, control replies carry success/op.
type WSMessage struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"` // "snapshot" or "delta"
	TS    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
	CTS   int64           `json:"cts"` // matching engine timestamp

	Success *bool  `json:"success"`
	RetMsg  string `json:"ret_msg"`
	Op      string `json:"op"`
	ConnID  string `json:"conn_id"`
	ReqID   string `json:"req_id"`
}

// OrderbookData represents the orderbook data from Bybit
type OrderbookData struct {
	Symbol   string            `json:"s"`
	Bids     []json.RawMessage `json:"b"` // [price, size]
	Asks     []json.RawMessage `json:"a"` // [price, size]
	UpdateID int64             `json:"u"`
	SeqNum   int64             `json:"seq"`
}

// SubscribeMessage represents a subscription or ping request
type SubscribeMessage struct {
	ReqID string   `json:"req_id,omitempty"`
	Op    string   `json:"op"`
	Args  []string `json:"args,omitempty"`
}
