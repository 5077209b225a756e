package bybit

import (
	"strings"
	"testing"
	"time"

	"bybitbook/internal/exchange"
)

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    MessageKind
		success bool
	}{
		{
			name:    "subscribe ack",
			raw:     `{"success":true,"ret_msg":"subscribe","conn_id":"abc","op":"subscribe"}`,
			kind:    KindSubscribeAck,
			success: true,
		},
		{
			name: "subscribe rejected",
			raw:  `{"success":false,"ret_msg":"error:handler not found","conn_id":"abc","op":"subscribe"}`,
			kind: KindSubscribeAck,
		},
		{
			name:    "spot pong",
			raw:     `{"success":true,"ret_msg":"pong","conn_id":"abc","op":"ping"}`,
			kind:    KindPong,
			success: true,
		},
		{
			name:    "derivatives pong",
			raw:     `{"req_id":"1","op":"pong","args":["1700000000000"],"conn_id":"abc"}`,
			kind:    KindPong,
			success: true,
		},
		{
			name: "unknown push type",
			raw:  `{"topic":"orderbook.1.BTCUSDT","type":"reset","ts":1,"data":{"s":"BTCUSDT"}}`,
			kind: KindIgnored,
		},
		{
			name: "missing data",
			raw:  `{"topic":"orderbook.1.BTCUSDT","type":"delta","ts":1}`,
			kind: KindIgnored,
		},
		{
			name: "unrelated frame",
			raw:  `{"hello":"world"}`,
			kind: KindIgnored,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, msg.Kind)
			}
			if msg.Success != tt.success {
				t.Errorf("expected success %v, got %v", tt.success, msg.Success)
			}
		})
	}
}

func TestDecodeBookMessage(t *testing.T) {
	raw := `{
		"topic":"orderbook.1.BTCUSDT",
		"type":"snapshot",
		"ts":1700000000123,
		"data":{"s":"BTCUSDT","b":[["30000.5","1.2"],["30000","0"]],"a":[["30001","0.5"]],"u":18521288,"seq":7961638724},
		"cts":1700000000100
	}`

	msg, err := DecodeMessage([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindBook {
		t.Fatalf("expected book message, got %s", msg.Kind)
	}

	ev := msg.Event
	if ev.Type != exchange.Snapshot || ev.Symbol != "BTCUSDT" || ev.Exchange != exchange.Bybit {
		t.Errorf("unexpected event header: %+v", ev)
	}
	if ev.UpdateID != 18521288 || ev.Seq != 7961638724 {
		t.Errorf("unexpected ids: u=%d seq=%d", ev.UpdateID, ev.Seq)
	}
	if !ev.EventTime.Equal(time.UnixMilli(1700000000123)) {
		t.Errorf("unexpected event time %v", ev.EventTime)
	}
	if len(ev.Bids) != 2 || len(ev.Asks) != 1 {
		t.Fatalf("expected 2 bids and 1 ask, got %d and %d", len(ev.Bids), len(ev.Asks))
	}
	if ev.Bids[1][0] != "30000" || ev.Bids[1][1] != "0" {
		t.Errorf("unexpected second bid %v", ev.Bids[1])
	}
}

func TestDecodeDeltaWithoutSides(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"topic":"orderbook.1.BTCUSDT","type":"delta","ts":1,"data":{"s":"BTCUSDT","u":2}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindBook || msg.Event.Type != exchange.Delta {
		t.Fatalf("expected delta book message, got %s/%s", msg.Kind, msg.Event.Type)
	}
	if len(msg.Event.Bids) != 0 || len(msg.Event.Asks) != 0 {
		t.Errorf("expected empty sides, got %v / %v", msg.Event.Bids, msg.Event.Asks)
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	if _, err := DecodeMessage([]byte(`{"topic":`)); err == nil {
		t.Error("expected an error for truncated JSON")
	}
}

func TestTopic(t *testing.T) {
	if got := Topic(1, "BTCUSDT"); got != "orderbook.1.BTCUSDT" {
		t.Errorf("unexpected topic %s", got)
	}
}

func TestValidDepth(t *testing.T) {
	tests := []struct {
		category exchange.Category
		depth    int
		valid    bool
	}{
		{exchange.Spot, 1, true},
		{exchange.Spot, 1000, true},
		{exchange.Spot, 500, false},
		{exchange.Linear, 500, true},
		{exchange.Inverse, 1000, false},
		{exchange.Category("option"), 1, false},
	}

	for _, tt := range tests {
		if got := ValidDepth(tt.category, tt.depth); got != tt.valid {
			t.Errorf("ValidDepth(%s, %d) = %v, want %v", tt.category, tt.depth, got, tt.valid)
		}
	}
}

func TestDecodeNumericAndMalformedEntries(t *testing.T) {
	raw := `{"topic":"orderbook.50.BTCUSDT","type":"delta","ts":1,
		"data":{"s":"BTCUSDT","b":[["100","1"],[99.5,"2"],[true,"1"],"x"],"a":[["101","1"]],"u":3}}`

	msg, err := DecodeMessage([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindBook || msg.Event.Type != exchange.Delta {
		t.Fatalf("expected delta book message, got %s/%s", msg.Kind, msg.Event.Type)
	}

	want := []exchange.RawLevel{{"100", "1"}, {"99.5", "2"}, {"true", "1"}, {`"x"`}}
	if len(msg.Event.Bids) != len(want) {
		t.Fatalf("expected %d bids, got %v", len(want), msg.Event.Bids)
	}
	for i := range want {
		if strings.Join(msg.Event.Bids[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("bid %d: expected %v, got %v", i, want[i], msg.Event.Bids[i])
		}
	}
	if len(msg.Event.Asks) != 1 || msg.Event.Asks[0][0] != "101" {
		t.Errorf("unexpected asks %v", msg.Event.Asks)
	}
}

func TestDecodeUndecodableBookData(t *testing.T) {
	raw := `{"topic":"orderbook.1.BTCUSDT","type":"delta","ts":5,"data":{"s":"BTCUSDT","b":"oops","u":"nine"}}`

	msg, err := DecodeMessage([]byte(raw))
	if err == nil {
		t.Fatal("expected a decode error")
	}
	if msg.Kind != KindBook || msg.Event.Type != exchange.Invalid {
		t.Errorf("expected an invalid book event, got %s/%s", msg.Kind, msg.Event.Type)
	}
}
