package bybit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bybitbook/internal/exchange"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultPingInterval     = 20 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultBufferSize       = 1000
	closeWait               = time.Second
)

var streamURLs = map[exchange.Category]string{
	exchange.Spot:    "wss://stream.bybit.com/v5/public/spot",
	exchange.Linear:  "wss://stream.bybit.com/v5/public/linear",
	exchange.Inverse: "wss://stream.bybit.com/v5/public/inverse",
}

var depths = map[exchange.Category][]int{
	exchange.Spot:    {1, 50, 200, 1000},
	exchange.Linear:  {1, 50, 200, 500},
	exchange.Inverse: {1, 50, 200, 500},
}

// StreamURL returns the public stream endpoint for a category
func StreamURL(category exchange.Category) (string, error) {
	endpoint, ok := streamURLs[category]
	if !ok {
		return "", fmt.Errorf("unknown bybit category: %s", category)
	}
	return endpoint, nil
}

// ValidDepth reports whether Bybit publishes an orderbook topic of this depth
func ValidDepth(category exchange.Category, depth int) bool {
	for _, d := range depths[category] {
		if d == depth {
			return true
		}
	}
	return false
}

// Config holds the settings for one Bybit orderbook subscription
type Config struct {
	Symbol           string
	Category         exchange.Category
	Depth            int
	URL              string // overrides the category endpoint, e.g. testnet
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	BufferSize       int
	Listener         exchange.Listener
	Logger           zerolog.Logger
}

// Feed implements exchange.Feed for a Bybit public orderbook stream
type Feed struct {
	cfg    Config
	wsURL  string
	topic  string
	logger zerolog.Logger

	wsConn  *websocket.Conn
	writeMu sync.Mutex

	events    chan exchange.BookEvent
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	errMu sync.Mutex
	err   error

	healthMu sync.Mutex
	health   exchange.HealthStatus
}

// NewFeed creates a new Bybit feed; it does not connect
func NewFeed(cfg Config) (*Feed, error) {
	if cfg.Symbol == "" {
		return nil, errors.New("symbol is required")
	}
	if cfg.Category == "" {
		cfg.Category = exchange.Spot
	}
	if cfg.Depth == 0 {
		cfg.Depth = 1
	}
	if !ValidDepth(cfg.Category, cfg.Depth) {
		return nil, fmt.Errorf("depth %d is not published for %s", cfg.Depth, cfg.Category)
	}

	wsURL := cfg.URL
	if wsURL == "" {
		var err error
		if wsURL, err = StreamURL(cfg.Category); err != nil {
			return nil, err
		}
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Listener == nil {
		cfg.Listener = exchange.ListenerFuncs{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	topic := Topic(cfg.Depth, cfg.Symbol)

	return &Feed{
		cfg:   cfg,
		wsURL: wsURL,
		topic: topic,
		logger: cfg.Logger.With().
			Str("exchange", string(exchange.Bybit)).
			Str("category", string(cfg.Category)).
			Str("topic", topic).
			Logger(),
		events: make(chan exchange.BookEvent, cfg.BufferSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// GetName returns the exchange name
func (f *Feed) GetName() exchange.ExchangeName {
	return exchange.Bybit
}

// GetSymbol returns the trading symbol
func (f *Feed) GetSymbol() string {
	return f.cfg.Symbol
}

// Topic returns the orderbook topic this feed subscribes to
func (f *Feed) Topic() string {
	return f.topic
}

// Events returns the channel of decoded book events
func (f *Feed) Events() <-chan exchange.BookEvent {
	return f.events
}

// Done is closed when the read loop exits
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// Err returns the error that ended the connection, nil after a clean close
func (f *Feed) Err() error {
	f.errMu.Lock()
	defer f.errMu.Unlock()
	return f.err
}

// Connect establishes the WebSocket connection and subscribes to the topic
func (f *Feed) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: f.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		f.incrementErrorCount()
		return fmt.Errorf("websocket connection failed: %w", err)
	}

	f.wsConn = conn
	f.updateConnectionStatus(true)
	f.logger.Info().Str("url", f.wsURL).Msg("websocket connected")

	if err := f.writeJSON(SubscribeMessage{Op: "subscribe", Args: []string{f.topic}}); err != nil {
		f.incrementErrorCount()
		conn.Close()
		f.updateConnectionStatus(false)
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	f.logger.Info().Msg("subscribe request sent")

	go f.readMessages()
	go f.keepAlive()

	return nil
}

// Close sends a close frame, waits briefly for the server to answer and
// closes the connection
func (f *Feed) Close() error {
	if f.wsConn == nil {
		return exchange.ErrNotConnected
	}

	var err error
	f.closeOnce.Do(func() {
		f.cancel()

		werr := f.writeControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if werr != nil {
			f.logger.Debug().Err(werr).Msg("error sending close message")
		}

		select {
		case <-f.done:
		case <-time.After(closeWait):
		}

		err = f.wsConn.Close()
		f.updateConnectionStatus(false)
	})
	return err
}

// Health returns connection health information
func (f *Feed) Health() exchange.HealthStatus {
	f.healthMu.Lock()
	defer f.healthMu.Unlock()
	return f.health
}

// readMessages reads frames until the connection ends, delivering book
// events in arrival order. Delivery blocks rather than dropping.
func (f *Feed) readMessages() {
	defer close(f.done)
	defer close(f.events)
	defer f.updateConnectionStatus(false)

	for {
		_, data, err := f.wsConn.ReadMessage()
		if err != nil {
			f.finish(err)
			return
		}

		f.incrementMessageCount()

		msg, err := DecodeMessage(data)
		if err != nil {
			f.incrementErrorCount()
			if msg.Kind != KindBook {
				f.logger.Warn().Err(err).Bytes("raw", data).Msg("skipping undecodable frame")
				continue
			}
			f.logger.Warn().Err(err).Bytes("raw", data).Msg("undecodable book frame, book must resync")
		}

		switch msg.Kind {
		case KindSubscribeAck:
			if !msg.Success {
				err := fmt.Errorf("%w: %s", exchange.ErrSubscribeRejected, msg.RetMsg)
				f.setErr(err)
				f.cfg.Listener.OnError(err)
				return
			}
			f.setSubscribed(msg.ConnID)
			f.logger.Info().Str("conn_id", msg.ConnID).Msg("subscription successful")
			f.cfg.Listener.OnSubscribed(f.topic)

		case KindPong:
			f.logger.Debug().Str("ret_msg", msg.RetMsg).Msg("pong")

		case KindBook:
			select {
			case f.events <- msg.Event:
			case <-f.ctx.Done():
				f.finish(f.ctx.Err())
				return
			}

		default:
			f.logger.Debug().Bytes("raw", data).Msg("ignoring frame")
		}
	}
}

// finish reports why the read loop stopped to the listener
func (f *Feed) finish(err error) {
	if f.ctx.Err() != nil {
		f.cfg.Listener.OnClosed("closed by client")
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && (closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
		f.logger.Info().Int("code", closeErr.Code).Str("reason", closeErr.Text).Msg("websocket closed")
		f.cfg.Listener.OnClosed(closeErr.Text)
		return
	}

	f.incrementErrorCount()
	f.setErr(err)
	f.logger.Error().Err(err).Msg("websocket read error")
	f.cfg.Listener.OnError(err)
}

// keepAlive sends application pings so Bybit does not drop an idle connection
func (f *Feed) keepAlive() {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ping := SubscribeMessage{ReqID: uuid.NewString(), Op: "ping"}
			if err := f.writeJSON(ping); err != nil {
				f.logger.Warn().Err(err).Msg("ping failed")
				return
			}
		case <-f.ctx.Done():
			return
		case <-f.done:
			return
		}
	}
}

func (f *Feed) writeJSON(v interface{}) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.wsConn.WriteJSON(v)
}

func (f *Feed) writeControl(messageType int, data []byte) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.wsConn.WriteMessage(messageType, data)
}

func (f *Feed) setErr(err error) {
	f.errMu.Lock()
	defer f.errMu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

// updateConnectionStatus updates the connection status in health
func (f *Feed) updateConnectionStatus(connected bool) {
	f.healthMu.Lock()
	defer f.healthMu.Unlock()
	f.health.Connected = connected
	if !connected {
		f.health.Subscribed = false
		now := time.Now()
		f.health.ClosedAt = &now
	}
}

func (f *Feed) setSubscribed(connID string) {
	f.healthMu.Lock()
	defer f.healthMu.Unlock()
	f.health.Subscribed = true
	f.health.ConnID = connID
}

// incrementMessageCount increments the message count in health
func (f *Feed) incrementMessageCount() {
	f.healthMu.Lock()
	defer f.healthMu.Unlock()
	f.health.MessageCount++
	f.health.LastMessage = time.Now()
}

// incrementErrorCount increments the error count in health
func (f *Feed) incrementErrorCount() {
	f.healthMu.Lock()
	defer f.healthMu.Unlock()
	f.health.ErrorCount++
}
