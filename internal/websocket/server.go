package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"bybitbook/internal/aggregation"
	"bybitbook/internal/exchange"
	"bybitbook/internal/orderbook"
	"bybitbook/internal/types"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type MessageType string

const (
	MessageTypeOrderbook MessageType = "orderbook"
	MessageTypeStats     MessageType = "stats"
)

const clientSendBuffer = 16

// ClientMessage represents messages sent from client to server
type ClientMessage struct {
	Type string  `json:"type"`
	Tick float64 `json:"tick,omitempty"`
}

type OrderbookMessage struct {
	Type         MessageType  `json:"type"`
	Symbol       string       `json:"symbol"`
	Synchronized bool         `json:"synchronized"`
	Stale        bool         `json:"stale"`
	Tick         float64      `json:"tick,omitempty"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	Timestamp    int64        `json:"timestamp"`
}

type StatsMessage struct {
	Type              MessageType `json:"type"`
	Symbol            string      `json:"symbol"`
	BestBid           string      `json:"bestBid"`
	BestAsk           string      `json:"bestAsk"`
	MidPrice          string      `json:"midPrice"`
	Spread            string      `json:"spread"`
	BidLevels         int         `json:"bidLevels"`
	AskLevels         int         `json:"askLevels"`
	BidLiquidity05Pct string      `json:"bidLiquidity05Pct"`
	AskLiquidity05Pct string      `json:"askLiquidity05Pct"`
	BidLiquidity2Pct  string      `json:"bidLiquidity2Pct"`
	AskLiquidity2Pct  string      `json:"askLiquidity2Pct"`
	TotalBidsQty      string      `json:"totalBidsQty"`
	TotalAsksQty      string      `json:"totalAsksQty"`
	TotalDelta        string      `json:"totalDelta"`
	EventsApplied     int64       `json:"eventsApplied"`
	MalformedEntries  int64       `json:"malformedEntries"`
	LastUpdateID      int64       `json:"lastUpdateId"`
	Timestamp         int64       `json:"timestamp"`
}

type PriceLevel struct {
	Price      string `json:"price"`
	Size       string `json:"size"`
	Cumulative string `json:"cumulative"`
}

// Options configures the server
type Options struct {
	Addr         string
	PushInterval time.Duration
	Depth        int
	StaleAfter   time.Duration
	Tick         types.TickLevel
	Metrics      http.Handler                // mounted on /metrics when set
	Health       func() exchange.HealthStatus // feed health reported on /healthz when set
}

type client struct {
	conn *websocket.Conn
	send chan interface{}
}

// Server exposes one order book over HTTP and pushes depth to websocket clients
type Server struct {
	book       *orderbook.OrderBook
	opts       Options
	logger     zerolog.Logger
	router     *mux.Router
	upgrader   websocket.Upgrader
	clients    map[*websocket.Conn]*client
	clientsMux sync.RWMutex
	aggregator types.PriceAggregator
	tickMux    sync.RWMutex
}

func NewServer(book *orderbook.OrderBook, opts Options, logger zerolog.Logger) *Server {
	if opts.PushInterval <= 0 {
		opts.PushInterval = 200 * time.Millisecond
	}
	if opts.Depth <= 0 {
		opts.Depth = 50
	}
	if opts.Tick == 0 {
		opts.Tick = types.Tick01
	}

	s := &Server{
		book:       book,
		opts:       opts,
		logger:     logger.With().Str("component", "server").Logger(),
		clients:    make(map[*websocket.Conn]*client),
		aggregator: aggregation.New(opts.Tick),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	s.router.HandleFunc("/book", s.handleBook).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	if opts.Metrics != nil {
		s.router.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}
	return s
}

// Handler returns the HTTP router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP and pushes data until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 2 * time.Second,
	}

	go s.startDataPush(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("graceful shutdown failed")
		}
		s.closeClients()
	}()

	s.logger.Info().Str("addr", s.opts.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade error")
		return
	}

	c := &client{conn: conn, send: make(chan interface{}, clientSendBuffer)}
	s.clientsMux.Lock()
	s.clients[conn] = c
	s.clientsMux.Unlock()

	s.logger.Info().Str("remote", r.RemoteAddr).Msg("websocket client connected")

	go s.writePump(c)
	defer func() {
		s.removeClient(conn)
		s.logger.Info().Str("remote", r.RemoteAddr).Msg("websocket client disconnected")
	}()

	// a new client gets the current book right away
	c.send <- s.buildOrderbookMessage(time.Now().UnixMilli())

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			s.logger.Debug().Err(err).Msg("error parsing client message")
			continue
		}

		s.handleClientMessage(clientMsg)
	}
}

func (s *Server) writePump(c *client) {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			s.logger.Debug().Err(err).Msg("error writing to client")
			c.conn.Close()
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMux.Lock()
	c, ok := s.clients[conn]
	delete(s.clients, conn)
	s.clientsMux.Unlock()

	if ok {
		close(c.send)
		conn.Close()
	}
}

func (s *Server) closeClients() {
	s.clientsMux.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.clientsMux.RUnlock()

	for _, conn := range conns {
		s.removeClient(conn)
	}
}

func (s *Server) handleClientMessage(msg ClientMessage) {
	switch msg.Type {
	case "set_tick":
		s.setTickLevel(msg.Tick)
	default:
		s.logger.Debug().Str("type", msg.Type).Msg("unknown client message type")
	}
}

func (s *Server) setTickLevel(tick float64) {
	tickLevel := types.TickLevel(tick)
	if !types.IsValidTickLevel(tickLevel) {
		s.logger.Warn().Float64("tick", tick).Msg("invalid tick level")
		return
	}

	s.tickMux.Lock()
	s.aggregator.SetTickLevel(tickLevel)
	s.tickMux.Unlock()

	s.logger.Info().Float64("tick", tick).Msg("tick level changed")
}

// broadcast queues msg for every client; clients that cannot keep up are dropped
func (s *Server) broadcast(msg interface{}) {
	var slow []*websocket.Conn

	s.clientsMux.RLock()
	for conn, c := range s.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, conn)
		}
	}
	s.clientsMux.RUnlock()

	for _, conn := range slow {
		s.logger.Warn().Str("remote", conn.RemoteAddr().String()).Msg("dropping slow client")
		s.removeClient(conn)
	}
}

func (s *Server) startDataPush(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.clientsMux.RLock()
		hasClients := len(s.clients) > 0
		s.clientsMux.RUnlock()

		if !hasClients {
			continue
		}

		timestamp := time.Now().UnixMilli()
		s.broadcast(s.buildOrderbookMessage(timestamp))
		s.broadcast(s.buildStatsMessage(s.book.Stats(), timestamp))
	}
}

func (s *Server) buildOrderbookMessage(timestamp int64) OrderbookMessage {
	view := s.book.View(s.opts.Depth, s.opts.StaleAfter)

	s.tickMux.RLock()
	aggregatedBids := s.aggregator.AggregateBids(view.Bids)
	aggregatedAsks := s.aggregator.AggregateAsks(view.Asks)
	tick := s.aggregator.GetTickLevel()
	s.tickMux.RUnlock()

	return OrderbookMessage{
		Type:         MessageTypeOrderbook,
		Symbol:       view.Symbol,
		Synchronized: view.Stats.Synchronized,
		Stale:        view.Stale,
		Tick:         float64(tick),
		Bids:         toWireLevels(aggregatedBids),
		Asks:         toWireLevels(aggregatedAsks),
		Timestamp:    timestamp,
	}
}

func toWireLevels(levels []types.PriceLevel) []PriceLevel {
	cumulative := aggregation.Cumulative(levels)
	out := make([]PriceLevel, 0, len(levels))
	for i, level := range levels {
		out = append(out, PriceLevel{
			Price:      level.Price.String(),
			Size:       level.Size.String(),
			Cumulative: cumulative[i].String(),
		})
	}
	return out
}

func (s *Server) buildStatsMessage(stats types.Stats, timestamp int64) StatsMessage {
	return StatsMessage{
		Type:              MessageTypeStats,
		Symbol:            stats.Symbol,
		BestBid:           stats.BestBid.String(),
		BestAsk:           stats.BestAsk.String(),
		MidPrice:          stats.MidPrice.String(),
		Spread:            stats.Spread.String(),
		BidLevels:         stats.BidLevels,
		AskLevels:         stats.AskLevels,
		BidLiquidity05Pct: stats.BidLiquidity05Pct.String(),
		AskLiquidity05Pct: stats.AskLiquidity05Pct.String(),
		BidLiquidity2Pct:  stats.BidLiquidity2Pct.String(),
		AskLiquidity2Pct:  stats.AskLiquidity2Pct.String(),
		TotalBidsQty:      stats.TotalBidsQty.String(),
		TotalAsksQty:      stats.TotalAsksQty.String(),
		TotalDelta:        stats.TotalDelta.String(),
		EventsApplied:     stats.EventsApplied,
		MalformedEntries:  stats.MalformedEntries,
		LastUpdateID:      stats.LastUpdateID,
		Timestamp:         timestamp,
	}
}

// BookResponse is the JSON body of GET /book
type BookResponse struct {
	Symbol       string       `json:"symbol"`
	State        string       `json:"state"`
	Stale        bool         `json:"stale"`
	BestBid      *PriceLevel  `json:"bestBid"`
	BestAsk      *PriceLevel  `json:"bestAsk"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	LastUpdateID int64        `json:"lastUpdateId"`
	Timestamp    int64        `json:"timestamp"`
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	depth := 1
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "depth must be a positive integer", http.StatusBadRequest)
			return
		}
		depth = n
	}

	view := s.book.View(depth, s.opts.StaleAfter)
	resp := BookResponse{
		Symbol:       view.Symbol,
		State:        s.book.State().String(),
		Stale:        view.Stale,
		Bids:         toWireLevels(view.Bids),
		Asks:         toWireLevels(view.Asks),
		LastUpdateID: view.Stats.LastUpdateID,
		Timestamp:    time.Now().UnixMilli(),
	}
	// best levels are reported only as a pair
	if len(view.Bids) > 0 && len(view.Asks) > 0 {
		resp.BestBid = &resp.Bids[0]
		resp.BestAsk = &resp.Asks[0]
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn().Err(err).Msg("error encoding book response")
	}
}

// HealthResponse is the JSON body of GET /healthz
type HealthResponse struct {
	Status string      `json:"status"`
	Feed   *FeedHealth `json:"feed,omitempty"`
}

type FeedHealth struct {
	Connected    bool       `json:"connected"`
	Subscribed   bool       `json:"subscribed"`
	ConnID       string     `json:"connId,omitempty"`
	LastMessage  *time.Time `json:"lastMessage,omitempty"`
	MessageCount int64      `json:"messageCount"`
	ErrorCount   int64      `json:"errorCount"`
	ClosedAt     *time.Time `json:"closedAt,omitempty"`
}

// handleHealthz reports process liveness plus the feed connection state
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if s.opts.Health != nil {
		h := s.opts.Health()
		resp.Feed = &FeedHealth{
			Connected:    h.Connected,
			Subscribed:   h.Subscribed,
			ConnID:       h.ConnID,
			MessageCount: h.MessageCount,
			ErrorCount:   h.ErrorCount,
			ClosedAt:     h.ClosedAt,
		}
		if !h.LastMessage.IsZero() {
			resp.Feed.LastMessage = &h.LastMessage
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn().Err(err).Msg("error encoding health response")
	}
}

// handleReadyz reports ready only while the book holds a fresh snapshot
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.book.Stale(s.opts.StaleAfter, time.Now()) {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
