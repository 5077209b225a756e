package metrics

import (
	"errors"
	"net/http"

	"bybitbook/internal/orderbook"
	"bybitbook/internal/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds the collectors for one book replica
type Metrics struct {
	registry *prometheus.Registry

	EventsApplied    *prometheus.CounterVec
	ApplyErrors      *prometheus.CounterVec
	BookResets       prometheus.Counter
	FeedMessages     prometheus.Counter
	Levels           *prometheus.GaugeVec
	BestPrice        *prometheus.GaugeVec
	Spread           prometheus.Gauge
	Synchronized     prometheus.Gauge
	LastEventLagSecs prometheus.Gauge

	seenResets int64
}

// New creates and registers the collectors on a fresh registry
func New(logger zerolog.Logger) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "book_events_applied_total", Help: "Book events applied without error by type",
		}, []string{"type"}),
		ApplyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "book_apply_errors_total", Help: "Events that failed to apply by reason",
		}, []string{"reason"}),
		BookResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "book_resets_total", Help: "Times the book was cleared to await a snapshot",
		}),
		FeedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feed_book_messages_total", Help: "Book events received from the feed",
		}),
		Levels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "book_levels", Help: "Price levels held per side",
		}, []string{"side"}),
		BestPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "book_best_price", Help: "Best price per side",
		}, []string{"side"}),
		Spread: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "book_spread", Help: "Best ask minus best bid",
		}),
		Synchronized: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "book_synchronized", Help: "1 when a snapshot has been applied since start or reset",
		}),
		LastEventLagSecs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "book_event_lag_seconds", Help: "Local apply time minus exchange event time of the last event",
		}),
	}

	m.registry.MustRegister(
		m.EventsApplied, m.ApplyErrors, m.BookResets, m.FeedMessages,
		m.Levels, m.BestPrice, m.Spread, m.Synchronized, m.LastEventLagSecs,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	logger.Info().Msg("prometheus metrics initialized")
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveApply records the outcome of one Apply call and the resulting book state
func (m *Metrics) ObserveApply(eventType string, err error, stats types.Stats) {
	m.FeedMessages.Inc()

	switch {
	case err == nil:
		m.EventsApplied.WithLabelValues(eventType).Inc()
	case errors.Is(err, orderbook.ErrMalformedEntry):
		m.ApplyErrors.WithLabelValues("malformed_entry").Inc()
	case errors.Is(err, orderbook.ErrAwaitingSnapshot):
		m.ApplyErrors.WithLabelValues("awaiting_snapshot").Inc()
	case errors.Is(err, orderbook.ErrInvalidEvent):
		m.ApplyErrors.WithLabelValues("invalid_event").Inc()
	default:
		m.ApplyErrors.WithLabelValues("other").Inc()
	}

	m.ObserveStats(stats)
}

// ObserveStats copies the book statistics into the gauges. It must be
// called from a single goroutine.
func (m *Metrics) ObserveStats(stats types.Stats) {
	m.Levels.WithLabelValues("bid").Set(float64(stats.BidLevels))
	m.Levels.WithLabelValues("ask").Set(float64(stats.AskLevels))

	bestBid, _ := stats.BestBid.Float64()
	bestAsk, _ := stats.BestAsk.Float64()
	spread, _ := stats.Spread.Float64()
	m.BestPrice.WithLabelValues("bid").Set(bestBid)
	m.BestPrice.WithLabelValues("ask").Set(bestAsk)
	m.Spread.Set(spread)

	if stats.Synchronized {
		m.Synchronized.Set(1)
	} else {
		m.Synchronized.Set(0)
	}

	if stats.Resets > m.seenResets {
		m.BookResets.Add(float64(stats.Resets - m.seenResets))
		m.seenResets = stats.Resets
	}

	if !stats.LastEventTime.IsZero() && !stats.LastAppliedAt.IsZero() {
		m.LastEventLagSecs.Set(stats.LastAppliedAt.Sub(stats.LastEventTime).Seconds())
	}
}

