package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bybitbook/internal/config"
	"bybitbook/internal/display"
	"bybitbook/internal/exchange"
	"bybitbook/internal/factory"
	"bybitbook/internal/infra/log"
	"bybitbook/internal/metrics"
	"bybitbook/internal/orderbook"
	"bybitbook/internal/types"
	"bybitbook/internal/websocket"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to a YAML config file")
	symbol := flag.String("symbol", "", "Trading symbol to monitor")
	category := flag.String("category", "", fmt.Sprintf("Bybit category, one of %v", factory.GetSupportedCategories()))
	depth := flag.Int("depth", 0, "Orderbook topic depth")
	displayMode := flag.String("display", "", "Display mode: log, tui or none")
	httpAddr := flag.String("http", "", "HTTP listen address, empty string in config disables the server")
	tick := flag.Float64("tick", 0, "Initial price aggregation tick")
	top := flag.Int("top", 0, "Levels per side shown in the terminal UI")
	refresh := flag.Duration("refresh", 0, "Terminal UI refresh interval")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// flags win over file and environment, but only when given
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "symbol":
			cfg.SetSymbol(*symbol)
		case "category":
			cfg.Exchange.Category = exchange.Category(*category)
		case "depth":
			cfg.Exchange.Depth = *depth
		case "display":
			cfg.Display.Mode = *displayMode
		case "http":
			cfg.Server.Addr = *httpAddr
			cfg.Server.Enabled = *httpAddr != ""
		case "tick":
			cfg.SetTickLevel(types.TickLevel(*tick))
		case "top":
			cfg.SetDisplayTop(*top)
		case "refresh":
			cfg.SetUpdateInterval(*refresh)
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// the terminal UI owns the screen, so only errors are logged under it
	if cfg.Display.Mode == display.ModeTUI {
		cfg.Logging.Level = "error"
	}
	logger := log.NewLogger(cfg.Logging)

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("bookd stopped")
		os.Exit(1)
	}
}

func run(cfg config.Config, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := orderbook.ParseMalformedPolicy(cfg.Book.MalformedPolicy)
	if err != nil {
		return err
	}
	book := orderbook.NewWithOptions(orderbook.Options{
		Symbol:          cfg.Exchange.Symbol,
		Policy:          policy,
		RequireSnapshot: cfg.Book.RequireSnapshot,
	})
	m := metrics.New(logger)

	disp, err := display.New(cfg.Display, cfg.Book.StaleAfter, os.Stdout)
	if err != nil {
		return err
	}

	listener := exchange.ListenerFuncs{
		Subscribed: func(topic string) {
			logger.Info().Str("topic", topic).Msg("subscribed")
		},
		Error: func(err error) {
			logger.Error().Err(err).Msg("feed error")
		},
		Closed: func(reason string) {
			logger.Info().Str("reason", reason).Msg("feed closed")
		},
	}

	feed, err := factory.NewFeed(cfg.Exchange, listener, logger)
	if err != nil {
		return fmt.Errorf("failed to create feed: %w", err)
	}

	logger.Info().
		Str("symbol", cfg.Exchange.Symbol).
		Str("category", string(cfg.Exchange.Category)).
		Str("topic", feed.Topic()).
		Str("policy", string(policy)).
		Msg("starting orderbook")

	if err := feed.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		server := websocket.NewServer(book, websocket.Options{
			Addr:         cfg.Server.Addr,
			PushInterval: cfg.Server.PushInterval,
			Depth:        cfg.Server.Depth,
			StaleAfter:   cfg.Book.StaleAfter,
			Tick:         cfg.Display.TickLevel,
			Metrics:      m.Handler(),
			Health:       feed.Health,
		}, logger)
		go func() {
			serverErr <- server.Start(ctx)
		}()
	}

	applyDone := make(chan struct{})
	go func() {
		defer close(applyDone)
		applyEvents(feed, book, m, disp, viewDepth(cfg), cfg.Book.StaleAfter, logger)
	}()

	displayDone := make(chan error, 1)
	go func() {
		displayDone <- disp.Run()
	}()

	var runErr error
	serverStopped := !cfg.Server.Enabled
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case <-feed.Done():
		runErr = feed.Err()
	case err := <-displayDone:
		runErr = err
	case err := <-serverErr:
		runErr = err
		serverStopped = true
	}

	stop()
	if err := feed.Close(); err != nil {
		logger.Debug().Err(err).Msg("error closing feed")
	}
	<-applyDone
	disp.Quit()

	if !serverStopped {
		select {
		case err := <-serverErr:
			if err != nil && runErr == nil {
				runErr = err
			}
		case <-time.After(5 * time.Second):
			logger.Warn().Msg("http server did not stop in time")
		}
	}

	logger.Info().Msg("goodbye")
	return runErr
}

// applyEvents is the only writer to book; it runs until the feed closes its channel
func applyEvents(feed exchange.Feed, book *orderbook.OrderBook, m *metrics.Metrics, disp types.Display,
	depth int, staleAfter time.Duration, logger log.Logger) {
	for ev := range feed.Events() {
		err := book.Apply(ev)
		m.ObserveApply(string(ev.Type), err, book.Stats())
		if err != nil {
			logger.Warn().
				Err(err).
				Str("type", string(ev.Type)).
				Int64("update_id", ev.UpdateID).
				Msg("failed to apply event")
		}
		disp.Update(book.View(depth, staleAfter))
	}
}

func viewDepth(cfg config.Config) int {
	if cfg.Display.Mode == display.ModeTUI {
		return cfg.Exchange.Depth
	}
	return 1
}
