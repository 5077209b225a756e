package factory

import (
	"fmt"

	"bybitbook/internal/config"
	"bybitbook/internal/exchange"
	"bybitbook/internal/exchange/bybit"

	"github.com/rs/zerolog"
)

// NewFeed creates a feed for the configured Bybit category
func NewFeed(cfg config.ExchangeConfig, listener exchange.Listener, logger zerolog.Logger) (exchange.Feed, error) {
	if !ValidateCategory(string(cfg.Category)) {
		return nil, fmt.Errorf("unknown category: %s", cfg.Category)
	}

	feed, err := bybit.NewFeed(bybit.Config{
		Symbol:           cfg.Symbol,
		Category:         cfg.Category,
		Depth:            cfg.Depth,
		URL:              cfg.URL,
		PingInterval:     cfg.PingInterval,
		HandshakeTimeout: cfg.HandshakeTimeout,
		BufferSize:       cfg.BufferSize,
		Listener:         listener,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	return feed, nil
}

// ValidateCategory checks if the category is supported
func ValidateCategory(name string) bool {
	switch exchange.Category(name) {
	case exchange.Spot, exchange.Linear, exchange.Inverse:
		return true
	default:
		return false
	}
}

// GetSupportedCategories returns a list of all supported categories
func GetSupportedCategories() []exchange.Category {
	return []exchange.Category{exchange.Spot, exchange.Linear, exchange.Inverse}
}
