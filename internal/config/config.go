package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"bybitbook/internal/exchange"
	"bybitbook/internal/types"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Book     BookConfig     `yaml:"book"`
	Display  DisplayConfig  `yaml:"display"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ExchangeConfig holds the feed subscription settings
type ExchangeConfig struct {
	Symbol           string            `yaml:"symbol"`
	Category         exchange.Category `yaml:"category"`
	Depth            int               `yaml:"depth"`
	URL              string            `yaml:"url"` // empty uses the public endpoint for Category
	PingInterval     time.Duration     `yaml:"ping_interval"`
	HandshakeTimeout time.Duration     `yaml:"handshake_timeout"`
	BufferSize       int               `yaml:"buffer_size"`
}

// BookConfig holds order book engine settings
type BookConfig struct {
	MalformedPolicy string        `yaml:"malformed_policy"` // skip or reject
	RequireSnapshot bool          `yaml:"require_snapshot"`
	StaleAfter      time.Duration `yaml:"stale_after"`
}

// DisplayConfig holds display-related configuration
type DisplayConfig struct {
	Mode           string          `yaml:"mode"` // log, tui or none
	Top            int             `yaml:"top"`
	UpdateInterval time.Duration   `yaml:"update_interval"`
	TickLevel      types.TickLevel `yaml:"tick_level"`
}

// ServerConfig holds the HTTP/websocket server settings
type ServerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	PushInterval time.Duration `yaml:"push_interval"`
	Depth        int           `yaml:"depth"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the default configuration: BTCUSDT top-of-book on Bybit spot
func Default() Config {
	return Config{
		Exchange: ExchangeConfig{
			Symbol:           "BTCUSDT",
			Category:         exchange.Spot,
			Depth:            1,
			PingInterval:     20 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			BufferSize:       1000,
		},
		Book: BookConfig{
			MalformedPolicy: "skip",
			RequireSnapshot: false,
			StaleAfter:      30 * time.Second,
		},
		Display: DisplayConfig{
			Mode:           "log",
			Top:            10,
			UpdateInterval: 500 * time.Millisecond,
			TickLevel:      types.Tick01,
		},
		Server: ServerConfig{
			Enabled:      true,
			Addr:         ":8086",
			PushInterval: 200 * time.Millisecond,
			Depth:        50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if any)
// and then with BOOKD_* environment variables
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("BOOKD_SYMBOL"); v != "" {
		c.Exchange.Symbol = v
	}
	if v := os.Getenv("BOOKD_CATEGORY"); v != "" {
		c.Exchange.Category = exchange.Category(v)
	}
	if v := os.Getenv("BOOKD_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BOOKD_DEPTH: %w", err)
		}
		c.Exchange.Depth = n
	}
	if v := os.Getenv("BOOKD_WS_URL"); v != "" {
		c.Exchange.URL = v
	}
	if v := os.Getenv("BOOKD_MALFORMED_POLICY"); v != "" {
		c.Book.MalformedPolicy = v
	}
	if v := os.Getenv("BOOKD_REQUIRE_SNAPSHOT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BOOKD_REQUIRE_SNAPSHOT: %w", err)
		}
		c.Book.RequireSnapshot = b
	}
	if v := os.Getenv("BOOKD_DISPLAY"); v != "" {
		c.Display.Mode = v
	}
	if v := os.Getenv("BOOKD_HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("BOOKD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks the settings that would otherwise fail deep inside a component
func (c Config) Validate() error {
	if c.Exchange.Symbol == "" {
		return fmt.Errorf("exchange.symbol is required")
	}
	switch c.Exchange.Category {
	case exchange.Spot, exchange.Linear, exchange.Inverse:
	default:
		return fmt.Errorf("exchange.category %q is not one of spot, linear, inverse", c.Exchange.Category)
	}
	switch c.Book.MalformedPolicy {
	case "", "skip", "reject":
	default:
		return fmt.Errorf("book.malformed_policy %q is not one of skip, reject", c.Book.MalformedPolicy)
	}
	switch c.Display.Mode {
	case "log", "tui", "none":
	default:
		return fmt.Errorf("display.mode %q is not one of log, tui, none", c.Display.Mode)
	}
	if !types.IsValidTickLevel(c.Display.TickLevel) {
		return fmt.Errorf("display.tick_level %g is not supported", float64(c.Display.TickLevel))
	}
	return nil
}

// SetSymbol updates the subscribed symbol
func (c *Config) SetSymbol(symbol string) {
	c.Exchange.Symbol = symbol
}

// SetTickLevel updates the default tick level
func (c *Config) SetTickLevel(tick types.TickLevel) {
	c.Display.TickLevel = tick
}

// SetDisplayTop updates the display top count
func (c *Config) SetDisplayTop(top int) {
	c.Display.Top = top
}

// SetUpdateInterval updates the display update interval
func (c *Config) SetUpdateInterval(interval time.Duration) {
	c.Display.UpdateInterval = interval
}
