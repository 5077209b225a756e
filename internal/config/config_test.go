package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bybitbook/internal/exchange"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Exchange.Symbol != "BTCUSDT" {
		t.Errorf("expected default symbol BTCUSDT, got %s", cfg.Exchange.Symbol)
	}
	if cfg.Exchange.Category != exchange.Spot || cfg.Exchange.Depth != 1 {
		t.Errorf("expected spot depth 1, got %s depth %d", cfg.Exchange.Category, cfg.Exchange.Depth)
	}
	if cfg.Book.MalformedPolicy != "skip" || cfg.Book.RequireSnapshot {
		t.Errorf("unexpected book defaults: %+v", cfg.Book)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookd.yaml")
	content := `
exchange:
  symbol: ETHUSDT
  category: linear
  depth: 50
book:
  malformed_policy: reject
  require_snapshot: true
  stale_after: 5s
display:
  mode: none
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Exchange.Symbol != "ETHUSDT" || cfg.Exchange.Category != exchange.Linear || cfg.Exchange.Depth != 50 {
		t.Errorf("unexpected exchange config: %+v", cfg.Exchange)
	}
	if cfg.Book.MalformedPolicy != "reject" || !cfg.Book.RequireSnapshot || cfg.Book.StaleAfter != 5*time.Second {
		t.Errorf("unexpected book config: %+v", cfg.Book)
	}
	if cfg.Display.Mode != "none" || cfg.Logging.Level != "debug" {
		t.Errorf("unexpected display/logging config: %+v %+v", cfg.Display, cfg.Logging)
	}
	// untouched keys keep their defaults
	if cfg.Server.Addr != ":8086" {
		t.Errorf("expected default server addr, got %s", cfg.Server.Addr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BOOKD_SYMBOL", "SOLUSDT")
	t.Setenv("BOOKD_DEPTH", "200")
	t.Setenv("BOOKD_REQUIRE_SNAPSHOT", "true")
	t.Setenv("BOOKD_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Exchange.Symbol != "SOLUSDT" || cfg.Exchange.Depth != 200 {
		t.Errorf("env override failed: %+v", cfg.Exchange)
	}
	if !cfg.Book.RequireSnapshot || cfg.Logging.Level != "warn" {
		t.Errorf("env override failed: %+v %+v", cfg.Book, cfg.Logging)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected an error for a missing file")
		}
	})

	t.Run("bad env number", func(t *testing.T) {
		t.Setenv("BOOKD_DEPTH", "deep")
		if _, err := Load(""); err == nil {
			t.Error("expected an error for a non-numeric depth")
		}
	})

	t.Run("bad policy", func(t *testing.T) {
		t.Setenv("BOOKD_MALFORMED_POLICY", "explode")
		if _, err := Load(""); err == nil {
			t.Error("expected an error for an unknown policy")
		}
	})
}

func TestSetters(t *testing.T) {
	cfg := Default()
	cfg.SetSymbol("XRPUSDT")
	cfg.SetDisplayTop(3)
	cfg.SetUpdateInterval(time.Second)

	if cfg.Exchange.Symbol != "XRPUSDT" || cfg.Display.Top != 3 || cfg.Display.UpdateInterval != time.Second {
		t.Errorf("setters did not apply: %+v %+v", cfg.Exchange, cfg.Display)
	}
}
