package aggregation

import (
	"testing"

	"github.com/shopspring/decimal"
	"bybitbook/internal/types"
)

func lvl(price, size string) types.PriceLevel {
	return types.PriceLevel{Price: decimal.RequireFromString(price), Size: decimal.RequireFromString(size)}
}

func TestNew(t *testing.T) {
	tick := types.Tick1
	agg := New(tick)

	if agg == nil {
		t.Fatal("New() returned nil")
	}

	if agg.GetTickLevel() != tick {
		t.Errorf("Expected tick level %g, got %g", float64(tick), float64(agg.GetTickLevel()))
	}
}

func TestSetGetTickLevel(t *testing.T) {
	agg := New(types.Tick1)

	newTick := types.Tick10
	agg.SetTickLevel(newTick)

	if agg.GetTickLevel() != newTick {
		t.Errorf("Expected tick level %g, got %g", float64(newTick), float64(agg.GetTickLevel()))
	}
}

func TestAggregateBids(t *testing.T) {
	tests := []struct {
		name     string
		tick     types.TickLevel
		levels   []types.PriceLevel
		expected []types.PriceLevel
	}{
		{
			name:     "No aggregation needed - tick 0.1",
			tick:     types.Tick01,
			levels:   []types.PriceLevel{lvl("50000.2", "1.5"), lvl("50000.1", "1")},
			expected: []types.PriceLevel{lvl("50000.2", "1.5"), lvl("50000.1", "1")},
		},
		{
			name:     "Aggregation needed - tick 1.0",
			tick:     types.Tick1,
			levels:   []types.PriceLevel{lvl("50000.9", "1.5"), lvl("50000.1", "1")},
			expected: []types.PriceLevel{lvl("50000", "2.5")},
		},
		{
			name:     "Mixed buckets keep priority order - tick 10.0",
			tick:     types.Tick10,
			levels:   []types.PriceLevel{lvl("50012", "1"), lvl("50009", "2"), lvl("50005", "1.5"), lvl("49999", "4")},
			expected: []types.PriceLevel{lvl("50010", "1"), lvl("50000", "3.5"), lvl("49990", "4")},
		},
		{
			name:     "Empty levels",
			tick:     types.Tick1,
			levels:   []types.PriceLevel{},
			expected: []types.PriceLevel{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := New(tt.tick)
			assertLevels(t, agg.AggregateBids(tt.levels), tt.expected)
		})
	}
}

func TestAggregateAsks(t *testing.T) {
	tests := []struct {
		name     string
		tick     types.TickLevel
		levels   []types.PriceLevel
		expected []types.PriceLevel
	}{
		{
			name:     "No aggregation needed - tick 0.1",
			tick:     types.Tick01,
			levels:   []types.PriceLevel{lvl("50001.1", "1"), lvl("50001.2", "1.5")},
			expected: []types.PriceLevel{lvl("50001.1", "1"), lvl("50001.2", "1.5")},
		},
		{
			name:     "Aggregation needed - tick 1.0",
			tick:     types.Tick1,
			levels:   []types.PriceLevel{lvl("50001.1", "1"), lvl("50001.9", "1.5")},
			expected: []types.PriceLevel{lvl("50002", "2.5")},
		},
		{
			name:     "Aggregation needed - tick 10.0",
			tick:     types.Tick10,
			levels:   []types.PriceLevel{lvl("50001", "1"), lvl("50005", "1.5"), lvl("50009", "2"), lvl("50011", "1")},
			expected: []types.PriceLevel{lvl("50010", "4.5"), lvl("50020", "1")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := New(tt.tick)
			assertLevels(t, agg.AggregateAsks(tt.levels), tt.expected)
		})
	}
}

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name string
		tick types.TickLevel
		in   string
		bid  string
		ask  string
	}{
		{name: "tick 1.0", tick: types.Tick1, in: "50000.9", bid: "50000", ask: "50001"},
		{name: "tick 10.0", tick: types.Tick10, in: "50005", bid: "50000", ask: "50010"},
		{name: "tick 0.01", tick: types.Tick001, in: "1.2345", bid: "1.23", ask: "1.24"},
		{name: "already aligned", tick: types.Tick1, in: "50000", bid: "50000", ask: "50000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := New(tt.tick)
			price := decimal.RequireFromString(tt.in)

			if got := agg.roundToTickBid(price); !got.Equal(decimal.RequireFromString(tt.bid)) {
				t.Errorf("bid: expected %s, got %s", tt.bid, got)
			}
			if got := agg.roundToTickAsk(price); !got.Equal(decimal.RequireFromString(tt.ask)) {
				t.Errorf("ask: expected %s, got %s", tt.ask, got)
			}
		})
	}
}

func TestCumulative(t *testing.T) {
	got := Cumulative([]types.PriceLevel{lvl("100", "1"), lvl("99", "2.5"), lvl("98", "0.5")})
	want := []string{"1", "3.5", "4"}

	for i := range want {
		if !got[i].Equal(decimal.RequireFromString(want[i])) {
			t.Errorf("cumulative %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func assertLevels(t *testing.T, got, want []types.PriceLevel) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected %d aggregated levels, got %d", len(want), len(got))
	}
	for i := range want {
		if !got[i].Price.Equal(want[i].Price) || !got[i].Size.Equal(want[i].Size) {
			t.Errorf("level %d: expected (%s, %s), got (%s, %s)",
				i, want[i].Price, want[i].Size, got[i].Price, got[i].Size)
		}
	}
}

// Benchmarks

func BenchmarkAggregateBids(b *testing.B) {
	agg := New(types.Tick1)

	levels := make([]types.PriceLevel, 1000)
	for i := 0; i < 1000; i++ {
		levels[i] = types.PriceLevel{
			Price: decimal.NewFromFloat(50000 - float64(i) + 0.5),
			Size:  decimal.NewFromFloat(1.0),
		}
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		agg.AggregateBids(levels)
	}
}

func BenchmarkAggregateAsks(b *testing.B) {
	agg := New(types.Tick1)

	levels := make([]types.PriceLevel, 1000)
	for i := 0; i < 1000; i++ {
		levels[i] = types.PriceLevel{
			Price: decimal.NewFromFloat(50001 + float64(i) + 0.5),
			Size:  decimal.NewFromFloat(1.0),
		}
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		agg.AggregateAsks(levels)
	}
}
