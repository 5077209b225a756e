package aggregation

import (
	"github.com/shopspring/decimal"

	"bybitbook/internal/types"
)

// Aggregator buckets price levels by tick size. Input levels must be in
// priority order; output keeps that order.
type Aggregator struct {
	currentTick types.TickLevel
	tickSize    decimal.Decimal
}

// New creates a new Aggregator instance
func New(tick types.TickLevel) *Aggregator {
	a := &Aggregator{}
	a.SetTickLevel(tick)
	return a
}

// SetTickLevel updates the tick level for aggregation
func (a *Aggregator) SetTickLevel(tick types.TickLevel) {
	a.currentTick = tick
	a.tickSize = decimal.NewFromFloat(float64(tick))
}

// GetTickLevel returns the current tick level
func (a *Aggregator) GetTickLevel() types.TickLevel {
	return a.currentTick
}

// AggregateBids floors bid prices to the tick so a bucket never looks better than its levels
func (a *Aggregator) AggregateBids(levels []types.PriceLevel) []types.PriceLevel {
	return a.aggregate(levels, a.roundToTickBid)
}

// AggregateAsks ceils ask prices to the tick
func (a *Aggregator) AggregateAsks(levels []types.PriceLevel) []types.PriceLevel {
	return a.aggregate(levels, a.roundToTickAsk)
}

// aggregate merges consecutive levels that round to the same bucket. Rounding
// is monotone, so sorted input yields sorted, unique buckets.
func (a *Aggregator) aggregate(levels []types.PriceLevel, round func(decimal.Decimal) decimal.Decimal) []types.PriceLevel {
	if len(levels) == 0 {
		return levels
	}

	aggregated := make([]types.PriceLevel, 0, len(levels))
	for _, level := range levels {
		bucket := round(level.Price)
		last := len(aggregated) - 1
		if last >= 0 && aggregated[last].Price.Equal(bucket) {
			aggregated[last].Size = aggregated[last].Size.Add(level.Size)
			continue
		}
		aggregated = append(aggregated, types.PriceLevel{Price: bucket, Size: level.Size})
	}
	return aggregated
}

// roundToTickBid rounds a bid price DOWN: floor(price / tick) * tick
func (a *Aggregator) roundToTickBid(price decimal.Decimal) decimal.Decimal {
	if a.tickSize.IsZero() {
		return price
	}
	return price.Div(a.tickSize).Floor().Mul(a.tickSize)
}

// roundToTickAsk rounds an ask price UP: ceil(price / tick) * tick
func (a *Aggregator) roundToTickAsk(price decimal.Decimal) decimal.Decimal {
	if a.tickSize.IsZero() {
		return price
	}
	return price.Div(a.tickSize).Ceil().Mul(a.tickSize)
}

// Cumulative returns the running size total alongside each level
func Cumulative(levels []types.PriceLevel) []decimal.Decimal {
	out := make([]decimal.Decimal, len(levels))
	total := decimal.Zero
	for i, level := range levels {
		total = total.Add(level.Size)
		out[i] = total
	}
	return out
}
