// Package trend computes derived statistics over daily cost series.
package trend

import (
	"math"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
)

// Stats holds the derived statistics for one cost series.
type Stats struct {
	AverageDaily decimal.Decimal  `json:"average_daily"`
	MaxDaily     decimal.Decimal  `json:"max_daily"`
	MinDaily     decimal.Decimal  `json:"min_daily"`
	GrowthRate   float64          `json:"growth_rate"`
	Volatility   float64          `json:"volatility"`
	HighestDay   model.TrendPoint `json:"highest_day"`
	LowestDay    model.TrendPoint `json:"lowest_day"`
}

// Analyze computes statistics over an ordered daily series. An empty series
// yields zero stats; a single-point series yields zero growth and volatility
// rather than NaN.
func Analyze(series []model.TrendPoint) Stats {
	if len(series) == 0 {
		return Stats{}
	}

	sum := decimal.Zero
	for _, p := range series {
		sum = sum.Add(p.Cost)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(series))))

	// Ties resolve to the earliest date because MaxBy/MinBy only replace on
	// a strict comparison win and the series is date-ordered.
	highest := lo.MaxBy(series, func(a, b model.TrendPoint) bool {
		return a.Cost.GreaterThan(b.Cost)
	})
	lowest := lo.MinBy(series, func(a, b model.TrendPoint) bool {
		return a.Cost.LessThan(b.Cost)
	})

	first, last := series[0].Cost, series[len(series)-1].Cost
	growth := 0.0
	if first.IsPositive() {
		growth = last.Sub(first).Div(first).InexactFloat64()
	}

	volatility := 0.0
	if avg.IsPositive() {
		mean := avg.InexactFloat64()
		var variance float64
		for _, p := range series {
			d := p.Cost.InexactFloat64() - mean
			variance += d * d
		}
		variance /= float64(len(series))
		volatility = math.Sqrt(variance) / mean
	}

	return Stats{
		AverageDaily: avg,
		MaxDaily:     highest.Cost,
		MinDaily:     lowest.Cost,
		GrowthRate:   growth,
		Volatility:   volatility,
		HighestDay:   highest,
		LowestDay:    lowest,
	}
}

// BuildDailySeries produces one point per calendar day in [start, end),
// zero-filling days absent from byDay. The result is ordered and non-sparse,
// which is what Analyze expects from its callers.
func BuildDailySeries(start, end time.Time, byDay map[time.Time]model.RawDailyCost) []model.TrendPoint {
	var series []model.TrendPoint
	for d := model.Day(start); d.Before(end); d = d.AddDate(0, 0, 1) {
		point := model.TrendPoint{Date: d}
		if entry, ok := byDay[d]; ok {
			point.Cost = entry.Cost
		}
		series = append(series, point)
	}
	return series
}
