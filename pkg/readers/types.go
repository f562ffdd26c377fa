package readers

import (
	"context"
	"time"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
)

// ProviderCostReader is the adapter contract for one cloud billing backend.
// Implementations encapsulate the provider's API shape, pagination, and query
// construction; the engine only distinguishes success from failure.
type ProviderCostReader interface {
	// Provider returns the backend this reader serves.
	Provider() model.ProviderID

	// GetCurrentPeriodCost returns month-to-date cost data.
	GetCurrentPeriodCost(ctx context.Context) (model.RawCostData, error)

	// GetRange returns cost data for [start, end) at the given granularity.
	// Daily granularity populates the Days breakdown.
	GetRange(ctx context.Context, start, end time.Time, granularity model.Granularity) (model.RawCostData, error)
}
