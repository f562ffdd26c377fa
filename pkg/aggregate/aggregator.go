// Package aggregate fans out to provider cost readers and assembles combined
// multi-cloud views, degrading instead of failing when providers are down.
package aggregate

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/normalize"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/readers"
)

// DefaultProviderTimeout bounds each individual provider call.
const DefaultProviderTimeout = 10 * time.Second

// Aggregator resolves cost views across the registered providers. All
// provider calls for one request run concurrently, each bounded by its own
// timeout, so one slow provider never blocks the others.
type Aggregator struct {
	registry *readers.Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates an aggregator. A non-positive timeout falls back to the default.
func New(registry *readers.Registry, timeout time.Duration, logger *slog.Logger) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &Aggregator{
		registry: registry,
		timeout:  timeout,
		logger:   logger,
	}
}

// FetchCurrent returns the current-period combined view for scope. The view
// is always populated from whatever providers succeeded; failures are
// reported alongside it, never as an error return, so callers keep working
// for the providers that are healthy.
func (a *Aggregator) FetchCurrent(ctx context.Context, scope model.ProviderScope) (model.CombinedView, []model.PartialFailure) {
	return a.fetch(ctx, scope, func(ctx context.Context, r readers.ProviderCostReader) (model.RawCostData, error) {
		return r.GetCurrentPeriodCost(ctx)
	})
}

// FetchRange returns the combined view for [start, end) at the given
// granularity, with the same partial-failure semantics as FetchCurrent.
func (a *Aggregator) FetchRange(ctx context.Context, scope model.ProviderScope, start, end time.Time, granularity model.Granularity) (model.CombinedView, []model.PartialFailure) {
	return a.fetch(ctx, scope, func(ctx context.Context, r readers.ProviderCostReader) (model.RawCostData, error) {
		return r.GetRange(ctx, start, end, granularity)
	})
}

// FetchDailyCosts returns the per-day cost totals for scope over [start, end),
// summed across the scope's healthy providers.
func (a *Aggregator) FetchDailyCosts(ctx context.Context, scope model.ProviderScope, start, end time.Time) (map[time.Time]model.RawDailyCost, []model.PartialFailure) {
	scoped := a.registry.ForScope(scope)
	results := a.fanOut(ctx, scoped, func(ctx context.Context, r readers.ProviderCostReader) (model.RawCostData, error) {
		return r.GetRange(ctx, start, end, model.GranularityDaily)
	})

	byDay := make(map[time.Time]model.RawDailyCost)
	var failures []model.PartialFailure
	for _, res := range results {
		if res.failure != nil {
			failures = append(failures, *res.failure)
			continue
		}
		for _, day := range res.raw.Days {
			date := model.Day(day.Date)
			entry := byDay[date]
			entry.Date = date
			entry.Cost = entry.Cost.Add(day.Cost)
			byDay[date] = entry
		}
	}
	return byDay, failures
}

func (a *Aggregator) fetch(ctx context.Context, scope model.ProviderScope, call func(context.Context, readers.ProviderCostReader) (model.RawCostData, error)) (model.CombinedView, []model.PartialFailure) {
	scoped := a.registry.ForScope(scope)
	results := a.fanOut(ctx, scoped, call)

	snapshots := make([]model.CostSnapshot, 0, len(results))
	var failures []model.PartialFailure
	for _, res := range results {
		if res.failure != nil {
			failures = append(failures, *res.failure)
			continue
		}
		snapshots = append(snapshots, normalize.Normalize(res.raw, res.provider))
	}

	view := normalize.CombineMultiCloudData(snapshots)
	for _, f := range failures {
		// Failed providers still appear in the view, zero-valued and
		// flagged, so dashboards render status instead of an error page.
		view.PerProvider[f.Provider] = model.ProviderTotal{Status: model.StatusError}
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Provider < failures[j].Provider })
	return view, failures
}

type rawResult struct {
	provider model.ProviderID
	raw      model.RawCostData
	failure  *model.PartialFailure
}

func (a *Aggregator) fanOut(ctx context.Context, scoped []readers.ProviderCostReader, call func(context.Context, readers.ProviderCostReader) (model.RawCostData, error)) []rawResult {
	resultCh := make(chan rawResult, len(scoped))
	for _, reader := range scoped {
		go func(r readers.ProviderCostReader) {
			callCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			raw, err := call(callCtx, r)
			if err != nil {
				kind := model.FailureUnavailable
				if errors.Is(err, context.DeadlineExceeded) {
					kind = model.FailureTimeout
				}
				a.logger.Warn("provider read failed",
					"provider", r.Provider(),
					"kind", kind,
					"error", err,
				)
				resultCh <- rawResult{
					provider: r.Provider(),
					failure:  &model.PartialFailure{Provider: r.Provider(), Kind: kind},
				}
				return
			}
			resultCh <- rawResult{provider: r.Provider(), raw: raw}
		}(reader)
	}

	results := make([]rawResult, 0, len(scoped))
	for range scoped {
		results = append(results, <-resultCh)
	}
	return results
}
