// Package engine implements the periodic alert-evaluation loop: it pulls
// enabled rules, resolves current spend through the aggregator, applies rule
// semantics with cooldown suppression, and dispatches notifications with an
// audit trail.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/aggregate"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/alerts"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/storage"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/trend"
)

// DefaultCooldown is the minimum time between two triggers of the same rule.
const DefaultCooldown = 6 * time.Hour

// Summary rules set their own cadence through a cooldown floor rather than a
// separate schedule, slightly under the nominal period so clock drift across
// ticks cannot skip a day.
const (
	dailySummaryCooldown  = 23 * time.Hour
	weeklySummaryCooldown = 6 * 24 * time.Hour
)

// ErrPassInProgress is returned when an evaluation pass is requested while
// another is still running. The new pass is skipped, not queued.
var ErrPassInProgress = errors.New("evaluation pass already in progress")

// Engine evaluates alert rules against current multi-cloud spend. All
// collaborators are injected; the engine owns no process-wide state beyond
// the running guard.
type Engine struct {
	aggregator *aggregate.Aggregator
	store      storage.AlertStore
	notifiers  []alerts.Notifier
	cooldown   time.Duration
	logger     *slog.Logger

	running atomic.Bool
	now     func() time.Time
}

// New creates an engine. A non-positive cooldown falls back to the default.
func New(agg *aggregate.Aggregator, store storage.AlertStore, notifiers []alerts.Notifier, cooldown time.Duration, logger *slog.Logger) *Engine {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Engine{
		aggregator: agg,
		store:      store,
		notifiers:  notifiers,
		cooldown:   cooldown,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the engine's time source. Exposed for tests that need
// deterministic cooldown and baseline windows.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// GetCombinedSummary returns the current-period combined view for scope,
// with any per-provider failures.
func (e *Engine) GetCombinedSummary(ctx context.Context, scope model.ProviderScope) (model.CombinedView, []model.PartialFailure) {
	return e.aggregator.FetchCurrent(ctx, scope)
}

// GetTrendStats returns the zero-filled daily series for [start, end) and
// its derived statistics.
func (e *Engine) GetTrendStats(ctx context.Context, scope model.ProviderScope, start, end time.Time) ([]model.TrendPoint, trend.Stats, []model.PartialFailure) {
	byDay, failures := e.aggregator.FetchDailyCosts(ctx, scope, start, end)
	series := trend.BuildDailySeries(start, end, byDay)
	return series, trend.Analyze(series), failures
}

// PassResult summarizes one evaluation pass.
type PassResult struct {
	Evaluated       int `json:"evaluated"`
	Triggered       int `json:"triggered"`
	SkippedCooldown int `json:"skipped_cooldown"`
	SkippedInvalid  int `json:"skipped_invalid"`
	Failed          int `json:"failed"`
}

// RunEvaluationPass runs one alert cycle over all enabled rules. Rules are
// evaluated concurrently and independently: one rule's failure never aborts
// the others. Only a failure to read the rules at all aborts the pass, to be
// retried on the next tick. A pass that finds another pass still running
// returns ErrPassInProgress.
func (e *Engine) RunEvaluationPass(ctx context.Context) (PassResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return PassResult{}, ErrPassInProgress
	}
	defer e.running.Store(false)

	rules, err := e.store.ListEnabledRules(ctx)
	if err != nil {
		return PassResult{}, fmt.Errorf("list enabled rules: %w", err)
	}

	now := e.now().UTC()
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result PassResult
	)

	for i := range rules {
		rule := rules[i]

		// The pass deadline is a hard stop for starting new evaluations;
		// rules not reached are picked up next tick.
		if ctx.Err() != nil {
			e.logger.Warn("pass deadline reached, deferring remaining rules",
				"remaining", len(rules)-i,
			)
			break
		}

		if err := rule.Validate(); err != nil {
			e.logger.Warn("skipping misconfigured rule", "rule", rule.ID, "error", err)
			result.SkippedInvalid++
			continue
		}

		if e.inCooldown(&rule, now) {
			result.SkippedCooldown++
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			triggered, err := e.evaluateRule(ctx, rule, now)

			mu.Lock()
			defer mu.Unlock()
			result.Evaluated++
			switch {
			case err != nil:
				result.Failed++
			case triggered:
				result.Triggered++
			}
		}()
	}

	wg.Wait()

	e.logger.Info("evaluation pass complete",
		"evaluated", result.Evaluated,
		"triggered", result.Triggered,
		"skipped_cooldown", result.SkippedCooldown,
		"skipped_invalid", result.SkippedInvalid,
		"failed", result.Failed,
	)
	return result, nil
}

// inCooldown reports whether the rule triggered within its cooldown window.
// A rule in cooldown is skipped outright; missed windows are not replayed.
func (e *Engine) inCooldown(rule *model.AlertRule, now time.Time) bool {
	if rule.LastTriggeredAt == nil {
		return false
	}
	return now.Sub(*rule.LastTriggeredAt) < e.cooldownFor(rule)
}

func (e *Engine) cooldownFor(rule *model.AlertRule) time.Duration {
	cd := e.cooldown
	switch rule.Type {
	case model.AlertDailySummary:
		if cd < dailySummaryCooldown {
			cd = dailySummaryCooldown
		}
	case model.AlertWeeklySummary:
		if cd < weeklySummaryCooldown {
			cd = weeklySummaryCooldown
		}
	}
	return cd
}

// triggerFact is one provider-level (or scope-level) trigger decision.
type triggerFact struct {
	provider   string
	current    decimal.Decimal
	comparison decimal.Decimal
	title      string
	message    string
}

// evaluateRule resolves a rule's trigger facts and, if any fired, records
// them and dispatches notifications. The history write and the last-triggered
// update commit together; dispatch happens only after they are durable, and
// dispatch failure is logged without rolling anything back.
func (e *Engine) evaluateRule(ctx context.Context, rule model.AlertRule, now time.Time) (bool, error) {
	facts := e.resolveTriggers(ctx, rule, now)
	if len(facts) == 0 {
		return false, nil
	}

	entries := make([]model.AlertHistoryEntry, 0, len(facts))
	for _, fact := range facts {
		entries = append(entries, model.AlertHistoryEntry{
			RuleID:          rule.ID,
			TriggeredAt:     now,
			CurrentValue:    fact.current,
			ComparisonValue: fact.comparison,
			Provider:        fact.provider,
			Message:         fact.message,
		})
	}

	err := e.store.RecordTrigger(ctx, rule.ID, rule.LastTriggeredAt, now, entries)
	if errors.Is(err, storage.ErrStaleRule) {
		// Another evaluator triggered this rule first; ours is a duplicate.
		e.logger.Info("concurrent trigger suppressed", "rule", rule.ID)
		return false, nil
	}
	if err != nil {
		// Nothing is durable; the whole trigger is retried next tick.
		e.logger.Error("record trigger failed", "rule", rule.ID, "error", err)
		return false, err
	}

	for _, fact := range facts {
		e.dispatch(ctx, rule, fact)
	}
	return true, nil
}

// resolveTriggers applies the rule's semantics. For scope "all", the combined
// total and each contributing provider are evaluated independently: a global
// breach and a per-provider breach are different facts, each worth its own
// audit record.
func (e *Engine) resolveTriggers(ctx context.Context, rule model.AlertRule, now time.Time) []triggerFact {
	switch rule.Type {
	case model.AlertBudgetThreshold:
		return e.resolveBudget(ctx, rule)
	case model.AlertSpikeDetection:
		return e.resolveSpike(ctx, rule, now)
	case model.AlertDailySummary, model.AlertWeeklySummary:
		return e.resolveSummary(ctx, rule)
	}
	return nil
}

func (e *Engine) resolveBudget(ctx context.Context, rule model.AlertRule) []triggerFact {
	view, _ := e.aggregator.FetchCurrent(ctx, rule.Scope)

	var facts []triggerFact
	if view.TotalCost.GreaterThanOrEqual(rule.ThresholdValue) {
		facts = append(facts, triggerFact{
			provider:   string(rule.Scope),
			current:    view.TotalCost,
			comparison: rule.ThresholdValue,
			title:      "Budget threshold exceeded",
			message: fmt.Sprintf("Current spend %s %s has reached the budget limit of %s (%s)",
				view.TotalCost.StringFixed(2), view.Currency, rule.ThresholdValue.StringFixed(2), rule.Scope),
		})
	}

	if rule.Scope != model.ScopeAll {
		return facts
	}
	for _, id := range model.AllProviders() {
		pt, ok := view.PerProvider[id]
		if !ok || pt.Status != model.StatusActive {
			continue
		}
		if pt.TotalCost.GreaterThanOrEqual(rule.ThresholdValue) {
			facts = append(facts, triggerFact{
				provider:   string(id),
				current:    pt.TotalCost,
				comparison: rule.ThresholdValue,
				title:      "Budget threshold exceeded",
				message: fmt.Sprintf("%s spend %s %s has reached the budget limit of %s",
					id, pt.TotalCost.StringFixed(2), pt.Currency, rule.ThresholdValue.StringFixed(2)),
			})
		}
	}
	return facts
}

func (e *Engine) resolveSpike(ctx context.Context, rule model.AlertRule, now time.Time) []triggerFact {
	currentWindow := model.MonthToDate(now)
	baselineWindow := model.PriorMonthEquivalent(now)

	currentView, _ := e.aggregator.FetchRange(ctx, rule.Scope, currentWindow.Start, currentWindow.End, model.GranularityMonthly)
	baselineView, _ := e.aggregator.FetchRange(ctx, rule.Scope, baselineWindow.Start, baselineWindow.End, model.GranularityMonthly)

	var facts []triggerFact
	if fact, ok := spikeFact(string(rule.Scope), currentView.TotalCost, baselineView.TotalCost, rule.ThresholdPct); ok {
		facts = append(facts, fact)
	}

	if rule.Scope != model.ScopeAll {
		return facts
	}
	for _, id := range model.AllProviders() {
		cur, okCur := currentView.PerProvider[id]
		base, okBase := baselineView.PerProvider[id]
		if !okCur || !okBase || cur.Status != model.StatusActive || base.Status != model.StatusActive {
			continue
		}
		if fact, ok := spikeFact(string(id), cur.TotalCost, base.TotalCost, rule.ThresholdPct); ok {
			facts = append(facts, fact)
		}
	}
	return facts
}

// spikeFact compares current spend against the baseline. A zero baseline
// never triggers: the percentage is undefined and any nonzero spend would
// read as an infinite spike.
func spikeFact(scope string, current, baseline decimal.Decimal, thresholdPct int) (triggerFact, bool) {
	if !baseline.IsPositive() {
		return triggerFact{}, false
	}
	change := current.Sub(baseline).Div(baseline).Mul(decimal.NewFromInt(100))
	if change.LessThan(decimal.NewFromInt(int64(thresholdPct))) {
		return triggerFact{}, false
	}
	return triggerFact{
		provider:   scope,
		current:    current,
		comparison: baseline,
		title:      "Spending spike detected",
		message: fmt.Sprintf("Spend is up %s%% versus the prior month (%s now vs %s baseline, %s)",
			change.StringFixed(1), current.StringFixed(2), baseline.StringFixed(2), scope),
	}, true
}

func (e *Engine) resolveSummary(ctx context.Context, rule model.AlertRule) []triggerFact {
	view, failures := e.aggregator.FetchCurrent(ctx, rule.Scope)

	label := "Daily"
	if rule.Type == model.AlertWeeklySummary {
		label = "Weekly"
	}
	message := fmt.Sprintf("Month-to-date spend is %s %s across %d provider(s)",
		view.TotalCost.StringFixed(2), view.Currency, len(view.PerProvider)-len(failures))
	if len(view.CombinedServices) > 0 {
		top := view.CombinedServices[0]
		message += fmt.Sprintf("; top service %s at %s", top.CanonicalName, top.TotalCost.StringFixed(2))
	}

	// Summaries are notifications, not comparisons: they always fire and
	// rely on the cooldown floor for cadence, so they flow through the same
	// history and dispatch path as threshold alerts.
	return []triggerFact{{
		provider:   string(rule.Scope),
		current:    view.TotalCost,
		comparison: decimal.Zero,
		title:      label + " cost summary",
		message:    message,
	}}
}

func (e *Engine) dispatch(ctx context.Context, rule model.AlertRule, fact triggerFact) {
	n := alerts.Notification{
		UserID: rule.OwnerID,
		Title:  fact.title,
		Body:   fact.message,
		Data: map[string]string{
			"rule_id":          rule.ID,
			"alert_type":       string(rule.Type),
			"provider":         fact.provider,
			"current_value":    fact.current.StringFixed(2),
			"comparison_value": fact.comparison.StringFixed(2),
		},
	}

	for _, notifier := range e.notifiers {
		delivered, err := notifier.Send(ctx, n)
		if err != nil {
			e.logger.Error("dispatch failed",
				"notifier", notifier.Name(),
				"rule", rule.ID,
				"error", err,
			)
			continue
		}
		if !delivered {
			e.logger.Warn("notification not delivered", "notifier", notifier.Name(), "rule", rule.ID)
		}
	}
}
