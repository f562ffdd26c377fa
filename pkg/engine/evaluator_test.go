package engine_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/aggregate"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/alerts"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/engine"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/readers"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/storage"
)

type fakeReader struct {
	provider model.ProviderID
	current  model.RawCostData
	rangeFn  func(start, end time.Time, g model.Granularity) (model.RawCostData, error)
}

func (f *fakeReader) Provider() model.ProviderID { return f.provider }

func (f *fakeReader) GetCurrentPeriodCost(ctx context.Context) (model.RawCostData, error) {
	return f.current, nil
}

func (f *fakeReader) GetRange(ctx context.Context, start, end time.Time, g model.Granularity) (model.RawCostData, error) {
	if f.rangeFn != nil {
		return f.rangeFn(start, end, g)
	}
	return f.current, nil
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []alerts.Notification
}

func (c *captureNotifier) Name() string { return "capture" }

func (c *captureNotifier) Send(ctx context.Context, n alerts.Notification) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return true, nil
}

func (c *captureNotifier) Sent() []alerts.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]alerts.Notification, len(c.sent))
	copy(out, c.sent)
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func providerCosts(provider model.ProviderID, total float64, services map[string]float64) model.RawCostData {
	raw := model.RawCostData{
		Provider:  string(provider),
		Currency:  "USD",
		TotalCost: decimal.NewFromFloat(total),
	}
	for name, cost := range services {
		raw.Services = append(raw.Services, model.RawServiceCost{Name: name, Cost: decimal.NewFromFloat(cost)})
	}
	return raw
}

type engineFixture struct {
	engine   *engine.Engine
	store    *storage.SQLite
	notifier *captureNotifier
	clock    *fakeClock
}

func newFixture(t *testing.T, cooldown time.Duration, fakes ...*fakeReader) *engineFixture {
	t.Helper()

	registry := readers.NewRegistry()
	for _, f := range fakes {
		require.NoError(t, registry.Register(f))
	}

	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	notifier := &captureNotifier{}
	clock := &fakeClock{t: time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)}

	agg := aggregate.New(registry, time.Second, testLogger())
	eng := engine.New(agg, store, []alerts.Notifier{notifier}, cooldown, testLogger()).
		WithClock(clock.Now)

	return &engineFixture{engine: eng, store: store, notifier: notifier, clock: clock}
}

func TestRunEvaluationPass_BudgetTrigger(t *testing.T) {
	fx := newFixture(t, 0,
		&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 120, map[string]float64{"Amazon EC2": 120})},
	)
	ctx := context.Background()

	rule := &model.AlertRule{
		Type:           model.AlertBudgetThreshold,
		Scope:          model.ScopeAWS,
		ThresholdValue: decimal.NewFromInt(100),
		Enabled:        true,
	}
	require.NoError(t, fx.store.CreateRule(ctx, rule))

	result, err := fx.engine.RunEvaluationPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Evaluated)
	assert.Equal(t, 1, result.Triggered)
	assert.Zero(t, result.Failed)

	history, err := fx.store.ListHistory(ctx, rule.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].CurrentValue.Equal(decimal.NewFromInt(120)))
	assert.True(t, history[0].ComparisonValue.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "aws", history[0].Provider)

	updated, err := fx.store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastTriggeredAt)
	assert.True(t, updated.LastTriggeredAt.Equal(fx.clock.Now()))

	sent := fx.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Budget threshold exceeded", sent[0].Title)
	assert.Equal(t, "budget_threshold", sent[0].Data["alert_type"])
	assert.Equal(t, "120.00", sent[0].Data["current_value"])
	assert.Equal(t, "100.00", sent[0].Data["comparison_value"])
}

func TestRunEvaluationPass_BudgetBelowThreshold(t *testing.T) {
	fx := newFixture(t, 0,
		&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 80, nil)},
	)
	ctx := context.Background()

	rule := &model.AlertRule{
		Type:           model.AlertBudgetThreshold,
		Scope:          model.ScopeAWS,
		ThresholdValue: decimal.NewFromInt(100),
		Enabled:        true,
	}
	require.NoError(t, fx.store.CreateRule(ctx, rule))

	result, err := fx.engine.RunEvaluationPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Evaluated)
	assert.Zero(t, result.Triggered)

	updated, err := fx.store.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.LastTriggeredAt)
	assert.Empty(t, fx.notifier.Sent())
}

func TestRunEvaluationPass_ScopeAllEvaluatesPerProvider(t *testing.T) {
	fx := newFixture(t, 0,
		&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 120, nil)},
		&fakeReader{provider: model.ProviderAzure, current: providerCosts(model.ProviderAzure, 50, nil)},
	)
	ctx := context.Background()

	rule := &model.AlertRule{
		Type:           model.AlertBudgetThreshold,
		Scope:          model.ScopeAll,
		ThresholdValue: decimal.NewFromInt(100),
		Enabled:        true,
	}
	require.NoError(t, fx.store.CreateRule(ctx, rule))

	result, err := fx.engine.RunEvaluationPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Triggered)

	// Combined total 170 and aws alone both breach; azure at 50 does not.
	history, err := fx.store.ListHistory(ctx, rule.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	byProvider := map[string]model.AlertHistoryEntry{}
	for _, e := range history {
		byProvider[e.Provider] = e
	}
	require.Contains(t, byProvider, "all")
	require.Contains(t, byProvider, "aws")
	assert.True(t, byProvider["all"].CurrentValue.Equal(decimal.NewFromInt(170)))
	assert.True(t, byProvider["aws"].CurrentValue.Equal(decimal.NewFromInt(120)))

	assert.Len(t, fx.notifier.Sent(), 2)
}

func TestRunEvaluationPass_CooldownSuppressesRetrigger(t *testing.T) {
	fx := newFixture(t, engine.DefaultCooldown,
		&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 120, nil)},
	)
	ctx := context.Background()

	rule := &model.AlertRule{
		Type:           model.AlertBudgetThreshold,
		Scope:          model.ScopeAWS,
		ThresholdValue: decimal.NewFromInt(100),
		Enabled:        true,
	}
	require.NoError(t, fx.store.CreateRule(ctx, rule))

	first, err := fx.engine.RunEvaluationPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Triggered)

	// Still breaching one hour later, but inside the cooldown window.
	fx.clock.Advance(time.Hour)
	second, err := fx.engine.RunEvaluationPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Triggered)
	assert.Equal(t, 1, second.SkippedCooldown)
	assert.Zero(t, second.Evaluated)

	history, err := fx.store.ListHistory(ctx, rule.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	// Past the cooldown the rule fires again.
	fx.clock.Advance(6 * time.Hour)
	third, err := fx.engine.RunEvaluationPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Triggered)

	history, err = fx.store.ListHistory(ctx, rule.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func spikeReader(currentTotal, priorTotal float64) *fakeReader {
	return &fakeReader{
		provider: model.ProviderGCP,
		rangeFn: func(start, end time.Time, g model.Granularity) (model.RawCostData, error) {
			total := priorTotal
			if start.Month() == time.August {
				total = currentTotal
			}
			return providerCosts(model.ProviderGCP, total, nil), nil
		},
	}
}

func TestRunEvaluationPass_SpikeTriggers(t *testing.T) {
	fx := newFixture(t, 0, spikeReader(130, 100))
	ctx := context.Background()

	rule := &model.AlertRule{
		Type:         model.AlertSpikeDetection,
		Scope:        model.ScopeGCP,
		ThresholdPct: 20,
		Enabled:      true,
	}
	require.NoError(t, fx.store.CreateRule(ctx, rule))

	result, err := fx.engine.RunEvaluationPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Triggered)

	history, err := fx.store.ListHistory(ctx, rule.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].CurrentValue.Equal(decimal.NewFromInt(130)))
	assert.True(t, history[0].ComparisonValue.Equal(decimal.NewFromInt(100)))

	sent := fx.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Spending spike detected", sent[0].Title)
	assert.Contains(t, sent[0].Body, "30.0%")
}

func TestRunEvaluationPass_SpikeBelowThreshold(t *testing.T) {
	fx := newFixture(t, 0, spikeReader(110, 100))
	ctx := context.Background()

	rule := &model.AlertRule{
		Type:         model.AlertSpikeDetection,
		Scope:        model.ScopeGCP,
		ThresholdPct: 20,
		Enabled:      true,
	}
	require.NoError(t, fx.store.CreateRule(ctx, rule))

	result, err := fx.engine.RunEvaluationPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Triggered)
	assert.Empty(t, fx.notifier.Sent())
}

func TestRunEvaluationPass_SpikeZeroBaselineNeverTriggers(t *testing.T) {
	fx := newFixture(t, 0, spikeReader(500, 0))
	ctx := context.Background()

	rule := &model.AlertRule{
		Type:         model.AlertSpikeDetection,
		Scope:        model.ScopeGCP,
		ThresholdPct: 20,
		Enabled:      true,
	}
	require.NoError(t, fx.store.CreateRule(ctx, rule))

	result, err := fx.engine.RunEvaluationPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Triggered)
	assert.Empty(t, fx.notifier.Sent())
}

func TestRunEvaluationPass_SummaryCadenceFloor(t *testing.T) {
	fx := newFixture(t, engine.DefaultCooldown,
		&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 42, map[string]float64{"Amazon S3": 42})},
	)
	ctx := context.Background()

	rule := &model.AlertRule{
		Type:    model.AlertDailySummary,
		Scope:   model.ScopeAll,
		Enabled: true,
	}
	require.NoError(t, fx.store.CreateRule(ctx, rule))

	first, err := fx.engine.RunEvaluationPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Triggered)

	sent := fx.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Daily cost summary", sent[0].Title)
	assert.Contains(t, sent[0].Body, "42.00")

	// Seven hours clears the engine cooldown but not the daily floor.
	fx.clock.Advance(7 * time.Hour)
	second, err := fx.engine.RunEvaluationPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Triggered)
	assert.Equal(t, 1, second.SkippedCooldown)

	fx.clock.Advance(17 * time.Hour)
	third, err := fx.engine.RunEvaluationPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Triggered)
}

func TestRunEvaluationPass_InvalidRuleSkipped(t *testing.T) {
	fx := newFixture(t, 0,
		&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 120, nil)},
	)
	ctx := context.Background()

	rule := &model.AlertRule{
		Type:    model.AlertBudgetThreshold,
		Scope:   model.ScopeAWS,
		Enabled: true,
	}
	require.NoError(t, fx.store.CreateRule(ctx, rule))

	result, err := fx.engine.RunEvaluationPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedInvalid)
	assert.Zero(t, result.Evaluated)
	assert.Empty(t, fx.notifier.Sent())
}

type blockingStore struct {
	storage.AlertStore
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) ListEnabledRules(ctx context.Context) ([]model.AlertRule, error) {
	close(b.entered)
	<-b.release
	return b.AlertStore.ListEnabledRules(ctx)
}

func TestRunEvaluationPass_OverlappingPassSkipped(t *testing.T) {
	fx := newFixture(t, 0,
		&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 10, nil)},
	)
	ctx := context.Background()

	blocked := &blockingStore{
		AlertStore: fx.store,
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	registry := readers.NewRegistry()
	require.NoError(t, registry.Register(&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 10, nil)}))
	eng := engine.New(aggregate.New(registry, time.Second, testLogger()), blocked, nil, 0, testLogger())

	done := make(chan error, 1)
	go func() {
		_, err := eng.RunEvaluationPass(ctx)
		done <- err
	}()

	<-blocked.entered
	_, err := eng.RunEvaluationPass(ctx)
	assert.ErrorIs(t, err, engine.ErrPassInProgress)

	close(blocked.release)
	require.NoError(t, <-done)
}

type flakyStore struct {
	storage.AlertStore
	mu   sync.Mutex
	fail bool
}

func (f *flakyStore) RecordTrigger(ctx context.Context, ruleID string, expected *time.Time, triggeredAt time.Time, entries []model.AlertHistoryEntry) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("database is locked")
	}
	return f.AlertStore.RecordTrigger(ctx, ruleID, expected, triggeredAt, entries)
}

func (f *flakyStore) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func TestRunEvaluationPass_PersistFailureRetriesNextTick(t *testing.T) {
	fx := newFixture(t, engine.DefaultCooldown,
		&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 120, nil)},
	)
	ctx := context.Background()

	rule := &model.AlertRule{
		Type:           model.AlertBudgetThreshold,
		Scope:          model.ScopeAWS,
		ThresholdValue: decimal.NewFromInt(100),
		Enabled:        true,
	}
	require.NoError(t, fx.store.CreateRule(ctx, rule))

	flaky := &flakyStore{AlertStore: fx.store, fail: true}
	registry := readers.NewRegistry()
	require.NoError(t, registry.Register(&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 120, nil)}))
	eng := engine.New(aggregate.New(registry, time.Second, testLogger()), flaky, []alerts.Notifier{fx.notifier}, engine.DefaultCooldown, testLogger()).
		WithClock(fx.clock.Now)

	first, err := eng.RunEvaluationPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Failed)
	assert.Zero(t, first.Triggered)

	// Nothing was persisted, so nothing was dispatched either.
	assert.Empty(t, fx.notifier.Sent())
	history, err := fx.store.ListHistory(ctx, rule.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	flaky.setFail(false)
	second, err := eng.RunEvaluationPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Triggered)
	assert.Len(t, fx.notifier.Sent(), 1)
}

type fixedRulesStore struct {
	storage.AlertStore
	rules []model.AlertRule
}

func (f *fixedRulesStore) ListEnabledRules(_ context.Context) ([]model.AlertRule, error) {
	return f.rules, nil
}

func TestRunEvaluationPass_ExpiredDeadlineDefersRules(t *testing.T) {
	fx := newFixture(t, 0,
		&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 50, nil)},
	)

	// Rules below threshold so a live pass evaluates them without triggering.
	var rules []model.AlertRule
	for i := 0; i < 3; i++ {
		rules = append(rules, model.AlertRule{
			ID:             fmt.Sprintf("rule-%d", i),
			Type:           model.AlertBudgetThreshold,
			Scope:          model.ScopeAWS,
			ThresholdValue: decimal.NewFromInt(100),
			Enabled:        true,
		})
	}
	fixed := &fixedRulesStore{AlertStore: fx.store, rules: rules}
	registry := readers.NewRegistry()
	require.NoError(t, registry.Register(&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 50, nil)}))
	eng := engine.New(aggregate.New(registry, time.Second, testLogger()), fixed, []alerts.Notifier{fx.notifier}, 0, testLogger())

	// A pass whose deadline has already passed starts no rule evaluations
	// and is not an error; the rules are simply left for the next tick.
	expired, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := eng.RunEvaluationPass(expired)
	require.NoError(t, err)
	assert.Zero(t, result.Evaluated)
	assert.Zero(t, result.Triggered)
	assert.Zero(t, result.Failed)
	assert.Empty(t, fx.notifier.Sent())

	// The next tick picks all of them up.
	next, err := eng.RunEvaluationPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, next.Evaluated)
}

type staleStore struct {
	storage.AlertStore
}

func (s staleStore) RecordTrigger(context.Context, string, *time.Time, time.Time, []model.AlertHistoryEntry) error {
	return storage.ErrStaleRule
}

func TestRunEvaluationPass_ConcurrentTriggerSuppressed(t *testing.T) {
	fx := newFixture(t, 0,
		&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 120, nil)},
	)
	ctx := context.Background()

	rule := &model.AlertRule{
		Type:           model.AlertBudgetThreshold,
		Scope:          model.ScopeAWS,
		ThresholdValue: decimal.NewFromInt(100),
		Enabled:        true,
	}
	require.NoError(t, fx.store.CreateRule(ctx, rule))

	registry := readers.NewRegistry()
	require.NoError(t, registry.Register(&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 120, nil)}))
	eng := engine.New(aggregate.New(registry, time.Second, testLogger()), staleStore{fx.store}, []alerts.Notifier{fx.notifier}, 0, testLogger())

	// Another evaluator got there first: the duplicate is dropped silently,
	// counted as neither a trigger nor a failure.
	result, err := eng.RunEvaluationPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Evaluated)
	assert.Zero(t, result.Triggered)
	assert.Zero(t, result.Failed)
	assert.Empty(t, fx.notifier.Sent())

	history, err := fx.store.ListHistory(ctx, rule.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

type brokenStore struct {
	storage.AlertStore
}

func (brokenStore) ListEnabledRules(ctx context.Context) ([]model.AlertRule, error) {
	return nil, errors.New("disk read error")
}

func TestRunEvaluationPass_ListFailureAbortsPass(t *testing.T) {
	fx := newFixture(t, 0,
		&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 10, nil)},
	)

	registry := readers.NewRegistry()
	require.NoError(t, registry.Register(&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 10, nil)}))
	eng := engine.New(aggregate.New(registry, time.Second, testLogger()), brokenStore{fx.store}, nil, 0, testLogger())

	_, err := eng.RunEvaluationPass(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list enabled rules")
}

func TestGetCombinedSummary(t *testing.T) {
	fx := newFixture(t, 0,
		&fakeReader{provider: model.ProviderAWS, current: providerCosts(model.ProviderAWS, 120, map[string]float64{"Amazon EC2": 80, "Amazon S3": 40})},
		&fakeReader{provider: model.ProviderAzure, current: providerCosts(model.ProviderAzure, 50, map[string]float64{"Virtual Machines": 50})},
	)

	view, failures := fx.engine.GetCombinedSummary(context.Background(), model.ScopeAll)
	assert.Empty(t, failures)
	assert.True(t, view.TotalCost.Equal(decimal.NewFromInt(170)))
	require.NotEmpty(t, view.CombinedServices)
	assert.Equal(t, "Compute", view.CombinedServices[0].CanonicalName)
}
