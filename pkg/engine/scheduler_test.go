package engine_test

import (
	"context"
	"path/filepath"
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

func TestScheduler_RunsPassesAndStops(t *testing.T) {
	registry := readers.NewRegistry()
	require.NoError(t, registry.Register(&fakeReader{
		provider: model.ProviderAWS,
		current:  providerCosts(model.ProviderAWS, 120, nil),
	}))

	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	rule := &model.AlertRule{
		Type:           model.AlertBudgetThreshold,
		Scope:          model.ScopeAWS,
		ThresholdValue: decimal.NewFromInt(100),
		Enabled:        true,
	}
	require.NoError(t, store.CreateRule(context.Background(), rule))

	notifier := &captureNotifier{}
	eng := engine.New(aggregate.New(registry, time.Second, testLogger()), store, []alerts.Notifier{notifier}, engine.DefaultCooldown, testLogger())

	sched := engine.NewScheduler(eng, 20*time.Millisecond, testLogger())
	sched.Start()

	deadline := time.After(2 * time.Second)
	for len(notifier.Sent()) == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduler never produced a trigger")
		case <-time.After(10 * time.Millisecond):
		}
	}
	sched.Stop()

	// The rule triggered once; later ticks land inside the cooldown.
	history, err := store.ListHistory(context.Background(), rule.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestScheduler_StopIsIdempotentForPendingTicks(t *testing.T) {
	registry := readers.NewRegistry()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	eng := engine.New(aggregate.New(registry, time.Second, testLogger()), store, nil, 0, testLogger())
	sched := engine.NewScheduler(eng, time.Hour, testLogger())

	sched.Start()
	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
