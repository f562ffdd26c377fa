package readers_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/readers"
)

const exportYAML = `provider: aws
currency: USD
days:
  - date: 2026-08-01
    services:
      - name: Amazon Elastic Compute Cloud
        cost: "30.00"
      - name: Amazon Simple Storage Service
        cost: "12.10"
  - date: 2026-08-02
    services:
      - name: Amazon Elastic Compute Cloud
        cost: "28.50"
  - date: 2026-07-15
    services:
      - name: Amazon Elastic Compute Cloud
        cost: "25.00"
`

func newTestReader(t *testing.T) *readers.StaticReader {
	t.Helper()
	r, err := readers.NewStatic(model.ProviderAWS, []byte(exportYAML))
	require.NoError(t, err)
	return r.WithClock(func() time.Time {
		return time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	})
}

func TestStaticReader_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aws.yaml")
	require.NoError(t, os.WriteFile(path, []byte(exportYAML), 0o644))

	r, err := readers.NewStaticFromFile(model.ProviderAWS, path)
	require.NoError(t, err)
	assert.Equal(t, model.ProviderAWS, r.Provider())
}

func TestStaticReader_CurrentPeriodIsMonthToDate(t *testing.T) {
	r := newTestReader(t)

	raw, err := r.GetCurrentPeriodCost(context.Background())
	require.NoError(t, err)

	// July day excluded, both August days included.
	assert.True(t, raw.TotalCost.Equal(decimal.RequireFromString("70.60")), "got %s", raw.TotalCost)
	require.Len(t, raw.Services, 2)
	assert.True(t, raw.Services[0].Cost.Equal(decimal.RequireFromString("58.50")))
	assert.Equal(t, "USD", raw.Currency)
}

func TestStaticReader_RangeDailyGranularity(t *testing.T) {
	r := newTestReader(t)

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	raw, err := r.GetRange(context.Background(), start, end, model.GranularityDaily)
	require.NoError(t, err)

	require.Len(t, raw.Days, 2)
	assert.True(t, raw.Days[0].Cost.Equal(decimal.RequireFromString("42.10")))
	assert.True(t, raw.Days[1].Cost.Equal(decimal.RequireFromString("28.50")))
}

func TestStaticReader_RangeMonthlyOmitsDays(t *testing.T) {
	r := newTestReader(t)

	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	raw, err := r.GetRange(context.Background(), start, end, model.GranularityMonthly)
	require.NoError(t, err)

	assert.Empty(t, raw.Days)
	assert.True(t, raw.TotalCost.Equal(decimal.RequireFromString("25.00")))
}

func TestStaticReader_CancelledContext(t *testing.T) {
	r := newTestReader(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.GetCurrentPeriodCost(ctx)
	assert.Error(t, err)
}

func TestStaticReader_BadYAML(t *testing.T) {
	_, err := readers.NewStatic(model.ProviderAWS, []byte("days: [nope"))
	assert.Error(t, err)
}

func TestStaticReader_BadCost(t *testing.T) {
	bad := `provider: aws
days:
  - date: 2026-08-01
    services:
      - name: EC2
        cost: "not-a-number"
`
	_, err := readers.NewStatic(model.ProviderAWS, []byte(bad))
	assert.Error(t, err)
}
