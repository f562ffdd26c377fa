package normalize_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
	"github.com/yapay-ai/cloudcost-sentinel/pkg/normalize"
)

func TestCanonicalize_ExactMatch(t *testing.T) {
	assert.Equal(t, normalize.ServiceCompute, normalize.Canonicalize(model.ProviderAWS, "Amazon Elastic Compute Cloud"))
	assert.Equal(t, normalize.ServiceCompute, normalize.Canonicalize(model.ProviderAzure, "Virtual Machines"))
	assert.Equal(t, normalize.ServiceCompute, normalize.Canonicalize(model.ProviderGCP, "Compute Engine"))
	assert.Equal(t, normalize.ServiceServerless, normalize.Canonicalize(model.ProviderAWS, "AWS Lambda"))
	assert.Equal(t, normalize.ServiceAnalytics, normalize.Canonicalize(model.ProviderGCP, "BigQuery"))
}

func TestCanonicalize_CaseInsensitive(t *testing.T) {
	assert.Equal(t, normalize.ServiceStorage, normalize.Canonicalize(model.ProviderAWS, "amazon simple storage service"))
	assert.Equal(t, normalize.ServiceDatabase, normalize.Canonicalize(model.ProviderAzure, "SQL DATABASE"))
}

func TestCanonicalize_SubstringMatch(t *testing.T) {
	// Key contained in the input.
	assert.Equal(t, normalize.ServiceServerless, normalize.Canonicalize(model.ProviderGCP, "Cloud Run Admin API"))
	assert.Equal(t, normalize.ServiceAnalytics, normalize.Canonicalize(model.ProviderGCP, "BigQuery Reservation"))
	// Input contained in the key.
	assert.Equal(t, normalize.ServiceCDN, normalize.Canonicalize(model.ProviderAWS, "CloudFront"))
}

func TestCanonicalize_FallbackStripsVendorPrefix(t *testing.T) {
	assert.Equal(t, "Quantum Ledger", normalize.Canonicalize(model.ProviderAWS, "Amazon Quantum Ledger"))
	assert.Equal(t, "Maps platform", normalize.Canonicalize(model.ProviderGCP, "Google Maps platform"))
	assert.Equal(t, "Billing", normalize.Canonicalize(model.ProviderAWS, "billing"))
}

func TestCanonicalize_StrippedNameResolvesIntoTaxonomy(t *testing.T) {
	// The vendor-branded label misses the substring stage, but the stripped
	// remainder is a suffix of a table key and must land in the taxonomy
	// rather than leak out as a raw fallback.
	assert.Equal(t, normalize.ServiceDatabase, normalize.Canonicalize(model.ProviderGCP, "Google Spanner"))
	assert.Equal(t, normalize.ServiceContainers, normalize.Canonicalize(model.ProviderAWS, "Amazon Fargate"))
	assert.Equal(t, normalize.ServiceServerless, normalize.Canonicalize(model.ProviderAWS, "Amazon Lambda"))
}

func TestCanonicalize_NeverEmpty(t *testing.T) {
	assert.Equal(t, normalize.ServiceUnknown, normalize.Canonicalize(model.ProviderAWS, ""))
	assert.Equal(t, normalize.ServiceUnknown, normalize.Canonicalize(model.ProviderAWS, "   "))
	assert.Equal(t, normalize.ServiceUnknown, normalize.Canonicalize(model.ProviderGCP, "Google Cloud"))
}

func TestCanonicalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Amazon Elastic Compute Cloud",
		"EC2 - Other",
		"Cloud Run",
		"Virtual Machines",
		"some unknown offering",
		"Amazon Quantum Ledger",
		"",
		"Compute",
		"Unknown Service",
		// Vendor prefix plus a suffix of a table key: the first pass strips
		// the prefix, so the output must resolve like the stripped form.
		"Google Spanner",
		"Amazon Fargate",
		"Azure Front Door",
		"AWS Step Functions",
		"Google Artifact Registry",
	}
	for _, provider := range model.AllProviders() {
		for _, in := range inputs {
			once := normalize.Canonicalize(provider, in)
			twice := normalize.Canonicalize(provider, once)
			assert.Equal(t, once, twice, "provider %s input %q", provider, in)
		}
	}
}

func TestNormalize_Defaults(t *testing.T) {
	snap := normalize.Normalize(model.RawCostData{}, model.ProviderAWS)

	assert.Equal(t, model.ProviderAWS, snap.Provider)
	assert.Equal(t, "USD", snap.Currency)
	assert.True(t, snap.TotalCost.IsZero())
	assert.Empty(t, snap.Services)
	assert.True(t, snap.Degraded)
}

func TestNormalize_TotalFromServices(t *testing.T) {
	raw := model.RawCostData{
		Currency: "USD",
		Services: []model.RawServiceCost{
			{Name: "Amazon Elastic Compute Cloud", Cost: decimal.NewFromInt(80)},
			{Name: "Amazon Simple Storage Service", Cost: decimal.NewFromInt(40)},
		},
	}
	snap := normalize.Normalize(raw, model.ProviderAWS)

	assert.False(t, snap.Degraded)
	assert.True(t, snap.TotalCost.Equal(decimal.NewFromInt(120)), "got %s", snap.TotalCost)
	require.Len(t, snap.Services, 2)
	assert.Equal(t, normalize.ServiceCompute, snap.Services[0].CanonicalName)
	assert.Equal(t, "Amazon Elastic Compute Cloud", snap.Services[0].OriginalName)
}

func TestNormalize_MismatchedTotalDropsBreakdown(t *testing.T) {
	raw := model.RawCostData{
		TotalCost: decimal.NewFromInt(500),
		Services: []model.RawServiceCost{
			{Name: "Compute Engine", Cost: decimal.NewFromInt(10)},
		},
	}
	snap := normalize.Normalize(raw, model.ProviderGCP)

	assert.True(t, snap.TotalCost.Equal(decimal.NewFromInt(500)))
	assert.Empty(t, snap.Services)
}

func TestNormalize_ToleratesRounding(t *testing.T) {
	raw := model.RawCostData{
		TotalCost: decimal.RequireFromString("100.00"),
		Services: []model.RawServiceCost{
			{Name: "Compute Engine", Cost: decimal.RequireFromString("99.995")},
		},
	}
	snap := normalize.Normalize(raw, model.ProviderGCP)

	assert.Len(t, snap.Services, 1)
	assert.True(t, snap.TotalCost.Equal(decimal.RequireFromString("100.00")))
}

func TestNormalize_ClampsNegatives(t *testing.T) {
	raw := model.RawCostData{
		TotalCost: decimal.NewFromInt(-5),
		Services: []model.RawServiceCost{
			{Name: "Compute Engine", Cost: decimal.NewFromInt(-3)},
		},
	}
	snap := normalize.Normalize(raw, model.ProviderGCP)

	assert.False(t, snap.TotalCost.IsNegative())
	for _, svc := range snap.Services {
		assert.False(t, svc.Cost.IsNegative())
	}
}
