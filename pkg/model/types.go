package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ProviderID identifies one of the supported cloud billing backends.
type ProviderID string

const (
	ProviderAWS   ProviderID = "aws"
	ProviderAzure ProviderID = "azure"
	ProviderGCP   ProviderID = "gcp"
)

// AllProviders returns the supported providers in a fixed order.
func AllProviders() []ProviderID {
	return []ProviderID{ProviderAWS, ProviderAzure, ProviderGCP}
}

// ParseProviderID validates a provider identifier.
func ParseProviderID(s string) (ProviderID, error) {
	switch ProviderID(s) {
	case ProviderAWS, ProviderAzure, ProviderGCP:
		return ProviderID(s), nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// ProviderScope selects which providers an operation covers.
type ProviderScope string

const (
	ScopeAWS   ProviderScope = "aws"
	ScopeAzure ProviderScope = "azure"
	ScopeGCP   ProviderScope = "gcp"
	ScopeAll   ProviderScope = "all"
)

// ParseScope validates a provider scope.
func ParseScope(s string) (ProviderScope, error) {
	switch ProviderScope(s) {
	case ScopeAWS, ScopeAzure, ScopeGCP, ScopeAll:
		return ProviderScope(s), nil
	}
	return "", fmt.Errorf("unknown provider scope %q", s)
}

// Providers expands a scope into the providers it covers.
func (s ProviderScope) Providers() []ProviderID {
	if s == ScopeAll {
		return AllProviders()
	}
	return []ProviderID{ProviderID(s)}
}

// Period is a half-open date range [Start, End).
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Granularity controls how range queries bucket cost data.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityMonthly Granularity = "monthly"
)

// RawCostData is the neutral shape a ProviderCostReader returns. Fields may
// be missing or zero; the normalizer is responsible for making it usable.
type RawCostData struct {
	Provider  string           `json:"provider" yaml:"provider"`
	Currency  string           `json:"currency" yaml:"currency"`
	TotalCost decimal.Decimal  `json:"total_cost" yaml:"total_cost"`
	Period    Period           `json:"period" yaml:"period"`
	Services  []RawServiceCost `json:"services" yaml:"services"`
	Days      []RawDailyCost   `json:"days,omitempty" yaml:"days,omitempty"`
}

// RawServiceCost is one service line as the provider reports it.
type RawServiceCost struct {
	Name string          `json:"name" yaml:"name"`
	Cost decimal.Decimal `json:"cost" yaml:"cost"`
}

// RawDailyCost is one day's total, present only on range queries with daily
// granularity.
type RawDailyCost struct {
	Date time.Time       `json:"date" yaml:"date"`
	Cost decimal.Decimal `json:"cost" yaml:"cost"`
}

// ServiceCost is one normalized service line.
type ServiceCost struct {
	CanonicalName string          `json:"canonical_name"`
	Cost          decimal.Decimal `json:"cost"`
	Currency      string          `json:"currency"`
	OriginalName  string          `json:"original_name"`
}

// CostSnapshot is the normalized cost result for one provider over one period.
// TotalCost equals the sum of Services costs when Services is non-empty; a
// reader that cannot guarantee the breakdown yields an empty Services slice
// with TotalCost authoritative.
type CostSnapshot struct {
	Provider  ProviderID      `json:"provider"`
	TotalCost decimal.Decimal `json:"total_cost"`
	Currency  string          `json:"currency"`
	Period    Period          `json:"period"`
	Services  []ServiceCost   `json:"services"`
	Degraded  bool            `json:"degraded,omitempty"`
}

// ProviderStatus flags a provider's health within a combined view.
type ProviderStatus string

const (
	StatusActive ProviderStatus = "active"
	StatusError  ProviderStatus = "error"
)

// ProviderTotal summarizes one provider's contribution to a CombinedView.
type ProviderTotal struct {
	TotalCost    decimal.Decimal `json:"total_cost"`
	Currency     string          `json:"currency"`
	ServiceCount int             `json:"service_count"`
	Status       ProviderStatus  `json:"status"`
}

// Contribution is one provider's share of a combined service.
type Contribution struct {
	Provider     ProviderID      `json:"provider"`
	Cost         decimal.Decimal `json:"cost"`
	OriginalName string          `json:"original_name"`
}

// CombinedService is a canonical service merged across providers. The
// contributors partition TotalCost exactly.
type CombinedService struct {
	CanonicalName string          `json:"canonical_name"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	Contributors  []Contribution  `json:"contributors"`
}

// CombinedView is the merged multi-cloud cost model. CombinedServices is
// sorted descending by total cost, ties broken by canonical name.
type CombinedView struct {
	TotalCost        decimal.Decimal              `json:"total_cost"`
	Currency         string                       `json:"currency"`
	PerProvider      map[ProviderID]ProviderTotal `json:"per_provider"`
	CombinedServices []CombinedService            `json:"combined_services"`
}

// FailureKind classifies why a provider read failed.
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureUnavailable FailureKind = "unavailable"
)

// PartialFailure records one provider's failed contribution to a fetch.
type PartialFailure struct {
	Provider ProviderID  `json:"provider"`
	Kind     FailureKind `json:"kind"`
}

// TrendPoint is one calendar day's cost.
type TrendPoint struct {
	Date time.Time       `json:"date"`
	Cost decimal.Decimal `json:"cost"`
}
