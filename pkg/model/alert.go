package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AlertType distinguishes the supported rule semantics.
type AlertType string

const (
	AlertBudgetThreshold AlertType = "budget_threshold"
	AlertSpikeDetection  AlertType = "spike_detection"
	AlertDailySummary    AlertType = "daily_summary"
	AlertWeeklySummary   AlertType = "weekly_summary"
)

// DefaultSpikeThresholdPct is applied when a spike rule omits its percentage.
const DefaultSpikeThresholdPct = 20

// AlertRule defines what to watch. The engine treats rules as read-only
// except for LastTriggeredAt, which it updates only on a successful trigger.
type AlertRule struct {
	ID              string          `json:"id" db:"id"`
	OwnerID         string          `json:"owner_id" db:"owner_id"`
	Type            AlertType       `json:"type" db:"type"`
	Scope           ProviderScope   `json:"scope" db:"scope"`
	ThresholdValue  decimal.Decimal `json:"threshold_value" db:"threshold_value"`
	ThresholdPct    int             `json:"threshold_pct" db:"threshold_pct"`
	Enabled         bool            `json:"enabled" db:"enabled"`
	LastTriggeredAt *time.Time      `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Validate reports whether the rule is well-formed enough to evaluate.
func (r *AlertRule) Validate() error {
	if _, err := ParseScope(string(r.Scope)); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	switch r.Type {
	case AlertBudgetThreshold:
		if r.ThresholdValue.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("rule %s: budget threshold requires a positive threshold value", r.ID)
		}
	case AlertSpikeDetection:
		if r.ThresholdPct < 1 {
			return fmt.Errorf("rule %s: spike detection requires a threshold percentage >= 1", r.ID)
		}
	case AlertDailySummary, AlertWeeklySummary:
	default:
		return fmt.Errorf("rule %s: unknown alert type %q", r.ID, r.Type)
	}
	return nil
}

// AlertHistoryEntry is the immutable audit record of one trigger.
type AlertHistoryEntry struct {
	ID              string          `json:"id" db:"id"`
	RuleID          string          `json:"rule_id" db:"rule_id"`
	TriggeredAt     time.Time       `json:"triggered_at" db:"triggered_at"`
	CurrentValue    decimal.Decimal `json:"current_value" db:"current_value"`
	ComparisonValue decimal.Decimal `json:"comparison_value" db:"comparison_value"`
	Provider        string          `json:"provider" db:"provider"`
	Message         string          `json:"message" db:"message"`
}
