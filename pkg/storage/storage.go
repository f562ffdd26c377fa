package storage

import (
	"context"
	"errors"
	"time"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
)

// ErrRuleNotFound is returned when a rule ID does not exist.
var ErrRuleNotFound = errors.New("alert rule not found")

// ErrStaleRule is returned by conditional trigger writes when the rule's
// last-triggered timestamp no longer matches the value read at evaluation
// time, meaning another evaluator instance got there first.
var ErrStaleRule = errors.New("alert rule changed since evaluation")

// AlertStore defines the persistence contract for alert rules and history.
// Rules are authored by the API layer; the engine reads them and mutates only
// the last-triggered timestamp.
type AlertStore interface {
	// CreateRule persists a new rule.
	CreateRule(ctx context.Context, rule *model.AlertRule) error

	// GetRule retrieves a rule by ID.
	GetRule(ctx context.Context, id string) (*model.AlertRule, error)

	// ListRules returns all rules.
	ListRules(ctx context.Context) ([]model.AlertRule, error)

	// ListEnabledRules returns the rules due for evaluation.
	ListEnabledRules(ctx context.Context) ([]model.AlertRule, error)

	// DeleteRule removes a rule and its history.
	DeleteRule(ctx context.Context, id string) error

	// UpdateLastTriggered conditionally sets a rule's last-triggered
	// timestamp. The write applies only if the stored value still equals
	// expected; otherwise ErrStaleRule is returned.
	UpdateLastTriggered(ctx context.Context, ruleID string, expected *time.Time, triggeredAt time.Time) error

	// AppendHistory persists one immutable trigger record.
	AppendHistory(ctx context.Context, entry *model.AlertHistoryEntry) error

	// RecordTrigger writes the history entries and the conditional
	// last-triggered update as one transaction. Either everything is
	// durable or nothing is, so a failed trigger is retried whole on the
	// next evaluation pass.
	RecordTrigger(ctx context.Context, ruleID string, expected *time.Time, triggeredAt time.Time, entries []model.AlertHistoryEntry) error

	// ListHistory returns recent history entries, newest first. An empty
	// ruleID matches all rules.
	ListHistory(ctx context.Context, ruleID string, limit int) ([]model.AlertHistoryEntry, error)

	// Close releases resources.
	Close() error
}
