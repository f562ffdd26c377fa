package alerts

import "context"

// Notification is a fully-formed message ready for delivery.
type Notification struct {
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// Notifier delivers notifications to an external channel. Delivery is
// best-effort: the engine records the trigger before calling Send and treats
// a failed send as operational, not user-facing.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers a notification and reports whether it was delivered.
	// Implementations must be safe for concurrent use.
	Send(ctx context.Context, n Notification) (bool, error)
}
