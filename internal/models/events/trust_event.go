package events

import "time"

// TrustEvent is the fire-and-forget audit notification emitted on every
// state transition. The audit trail itself lives outside this service; the
// engine only publishes.
type TrustEvent struct {
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	AccountID  string    `json:"account_id,omitempty"`
	Actor      string    `json:"actor"`
	Amount     string    `json:"amount,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
