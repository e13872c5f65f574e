package collab

import (
	"context"

	"trust-accounting-backend/internal/interfaces"
	"trust-accounting-backend/internal/models/events"
)

// NopAuditSink discards events. Used when no broker is configured.
type NopAuditSink struct{}

func (NopAuditSink) Publish(context.Context, events.TrustEvent) error { return nil }

var _ interfaces.AuditSink = NopAuditSink{}
