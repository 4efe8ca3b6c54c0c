package ports

import (
	"context"

	"github.com/zaphost/gateway/internal/core/domain"
)

// SessionSnapshotRepository mirrors session status changes to durable storage.
type SessionSnapshotRepository interface {
	// Save upserts the snapshot keyed by user id.
	Save(ctx context.Context, snap domain.SessionSnapshot) error
}

// AuditRepository persists usage records.
type AuditRepository interface {
	InsertMessageLog(ctx context.Context, entry domain.MessageLog) error
	InsertAPILog(ctx context.Context, entry domain.APILog) error
}

// AuditRecorder accepts usage records for asynchronous persistence. Record
// never blocks the caller and never reports persistence failures.
type AuditRecorder interface {
	RecordMessage(entry domain.MessageLog)
	RecordAPICall(entry domain.APILog)
}
