// Package audit is the append-only log of privileged community mutations.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/d9705996/commune/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"gorm.io/gorm"
)

// Action types written by the governance core.
const (
	ActionCommunityCreated     = "community.created"
	ActionCommunityUpdated     = "community.updated"
	ActionCommunityDeactivated = "community.deactivated"
	ActionCommunityReactivated = "community.reactivated"
	ActionCommunityDeleted     = "community.deleted"
	ActionMemberRoleUpdated    = "member.role_updated"
	ActionMemberRemoved        = "member.removed"
	ActionRestrictionCreated   = "restriction.created"
	ActionRestrictionRemoved   = "restriction.removed"
	ActionTransferInitiated    = "ownership.transfer_initiated"
	ActionOwnershipTransferred = "ownership.transferred"
	ActionTransferRejected     = "ownership.transfer_rejected"
	ActionTransferCanceled     = "ownership.transfer_canceled"
	ActionJoinRequestApproved  = "join_request.approved"
	ActionJoinRequestRejected  = "join_request.rejected"
)

// Sink appends entries using the handle it is given, so a caller can make
// the entry part of its own transaction.
type Sink interface {
	Append(ctx context.Context, db *gorm.DB, e *model.AuditLogEntry) error
}

// Store is the GORM-backed Sink and read side of the audit log.
type Store struct{}

// Append inserts e. Entries are never updated or deleted.
func (Store) Append(ctx context.Context, db *gorm.DB, e *model.AuditLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// List returns the newest entries for a community.
func (Store) List(ctx context.Context, db *gorm.DB, communityID string, limit int) ([]model.AuditLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []model.AuditLogEntry
	if err := db.WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return out, nil
}

// Recorder writes entries after the primary mutation has committed. A failed
// write is logged and counted but never returned: losing an audit entry is
// preferable to failing a mutation that already happened.
type Recorder struct {
	db       *gorm.DB
	sink     Sink
	log      *slog.Logger
	failures metric.Int64Counter
}

// NewRecorder builds a Recorder over sink.
func NewRecorder(db *gorm.DB, sink Sink, log *slog.Logger) *Recorder {
	var failures metric.Int64Counter = noop.Int64Counter{}
	if c, err := otel.Meter("commune/audit").Int64Counter("audit_write_failures_total",
		metric.WithDescription("Audit entries that could not be persisted")); err == nil {
		failures = c
	}
	return &Recorder{db: db, sink: sink, log: log, failures: failures}
}

// Record appends e outside any transaction.
func (r *Recorder) Record(ctx context.Context, e *model.AuditLogEntry) {
	if err := r.sink.Append(ctx, r.db, e); err != nil {
		r.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("action", e.ActionType)))
		r.log.ErrorContext(ctx, "audit write failed",
			"action", e.ActionType,
			"community_id", e.CommunityID,
			"user_id", e.UserID,
			"err", err)
	}
}

// Sink exposes the underlying sink for in-transaction writes.
func (r *Recorder) Sink() Sink { return r.sink }
