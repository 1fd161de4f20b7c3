// Package governance is the community governance core: community lifecycle,
// membership and roles, moderation restrictions, ownership transfer and join
// requests. Every state-changing operation runs in a single database
// transaction; audit entries and notifications follow the commit.
package governance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/d9705996/commune/internal/audit"
	"github.com/d9705996/commune/internal/db"
	"github.com/d9705996/commune/internal/model"
	"github.com/d9705996/commune/internal/notify"
	"github.com/d9705996/commune/internal/policy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PasswordVerifier checks a plaintext password against a stored hash.
type PasswordVerifier interface {
	VerifyPassword(plaintext, hash string) bool
}

// Options configures a Service. DB is required; everything else has a
// usable default.
type Options struct {
	DB        *gorm.DB
	Audit     audit.Sink
	Notifier  notify.Notifier
	Passwords PasswordVerifier
	Logger    *slog.Logger

	// TransferTTL is how long an ownership offer stays open. Default 48h.
	TransferTTL time.Duration
	// Timeout bounds every operation. Zero disables it.
	Timeout time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service implements the governance operations.
type Service struct {
	db          *gorm.DB
	audit       *audit.Recorder
	notifier    notify.Notifier
	passwords   PasswordVerifier
	log         *slog.Logger
	transferTTL time.Duration
	timeout     time.Duration
	clock       func() time.Time

	members      MembershipStore
	restrictions RestrictionStore
	joinRequests JoinRequestStore

	tracer    trace.Tracer
	ops       metric.Int64Counter
	transfers metric.Int64Counter
}

// New builds a Service from opts.
func New(opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	sink := opts.Audit
	if sink == nil {
		sink = audit.Store{}
	}
	n := opts.Notifier
	if n == nil {
		n = notify.Log{Logger: log}
	}
	ttl := opts.TransferTTL
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	clock := opts.Now
	if clock == nil {
		clock = time.Now
	}

	meter := otel.Meter("commune/governance")
	ops, _ := meter.Int64Counter("governance_operations_total",
		metric.WithDescription("Governance operations by name and outcome kind"))
	transfers, _ := meter.Int64Counter("governance_transfers_total",
		metric.WithDescription("Ownership transfers by final status"))

	return &Service{
		db:          opts.DB,
		audit:       audit.NewRecorder(opts.DB, sink, log),
		notifier:    n,
		passwords:   opts.Passwords,
		log:         log,
		transferTTL: ttl,
		timeout:     opts.Timeout,
		clock:       clock,
		tracer:      otel.Tracer("commune/governance"),
		ops:         ops,
		transfers:   transfers,
	}
}

func (s *Service) now() time.Time { return s.clock().UTC() }

// begin starts the span and deadline for an operation. The returned func
// must be deferred with a pointer to the operation's named error.
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(*error)) {
	var cancel context.CancelFunc = func() {}
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	ctx, span := s.tracer.Start(ctx, "governance."+op)
	return ctx, func(errp *error) {
		defer cancel()
		defer span.End()
		outcome := "ok"
		if err := *errp; err != nil {
			outcome = string(KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			if KindOf(err) == KindUnavailable {
				s.log.ErrorContext(ctx, "governance operation failed", "op", op, "err", err)
			}
		}
		if s.ops != nil {
			s.ops.Add(ctx, 1, metric.WithAttributes(
				attribute.String("op", op),
				attribute.String("outcome", outcome)))
		}
	}
}

// tx runs fn in a transaction and classifies whatever escapes it.
func (s *Service) tx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(fn)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindUnavailable, Reason: ReasonStore, Err: err}
	}
	return storeErr(op, err)
}

// forUpdate adds a row lock on postgres. SQLite serialises writers itself.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if db.IsPostgres(tx) {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// notify delivers ev after commit. Failures are logged, never returned.
func (s *Service) notify(ctx context.Context, ev notify.Event) {
	if ev.RecipientID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.WarnContext(ctx, "notification failed",
			"event", ev.Type,
			"community_id", ev.CommunityID,
			"recipient_id", ev.RecipientID,
			"err", err)
	}
}

// record writes an audit entry after commit.
func (s *Service) record(ctx context.Context, communityID, actorID, action string, prev, next, meta model.JSONMap) {
	s.audit.Record(ctx, &model.AuditLogEntry{
		CommunityID:   communityID,
		UserID:        actorID,
		ActionType:    action,
		PreviousState: prev,
		NewState:      next,
		Metadata:      meta,
		CreatedAt:     s.now(),
	})
}

func loadCommunity(tx *gorm.DB, id string) (*model.Community, error) {
	var c model.Community
	if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newErr(KindNotFound, ReasonCommunityNotFound)
		}
		return nil, err
	}
	return &c, nil
}

// requireRole loads actorID's role and checks it is at least min.
func (s *Service) requireRole(ctx context.Context, tx *gorm.DB, communityID, actorID string, min model.Role) (model.Role, error) {
	role, ok, err := s.members.Role(ctx, tx, communityID, actorID)
	if err != nil {
		return "", err
	}
	if !ok || !policy.AtLeast(role, min) {
		return role, newErr(KindForbidden, ReasonInsufficientRole)
	}
	return role, nil
}

func (s *Service) ownerOf(ctx context.Context, tx *gorm.DB, communityID string) (string, error) {
	var m model.Membership
	err := tx.WithContext(ctx).
		Where("community_id = ? AND role = ?", communityID, model.RoleOwner).
		Limit(1).Find(&m).Error
	return m.UserID, err
}
