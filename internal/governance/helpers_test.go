package governance_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/d9705996/commune/internal/audit"
	"github.com/d9705996/commune/internal/db/dbtest"
	"github.com/d9705996/commune/internal/governance"
	"github.com/d9705996/commune/internal/model"
	"github.com/d9705996/commune/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeClock is a settable clock shared between a test and the service.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// plainVerifier treats the stored hash as "hashed:" + password.
type plainVerifier struct{}

func (plainVerifier) VerifyPassword(plaintext, hash string) bool {
	return hash == "hashed:"+plaintext
}

// recordingNotifier keeps every delivered event.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

// failingNotifier rejects every delivery.
type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, notify.Event) error {
	return errors.New("smtp unreachable")
}

// failingSink rejects every audit write.
type failingSink struct{}

func (failingSink) Append(context.Context, *gorm.DB, *model.AuditLogEntry) error {
	return errors.New("audit store offline")
}

type fixture struct {
	db       *gorm.DB
	svc      *governance.Service
	clock    *fakeClock
	notifier *recordingNotifier
}

type option func(*governance.Options)

func withSink(s audit.Sink) option {
	return func(o *governance.Options) { o.Audit = s }
}

func withNotifier(n notify.Notifier) option {
	return func(o *governance.Options) { o.Notifier = n }
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	f := &fixture{
		db:       dbtest.Open(t),
		clock:    &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		notifier: &recordingNotifier{},
	}
	o := governance.Options{
		DB:          f.db,
		Notifier:    f.notifier,
		Passwords:   plainVerifier{},
		Logger:      discard,
		TransferTTL: 48 * time.Hour,
		Now:         f.clock.Now,
	}
	for _, fn := range opts {
		fn(&o)
	}
	f.svc = governance.New(o)
	return f
}

// user inserts a user whose password is "pw-" + name.
func (f *fixture) user(t *testing.T, name string) string {
	t.Helper()
	u := &model.User{Email: name + "@example.test", Name: name, PasswordHash: "hashed:pw-" + name}
	require.NoError(t, f.db.Create(u).Error)
	return u.ID
}

func (f *fixture) community(t *testing.T, ownerID, name string, private bool) *model.Community {
	t.Helper()
	c, err := f.svc.CreateCommunity(context.Background(), ownerID, governance.CreateCommunityInput{
		Name: name, IsPrivate: private,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) setRole(t *testing.T, communityID, userID string, role model.Role) {
	t.Helper()
	_, err := f.svc.UpsertMember(context.Background(), communityID, userID, role)
	require.NoError(t, err)
}

func (f *fixture) role(t *testing.T, communityID, userID string) model.Role {
	t.Helper()
	r, _, err := f.svc.GetRole(context.Background(), communityID, userID)
	require.NoError(t, err)
	return r
}

func (f *fixture) auditActions(t *testing.T, communityID string) []string {
	t.Helper()
	var entries []model.AuditLogEntry
	require.NoError(t, f.db.Where("community_id = ?", communityID).Order("created_at, action_type").Find(&entries).Error)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ActionType)
	}
	return out
}

func assertKind(t *testing.T, err error, kind governance.Kind, reason string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, governance.KindOf(err), "error: %v", err)
	if reason != "" {
		assert.Equal(t, reason, governance.ReasonOf(err), "error: %v", err)
	}
}
