package audit_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/d9705996/commune/internal/audit"
	"github.com/d9705996/commune/internal/db/dbtest"
	"github.com/d9705996/commune/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type failingSink struct{}

func (failingSink) Append(context.Context, *gorm.DB, *model.AuditLogEntry) error {
	return errors.New("disk full")
}

func TestStore_AppendAndList(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	var store audit.Store

	base := time.Now().UTC().Add(-time.Hour)
	for i, action := range []string{audit.ActionCommunityCreated, audit.ActionMemberRoleUpdated} {
		require.NoError(t, store.Append(ctx, db, &model.AuditLogEntry{
			CommunityID:   "c-1",
			UserID:        "u-1",
			ActionType:    action,
			PreviousState: model.JSONMap{"role": "member"},
			NewState:      model.JSONMap{"role": "moderator"},
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.Append(ctx, db, &model.AuditLogEntry{CommunityID: "c-2", UserID: "u-1", ActionType: audit.ActionCommunityCreated}))

	entries, err := store.List(ctx, db, "c-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionMemberRoleUpdated, entries[0].ActionType)
	assert.Equal(t, "moderator", entries[0].NewState["role"])
	assert.Nil(t, entries[0].Metadata)
}

// A failed audit write after commit is logged, not returned to the caller.
func TestRecorder_SwallowsAndLogsFailures(t *testing.T) {
	db := dbtest.Open(t)
	var buf bytes.Buffer
	rec := audit.NewRecorder(db, failingSink{}, slog.New(slog.NewTextHandler(&buf, nil)))

	rec.Record(context.Background(), &model.AuditLogEntry{CommunityID: "c-1", UserID: "u-1", ActionType: audit.ActionRestrictionCreated})

	assert.Contains(t, buf.String(), "audit write failed")
	assert.Contains(t, buf.String(), "disk full")
	assert.Contains(t, buf.String(), audit.ActionRestrictionCreated)
}

func TestRecorder_WritesThroughStore(t *testing.T) {
	db := dbtest.Open(t)
	var buf bytes.Buffer
	rec := audit.NewRecorder(db, audit.Store{}, slog.New(slog.NewTextHandler(&buf, nil)))

	rec.Record(context.Background(), &model.AuditLogEntry{CommunityID: "c-9", UserID: "u-1", ActionType: audit.ActionCommunityUpdated})

	var n int64
	require.NoError(t, db.Model(&model.AuditLogEntry{}).Where("community_id = ?", "c-9").Count(&n).Error)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, buf.String())
}
