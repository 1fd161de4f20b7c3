package governance_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/d9705996/commune/internal/audit"
	"github.com/d9705996/commune/internal/governance"
	"github.com/d9705996/commune/internal/model"
	"github.com/d9705996/commune/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type transferCast struct {
	community *model.Community
	owner     string
	organizer string
	member    string
}

func newTransferCast(t *testing.T, f *fixture) transferCast {
	t.Helper()
	tc := transferCast{
		owner:     f.user(t, "alice"),
		organizer: f.user(t, "bob"),
		member:    f.user(t, "dave"),
	}
	tc.community = f.community(t, tc.owner, "Chess", false)
	f.setRole(t, tc.community.ID, tc.organizer, model.RoleOrganizer)
	f.setRole(t, tc.community.ID, tc.member, model.RoleMember)
	return tc
}

func (tc transferCast) initiate(t *testing.T, f *fixture) *model.OwnershipTransfer {
	t.Helper()
	tr, err := f.svc.InitiateTransfer(context.Background(), tc.community.ID, tc.owner, tc.organizer, "pw-alice")
	require.NoError(t, err)
	return tr
}

func TestInitiateTransfer(t *testing.T) {
	f := newFixture(t)
	tc := newTransferCast(t, f)

	tr := tc.initiate(t, f)

	assert.Equal(t, model.TransferPending, tr.Status)
	assert.Equal(t, tc.owner, tr.CurrentOwnerID)
	assert.Equal(t, tc.organizer, tr.TargetUserID)
	assert.True(t, tr.ExpiresAt.Equal(f.clock.Now().Add(48*time.Hour)))
	assert.Equal(t, []string{notify.EventTransferInitiated, notify.EventTransferOffered}, f.notifier.types())
	assert.Contains(t, f.auditActions(t, tc.community.ID), audit.ActionTransferInitiated)
}

func TestInitiateTransfer_Preconditions(t *testing.T) {
	f := newFixture(t)
	tc := newTransferCast(t, f)
	ctx := context.Background()

	_, err := f.svc.InitiateTransfer(ctx, tc.community.ID, tc.owner, tc.organizer, "wrong")
	assertKind(t, err, governance.KindUnauthenticated, governance.ReasonInvalidPassword)

	_, err = f.svc.InitiateTransfer(ctx, tc.community.ID, tc.organizer, tc.member, "pw-bob")
	assertKind(t, err, governance.KindForbidden, governance.ReasonNotOwner)

	_, err = f.svc.InitiateTransfer(ctx, tc.community.ID, tc.owner, tc.member, "pw-alice")
	assertKind(t, err, governance.KindInvalidState, governance.ReasonTargetNotOrganizer)

	_, err = f.svc.InitiateTransfer(ctx, tc.community.ID, tc.owner, f.user(t, "stranger"), "pw-alice")
	assertKind(t, err, governance.KindNotFound, governance.ReasonMemberNotFound)

	_, err = f.svc.InitiateTransfer(ctx, "missing", tc.owner, tc.organizer, "pw-alice")
	assertKind(t, err, governance.KindNotFound, governance.ReasonCommunityNotFound)
}

func TestInitiateTransfer_OnePendingPerCommunity(t *testing.T) {
	f := newFixture(t)
	tc := newTransferCast(t, f)
	carol := f.user(t, "carol")
	f.setRole(t, tc.community.ID, carol, model.RoleOrganizer)
	ctx := context.Background()

	tc.initiate(t, f)
	_, err := f.svc.InitiateTransfer(ctx, tc.community.ID, tc.owner, carol, "pw-alice")
	assertKind(t, err, governance.KindConflict, governance.ReasonTransferPending)
}

func TestInitiateTransfer_ReplacesLapsedOffer(t *testing.T) {
	f := newFixture(t)
	tc := newTransferCast(t, f)
	ctx := context.Background()

	first := tc.initiate(t, f)
	f.clock.Advance(49 * time.Hour)

	second, err := f.svc.InitiateTransfer(ctx, tc.community.ID, tc.owner, tc.organizer, "pw-alice")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	var stored model.OwnershipTransfer
	require.NoError(t, f.db.Where("id = ?", first.ID).First(&stored).Error)
	assert.Equal(t, model.TransferExpired, stored.Status)
}

func TestAcceptTransfer_SwapsRolesAndAudits(t *testing.T) {
	f := newFixture(t)
	tc := newTransferCast(t, f)
	tr := tc.initiate(t, f)

	got, err := f.svc.RespondTransfer(context.Background(), tr.ID, tc.organizer, governance.TransferAccept)
	require.NoError(t, err)
	assert.Equal(t, model.TransferAccepted, got.Status)

	assert.Equal(t, model.RoleOrganizer, f.role(t, tc.community.ID, tc.owner))
	assert.Equal(t, model.RoleOwner, f.role(t, tc.community.ID, tc.organizer))

	var owners int64
	require.NoError(t, f.db.Model(&model.Membership{}).
		Where("community_id = ? AND role = ?", tc.community.ID, model.RoleOwner).Count(&owners).Error)
	assert.Equal(t, int64(1), owners)

	var entry model.AuditLogEntry
	require.NoError(t, f.db.Where("community_id = ? AND action_type = ?",
		tc.community.ID, audit.ActionOwnershipTransferred).First(&entry).Error)
	assert.Equal(t, tc.owner, entry.PreviousState["owner_id"])
	assert.Equal(t, tc.organizer, entry.NewState["owner_id"])
	assert.Equal(t, tc.organizer, entry.UserID)

	assert.Contains(t, f.notifier.types(), notify.EventTransferAccepted)

	// The former owner can now leave; the new one cannot.
	require.NoError(t, f.svc.Leave(context.Background(), tc.community.ID, tc.owner))
	err = f.svc.Leave(context.Background(), tc.community.ID, tc.organizer)
	assertKind(t, err, governance.KindInvalidState, governance.ReasonOwnerCannotLeave)
}

func TestAcceptTransfer_AuditFailureRollsBack(t *testing.T) {
	f := newFixture(t, withSink(failingSink{}))
	tc := newTransferCast(t, f)
	tr := tc.initiate(t, f)

	_, err := f.svc.RespondTransfer(context.Background(), tr.ID, tc.organizer, governance.TransferAccept)
	assertKind(t, err, governance.KindUnavailable, "")

	assert.Equal(t, model.RoleOwner, f.role(t, tc.community.ID, tc.owner))
	assert.Equal(t, model.RoleOrganizer, f.role(t, tc.community.ID, tc.organizer))

	var stored model.OwnershipTransfer
	require.NoError(t, f.db.Where("id = ?", tr.ID).First(&stored).Error)
	assert.Equal(t, model.TransferPending, stored.Status)
}

func TestAcceptTransfer_TargetNoLongerOrganizer(t *testing.T) {
	f := newFixture(t)
	tc := newTransferCast(t, f)
	tr := tc.initiate(t, f)
	ctx := context.Background()

	_, err := f.svc.UpdateMemberRole(ctx, tc.community.ID, tc.owner, tc.organizer, model.RoleMember)
	require.NoError(t, err)

	_, err = f.svc.RespondTransfer(ctx, tr.ID, tc.organizer, governance.TransferAccept)
	assertKind(t, err, governance.KindInvalidState, governance.ReasonTargetNotOrganizer)
	assert.Equal(t, model.RoleOwner, f.role(t, tc.community.ID, tc.owner))

	got, err := f.svc.GetTransfer(ctx, tr.ID, tc.owner)
	require.NoError(t, err)
	assert.Equal(t, model.TransferPending, got.Status)
}

func TestRespondTransfer_ExpiredOfferIsPersisted(t *testing.T) {
	f := newFixture(t)
	tc := newTransferCast(t, f)
	tr := tc.initiate(t, f)
	ctx := context.Background()

	f.clock.Advance(48*time.Hour + time.Second)

	_, err := f.svc.RespondTransfer(ctx, tr.ID, tc.organizer, governance.TransferAccept)
	assertKind(t, err, governance.KindInvalidState, governance.ReasonTransferExpired)
	var gerr *governance.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, string(model.TransferExpired), gerr.Status)

	var stored model.OwnershipTransfer
	require.NoError(t, f.db.Where("id = ?", tr.ID).First(&stored).Error)
	assert.Equal(t, model.TransferExpired, stored.Status)
	assert.Equal(t, model.RoleOwner, f.role(t, tc.community.ID, tc.owner))

	_, err = f.svc.RespondTransfer(ctx, tr.ID, tc.organizer, governance.TransferAccept)
	assertKind(t, err, governance.KindInvalidState, governance.ReasonTransferProcessed)
}

func TestGetTransfer_MarksLapsedOfferExpired(t *testing.T) {
	f := newFixture(t)
	tc := newTransferCast(t, f)
	tr := tc.initiate(t, f)
	ctx := context.Background()

	_, err := f.svc.GetTransfer(ctx, tr.ID, tc.member)
	assertKind(t, err, governance.KindForbidden, governance.ReasonNotTransferParty)

	f.clock.Advance(72 * time.Hour)
	got, err := f.svc.GetTransfer(ctx, tr.ID, tc.organizer)
	require.NoError(t, err)
	assert.Equal(t, model.TransferExpired, got.Status)

	var stored model.OwnershipTransfer
	require.NoError(t, f.db.Where("id = ?", tr.ID).First(&stored).Error)
	assert.Equal(t, model.TransferExpired, stored.Status)
}

func TestRespondTransfer_RejectAndCancel(t *testing.T) {
	f := newFixture(t)
	tc := newTransferCast(t, f)
	ctx := context.Background()

	tr := tc.initiate(t, f)
	_, err := f.svc.RespondTransfer(ctx, tr.ID, tc.owner, governance.TransferReject)
	assertKind(t, err, governance.KindForbidden, governance.ReasonNotTransferParty)

	got, err := f.svc.RespondTransfer(ctx, tr.ID, tc.organizer, governance.TransferReject)
	require.NoError(t, err)
	assert.Equal(t, model.TransferRejected, got.Status)

	_, err = f.svc.RespondTransfer(ctx, tr.ID, tc.owner, governance.TransferCancel)
	assertKind(t, err, governance.KindInvalidState, governance.ReasonTransferProcessed)

	tr = tc.initiate(t, f)
	_, err = f.svc.RespondTransfer(ctx, tr.ID, tc.organizer, governance.TransferCancel)
	assertKind(t, err, governance.KindForbidden, governance.ReasonNotTransferParty)

	got, err = f.svc.RespondTransfer(ctx, tr.ID, tc.owner, governance.TransferCancel)
	require.NoError(t, err)
	assert.Equal(t, model.TransferCanceled, got.Status)

	_, err = f.svc.RespondTransfer(ctx, tr.ID, tc.owner, "shrug")
	assertKind(t, err, governance.KindInvalidState, governance.ReasonInvalidAction)

	_, err = f.svc.RespondTransfer(ctx, "missing", tc.owner, governance.TransferCancel)
	assertKind(t, err, governance.KindNotFound, governance.ReasonTransferNotFound)

	actions := f.auditActions(t, tc.community.ID)
	assert.Contains(t, actions, audit.ActionTransferRejected)
	assert.Contains(t, actions, audit.ActionTransferCanceled)
	assert.Equal(t, model.RoleOwner, f.role(t, tc.community.ID, tc.owner))
}

func TestListTransfers(t *testing.T) {
	f := newFixture(t)
	tc := newTransferCast(t, f)
	ctx := context.Background()
	tc.initiate(t, f)

	_, err := f.svc.ListTransfers(ctx, tc.community.ID, tc.member)
	assertKind(t, err, governance.KindForbidden, "")

	f.clock.Advance(49 * time.Hour)
	list, err := f.svc.ListTransfers(ctx, tc.community.ID, tc.organizer)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.TransferExpired, list[0].Status)
}

func TestTransfer_NotifierFailureDoesNotUndoChanges(t *testing.T) {
	f := newFixture(t, withNotifier(failingNotifier{}))
	tc := newTransferCast(t, f)
	ctx := context.Background()

	tr, err := f.svc.InitiateTransfer(ctx, tc.community.ID, tc.owner, tc.organizer, "pw-alice")
	require.NoError(t, err)
	var stored model.OwnershipTransfer
	require.NoError(t, f.db.First(&stored, "id = ?", tr.ID).Error)
	assert.Equal(t, model.TransferPending, stored.Status)

	got, err := f.svc.RespondTransfer(ctx, tr.ID, tc.organizer, governance.TransferReject)
	require.NoError(t, err)
	assert.Equal(t, model.TransferRejected, got.Status)
	require.NoError(t, f.db.First(&stored, "id = ?", tr.ID).Error)
	assert.Equal(t, model.TransferRejected, stored.Status)
	assert.Equal(t, model.RoleOwner, f.role(t, tc.community.ID, tc.owner))
	assert.Contains(t, f.auditActions(t, tc.community.ID), audit.ActionTransferRejected)
}

type mailbox struct {
	sent []*gomail.Message
}

func (m *mailbox) DialAndSend(msgs ...*gomail.Message) error {
	m.sent = append(m.sent, msgs...)
	return nil
}

func TestTransferEmails_NameTheCommunity(t *testing.T) {
	f := newFixture(t)
	tc := newTransferCast(t, f)
	tc.initiate(t, f)

	box := &mailbox{}
	email := notify.NewEmailWithSender(f.db, box, "no-reply@commune.local")
	for _, ev := range f.notifier.events {
		require.NoError(t, email.Notify(context.Background(), ev))
	}

	require.Len(t, box.sent, 2)
	for _, m := range box.sent {
		var buf bytes.Buffer
		_, err := m.WriteTo(&buf)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "<b>Chess</b>")
		assert.NotContains(t, buf.String(), "&lt;nil&gt;")
	}
}
