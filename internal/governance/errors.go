package governance

import (
	"errors"
	"fmt"
)

// Kind classifies governance failures. The web layer maps kinds to transport
// status codes; the core never formats user-facing messages.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindForbidden       Kind = "forbidden"
	KindInvalidState    Kind = "invalid_state"
	KindUnauthenticated Kind = "unauthenticated"
	KindUnavailable     Kind = "unavailable"
)

// Stable reason strings carried by Error.
const (
	ReasonCommunityNotFound   = "community_not_found"
	ReasonMemberNotFound      = "member_not_found"
	ReasonRestrictionNotFound = "restriction_not_found"
	ReasonTransferNotFound    = "transfer_not_found"
	ReasonJoinRequestNotFound = "join_request_not_found"

	ReasonURLExists       = "url_already_exists"
	ReasonTransferPending = "transfer_pending"
	ReasonAlreadyMember   = "already_member"
	ReasonOwnerExists     = "owner_exists"
	ReasonOwnerRoleLocked = "owner_role_locked"

	ReasonInsufficientRole    = "insufficient_role"
	ReasonNotOwner            = "not_owner"
	ReasonOwnChange           = "cannot_change_own_role"
	ReasonSelfRestriction     = "cannot_restrict_self"
	ReasonSelfRemoval         = "cannot_remove_self"
	ReasonOwnerNotRestricable = "cannot_restrict_owner"
	ReasonNotTransferParty    = "not_transfer_party"
	ReasonBanned              = "banned"

	ReasonTransferProcessed    = "transfer_already_processed"
	ReasonTransferExpired      = "transfer_expired"
	ReasonTargetNotOrganizer   = "target_not_organizer"
	ReasonOwnerChanged         = "owner_changed"
	ReasonRestrictionExpired   = "restriction_expired"
	ReasonExpiryNotInFuture    = "expiry_not_in_future"
	ReasonOwnerCannotLeave     = "owner_cannot_leave"
	ReasonCommunityInactive    = "community_inactive"
	ReasonCommunityActive      = "community_active"
	ReasonCommunityPrivate     = "community_private"
	ReasonCommunityPublic      = "community_public"
	ReasonJoinRequestProcessed = "join_request_already_processed"
	ReasonInvalidRole          = "invalid_role"
	ReasonInvalidType          = "invalid_restriction_type"
	ReasonInvalidAction        = "invalid_action"

	ReasonInvalidPassword = "invalid_password"

	ReasonStore = "store_unavailable"
)

// Error is the typed failure returned by every governance operation.
type Error struct {
	Kind   Kind
	Reason string
	// Status is the persisted status of the transfer or join request the
	// operation observed, when that explains the failure.
	Status string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Reason
	if e.Status != "" {
		msg += " (status " + e.Status + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, and by reason when the target sets one,
// so errors.Is(err, governance.ErrForbidden) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

// Sentinels for errors.Is checks by kind.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrUnavailable     = &Error{Kind: KindUnavailable}
)

// KindOf returns the kind of err, or KindUnavailable for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnavailable
}

// ReasonOf returns the reason carried by err, if any.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

func newErr(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// storeErr classifies an error that escaped a store call or transaction.
// Domain errors pass through; anything else is infrastructure.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindUnavailable, Reason: ReasonStore, Err: fmt.Errorf("%s: %w", op, err)}
}
