// Package notify carries governance notifications to users and downstream
// consumers. Delivery is best effort: callers log failures and move on.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Event types emitted by the governance core.
const (
	EventTransferInitiated  = "ownership_transfer.initiated"
	EventTransferOffered    = "ownership_transfer.offered"
	EventTransferAccepted   = "ownership_transfer.accepted"
	EventTransferRejected   = "ownership_transfer.rejected"
	EventTransferCanceled   = "ownership_transfer.canceled"
	EventJoinRequestCreated = "join_request.created"
	EventJoinRequestAnswer  = "join_request.responded"
)

// Event is a single notification addressed to one user.
type Event struct {
	Type        string         `json:"type"`
	CommunityID string         `json:"community_id"`
	RecipientID string         `json:"recipient_id"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Log writes events to a structured logger. It is the fallback channel when
// no e-mail or broker is configured.
type Log struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (l Log) Notify(ctx context.Context, ev Event) error {
	l.Logger.InfoContext(ctx, "notification",
		"event", ev.Type,
		"community_id", ev.CommunityID,
		"recipient_id", ev.RecipientID)
	return nil
}

// Multi fans an event out to every channel and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
