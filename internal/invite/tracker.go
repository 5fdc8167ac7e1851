// ABOUTME: Invitation Tracker records which operators were asked to pick up which clients
// ABOUTME: Pairs every invitation row with its transport message so stale offers can be retracted

package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/helpline-gateway/internal/store"
)

// Messenger defines what the tracker needs from the transport layer.
// Retraction is best-effort: failures are logged by the tracker, never fatal.
type Messenger interface {
	SendInvitation(ctx context.Context, operatorID, clientID store.UserID, text string) (string, error)
	Retract(ctx context.Context, userID store.UserID, messageID string) error
}

// InvitationStore defines what the tracker needs from storage
type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv *store.Invitation) (bool, error)
	GetInvitation(ctx context.Context, operatorID, clientID store.UserID) (*store.Invitation, error)
	DeleteInvitation(ctx context.Context, operatorID, clientID store.UserID) (*store.Invitation, error)
	DeleteInvitationsForClient(ctx context.Context, clientID store.UserID, exceptOperatorID store.UserID) ([]*store.Invitation, error)
	DeleteInvitationsForOperator(ctx context.Context, operatorID store.UserID) ([]*store.Invitation, error)
}

// Tracker manages pending invitations. It is driven exclusively by the
// conversation router; no other component mutates invitation rows.
//
// Store mutations and transport sends are separate steps on purpose: the
// router performs the row-level operations inside its per-client critical
// section and calls Retract afterwards, so transport I/O never runs under a
// lock.
type Tracker struct {
	store     InvitationStore
	messenger Messenger
	logger    *slog.Logger
}

// New creates a Tracker. Pass nil logger for default.
func New(invStore InvitationStore, messenger Messenger, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:     invStore,
		messenger: messenger,
		logger:    logger.With("component", "invite"),
	}
}

// Broadcast sends one invitation per operator and records each with the
// transport message id assigned at send time. Operators who already hold an
// invitation for this client are skipped: the duplicate send is retracted
// and the existing row kept, so an invitation message is never leaked.
// Send failures for individual operators are logged and skipped.
func (t *Tracker) Broadcast(ctx context.Context, clientID store.UserID, operatorIDs []store.UserID) ([]*store.Invitation, error) {
	text := fmt.Sprintf("User #%d is waiting for a conversation. Accept to become their operator.", clientID)

	var sent []*store.Invitation
	for _, operatorID := range operatorIDs {
		messageID, err := t.messenger.SendInvitation(ctx, operatorID, clientID, text)
		if err != nil {
			t.logger.Warn("failed to send invitation",
				"operator_id", operatorID,
				"client_id", clientID,
				"error", err)
			continue
		}

		inv := &store.Invitation{
			OperatorID: operatorID,
			ClientID:   clientID,
			MessageID:  messageID,
			CreatedAt:  time.Now(),
		}
		created, err := t.store.CreateInvitation(ctx, inv)
		if err != nil {
			// The row failed but the message is out. Pull it back.
			t.retract(ctx, operatorID, messageID)
			return sent, fmt.Errorf("recording invitation: %w", err)
		}
		if !created {
			t.logger.Warn("duplicate invitation, retracting extra message",
				"operator_id", operatorID,
				"client_id", clientID)
			t.retract(ctx, operatorID, messageID)
			continue
		}
		sent = append(sent, inv)
	}

	t.logger.Debug("broadcast invitations", "client_id", clientID, "sent", len(sent))
	return sent, nil
}

// Invalidate removes all invitation rows for the client except the winning
// operator's (pass 0 to remove all) and returns them so the caller can
// retract their transport messages once outside the critical section.
func (t *Tracker) Invalidate(ctx context.Context, clientID store.UserID, exceptOperatorID store.UserID) ([]*store.Invitation, error) {
	invs, err := t.store.DeleteInvitationsForClient(ctx, clientID, exceptOperatorID)
	if err != nil {
		return nil, fmt.Errorf("invalidating invitations: %w", err)
	}
	return invs, nil
}

// DropForOperator removes all invitation rows addressed to an operator (used
// when the operator stops being idle) and returns them for retraction.
func (t *Tracker) DropForOperator(ctx context.Context, operatorID store.UserID) ([]*store.Invitation, error) {
	invs, err := t.store.DeleteInvitationsForOperator(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("dropping operator invitations: %w", err)
	}
	return invs, nil
}

// Remove deletes a single invitation row. Idempotent: removing an invitation
// that no longer exists returns nil, nil so duplicate declines are no-ops.
func (t *Tracker) Remove(ctx context.Context, operatorID, clientID store.UserID) (*store.Invitation, error) {
	inv, err := t.store.DeleteInvitation(ctx, operatorID, clientID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("removing invitation: %w", err)
	}
	return inv, nil
}

// Retract pulls back the transport messages of removed invitations.
// Best-effort: delivery failures are logged, the pairing already committed.
func (t *Tracker) Retract(ctx context.Context, invs []*store.Invitation) {
	for _, inv := range invs {
		t.retract(ctx, inv.OperatorID, inv.MessageID)
	}
}

func (t *Tracker) retract(ctx context.Context, userID store.UserID, messageID string) {
	if err := t.messenger.Retract(ctx, userID, messageID); err != nil {
		t.logger.Warn("failed to retract invitation message",
			"user_id", userID,
			"message_id", messageID,
			"error", err)
	}
}
