// ABOUTME: Message Mirror forwards messages between the two sides of an active pairing
// ABOUTME: Records each forward once and answers correlation lookups from either side

package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/helpline-gateway/internal/store"
)

// Mirror errors
var (
	// ErrNoActiveConversation means the sender has no live pairing; the
	// message is not delivered
	ErrNoActiveConversation = errors.New("no active conversation")

	// ErrNotFound means a correlation lookup missed
	ErrNotFound = errors.New("message correlation not found")
)

// Messenger defines what the mirror needs from the transport layer.
// replyToMessageID, when non-empty, is a message id in the receiver's own
// chat context that the delivered copy should reference.
type Messenger interface {
	Send(ctx context.Context, userID store.UserID, content string, replyToMessageID string) (string, error)
}

// MirrorStore defines what the mirror needs from storage
type MirrorStore interface {
	GetConversationByParticipant(ctx context.Context, userID store.UserID) (*store.Conversation, error)
	SaveMirroredMessage(ctx context.Context, msg *store.MirroredMessage) error
	CorrelateMessage(ctx context.Context, userID store.UserID, localMessageID string) (store.UserID, string, error)
}

// Mirror keeps the two independent message streams of a pairing correlated.
// It is the only component that writes MirroredMessage rows.
type Mirror struct {
	store     MirrorStore
	messenger Messenger
	logger    *slog.Logger
}

// New creates a Mirror. Pass nil logger for default.
func New(mirrorStore MirrorStore, messenger Messenger, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		store:     mirrorStore,
		messenger: messenger,
		logger:    logger.With("component", "mirror"),
	}
}

// ForwardRequest describes one message to mirror to the sender's counterpart
type ForwardRequest struct {
	SenderID        store.UserID
	SenderMessageID string // the message's id in the sender's own chat context
	Content         string

	// ReplyToMessageID, optional, is the sender-side id of a message being
	// replied to. It is resolved to the counterpart's copy before delivery;
	// on a miss the reply context is dropped and the message still delivered.
	ReplyToMessageID string
}

// Forward delivers the message to the sender's conversation counterpart and
// records the correlation between the sender's copy and the delivered copy.
// Returns the receiver-side message id. Fails with ErrNoActiveConversation
// if the sender is not in an active pairing.
func (m *Mirror) Forward(ctx context.Context, req *ForwardRequest) (string, error) {
	conv, err := m.store.GetConversationByParticipant(ctx, req.SenderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNoActiveConversation
		}
		return "", fmt.Errorf("looking up conversation: %w", err)
	}
	if !conv.Active() {
		return "", ErrNoActiveConversation
	}
	receiverID := conv.Counterpart(req.SenderID)

	replyTo := ""
	if req.ReplyToMessageID != "" {
		otherID, otherMessageID, err := m.store.CorrelateMessage(ctx, req.SenderID, req.ReplyToMessageID)
		switch {
		case errors.Is(err, store.ErrNotFound), err == nil && otherID != receiverID:
			// The replied-to message belongs to an earlier, finished
			// pairing. Deliver without the reply context.
			m.logger.Debug("reply context dropped",
				"sender_id", req.SenderID,
				"reply_to", req.ReplyToMessageID)
		case err != nil:
			return "", fmt.Errorf("correlating reply: %w", err)
		default:
			replyTo = otherMessageID
		}
	}

	receiverMessageID, err := m.messenger.Send(ctx, receiverID, req.Content, replyTo)
	if err != nil {
		return "", fmt.Errorf("delivering message: %w", err)
	}

	record := &store.MirroredMessage{
		ID:                uuid.New().String(),
		SenderID:          req.SenderID,
		SenderMessageID:   req.SenderMessageID,
		ReceiverID:        receiverID,
		ReceiverMessageID: receiverMessageID,
		CreatedAt:         time.Now(),
	}
	if err := m.store.SaveMirroredMessage(ctx, record); err != nil {
		return "", fmt.Errorf("recording mirrored message: %w", err)
	}

	m.logger.Debug("message mirrored",
		"sender_id", req.SenderID,
		"receiver_id", receiverID,
		"receiver_message_id", receiverMessageID)
	return receiverMessageID, nil
}

// Correlate resolves a message id local to one participant into the
// counterpart's user id and message id, from either side of the forward
// record. Fails with ErrNotFound on a miss.
func (m *Mirror) Correlate(ctx context.Context, userID store.UserID, localMessageID string) (store.UserID, string, error) {
	otherID, otherMessageID, err := m.store.CorrelateMessage(ctx, userID, localMessageID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, "", ErrNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("correlating message: %w", err)
	}
	return otherID, otherMessageID, nil
}
