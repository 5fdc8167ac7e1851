// ABOUTME: Store interface and data types for helpline-gateway persistence
// ABOUTME: Defines User, Conversation, Invitation, MirroredMessage and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConversationExists is returned when a client already has a waiting or
// active conversation row
var ErrConversationExists = errors.New("conversation already exists")

// ErrOperatorBusy is returned when an operator assignment would give the
// operator a second active conversation
var ErrOperatorBusy = errors.New("operator already in a conversation")

// UserID is the locally assigned sequential identifier of a user.
type UserID int64

// User is a known chat participant. Operator and Admin are capabilities,
// not live states: an operator-capable user may currently be a client.
type User struct {
	ID        UserID
	Handle    string // external chat identity
	Operator  bool
	Admin     bool
	CreatedAt time.Time
}

// Conversation is one client's conversation request. OperatorID is nil while
// the client is waiting for an operator and set once an invitation is
// accepted. There is at most one row per client and at most one row per
// operator at any time.
type Conversation struct {
	ClientID   UserID
	OperatorID *UserID
	CreatedAt  time.Time
	AcceptedAt *time.Time
}

// Active reports whether the conversation has been accepted by an operator.
func (c *Conversation) Active() bool {
	return c.OperatorID != nil
}

// Counterpart returns the other participant of an active conversation.
func (c *Conversation) Counterpart(userID UserID) UserID {
	if c.OperatorID != nil && *c.OperatorID != userID {
		return *c.OperatorID
	}
	return c.ClientID
}

// Invitation is a pending offer for a specific operator to pick up a specific
// waiting client. MessageID is the transport message carrying the offer, kept
// so the message can be retracted when the invitation becomes obsolete.
type Invitation struct {
	OperatorID UserID
	ClientID   UserID
	MessageID  string
	CreatedAt  time.Time
}

// MirroredMessage correlates a message sent by one conversation participant
// with the copy delivered to the other. One row is stored per forward event;
// correlation lookups work from either side of the same record.
type MirroredMessage struct {
	ID                string
	SenderID          UserID
	SenderMessageID   string
	ReceiverID        UserID
	ReceiverMessageID string
	CreatedAt         time.Time
}

// Store defines the interface for helpline-gateway persistence
type Store interface {
	// Users
	CreateUser(ctx context.Context, handle string) (*User, error)
	GetUser(ctx context.Context, id UserID) (*User, error)
	GetUserByHandle(ctx context.Context, handle string) (*User, error)
	SetOperator(ctx context.Context, id UserID, operator bool) error
	SetAdmin(ctx context.Context, id UserID, admin bool) error
	ListAdmins(ctx context.Context) ([]*User, error)

	// Conversations
	CreateConversationRequest(ctx context.Context, clientID UserID) error
	AssignOperator(ctx context.Context, clientID, operatorID UserID) (bool, error)
	GetConversation(ctx context.Context, clientID UserID) (*Conversation, error)
	GetConversationByParticipant(ctx context.Context, userID UserID) (*Conversation, error)
	DeleteConversation(ctx context.Context, clientID UserID) (*Conversation, error)
	ListWaitingClients(ctx context.Context) ([]UserID, error)
	EligibleOperators(ctx context.Context, clientID UserID) ([]UserID, error)

	// Invitations
	CreateInvitation(ctx context.Context, inv *Invitation) (bool, error)
	GetInvitation(ctx context.Context, operatorID, clientID UserID) (*Invitation, error)
	DeleteInvitation(ctx context.Context, operatorID, clientID UserID) (*Invitation, error)
	DeleteInvitationsForClient(ctx context.Context, clientID UserID, exceptOperatorID UserID) ([]*Invitation, error)
	DeleteInvitationsForOperator(ctx context.Context, operatorID UserID) ([]*Invitation, error)
	ListInvitationsOlderThan(ctx context.Context, cutoff time.Time) ([]*Invitation, error)

	// Mirrored messages
	SaveMirroredMessage(ctx context.Context, msg *MirroredMessage) error
	CorrelateMessage(ctx context.Context, userID UserID, localMessageID string) (UserID, string, error)

	// Close releases any resources held by the store
	Close() error
}
