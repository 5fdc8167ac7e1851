// ABOUTME: Conversation Router: the state machine moving users between idle, waiting, and active
// ABOUTME: Owns request lifecycle and the atomic acceptance protocol among racing operators

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/helpline-gateway/internal/store"
)

// Router errors
var (
	// ErrAlreadyActiveOrWaiting means the client already has a waiting or
	// active conversation request
	ErrAlreadyActiveOrWaiting = errors.New("already waiting or in a conversation")

	// ErrInvitationStale means the invitation is gone or the request has
	// moved on — typically another operator already took the conversation
	ErrInvitationStale = errors.New("invitation is no longer valid")

	// ErrNotActive means the user has no active conversation to end
	ErrNotActive = errors.New("no active conversation")

	// ErrConversationActive means a waiting-only operation hit an active
	// conversation (use EndConversation instead)
	ErrConversationActive = errors.New("conversation already active")
)

// State is a user's derived conversation state. It is never stored: it follows
// from the existence and shape of the user's conversation row.
type State string

const (
	StateIdle    State = "idle"
	StateWaiting State = "waiting"
	StateActive  State = "active"
)

// Status describes a user's current state. CounterpartID is set only for
// StateActive.
type Status struct {
	State         State
	CounterpartID store.UserID
}

// ConversationStore defines what the router needs from storage
type ConversationStore interface {
	CreateConversationRequest(ctx context.Context, clientID store.UserID) error
	AssignOperator(ctx context.Context, clientID, operatorID store.UserID) (bool, error)
	GetConversation(ctx context.Context, clientID store.UserID) (*store.Conversation, error)
	GetConversationByParticipant(ctx context.Context, userID store.UserID) (*store.Conversation, error)
	DeleteConversation(ctx context.Context, clientID store.UserID) (*store.Conversation, error)
	GetInvitation(ctx context.Context, operatorID, clientID store.UserID) (*store.Invitation, error)
	ListWaitingClients(ctx context.Context) ([]store.UserID, error)
	EligibleOperators(ctx context.Context, clientID store.UserID) ([]store.UserID, error)
}

// Capabilities defines what the router reads from the user registry
type Capabilities interface {
	Get(ctx context.Context, id store.UserID) (*store.User, error)
	IsOperatorCapable(ctx context.Context, id store.UserID) (bool, error)
}

// InvitationTracker defines what the router drives on the invitation side.
// Methods returning invitations leave transport retraction to a later
// Retract call so no transport I/O happens inside the critical section.
type InvitationTracker interface {
	Broadcast(ctx context.Context, clientID store.UserID, operatorIDs []store.UserID) ([]*store.Invitation, error)
	Invalidate(ctx context.Context, clientID store.UserID, exceptOperatorID store.UserID) ([]*store.Invitation, error)
	DropForOperator(ctx context.Context, operatorID store.UserID) ([]*store.Invitation, error)
	Remove(ctx context.Context, operatorID, clientID store.UserID) (*store.Invitation, error)
	Retract(ctx context.Context, invs []*store.Invitation)
}

// Router is the only component allowed to start and end pairings. All state
// transitions for a given client's request and invitation set are serialized
// through a per-client critical section; the store's conditional update is
// the commit point that resolves acceptance races.
type Router struct {
	store    ConversationStore
	registry Capabilities
	tracker  InvitationTracker
	locks    *clientLocks
	logger   *slog.Logger
}

// New creates a Router. Pass nil logger for default.
func New(convStore ConversationStore, registry Capabilities, tracker InvitationTracker, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:    convStore,
		registry: registry,
		tracker:  tracker,
		locks:    newClientLocks(),
		logger:   logger.With("component", "router"),
	}
}

// RequestConversation creates a waiting request for the client and invites
// every eligible idle operator. Returns the number of invitations sent; zero
// means no operator is currently free and the client stays in the queue until
// one becomes idle. Fails with ErrAlreadyActiveOrWaiting if the client
// already has a request in either role.
func (r *Router) RequestConversation(ctx context.Context, clientID store.UserID) (int, error) {
	if _, err := r.registry.Get(ctx, clientID); err != nil {
		return 0, err
	}

	unlock := r.locks.Lock(clientID)
	if _, err := r.store.GetConversationByParticipant(ctx, clientID); err == nil {
		unlock()
		return 0, ErrAlreadyActiveOrWaiting
	} else if !errors.Is(err, store.ErrNotFound) {
		unlock()
		return 0, fmt.Errorf("checking current conversation: %w", err)
	}

	if err := r.store.CreateConversationRequest(ctx, clientID); err != nil {
		unlock()
		if errors.Is(err, store.ErrConversationExists) {
			return 0, ErrAlreadyActiveOrWaiting
		}
		return 0, fmt.Errorf("creating request: %w", err)
	}
	unlock()

	operators, err := r.store.EligibleOperators(ctx, clientID)
	if err != nil {
		return 0, fmt.Errorf("computing eligible operators: %w", err)
	}

	sent, err := r.tracker.Broadcast(ctx, clientID, operators)
	if err != nil {
		r.logger.Error("invitation broadcast incomplete", "client_id", clientID, "error", err)
	}

	if !r.confirmWaiting(ctx, clientID) {
		// The client cancelled while invitations were going out.
		return 0, nil
	}

	r.logger.Info("conversation requested",
		"client_id", clientID,
		"invited", len(sent))
	return len(sent), nil
}

// AcceptInvitation is the acceptance commit point. Preconditions, in order:
// the invitation still exists, the request is still waiting, the operator is
// still idle (also not a "crying" operator-capable client) and still
// operator-capable. All are checked inside the client's critical section and
// sealed by the store's conditional update; a loser of the race observes
// ErrInvitationStale. Returns the now-active conversation.
func (r *Router) AcceptInvitation(ctx context.Context, operatorID, clientID store.UserID) (*store.Conversation, error) {
	unlock := r.locks.Lock(clientID)

	if _, err := r.store.GetInvitation(ctx, operatorID, clientID); err != nil {
		unlock()
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvitationStale
		}
		return nil, fmt.Errorf("checking invitation: %w", err)
	}

	conv, err := r.store.GetConversation(ctx, clientID)
	if err != nil {
		unlock()
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvitationStale
		}
		return nil, fmt.Errorf("checking request: %w", err)
	}
	if conv.Active() {
		unlock()
		return nil, ErrInvitationStale
	}

	if _, err := r.store.GetConversationByParticipant(ctx, operatorID); err == nil {
		// Operator is busy, or crying: acting as a client elsewhere.
		unlock()
		return nil, ErrInvitationStale
	} else if !errors.Is(err, store.ErrNotFound) {
		unlock()
		return nil, fmt.Errorf("checking operator state: %w", err)
	}

	capable, err := r.registry.IsOperatorCapable(ctx, operatorID)
	if err != nil {
		unlock()
		return nil, err
	}
	if !capable {
		unlock()
		return nil, ErrInvitationStale
	}

	promoted, err := r.store.AssignOperator(ctx, clientID, operatorID)
	if err != nil {
		unlock()
		if errors.Is(err, store.ErrOperatorBusy) {
			return nil, ErrInvitationStale
		}
		return nil, fmt.Errorf("promoting request: %w", err)
	}
	if !promoted {
		unlock()
		return nil, ErrInvitationStale
	}

	// The pairing is committed. Everything below is cleanup: failures are
	// logged, never rolled back.
	var obsolete []*store.Invitation
	if losers, err := r.tracker.Invalidate(ctx, clientID, operatorID); err != nil {
		r.logger.Error("failed to invalidate losing invitations", "client_id", clientID, "error", err)
	} else {
		obsolete = append(obsolete, losers...)
	}
	if winner, err := r.tracker.Remove(ctx, operatorID, clientID); err == nil && winner != nil {
		obsolete = append(obsolete, winner)
	}
	// The operator is no longer idle; invitations addressed to them for
	// other waiting clients are obsolete too. Same for the client, who may
	// have held invitations as an operator from before requesting.
	for _, busy := range []store.UserID{operatorID, clientID} {
		if dropped, err := r.tracker.DropForOperator(ctx, busy); err == nil {
			obsolete = append(obsolete, dropped...)
		}
	}

	active, err := r.store.GetConversation(ctx, clientID)
	unlock()

	r.tracker.Retract(ctx, obsolete)

	if err != nil {
		return nil, fmt.Errorf("reloading conversation: %w", err)
	}

	r.logger.Info("invitation accepted",
		"client_id", clientID,
		"operator_id", operatorID,
		"retracted", len(obsolete))
	return active, nil
}

// DeclineInvitation removes one pending invitation. Idempotent: declining an
// invitation that is already gone is a no-op, so duplicate external triggers
// (including the expiry sweeper) are safe.
func (r *Router) DeclineInvitation(ctx context.Context, operatorID, clientID store.UserID) error {
	unlock := r.locks.Lock(clientID)
	inv, err := r.tracker.Remove(ctx, operatorID, clientID)
	unlock()
	if err != nil {
		return err
	}
	if inv != nil {
		r.tracker.Retract(ctx, []*store.Invitation{inv})
		r.logger.Debug("invitation declined", "operator_id", operatorID, "client_id", clientID)
	}
	return nil
}

// EndConversation ends the active conversation the user takes part in, in
// either role. Both participants revert to idle; both are then re-offered to
// the waiting queue if operator-capable. Returns the ended conversation so
// the caller can notify the counterpart. Fails with ErrNotActive if the user
// has no active pairing.
func (r *Router) EndConversation(ctx context.Context, userID store.UserID) (*store.Conversation, error) {
	conv, err := r.store.GetConversationByParticipant(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotActive
		}
		return nil, fmt.Errorf("looking up conversation: %w", err)
	}
	if !conv.Active() {
		return nil, ErrNotActive
	}

	clientID := conv.ClientID
	unlock := r.locks.Lock(clientID)

	// Re-verify under the lock: the conversation may have ended, or even
	// been replaced by a different pairing, while we were looking it up.
	current, err := r.store.GetConversation(ctx, clientID)
	if err != nil {
		unlock()
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotActive
		}
		return nil, fmt.Errorf("re-checking conversation: %w", err)
	}
	if !current.Active() || (current.ClientID != userID && *current.OperatorID != userID) {
		unlock()
		return nil, ErrNotActive
	}

	ended, err := r.store.DeleteConversation(ctx, clientID)
	unlock()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotActive
		}
		return nil, fmt.Errorf("ending conversation: %w", err)
	}

	r.logger.Info("conversation ended",
		"client_id", ended.ClientID,
		"operator_id", *ended.OperatorID,
		"ended_by", userID)

	// Both participants just went idle: re-offer them to waiting clients.
	if err := r.OperatorAvailable(ctx, *ended.OperatorID); err != nil {
		r.logger.Warn("re-broadcast for freed operator failed", "operator_id", *ended.OperatorID, "error", err)
	}
	if err := r.OperatorAvailable(ctx, ended.ClientID); err != nil {
		r.logger.Warn("re-broadcast for freed client failed", "user_id", ended.ClientID, "error", err)
	}

	return ended, nil
}

// CancelWaiting withdraws a client's waiting request and all its pending
// invitations. Cancelling when no request exists is a no-op; cancelling an
// active conversation fails with ErrConversationActive.
func (r *Router) CancelWaiting(ctx context.Context, clientID store.UserID) error {
	unlock := r.locks.Lock(clientID)

	conv, err := r.store.GetConversation(ctx, clientID)
	if err != nil {
		unlock()
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("looking up request: %w", err)
	}
	if conv.Active() {
		unlock()
		return ErrConversationActive
	}

	if _, err := r.store.DeleteConversation(ctx, clientID); err != nil && !errors.Is(err, store.ErrNotFound) {
		unlock()
		return fmt.Errorf("cancelling request: %w", err)
	}
	invs, err := r.tracker.Invalidate(ctx, clientID, 0)
	unlock()
	if err != nil {
		r.logger.Error("failed to invalidate invitations on cancel", "client_id", clientID, "error", err)
	}

	r.tracker.Retract(ctx, invs)

	r.logger.Info("waiting request cancelled", "client_id", clientID, "retracted", len(invs))
	return nil
}

// OperatorAvailable re-evaluates all waiting requests for a user who just
// became idle, sending them an invitation for every client they are eligible
// for. This is the re-broadcast trigger of the routing policy: waiting
// clients with zero invitations get another chance whenever an operator
// frees up, with no timer involved.
func (r *Router) OperatorAvailable(ctx context.Context, operatorID store.UserID) error {
	capable, err := r.registry.IsOperatorCapable(ctx, operatorID)
	if err != nil {
		return err
	}
	if !capable {
		return nil
	}

	waiting, err := r.store.ListWaitingClients(ctx)
	if err != nil {
		return fmt.Errorf("listing waiting clients: %w", err)
	}

	for _, clientID := range waiting {
		if clientID == operatorID {
			continue
		}
		eligible, err := r.store.EligibleOperators(ctx, clientID)
		if err != nil {
			return fmt.Errorf("computing eligible operators: %w", err)
		}
		if !containsUser(eligible, operatorID) {
			continue
		}

		if _, err := r.tracker.Broadcast(ctx, clientID, []store.UserID{operatorID}); err != nil {
			r.logger.Warn("re-broadcast failed", "client_id", clientID, "operator_id", operatorID, "error", err)
			continue
		}
		r.confirmWaiting(ctx, clientID)
	}

	return nil
}

// StatusOf reports the user's derived state. "Invited" is informational on
// the operator side and intentionally not part of the status model.
func (r *Router) StatusOf(ctx context.Context, userID store.UserID) (*Status, error) {
	if _, err := r.registry.Get(ctx, userID); err != nil {
		return nil, err
	}

	conv, err := r.store.GetConversationByParticipant(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &Status{State: StateIdle}, nil
		}
		return nil, fmt.Errorf("looking up conversation: %w", err)
	}
	if !conv.Active() {
		return &Status{State: StateWaiting}, nil
	}
	return &Status{State: StateActive, CounterpartID: conv.Counterpart(userID)}, nil
}

// WaitingClients lists clients whose requests have not been accepted yet,
// oldest first.
func (r *Router) WaitingClients(ctx context.Context) ([]store.UserID, error) {
	return r.store.ListWaitingClients(ctx)
}

// confirmWaiting checks, inside the client's critical section, that a request
// still exists after invitations were sent outside the lock. Invitations
// recorded after the request left the waiting state are swept up and
// retracted: the client may have cancelled mid-broadcast, or an operator may
// have accepted before the last sends finished. Returns true if the request
// still exists in either state.
func (r *Router) confirmWaiting(ctx context.Context, clientID store.UserID) bool {
	unlock := r.locks.Lock(clientID)
	conv, err := r.store.GetConversation(ctx, clientID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			unlock()
			return false
		}
		stale, invErr := r.tracker.Invalidate(ctx, clientID, 0)
		unlock()
		if invErr != nil {
			r.logger.Error("failed to sweep invitations for cancelled request", "client_id", clientID, "error", invErr)
			return false
		}
		r.tracker.Retract(ctx, stale)
		return false
	}

	if conv.Active() {
		stale, invErr := r.tracker.Invalidate(ctx, clientID, *conv.OperatorID)
		unlock()
		if invErr != nil {
			r.logger.Error("failed to sweep invitations for accepted request", "client_id", clientID, "error", invErr)
			return true
		}
		r.tracker.Retract(ctx, stale)
		return true
	}

	unlock()
	return true
}

func containsUser(ids []store.UserID, id store.UserID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
