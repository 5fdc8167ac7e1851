// ABOUTME: User Registry over the durable store: registration and capability flags
// ABOUTME: Role and admin are static capabilities, never derived from live conversation state

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/helpline-gateway/internal/store"
)

// ErrUnknownUser is returned when an operation references a user id that was
// never registered
var ErrUnknownUser = errors.New("unknown user")

// UserStore defines what the registry needs from storage
type UserStore interface {
	CreateUser(ctx context.Context, handle string) (*store.User, error)
	GetUser(ctx context.Context, id store.UserID) (*store.User, error)
	GetUserByHandle(ctx context.Context, handle string) (*store.User, error)
	SetOperator(ctx context.Context, id store.UserID, operator bool) error
	SetAdmin(ctx context.Context, id store.UserID, admin bool) error
	ListAdmins(ctx context.Context) ([]*store.User, error)
}

// Registry owns the process-wide user reference data. The router and gateway
// read capabilities only through its query contract; mutations happen through
// the explicit Set entry points.
type Registry struct {
	store  UserStore
	logger *slog.Logger
}

// New creates a Registry. Pass nil logger for default.
func New(userStore UserStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  userStore,
		logger: logger.With("component", "registry"),
	}
}

// Register records a user by external chat handle and returns the local id.
// Idempotent: a known handle returns its existing id.
func (r *Registry) Register(ctx context.Context, handle string) (store.UserID, error) {
	if handle == "" {
		return 0, fmt.Errorf("handle is required")
	}
	user, err := r.store.CreateUser(ctx, handle)
	if err != nil {
		return 0, fmt.Errorf("registering user: %w", err)
	}
	return user.ID, nil
}

// Get retrieves a user by local id. Returns ErrUnknownUser for ids never
// registered.
func (r *Registry) Get(ctx context.Context, id store.UserID) (*store.User, error) {
	user, err := r.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	return user, nil
}

// Lookup retrieves a user by external handle. Returns ErrUnknownUser if the
// handle is not registered.
func (r *Registry) Lookup(ctx context.Context, handle string) (*store.User, error) {
	user, err := r.store.GetUserByHandle(ctx, handle)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("looking up handle: %w", err)
	}
	return user, nil
}

// SetOperator grants or revokes the operator capability.
func (r *Registry) SetOperator(ctx context.Context, id store.UserID, operator bool) error {
	err := r.store.SetOperator(ctx, id, operator)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnknownUser
	}
	if err != nil {
		return fmt.Errorf("setting operator flag: %w", err)
	}
	r.logger.Info("operator capability changed", "user_id", id, "operator", operator)
	return nil
}

// SetAdmin grants or revokes the admin flag.
func (r *Registry) SetAdmin(ctx context.Context, id store.UserID, admin bool) error {
	err := r.store.SetAdmin(ctx, id, admin)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnknownUser
	}
	if err != nil {
		return fmt.Errorf("setting admin flag: %w", err)
	}
	r.logger.Info("admin flag changed", "user_id", id, "admin", admin)
	return nil
}

// IsOperatorCapable reports whether the user may act as an operator. This is
// a permission check only; the user may currently be a client in some
// conversation.
func (r *Registry) IsOperatorCapable(ctx context.Context, id store.UserID) (bool, error) {
	user, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return user.Operator, nil
}

// IsAdmin reports whether the user has the admin flag.
func (r *Registry) IsAdmin(ctx context.Context, id store.UserID) (bool, error) {
	user, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return user.Admin, nil
}

// AdminIDs returns the ids of all admin users, for notification fan-out.
func (r *Registry) AdminIDs(ctx context.Context) ([]store.UserID, error) {
	admins, err := r.store.ListAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing admins: %w", err)
	}
	ids := make([]store.UserID, 0, len(admins))
	for _, admin := range admins {
		ids = append(ids, admin.ID)
	}
	return ids, nil
}
