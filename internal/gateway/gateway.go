// ABOUTME: Gateway is the WebSocket transport and command layer over the routing core
// ABOUTME: Implements the Messenger contract consumed by the invitation tracker and mirror

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/helpline-gateway/internal/auth"
	"github.com/2389/helpline-gateway/internal/dedupe"
	"github.com/2389/helpline-gateway/internal/mirror"
	"github.com/2389/helpline-gateway/internal/registry"
	"github.com/2389/helpline-gateway/internal/router"
	"github.com/2389/helpline-gateway/internal/store"
)

// ErrRecipientOffline is returned by Send when the target user has no live
// session. Delivery through the gateway is best-effort by contract.
var ErrRecipientOffline = errors.New("recipient is not connected")

const (
	// sessionBufferSize is the outbound frame buffer per session
	sessionBufferSize = 64

	// dedupeTTL and dedupeMaxSize bound the inbound message dedupe cache
	dedupeTTL     = 10 * time.Minute
	dedupeMaxSize = 10000
)

// Gateway terminates WebSocket sessions, parses command frames, and calls
// into the routing core. It also implements message delivery and retraction
// for connected users, which makes it the Messenger collaborator of the
// invitation tracker and the message mirror.
type Gateway struct {
	registry *registry.Registry
	verifier auth.TokenVerifier
	dedupe   *dedupe.Cache
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// Bound after construction to break the constructor cycle with the
	// tracker and mirror, which need the gateway as their Messenger.
	router *router.Router
	mirror *mirror.Mirror

	mu       sync.RWMutex
	sessions map[store.UserID]*session
}

// New creates a Gateway. Call Bind before serving.
func New(reg *registry.Registry, verifier auth.TokenVerifier, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		registry: reg,
		verifier: verifier,
		dedupe:   dedupe.New(dedupeTTL, dedupeMaxSize),
		logger:   logger.With("component", "gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sessions: make(map[store.UserID]*session),
	}
}

// Bind attaches the routing core once it has been constructed with this
// gateway as its Messenger.
func (g *Gateway) Bind(rt *router.Router, mr *mirror.Mirror) {
	g.router = rt
	g.mirror = mr
}

// Handler returns the HTTP handler serving the WebSocket endpoint and the
// admin API.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", g.handleWS)
	mux.HandleFunc("POST /api/users/{id}/role", g.requireAdmin(g.handleSetRole))
	mux.HandleFunc("POST /api/users/{id}/admin", g.requireAdmin(g.handleSetAdmin))
	mux.HandleFunc("GET /api/users/{id}/status", g.requireAdmin(g.handleStatus))
	mux.HandleFunc("GET /api/waiting", g.requireAdmin(g.handleListWaiting))
	return mux
}

// Close shuts down all live sessions and the dedupe cache.
func (g *Gateway) Close() {
	g.mu.Lock()
	sessions := make([]*session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	g.dedupe.Close()
	g.logger.Info("gateway closed")
}

// Send delivers a message frame to a connected user and returns the
// transport message id assigned to the delivered copy.
func (g *Gateway) Send(ctx context.Context, userID store.UserID, content string, replyToMessageID string) (string, error) {
	messageID := uuid.New().String()
	frame := &Frame{
		Type:    FrameMessage,
		ID:      messageID,
		Text:    content,
		ReplyTo: replyToMessageID,
	}
	if err := g.deliver(userID, frame); err != nil {
		return "", err
	}
	return messageID, nil
}

// SendInvitation delivers an invitation frame carrying the waiting client's
// id, so the operator's front end can render an accept action.
func (g *Gateway) SendInvitation(ctx context.Context, operatorID, clientID store.UserID, text string) (string, error) {
	messageID := uuid.New().String()
	frame := &Frame{
		Type:     FrameInvitation,
		ID:       messageID,
		ClientID: int64(clientID),
		Text:     text,
	}
	if err := g.deliver(operatorID, frame); err != nil {
		return "", err
	}
	return messageID, nil
}

// Retract asks a user's front end to remove a previously delivered message.
// Best-effort: an offline user simply never sees the stale message again.
func (g *Gateway) Retract(ctx context.Context, userID store.UserID, messageID string) error {
	return g.deliver(userID, &Frame{Type: FrameRetract, ID: messageID})
}

// deliver enqueues a frame on the user's session.
func (g *Gateway) deliver(userID store.UserID, frame *Frame) error {
	g.mu.RLock()
	s, ok := g.sessions[userID]
	g.mu.RUnlock()
	if !ok {
		return ErrRecipientOffline
	}
	return s.enqueue(frame)
}

// handleWS upgrades the connection and runs the session. The handle query
// parameter is the user's external chat identity; registration is idempotent.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	handle := r.URL.Query().Get("handle")
	if handle == "" {
		http.Error(w, "handle query parameter is required", http.StatusBadRequest)
		return
	}

	userID, err := g.registry.Register(r.Context(), handle)
	if err != nil {
		g.logger.Error("registration failed", "handle", handle, "error", err)
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "handle", handle, "error", err)
		return
	}

	s := newSession(g, userID, handle, conn)

	g.mu.Lock()
	if old, ok := g.sessions[userID]; ok {
		// One live session per user: a reconnect replaces the old one.
		old.close()
	}
	g.sessions[userID] = s
	g.mu.Unlock()

	g.logger.Info("session opened", "user_id", userID, "handle", handle)
	s.sendWelcome()
	s.run()

	g.mu.Lock()
	if g.sessions[userID] == s {
		delete(g.sessions, userID)
	}
	g.mu.Unlock()
	g.logger.Info("session closed", "user_id", userID, "handle", handle)
}

// notifyAdmins sends a notice to every connected admin. Failures are
// suppressed: losing a notification must never affect the operation that
// triggered it.
func (g *Gateway) notifyAdmins(ctx context.Context, text string) {
	ids, err := g.registry.AdminIDs(ctx)
	if err != nil {
		g.logger.Warn("could not list admins for notification", "error", err)
		return
	}
	for _, id := range ids {
		if err := g.deliver(id, &Frame{Type: FrameNotice, Text: text}); err != nil && !errors.Is(err, ErrRecipientOffline) {
			g.logger.Warn("admin notification failed", "admin_id", id, "error", err)
		}
	}
}

// RunInvitationSweeper periodically declines invitations older than ttl on
// behalf of their operators. The router defines the decline operation; this
// loop is the external scheduler that triggers it. Blocks until ctx is done.
func (g *Gateway) RunInvitationSweeper(ctx context.Context, st store.Store, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()

	g.logger.Info("invitation sweeper started", "ttl", ttl)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := st.ListInvitationsOlderThan(ctx, time.Now().Add(-ttl))
			if err != nil {
				g.logger.Error("listing expired invitations failed", "error", err)
				continue
			}
			for _, inv := range expired {
				if err := g.router.DeclineInvitation(ctx, inv.OperatorID, inv.ClientID); err != nil {
					g.logger.Warn("expiring invitation failed",
						"operator_id", inv.OperatorID,
						"client_id", inv.ClientID,
						"error", err)
				}
			}
			if len(expired) > 0 {
				g.logger.Debug("expired invitations", "count", len(expired))
			}
		}
	}
}

// userLabel formats the anonymous label shown to counterparts. Only local
// ids cross the pairing boundary, never handles.
func userLabel(id store.UserID) string {
	return fmt.Sprintf("user #%d", id)
}
