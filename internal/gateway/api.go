// ABOUTME: Admin HTTP API: role management, user status, and waiting queue
// ABOUTME: All endpoints require a JWT for an admin handle via Authorization: Bearer

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/helpline-gateway/internal/registry"
	"github.com/2389/helpline-gateway/internal/store"
)

type roleRequest struct {
	Enabled bool `json:"enabled"`
}

type statusResponse struct {
	UserID        int64  `json:"user_id"`
	Handle        string `json:"handle"`
	Operator      bool   `json:"operator"`
	Admin         bool   `json:"admin"`
	State         string `json:"state"`
	CounterpartID int64  `json:"counterpart_id,omitempty"`
}

type waitingResponse struct {
	ClientIDs []int64 `json:"client_ids"`
}

// requireAdmin wraps a handler with bearer-token authentication. The token
// subject must resolve to a registered user with the admin flag set.
func (g *Gateway) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			writeJSONError(w, "missing or malformed authorization header", http.StatusUnauthorized)
			return
		}

		handle, err := g.verifier.Verify(token)
		if err != nil {
			writeJSONError(w, "invalid token", http.StatusUnauthorized)
			return
		}

		user, err := g.registry.Lookup(r.Context(), handle)
		if err != nil {
			if errors.Is(err, registry.ErrUnknownUser) {
				writeJSONError(w, "unknown user", http.StatusUnauthorized)
				return
			}
			g.logger.Error("admin lookup failed", "handle", handle, "error", err)
			writeJSONError(w, "lookup failed", http.StatusInternalServerError)
			return
		}
		if !user.Admin {
			writeJSONError(w, "admin access required", http.StatusForbidden)
			return
		}

		next(w, r)
	}
}

// handleSetRole toggles a user's operator capability. Granting the role
// immediately makes the operator available to waiting clients.
func (g *Gateway) handleSetRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := g.registry.SetOperator(r.Context(), userID, req.Enabled); err != nil {
		if errors.Is(err, registry.ErrUnknownUser) {
			writeJSONError(w, "user not found", http.StatusNotFound)
			return
		}
		g.logger.Error("setting operator role failed", "user_id", userID, "error", err)
		writeJSONError(w, "update failed", http.StatusInternalServerError)
		return
	}

	if req.Enabled {
		if err := g.router.OperatorAvailable(r.Context(), userID); err != nil {
			g.logger.Error("broadcasting to new operator failed", "user_id", userID, "error", err)
		}
	}

	writeJSON(w, map[string]bool{"operator": req.Enabled})
}

func (g *Gateway) handleSetAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := g.registry.SetAdmin(r.Context(), userID, req.Enabled); err != nil {
		if errors.Is(err, registry.ErrUnknownUser) {
			writeJSONError(w, "user not found", http.StatusNotFound)
			return
		}
		g.logger.Error("setting admin flag failed", "user_id", userID, "error", err)
		writeJSONError(w, "update failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]bool{"admin": req.Enabled})
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	user, err := g.registry.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownUser) {
			writeJSONError(w, "user not found", http.StatusNotFound)
			return
		}
		g.logger.Error("user lookup failed", "user_id", userID, "error", err)
		writeJSONError(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	status, err := g.router.StatusOf(r.Context(), userID)
	if err != nil {
		g.logger.Error("status lookup failed", "user_id", userID, "error", err)
		writeJSONError(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, statusResponse{
		UserID:        int64(user.ID),
		Handle:        user.Handle,
		Operator:      user.Operator,
		Admin:         user.Admin,
		State:         string(status.State),
		CounterpartID: int64(status.CounterpartID),
	})
}

func (g *Gateway) handleListWaiting(w http.ResponseWriter, r *http.Request) {
	waiting, err := g.router.WaitingClients(r.Context())
	if err != nil {
		g.logger.Error("listing waiting clients failed", "error", err)
		writeJSONError(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	resp := waitingResponse{ClientIDs: make([]int64, 0, len(waiting))}
	for _, id := range waiting {
		resp.ClientIDs = append(resp.ClientIDs, int64(id))
	}
	writeJSON(w, resp)
}

func pathUserID(w http.ResponseWriter, r *http.Request) (store.UserID, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, "invalid user id", http.StatusBadRequest)
		return 0, false
	}
	return store.UserID(id), true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
