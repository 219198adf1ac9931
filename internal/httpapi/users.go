package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/models"
	"github.com/safar/peptide-shop/internal/telemetry"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	role := strings.TrimSpace(r.URL.Query().Get("role"))
	if role != "" && !models.ValidRole(role) {
		writeError(w, r, h.logger, apperr.Validation("invalid role %q", role))
		return
	}

	page, limit := models.NormalizePage(queryInt(r, "page", 1), queryInt(r, "limit", 0))
	result, err := h.users.ListUsers(r.Context(), role, page, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, usersPageResponse{
		Users: result.Items,
		Page:  result.Page,
		Pages: result.TotalPages,
		Total: result.Total,
	})
}

func (h *handler) updateUserRole(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "user")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req userRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	role := strings.TrimSpace(req.Role)
	if !models.ValidRole(role) {
		writeError(w, r, h.logger, apperr.Validation("invalid role %q", role))
		return
	}

	user, err := h.users.UpdateUserRole(r.Context(), id, role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, userRoleResponse{User: user, Message: "user role updated to " + role})
}

func (h *handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := resourceID(r, "user")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if requester := RequesterFrom(r.Context()); requester != nil && requester.ID == id {
		writeError(w, r, h.logger, apperr.Validation("cannot delete your own account"))
		return
	}

	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "user removed"})
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		telemetry.WithTrace(r.Context(), h.logger).Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
