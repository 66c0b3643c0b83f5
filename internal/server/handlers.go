package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ovenworks/banneton/internal/access"
	"github.com/ovenworks/banneton/internal/agent"
	"github.com/ovenworks/banneton/internal/audit"
	"github.com/ovenworks/banneton/internal/execctx"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
		"tools":  s.registry.Len(),
	})
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type chatResponse struct {
	Response  string               `json:"response"`
	ToolCalls []agent.ExecutedTool `json:"tool_calls"`
	Metadata  chatResponseMetadata `json:"metadata"`
}

type chatResponseMetadata struct {
	ConversationID    string `json:"conversation_id"`
	UserID            string `json:"user_id"`
	Role              string `json:"role"`
	ExecutedToolCount int    `json:"executed_tool_count"`
	FallbackMode      bool   `json:"fallback_mode"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	// Input rejection happens before the execution context is built, so a
	// bad message never triggers tenant or user lookups.
	message, err := agent.ValidateMessage(req.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	tenantID := TenantIDFromContext(r.Context())
	ec, err := s.factory.Create(r.Context(), tenantID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, execctx.ErrUserNotFound),
			errors.Is(err, execctx.ErrUserInactive),
			errors.Is(err, execctx.ErrTenantNotFound),
			errors.Is(err, execctx.ErrTenantInactive):
			writeError(w, http.StatusForbidden, "forbidden", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
		}
		return
	}

	resp, err := s.orchestrator.Run(r.Context(), ec, message)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("chat_request_failed")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:  resp.Response,
		ToolCalls: resp.ToolCalls,
		Metadata: chatResponseMetadata{
			ConversationID:    resp.ConversationID,
			UserID:            req.UserID,
			Role:              resp.Role,
			ExecutedToolCount: len(resp.ToolCalls),
			FallbackMode:      resp.FallbackMode,
		},
	})
}

func (s *Server) handleToolsList(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "role query parameter is required")
		return
	}
	if !access.ValidRole(role) {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown role")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"role":  role,
		"tools": s.registry.Schemas(role),
	})
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantIDFromContext(r.Context())
	toolName := r.URL.Query().Get("tool")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	recs, err := s.auditStore.List(r.Context(), tenantID, toolName, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": recs,
		"count":   len(recs),
	})
}

// auditRecordForTenant loads a record and hides records belonging to other
// tenants behind the same 404 as a missing ID.
func (s *Server) auditRecordForTenant(w http.ResponseWriter, r *http.Request) *audit.Record {
	rec, err := s.auditStore.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, audit.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "audit record not found")
		return nil
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return nil
	}
	if rec.TenantID != TenantIDFromContext(r.Context()) {
		writeError(w, http.StatusNotFound, "not_found", "audit record not found")
		return nil
	}
	return rec
}

func (s *Server) handleAuditGet(w http.ResponseWriter, r *http.Request) {
	rec := s.auditRecordForTenant(w, r)
	if rec == nil {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	rec := s.auditRecordForTenant(w, r)
	if rec == nil {
		return
	}
	valid, err := s.auditStore.Verify(r.Context(), rec.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":    rec.ID,
		"valid": valid,
	})
}
