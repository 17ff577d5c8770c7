package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ieu-analytics/event2table/pkg/models"
	"github.com/ieu-analytics/event2table/pkg/repositories"
	"github.com/ieu-analytics/event2table/pkg/services"
)

// GenerateFromFlowRequest for POST /api/hql/generate-from-flow.
type GenerateFromFlowRequest struct {
	Graph   models.FlowGraph       `json:"graph"`
	Options models.GenerateOptions `json:"options"`
}

// ValidateFlowRequest for POST /api/flows/validate.
type ValidateFlowRequest struct {
	Graph  models.FlowGraph `json:"graph"`
	Strict bool             `json:"strict,omitempty"`
}

// HistoryListResponse for GET /api/hql/history.
type HistoryListResponse struct {
	Records []*models.HQLHistory `json:"records"`
	Total   int                  `json:"total"`
}

// HQLHandler handles generation and flow validation HTTP requests.
type HQLHandler struct {
	generation services.GenerationService
	history    repositories.HistoryRepository
	logger     *zap.Logger
}

// NewHQLHandler creates a new HQLHandler. history may be nil, which disables
// the history listing endpoint's data source.
func NewHQLHandler(generation services.GenerationService, history repositories.HistoryRepository, logger *zap.Logger) *HQLHandler {
	return &HQLHandler{generation: generation, history: history, logger: logger}
}

// RegisterRoutes registers the HQL handler's routes on the given mux.
func (h *HQLHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/hql/generate", h.Generate)
	mux.HandleFunc("POST /api/hql/generate-from-flow", h.GenerateFromFlow)
	mux.HandleFunc("GET /api/hql/history", h.History)
	mux.HandleFunc("POST /api/flows/validate", h.ValidateFlow)
}

// Generate handles POST /api/hql/generate.
func (h *HQLHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	req.Options.UserID = r.Header.Get("X-User-ID")
	req.Options.SessionID = r.Header.Get("X-Session-ID")

	artifact, err := h.generation.Generate(r.Context(), req)
	if err != nil {
		h.logger.Warn("Generation failed", zap.Int("events", len(req.Events)), zap.Error(err))
		WriteError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, artifact); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GenerateFromFlow handles POST /api/hql/generate-from-flow.
func (h *HQLHandler) GenerateFromFlow(w http.ResponseWriter, r *http.Request) {
	var req GenerateFromFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	req.Options.UserID = r.Header.Get("X-User-ID")
	req.Options.SessionID = r.Header.Get("X-Session-ID")

	artifact, err := h.generation.GenerateFromFlow(r.Context(), req.Graph, req.Options)
	if err != nil {
		h.logger.Warn("Flow generation failed", zap.Int("nodes", len(req.Graph.Nodes)), zap.Error(err))
		WriteError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, artifact); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ValidateFlow handles POST /api/flows/validate.
func (h *HQLHandler) ValidateFlow(w http.ResponseWriter, r *http.Request) {
	var req ValidateFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result := h.generation.ValidateFlow(req.Graph, req.Strict)
	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// History handles GET /api/hql/history. Records are scoped by user_id or
// session_id; user_id wins when both are present.
func (h *HQLHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		if err := ErrorResponse(w, http.StatusNotFound, "not_found", "history recording is disabled"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	userID := r.URL.Query().Get("user_id")
	sessionID := r.URL.Query().Get("session_id")

	var records []*models.HQLHistory
	var err error
	switch {
	case userID != "":
		records, err = h.history.ListByUser(r.Context(), userID, limit)
	case sessionID != "":
		records, err = h.history.ListBySession(r.Context(), sessionID, limit)
	default:
		if werr := ErrorResponse(w, http.StatusBadRequest, "validation_error", "user_id or session_id is required"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}
	if err != nil {
		h.logger.Error("Failed to list history", zap.Error(err))
		WriteError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, HistoryListResponse{Records: records, Total: len(records)}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
