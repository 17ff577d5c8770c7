package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ieu-analytics/event2table/pkg/models"
	"github.com/ieu-analytics/event2table/pkg/services"
)

// GameListResponse for GET /api/games.
type GameListResponse struct {
	Games []*models.Game `json:"games"`
	Total int            `json:"total"`
}

// EventListResponse for GET /api/games/{gid}/events.
type EventListResponse struct {
	Events []*models.Event `json:"events"`
	Total  int             `json:"total"`
}

// ParamListResponse for GET /api/events/{eid}/params.
type ParamListResponse struct {
	Params []*models.EventParam `json:"params"`
	Total  int                  `json:"total"`
}

// FlowListResponse for GET /api/games/{gid}/flows.
type FlowListResponse struct {
	Flows []*models.Flow `json:"flows"`
	Total int            `json:"total"`
}

// CatalogHandler handles catalog CRUD HTTP requests: games, events,
// parameters, templates and saved flows.
type CatalogHandler struct {
	catalog services.CatalogService
	logger  *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(catalog services.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// RegisterRoutes registers the catalog handler's routes on the given mux.
func (h *CatalogHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/games", h.ListGames)
	mux.HandleFunc("POST /api/games", h.CreateGame)
	mux.HandleFunc("GET /api/games/{gid}", h.GetGame)
	mux.HandleFunc("PUT /api/games/{gid}", h.RenameGame)
	mux.HandleFunc("DELETE /api/games/{gid}", h.DeleteGame)

	mux.HandleFunc("GET /api/games/{gid}/events", h.ListEvents)
	mux.HandleFunc("POST /api/events", h.CreateEvent)
	mux.HandleFunc("GET /api/events/{eid}", h.GetEvent)
	mux.HandleFunc("DELETE /api/events/{eid}", h.DeleteEvent)

	mux.HandleFunc("GET /api/events/{eid}/params", h.ListParams)
	mux.HandleFunc("POST /api/events/{eid}/params", h.AddParam)
	mux.HandleFunc("DELETE /api/events/{eid}/params/{pid}", h.DeleteParam)

	mux.HandleFunc("GET /api/templates", h.ListTemplates)
	mux.HandleFunc("POST /api/templates", h.CreateTemplate)
	mux.HandleFunc("GET /api/templates/{tid}", h.GetTemplate)

	mux.HandleFunc("GET /api/games/{gid}/flows", h.ListFlows)
	mux.HandleFunc("POST /api/flows", h.SaveFlow)
	mux.HandleFunc("GET /api/flows/{fid}", h.GetFlow)
	mux.HandleFunc("DELETE /api/flows/{fid}", h.DeleteFlow)
}

// ListGames handles GET /api/games.
func (h *CatalogHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.catalog.ListGames(r.Context())
	if err != nil {
		h.logger.Error("Failed to list games", zap.Error(err))
		WriteError(w, h.logger, err)
		return
	}
	h.writeJSON(w, GameListResponse{Games: games, Total: len(games)})
}

// CreateGame handles POST /api/games.
func (h *CatalogHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var game models.Game
	if !h.decode(w, r, &game) {
		return
	}

	if err := h.catalog.CreateGame(r.Context(), &game); err != nil {
		h.logger.Warn("Failed to create game", zap.Int64("gid", game.GID), zap.Error(err))
		WriteError(w, h.logger, err)
		return
	}
	if err := WriteJSON(w, http.StatusCreated, game); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetGame handles GET /api/games/{gid}.
func (h *CatalogHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	gid, ok := h.pathInt64(w, r, "gid")
	if !ok {
		return
	}

	game, err := h.catalog.GetGame(r.Context(), gid)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	h.writeJSON(w, game)
}

// RenameGame handles PUT /api/games/{gid}.
func (h *CatalogHandler) RenameGame(w http.ResponseWriter, r *http.Request) {
	gid, ok := h.pathInt64(w, r, "gid")
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.catalog.RenameGame(r.Context(), gid, req.Name); err != nil {
		h.logger.Warn("Failed to rename game", zap.Int64("gid", gid), zap.Error(err))
		WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteGame handles DELETE /api/games/{gid}.
func (h *CatalogHandler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	gid, ok := h.pathInt64(w, r, "gid")
	if !ok {
		return
	}

	if err := h.catalog.DeleteGame(r.Context(), gid); err != nil {
		h.logger.Warn("Failed to delete game", zap.Int64("gid", gid), zap.Error(err))
		WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEvents handles GET /api/games/{gid}/events.
func (h *CatalogHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	gid, ok := h.pathInt64(w, r, "gid")
	if !ok {
		return
	}

	events, err := h.catalog.ListEvents(r.Context(), gid)
	if err != nil {
		h.logger.Error("Failed to list events", zap.Int64("gid", gid), zap.Error(err))
		WriteError(w, h.logger, err)
		return
	}
	h.writeJSON(w, EventListResponse{Events: events, Total: len(events)})
}

// CreateEvent handles POST /api/events.
func (h *CatalogHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var event models.Event
	if !h.decode(w, r, &event) {
		return
	}

	if err := h.catalog.CreateEvent(r.Context(), &event); err != nil {
		h.logger.Warn("Failed to create event", zap.String("name", event.Name), zap.Error(err))
		WriteError(w, h.logger, err)
		return
	}
	if err := WriteJSON(w, http.StatusCreated, event); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetEvent handles GET /api/events/{eid}.
func (h *CatalogHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.pathInt64(w, r, "eid")
	if !ok {
		return
	}

	event, err := h.catalog.GetEvent(r.Context(), eventID)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	h.writeJSON(w, event)
}

// DeleteEvent handles DELETE /api/events/{eid}.
func (h *CatalogHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.pathInt64(w, r, "eid")
	if !ok {
		return
	}

	if err := h.catalog.DeleteEvent(r.Context(), eventID); err != nil {
		h.logger.Warn("Failed to delete event", zap.Int64("event_id", eventID), zap.Error(err))
		WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListParams handles GET /api/events/{eid}/params.
func (h *CatalogHandler) ListParams(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.pathInt64(w, r, "eid")
	if !ok {
		return
	}

	params, err := h.catalog.GetParameters(r.Context(), eventID)
	if err != nil {
		h.logger.Error("Failed to list parameters", zap.Int64("event_id", eventID), zap.Error(err))
		WriteError(w, h.logger, err)
		return
	}
	h.writeJSON(w, ParamListResponse{Params: params, Total: len(params)})
}

// AddParam handles POST /api/events/{eid}/params.
func (h *CatalogHandler) AddParam(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.pathInt64(w, r, "eid")
	if !ok {
		return
	}

	var param models.EventParam
	if !h.decode(w, r, &param) {
		return
	}
	param.EventID = eventID

	if err := h.catalog.AddParameter(r.Context(), &param); err != nil {
		h.logger.Warn("Failed to add parameter",
			zap.Int64("event_id", eventID),
			zap.String("name", param.Name),
			zap.Error(err))
		WriteError(w, h.logger, err)
		return
	}
	if err := WriteJSON(w, http.StatusCreated, param); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// DeleteParam handles DELETE /api/events/{eid}/params/{pid}.
func (h *CatalogHandler) DeleteParam(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.pathInt64(w, r, "eid")
	if !ok {
		return
	}
	paramID, ok := h.pathInt64(w, r, "pid")
	if !ok {
		return
	}

	if err := h.catalog.DeleteParameter(r.Context(), eventID, paramID); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTemplates handles GET /api/templates.
func (h *CatalogHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.catalog.ListTemplates(r.Context())
	if err != nil {
		h.logger.Error("Failed to list templates", zap.Error(err))
		WriteError(w, h.logger, err)
		return
	}
	h.writeJSON(w, map[string]any{"templates": templates, "total": len(templates)})
}

// CreateTemplate handles POST /api/templates.
func (h *CatalogHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl models.ParamTemplate
	if !h.decode(w, r, &tmpl) {
		return
	}

	if err := h.catalog.CreateTemplate(r.Context(), &tmpl); err != nil {
		h.logger.Warn("Failed to create template", zap.String("name", tmpl.Name), zap.Error(err))
		WriteError(w, h.logger, err)
		return
	}
	if err := WriteJSON(w, http.StatusCreated, tmpl); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetTemplate handles GET /api/templates/{tid}.
func (h *CatalogHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	templateID, ok := h.pathInt64(w, r, "tid")
	if !ok {
		return
	}

	tmpl, err := h.catalog.GetTemplate(r.Context(), templateID)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	h.writeJSON(w, tmpl)
}

// ListFlows handles GET /api/games/{gid}/flows.
func (h *CatalogHandler) ListFlows(w http.ResponseWriter, r *http.Request) {
	gid, ok := h.pathInt64(w, r, "gid")
	if !ok {
		return
	}

	flows, err := h.catalog.ListFlows(r.Context(), gid)
	if err != nil {
		h.logger.Error("Failed to list flows", zap.Int64("gid", gid), zap.Error(err))
		WriteError(w, h.logger, err)
		return
	}
	h.writeJSON(w, FlowListResponse{Flows: flows, Total: len(flows)})
}

// SaveFlow handles POST /api/flows. A request carrying an id updates the
// existing flow.
func (h *CatalogHandler) SaveFlow(w http.ResponseWriter, r *http.Request) {
	var flow models.Flow
	if !h.decode(w, r, &flow) {
		return
	}

	if err := h.catalog.SaveFlow(r.Context(), &flow); err != nil {
		h.logger.Warn("Failed to save flow", zap.String("name", flow.Name), zap.Error(err))
		WriteError(w, h.logger, err)
		return
	}
	if err := WriteJSON(w, http.StatusCreated, flow); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetFlow handles GET /api/flows/{fid}.
func (h *CatalogHandler) GetFlow(w http.ResponseWriter, r *http.Request) {
	flowID, ok := h.pathUUID(w, r, "fid")
	if !ok {
		return
	}

	flow, err := h.catalog.LoadFlow(r.Context(), flowID)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	h.writeJSON(w, flow)
}

// DeleteFlow handles DELETE /api/flows/{fid}.
func (h *CatalogHandler) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	flowID, ok := h.pathUUID(w, r, "fid")
	if !ok {
		return
	}

	if err := h.catalog.DeleteFlow(r.Context(), flowID); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "validation_error", "invalid request body"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return false
	}
	return true
}

func (h *CatalogHandler) pathInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || v <= 0 {
		if werr := ErrorResponse(w, http.StatusBadRequest, "validation_error", "path segment "+name+" must be a positive integer"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return 0, false
	}
	return v, true
}

func (h *CatalogHandler) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "validation_error", "path segment "+name+" must be a UUID"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return uuid.Nil, false
	}
	return v, true
}

func (h *CatalogHandler) writeJSON(w http.ResponseWriter, data any) {
	if err := WriteJSON(w, http.StatusOK, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
