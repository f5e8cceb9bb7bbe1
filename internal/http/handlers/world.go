package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/http/response"
	"github.com/yungbote/learnworld-backend/internal/platform/ctxutil"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
	"github.com/yungbote/learnworld-backend/internal/services"
)

type WorldHandler struct {
	log    *logger.Logger
	worlds services.WorldService
}

func NewWorldHandler(log *logger.Logger, worldService services.WorldService) *WorldHandler {
	return &WorldHandler{
		log:    log.With("handler", "WorldHandler"),
		worlds: worldService,
	}
}

type generateRequest struct {
	Title         string `json:"title"`
	Subject       string `json:"subject"`
	SourceContent string `json:"source_content"`
}

type acceptedResponse struct {
	JobID  uuid.UUID     `json:"job_id"`
	RunID  uuid.UUID     `json:"run_id"`
	Status worlds.Status `json:"status"`
}

func accepted(w *worlds.World) acceptedResponse {
	return acceptedResponse{JobID: w.ID, RunID: w.RunID, Status: w.Status}
}

func callerID(c *gin.Context) (uuid.UUID, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return uuid.Nil, false
	}
	return rd.UserID, true
}

func worldID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_world_id", errors.New("invalid world id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *WorldHandler) respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrGenerationRateLimited):
		response.RespondError(c, http.StatusTooManyRequests, "generation_rate_limited", err)
	case errors.Is(err, services.ErrWorldNotFound):
		response.RespondError(c, http.StatusNotFound, "not_found", err)
	default:
		h.log.Warn("world request failed", "path", c.FullPath(), "error", err)
		response.RespondAggregateError(c, err)
	}
}

// POST /api/worlds/generate
func (h *WorldHandler) Generate(c *gin.Context) {
	owner, ok := callerID(c)
	if !ok {
		return
	}
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	w, err := h.worlds.Start(c.Request.Context(), owner, services.StartWorldInput{
		Title:         req.Title,
		Subject:       req.Subject,
		SourceContent: req.SourceContent,
	})
	if err != nil {
		h.respondErr(c, err)
		return
	}
	response.RespondAccepted(c, accepted(w))
}

// POST /api/worlds/:id/regenerate
func (h *WorldHandler) Regenerate(c *gin.Context) {
	owner, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := worldID(c)
	if !ok {
		return
	}
	w, err := h.worlds.Regenerate(c.Request.Context(), owner, id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	response.RespondAccepted(c, accepted(w))
}

// GET /api/worlds
func (h *WorldHandler) List(c *gin.Context) {
	owner, ok := callerID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.worlds.List(c.Request.Context(), owner, limit)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	rows := make([]map[string]any, 0, len(list))
	for _, w := range list {
		rows = append(rows, w.Row())
	}
	response.RespondOK(c, gin.H{"worlds": rows})
}

// GET /api/worlds/:id
func (h *WorldHandler) Get(c *gin.Context) {
	owner, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := worldID(c)
	if !ok {
		return
	}
	d, err := h.worlds.Get(c.Request.Context(), owner, id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"world": d.World, "modules": d.Modules})
}

// GET /api/worlds/:id/modules
func (h *WorldHandler) Modules(c *gin.Context) {
	owner, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := worldID(c)
	if !ok {
		return
	}
	mods, err := h.worlds.Modules(c.Request.Context(), owner, id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"modules": mods})
}

// GET /api/worlds/:id/events
func (h *WorldHandler) Events(c *gin.Context) {
	owner, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := worldID(c)
	if !ok {
		return
	}
	evs, err := h.worlds.Events(c.Request.Context(), owner, id)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"events": evs})
}

// DELETE /api/worlds/:id
func (h *WorldHandler) Delete(c *gin.Context) {
	owner, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := worldID(c)
	if !ok {
		return
	}
	if err := h.worlds.Delete(c.Request.Context(), owner, id); err != nil {
		h.respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": true, "id": id})
}
