package handlers

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/learnworld-backend/internal/http/response"
	"github.com/yungbote/learnworld-backend/internal/platform/ctxutil"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
	"github.com/yungbote/learnworld-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub

	mu sync.Mutex
	// One open stream per session; a reconnect replaces the previous stream.
	bySession map[uuid.UUID]*realtime.SSEClient
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{
		log:       log.With("handler", "RealtimeHandler"),
		hub:       hub,
		bySession: make(map[uuid.UUID]*realtime.SSEClient),
	}
}

// WorldFeed streams WorldChanged messages for every world the caller owns.
// GET /api/worlds/feed
func (h *RealtimeHandler) WorldFeed(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return
	}
	owner, session := rd.UserID, rd.SessionID

	client := h.hub.NewSSEClient(owner)
	h.claimSession(session, client)
	defer h.releaseSession(session, client)

	h.log.Debug("world feed open", "owner_id", owner, "session_id", session, "client_id", client.ID)
	h.hub.AddChannel(client, realtime.OwnerChannel(owner))
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}

func (h *RealtimeHandler) claimSession(session uuid.UUID, client *realtime.SSEClient) {
	if session == uuid.Nil {
		return
	}
	h.mu.Lock()
	prev := h.bySession[session]
	h.bySession[session] = client
	h.mu.Unlock()
	if prev != nil {
		h.hub.CloseClient(prev)
	}
}

func (h *RealtimeHandler) releaseSession(session uuid.UUID, client *realtime.SSEClient) {
	if session != uuid.Nil {
		h.mu.Lock()
		if h.bySession[session] == client {
			delete(h.bySession, session)
		}
		h.mu.Unlock()
	}
	h.hub.CloseClient(client)
}
