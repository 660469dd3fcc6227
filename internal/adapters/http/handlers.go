package http

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voxroom/internal/adapters/signal"
	"github.com/dkeye/voxroom/internal/app/orch"
	"github.com/dkeye/voxroom/internal/domain"
	"github.com/dkeye/voxroom/internal/transcript"
	"github.com/dkeye/voxroom/internal/voiceai"
)

type handlers struct {
	orch *orch.Orchestrator
	ai   voiceai.FactoryConfig
}

type createRoomRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Capacity    int    `json:"capacity"`
	DisplayName string `json:"displayName"`
}

type meRequest struct {
	DisplayName string `json:"displayName"`
}

func abort(c *gin.Context, status int, code domain.Code, msg string) {
	body := gin.H{"error": msg}
	if code != "" {
		body["code"] = code
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"rooms":      len(h.orch.Rooms.List()),
		"sessions":   h.orch.Registry.Len(),
		"aiSessions": h.orch.AI.Len(),
	})
}

func (h *handlers) me(c *gin.Context) {
	name, _ := sessions.Default(c).Get(signal.SessionNameKey).(string)
	resp := gin.H{"peerId": c.GetString("client_token"), "displayName": name}
	if roomID, ok := h.orch.Registry.RoomOf(clientSession(c)); ok {
		resp["roomId"] = roomID
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) updateMe(c *gin.Context) {
	var req meRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, domain.CodeInvalidPayload, "invalid body")
		return
	}
	name, err := domain.NormalizeDisplayName(req.DisplayName)
	if err != nil {
		abort(c, http.StatusBadRequest, domain.CodeInvalidPayload, err.Error())
		return
	}
	if err := rememberName(c, name); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"peerId": c.GetString("client_token"), "displayName": name})
}

func rememberName(c *gin.Context, name string) error {
	s := sessions.Default(c)
	s.Set(signal.SessionNameKey, name)
	return s.Save()
}

func (h *handlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.orch.ICEServers()})
}

func (h *handlers) providers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": voiceai.Describe(h.ai, os.Getenv)})
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.List()})
}

func (h *handlers) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, domain.CodeInvalidPayload, "invalid body")
		return
	}
	room, err := h.orch.CreateRoom(c.Request.Context(), domain.RoomSpec{
		ID:       domain.RoomID(req.ID),
		Name:     req.Name,
		Capacity: req.Capacity,
	})
	switch {
	case errors.Is(err, domain.ErrInvalidCapacity), errors.Is(err, domain.ErrRoomNameTooLong):
		abort(c, http.StatusBadRequest, domain.CodeInvalidPayload, err.Error())
		return
	case errors.Is(err, domain.ErrRoomExists):
		abort(c, http.StatusConflict, "", err.Error())
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Msg("create room")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if req.DisplayName != "" {
		if name, err := domain.NormalizeDisplayName(req.DisplayName); err == nil {
			_ = rememberName(c, name)
		}
	}
	log.Info().Str("module", "adapters.http").Str("room_id", string(room.ID)).Str("sid", c.GetString("client_token")).Msg("room created")
	c.JSON(http.StatusCreated, room)
}

func (h *handlers) getRoom(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	if room, ok := h.orch.Rooms.GetRoom(id); ok {
		c.JSON(http.StatusOK, room)
		return
	}
	if h.orch.Store != nil {
		if room, err := h.orch.Store.Get(c.Request.Context(), id); err == nil {
			c.JSON(http.StatusOK, room)
			return
		}
	}
	abort(c, http.StatusNotFound, domain.CodeRoomNotFound, "room not found")
}

func (h *handlers) closeRoom(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	err := h.orch.CloseRoom(c.Request.Context(), clientSession(c).PeerID(), id)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, orch.ErrNotOwner):
		abort(c, http.StatusForbidden, "", err.Error())
	case errors.Is(err, domain.ErrRoomNotFound):
		abort(c, http.StatusNotFound, domain.CodeRoomNotFound, "room not found")
	case errors.Is(err, domain.ErrRoomClosed):
		abort(c, http.StatusConflict, domain.CodeRoomClosed, "room is closed")
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("room_id", string(id)).Msg("close room")
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}

func (h *handlers) listPeers(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	if _, ok := h.orch.Rooms.GetRoom(id); !ok {
		abort(c, http.StatusNotFound, domain.CodeRoomNotFound, "room not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"peers": h.orch.Rooms.ListPeers(id)})
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func (h *handlers) transcript(c *gin.Context) {
	if h.orch.Transcripts == nil {
		abort(c, http.StatusServiceUnavailable, "", "transcripts are disabled")
		return
	}
	ctx := c.Request.Context()
	id := domain.RoomID(c.Param("id"))

	format, err := transcript.ParseFormat(c.Query("format"))
	if err != nil {
		abort(c, http.StatusBadRequest, domain.CodeInvalidPayload, err.Error())
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		abort(c, http.StatusBadRequest, domain.CodeInvalidPayload, err.Error())
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		abort(c, http.StatusBadRequest, domain.CodeInvalidPayload, err.Error())
		return
	}

	entries, err := h.orch.Transcripts.List(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room_id", string(id)).Msg("list transcript")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	meta, known := h.roomMeta(c, id)
	if !known && len(entries) == 0 {
		abort(c, http.StatusNotFound, domain.CodeRoomNotFound, "room not found")
		return
	}

	doc, err := transcript.Export(meta, entries, transcript.Options{Format: format, Offset: offset, Limit: limit})
	if err != nil {
		abort(c, http.StatusBadRequest, domain.CodeInvalidPayload, err.Error())
		return
	}
	if download, _ := strconv.ParseBool(c.Query("download")); download {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	}
	c.Header("X-Total-Count", strconv.Itoa(doc.Total))
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}

func (h *handlers) roomMeta(c *gin.Context, id domain.RoomID) (transcript.RoomMeta, bool) {
	if room, ok := h.orch.Rooms.GetRoom(id); ok {
		return transcript.RoomMeta{ID: room.ID, Name: room.Name, CreatedAt: room.CreatedAt}, true
	}
	if h.orch.Store != nil {
		if room, err := h.orch.Store.Get(c.Request.Context(), id); err == nil {
			return transcript.RoomMeta{ID: room.ID, Name: room.Name, CreatedAt: room.CreatedAt}, true
		}
	}
	return transcript.RoomMeta{ID: id}, false
}
