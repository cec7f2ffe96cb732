package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/prompt-playground/internal/ai"
	"github.com/suPer8Hu/prompt-playground/internal/chat"
	"github.com/suPer8Hu/prompt-playground/internal/common"
	"github.com/suPer8Hu/prompt-playground/internal/config"
	"github.com/suPer8Hu/prompt-playground/internal/gateway"
	"github.com/suPer8Hu/prompt-playground/internal/httpapi/middleware"
	"github.com/suPer8Hu/prompt-playground/internal/runlog"
)

type Handler struct {
	Cfg       config.Config
	Store     *chat.Store
	Transport *chat.Transport
	// Gateway is nil when provider calls go to a remote gateway.
	Gateway *gateway.Service
	// Runs is nil when the run log is disabled.
	Runs *runlog.Repo
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func (h *Handler) ListModels(c *gin.Context) {
	catalog := h.Store.Catalog()
	common.OK(c, gin.H{
		"models":  catalog.Models(),
		"default": catalog.Default().ID,
	})
}

// writeChatError maps chat and gateway errors onto the response envelope.
func writeChatError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "session not found")
	case errors.Is(err, chat.ErrRequestInFlight):
		common.Fail(c, http.StatusConflict, 40901, err.Error())
	case errors.Is(err, chat.ErrUnknownModel):
		common.Fail(c, http.StatusBadRequest, 10004, err.Error())
	case errors.Is(err, chat.ErrInvalidConfig):
		common.Fail(c, http.StatusBadRequest, 10005, err.Error())
	case errors.Is(err, chat.ErrEmptyMessage):
		common.Fail(c, http.StatusBadRequest, 10006, err.Error())
	case errors.Is(err, chat.ErrMissingCredential):
		common.Fail(c, http.StatusBadRequest, 10007, err.Error())
	case errors.Is(err, chat.ErrInvalidRole):
		common.Fail(c, http.StatusBadRequest, 10008, err.Error())
	default:
		log.Printf("[%s] failed request_id=%s err=%v", op, c.GetString(middleware.RequestIDKey), err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

// errorText is the message shown to users for a provider failure.
func errorText(err error) string {
	var se *ai.StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}
