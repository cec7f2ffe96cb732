package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/prompt-playground/internal/ai"
	"github.com/suPer8Hu/prompt-playground/internal/chat"
	"github.com/suPer8Hu/prompt-playground/internal/common"
)

// sessionView is a session as the API returns it. The credential itself
// never leaves the server.
type sessionView struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Description  string           `json:"description,omitempty"`
	Messages     []chat.Message   `json:"messages"`
	SystemPrompt string           `json:"systemPrompt"`
	Model        ai.ModelRef      `json:"model"`
	ModelConfig  chat.ModelConfig `json:"modelConfig"`
	APIKeySet    bool             `json:"apiKeySet"`
	InFlight     bool             `json:"inFlight"`
}

func (h *Handler) view(s chat.Session) sessionView {
	_, busy := h.Transport.Pending(s.ID)
	return sessionView{
		ID:           s.ID,
		Title:        s.Title,
		Description:  s.Description,
		Messages:     s.Messages,
		SystemPrompt: s.SystemPrompt,
		Model:        s.Model,
		ModelConfig:  s.ModelConfig,
		APIKeySet:    s.Credential != "",
		InFlight:     busy,
	}
}

func (h *Handler) ListSessions(c *gin.Context) {
	sessions := h.Store.List()
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, h.view(s))
	}
	common.OK(c, gin.H{
		"sessions": out,
		"activeId": h.Store.ActiveID(),
	})
}

func (h *Handler) CreateSession(c *gin.Context) {
	var patch chat.SessionPatch
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&patch); err != nil {
			common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
			return
		}
	}

	sess, err := h.Store.CreateSession(c.Request.Context(), &patch)
	if err != nil {
		writeChatError(c, "CreateSession", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"code":    0,
		"message": "ok",
		"data":    h.view(sess),
	})
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.Store.Get(c.Param("id"))
	if err != nil {
		writeChatError(c, "GetSession", err)
		return
	}
	common.OK(c, h.view(sess))
}

func (h *Handler) UpdateSession(c *gin.Context) {
	var patch chat.SessionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	sess, err := h.Store.UpdateSession(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeChatError(c, "UpdateSession", err)
		return
	}
	common.OK(c, h.view(sess))
}

func (h *Handler) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	// a reply for a deleted session has nowhere to go
	h.Transport.Cancel(id)

	if err := h.Store.DeleteSession(c.Request.Context(), id); err != nil {
		writeChatError(c, "DeleteSession", err)
		return
	}
	common.OK(c, gin.H{"activeId": h.Store.ActiveID()})
}

func (h *Handler) DuplicateSession(c *gin.Context) {
	sess, err := h.Store.DuplicateSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeChatError(c, "DuplicateSession", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"code":    0,
		"message": "ok",
		"data":    h.view(sess),
	})
}

func (h *Handler) ClearSession(c *gin.Context) {
	sess, err := h.Transport.ClearSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeChatError(c, "ClearSession", err)
		return
	}
	common.OK(c, h.view(sess))
}

type setActiveReq struct {
	ID string `json:"id" binding:"required"`
}

func (h *Handler) SetActiveSession(c *gin.Context) {
	var req setActiveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if err := h.Store.SetActive(c.Request.Context(), req.ID); err != nil {
		writeChatError(c, "SetActiveSession", err)
		return
	}
	common.OK(c, gin.H{"activeId": req.ID})
}
