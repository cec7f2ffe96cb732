package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/prompt-playground/internal/gateway"
	"github.com/suPer8Hu/prompt-playground/internal/httpapi/middleware"
)

// GatewayChat serves POST /api/chat. Streaming replies are raw UTF-8 text
// flushed per fragment; the non-streaming reply is {text}. Errors use the
// {error} body rather than the envelope.
func (h *Handler) GatewayChat(c *gin.Context) {
	var w gateway.WireRequest
	if err := c.ShouldBindJSON(&w); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	req := w.ChatRequest()
	if err := h.Gateway.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	rid := c.GetString(middleware.RequestIDKey)

	if !w.Streaming() {
		text, err := h.Gateway.Complete(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": errorText(err)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"text": text})
		return
	}

	chunks, errs := h.Gateway.Stream(ctx, req)
	started := false
	for chunk := range chunks {
		if !started {
			c.Header("Content-Type", "text/plain; charset=utf-8")
			c.Header("Cache-Control", "no-cache")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
			started = true
		}
		if _, err := c.Writer.WriteString(chunk); err != nil {
			// client gone; the provider call stops with ctx
			continue
		}
		c.Writer.Flush()
	}

	err := <-errs
	switch {
	case err == nil:
		if !started {
			c.Status(http.StatusOK)
			c.Writer.WriteHeaderNow()
		}
	case ctx.Err() != nil:
		// aborted by the client, nothing to answer
	case !started:
		log.Printf("[gateway] request failed request_id=%s model=%s err=%v", rid, req.Model.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errorText(err)})
	default:
		// Headers are gone. Dropping the connection is the only way to tell
		// the client the body is incomplete.
		log.Printf("[gateway] stream aborted request_id=%s model=%s err=%v", rid, req.Model.ID, err)
		panic(http.ErrAbortHandler)
	}
}
