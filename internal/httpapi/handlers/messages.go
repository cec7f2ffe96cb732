package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/prompt-playground/internal/chat"
	"github.com/suPer8Hu/prompt-playground/internal/common"
)

const heartbeatInterval = 15 * time.Second

type submitReq struct {
	Content string `json:"content"`
	// Stream overrides the server default.
	Stream *bool `json:"stream"`
}

// SubmitMessage appends the user's text and runs it against the session's
// model. Streaming requests answer with server-sent events; closing the
// connection cancels the request.
func (h *Handler) SubmitMessage(c *gin.Context) {
	var req submitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	stream := h.Cfg.DefaultStreaming
	if req.Stream != nil {
		stream = *req.Stream
	}

	id := c.Param("id")
	ctx := c.Request.Context()

	if !stream {
		p, err := h.Transport.Submit(ctx, id, req.Content, chat.SubmitOptions{})
		if err != nil {
			writeChatError(c, "SubmitMessage", err)
			return
		}
		res, err := p.Wait(ctx)
		if err != nil {
			// client went away; the request was cancelled with it
			return
		}
		h.writeResult(c, p, res)
		return
	}

	deltas := make(chan string, 64)
	p, err := h.Transport.Submit(ctx, id, req.Content, chat.SubmitOptions{
		Stream: true,
		OnFragment: func(delta, _ string) {
			select {
			case deltas <- delta:
			case <-ctx.Done():
			}
		},
	})
	if err != nil {
		writeChatError(c, "SubmitMessage", err)
		return
	}

	sse, ok := startSSE(c)
	if !ok {
		p.Cancel()
		common.Fail(c, http.StatusInternalServerError, 50002, "streaming not supported")
		return
	}
	sse.event("pending", gin.H{
		"type":      "pending",
		"sessionId": id,
		"runId":     p.RunID,
	})

	// heartbeat ticker (keeps connections alive)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case d := <-deltas:
			sse.event("chunk", gin.H{
				"type":  "chunk",
				"delta": d,
			})

		case <-ticker.C:
			sse.event("ping", gin.H{
				"type": "ping",
				"ts":   time.Now().Unix(),
			})

		case <-p.Done():
			// every fragment was queued before Done closed
		drain:
			for {
				select {
				case d := <-deltas:
					sse.event("chunk", gin.H{"type": "chunk", "delta": d})
				default:
					break drain
				}
			}
			res, _ := p.Wait(context.Background())
			switch res.State {
			case chat.StateCompleted:
				sse.event("done", gin.H{
					"type":    "done",
					"runId":   p.RunID,
					"message": res.Message,
				})
			case chat.StateCancelled:
				sse.event("cancelled", gin.H{
					"type":  "cancelled",
					"runId": p.RunID,
				})
			default:
				sse.event("error", gin.H{
					"type":    "error",
					"runId":   p.RunID,
					"message": errorText(res.Err),
				})
			}
			return

		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) writeResult(c *gin.Context, p *chat.Pending, res chat.Result) {
	data := gin.H{
		"runId":   p.RunID,
		"state":   res.State,
		"message": res.Message,
	}
	if res.State == chat.StateFailed {
		data["error"] = errorText(res.Err)
	}
	common.OK(c, data)
}

func (h *Handler) CancelRequest(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Store.Get(id); err != nil {
		writeChatError(c, "CancelRequest", err)
		return
	}
	common.OK(c, gin.H{"cancelled": h.Transport.Cancel(id)})
}
