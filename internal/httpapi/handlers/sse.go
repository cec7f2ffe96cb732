package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type sseWriter struct {
	w       gin.ResponseWriter
	flusher http.Flusher
}

// startSSE writes the event-stream headers. It reports false when the
// writer cannot flush.
func startSSE(c *gin.Context) (*sseWriter, bool) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil, false
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx

	// avoid gin writing a JSON response later
	c.Status(http.StatusOK)
	return &sseWriter{w: c.Writer, flusher: flusher}, true
}

func (s *sseWriter) event(event string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		// last-resort: send a simple error that won't break SSE framing
		fmt.Fprintf(s.w, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
		s.flusher.Flush()
		return
	}
	if event != "" {
		fmt.Fprintf(s.w, "event: %s\n", event)
	}
	fmt.Fprintf(s.w, "data: %s\n\n", string(b))
	s.flusher.Flush()
}
