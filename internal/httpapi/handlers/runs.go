package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/prompt-playground/internal/common"
	"github.com/suPer8Hu/prompt-playground/internal/runlog"
)

func (h *Handler) ListRuns(c *gin.Context) {
	if h.Runs == nil {
		common.OK(c, gin.H{"runs": []runlog.Run{}})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	runs, err := h.Runs.List(c.Request.Context(), c.Query("sessionId"), limit)
	if err != nil {
		log.Printf("[ListRuns] failed err=%v", err)
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to list runs")
		return
	}
	common.OK(c, gin.H{"runs": runs})
}
