package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/prompt-playground/internal/common"
	"github.com/suPer8Hu/prompt-playground/internal/httpapi/handlers"
	"github.com/suPer8Hu/prompt-playground/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler) *gin.Engine {
	cfg := h.Cfg

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	if len(cfg.CORSOrigins) > 0 {
		r.Use(corsMiddleware(cfg.CORSOrigins))
	}

	r.GET("/ping", h.Ping)

	api := r.Group("/api")
	api.Use(middleware.AuthRequired(cfg.AuthSecret))

	api.GET("/models", h.ListModels)

	// sessions
	api.GET("/sessions", h.ListSessions)
	api.POST("/sessions", h.CreateSession)
	api.PUT("/sessions/active", h.SetActiveSession)
	api.GET("/sessions/:id", h.GetSession)
	api.PATCH("/sessions/:id", h.UpdateSession)
	api.DELETE("/sessions/:id", h.DeleteSession)
	api.POST("/sessions/:id/duplicate", h.DuplicateSession)
	api.POST("/sessions/:id/clear", h.ClearSession)

	// requests
	api.POST("/sessions/:id/messages", h.SubmitMessage)
	api.POST("/sessions/:id/cancel", h.CancelRequest)
	api.GET("/runs", h.ListRuns)

	// provider gateway, only when served in process
	if h.Gateway != nil {
		api.POST("/chat", h.GatewayChat)
	}
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			conf.AllowAllOrigins = true
			return cors.New(conf)
		}
	}
	conf.AllowOrigins = origins
	return cors.New(conf)
}
