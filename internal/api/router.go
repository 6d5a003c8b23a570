package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"realtime-service/internal/config"
	"realtime-service/internal/logging"
	"realtime-service/internal/ws"
)

func NewRouter(h *Handler, wsHandler *ws.Handler, logger *logging.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	r.GET("/ws/connect/:channel", wsHandler.Connect)

	api := r.Group(cfg.API.BasePath)
	{
		// Messaging
		api.POST("/ws/broadcast", h.Broadcast)
		api.POST("/ws/users/:user_id/send", h.SendToUser)
		api.GET("/ws/messages/user/:user_id", h.MessageHistory)

		// Connections
		api.GET("/ws/users/connected", h.ConnectedUsers)
		api.GET("/ws/users/:user_id/info", h.UserInfo)
		api.DELETE("/ws/users/:user_id", h.DisconnectUser)
		api.GET("/ws/channels", h.Channels)
		api.DELETE("/ws/channels/:channel", h.CloseChannel)
		api.GET("/ws/stats", h.Stats)

		// Monitoring
		api.GET("/alerts", h.Alerts)
		api.GET("/ws/rate-limits/:identifier", h.RateLimits)
	}

	r.GET("/health", h.Health)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	return r
}
