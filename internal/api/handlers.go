package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"realtime-service/internal/errs"
	"realtime-service/internal/logging"
	"realtime-service/internal/models"
	"realtime-service/internal/notification"
	"realtime-service/internal/outbox"
	"realtime-service/internal/ratelimit"
	"realtime-service/internal/registry"
)

// Alerter exposes the alert engine's retained alerts.
type Alerter interface {
	RecentAlerts() []models.Alert
}

// SessionRevoker closes the replay window when an admin kicks a user.
type SessionRevoker interface {
	RevokeSessions(ctx context.Context, userID string) error
}

// Pinger is a connectivity probe for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	registry *registry.Registry
	notifier *notification.Service
	outbox   *outbox.Outbox
	limiter  *ratelimit.Limiter
	alerter  Alerter
	sessions SessionRevoker
	probes   map[string]Pinger
	logger   *logging.Logger
	started  time.Time
}

func NewHandler(reg *registry.Registry, notifier *notification.Service, ob *outbox.Outbox, limiter *ratelimit.Limiter, alerter Alerter, sessions SessionRevoker, probes map[string]Pinger, logger *logging.Logger) *Handler {
	return &Handler{
		registry: reg,
		notifier: notifier,
		outbox:   ob,
		limiter:  limiter,
		alerter:  alerter,
		sessions: sessions,
		probes:   probes,
		logger:   logger,
		started:  time.Now(),
	}
}

// httpStatus maps the stable error codes onto HTTP statuses.
func httpStatus(err error) int {
	var e *errs.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case errs.ErrAuthenticationFailed.Code, errs.ErrSessionExpired.Code:
		return http.StatusUnauthorized
	case errs.ErrPermissionDenied.Code:
		return http.StatusForbidden
	case errs.ErrValidation.Code:
		return http.StatusBadRequest
	case errs.ErrChannelNotFound.Code, errs.ErrUserNotFound.Code:
		return http.StatusNotFound
	case errs.ErrChannelCapacity.Code:
		return http.StatusConflict
	case errs.ErrRateLimited.Code:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		e = errs.ErrInternal
	}
	if e.Code == errs.ErrInternal.Code {
		// Internals are logged, not leaked.
		h.logger.Errorf("Request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		e = errs.ErrInternal
	}
	c.JSON(httpStatus(err), gin.H{"error": e})
}

type broadcastRequest struct {
	Message        interface{} `json:"message" binding:"required"`
	TargetChannels []string    `json:"target_channels"`
	TargetRoles    []string    `json:"target_roles"`
	Priority       int         `json:"priority"`
}

// Broadcast fans a message out to the named channels, or to every active
// channel when none are given. Role targeting reaches the admin channel.
func (h *Handler) Broadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errs.ErrValidation.WithDetails(err.Error()))
		return
	}

	channels := req.TargetChannels
	if len(channels) == 0 {
		for _, info := range h.registry.Channels() {
			channels = append(channels, info.Channel)
		}
	}

	var messageIDs []string
	for _, channel := range channels {
		id, err := h.notifier.Broadcast(c.Request.Context(), channel, "admin_broadcast", req.Message, req.Priority)
		if err != nil {
			h.fail(c, err)
			return
		}
		messageIDs = append(messageIDs, id)
	}

	for _, role := range req.TargetRoles {
		if p := (models.Principal{Role: role}); !p.IsAdmin() {
			continue
		}
		id, err := h.notifier.SendToAdmins(c.Request.Context(), "admin_broadcast", req.Message, req.Priority)
		if err != nil {
			h.fail(c, err)
			return
		}
		messageIDs = append(messageIDs, id)
		break
	}

	h.logger.Infof("Broadcast sent to %d channels", len(channels))
	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"message_ids": messageIDs,
		"channels":    channels,
		"timestamp":   time.Now(),
	})
}

type sendRequest struct {
	Type     string      `json:"type"`
	Data     interface{} `json:"data" binding:"required"`
	Priority int         `json:"priority"`
}

func (h *Handler) SendToUser(c *gin.Context) {
	userID := c.Param("user_id")
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errs.ErrValidation.WithDetails(err.Error()))
		return
	}
	if req.Type == "" {
		req.Type = "notification"
	}

	id, err := h.notifier.SendToUser(c.Request.Context(), userID, req.Type, req.Data, req.Priority)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message_id": id, "user_id": userID})
}

func (h *Handler) DisconnectUser(c *gin.Context) {
	userID := c.Param("user_id")
	closed, err := h.registry.DisconnectUser(userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	// Revoke the sessions too, otherwise the user reconnects with the
	// same still-valid token.
	if err := h.sessions.RevokeSessions(c.Request.Context(), userID); err != nil {
		h.logger.Errorf("Session revocation for user %s failed: %v", userID, err)
	}
	h.logger.Infof("Admin disconnected user %s (%d connections)", userID, closed)
	c.JSON(http.StatusOK, gin.H{"status": "success", "user_id": userID, "disconnected": closed})
}

func (h *Handler) ConnectedUsers(c *gin.Context) {
	users := h.registry.ConnectedUsers()
	c.JSON(http.StatusOK, gin.H{"connected_users": users, "total": len(users)})
}

func (h *Handler) UserInfo(c *gin.Context) {
	userID := c.Param("user_id")
	conns := h.registry.UserInfo(userID)
	c.JSON(http.StatusOK, gin.H{
		"user_id":            userID,
		"active_connections": len(conns),
		"connections":        conns,
		"is_online":          len(conns) > 0,
	})
}

func (h *Handler) Channels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"channels": h.registry.Channels()})
}

func (h *Handler) CloseChannel(c *gin.Context) {
	channel := c.Param("channel")
	closed, err := h.registry.CloseChannel(channel)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Infof("Admin closed channel %s (%d connections)", channel, closed)
	c.JSON(http.StatusOK, gin.H{"channel": channel, "disconnected_users": closed, "timestamp": time.Now()})
}

func (h *Handler) Stats(c *gin.Context) {
	stats := h.registry.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"total_connections":       stats.TotalConnections,
		"active_channels":         stats.ActiveChannels,
		"connections_per_channel": stats.PerChannel,
		"timestamp":               time.Now(),
	})
}

func (h *Handler) MessageHistory(c *gin.Context) {
	userID := c.Param("user_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := h.outbox.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.fail(c, errs.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "messages": messages, "count": len(messages)})
}

func (h *Handler) Alerts(c *gin.Context) {
	alerts := h.alerter.RecentAlerts()
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (h *Handler) RateLimits(c *gin.Context) {
	identifier := c.Param("identifier")
	windows, err := h.limiter.Windows(c.Request.Context(), identifier)
	if err != nil {
		h.fail(c, errs.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"identifier": identifier, "windows": windows})
}

func (h *Handler) Health(c *gin.Context) {
	stats := h.registry.Snapshot()
	status := "healthy"

	components := gin.H{
		"websocket_server": gin.H{
			"status":      "online",
			"connections": stats.TotalConnections,
			"channels":    stats.ActiveChannels,
		},
	}
	for name, probe := range h.probes {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		if err := probe.Ping(ctx); err != nil {
			components[name] = gin.H{"status": "unavailable"}
			status = "degraded"
		} else {
			components[name] = gin.H{"status": "ok"}
		}
		cancel()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"components":     components,
		"uptime_seconds": time.Since(h.started).Seconds(),
		"timestamp":      time.Now(),
	})
}
