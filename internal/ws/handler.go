package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"realtime-service/internal/errs"
	"realtime-service/internal/logging"
	"realtime-service/internal/models"
	"realtime-service/internal/ratelimit"
	"realtime-service/internal/registry"
)

// Authenticator validates bearer credentials and maintains sessions.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Principal, error)
	TouchSession(ctx context.Context, userID string) error
}

// Notifier is the durable send path for persisted notifications.
type Notifier interface {
	SendToUser(ctx context.Context, userID, msgType string, data interface{}, priority int) (string, error)
}

// EventRecorder lands client error reports in the structured event log.
type EventRecorder interface {
	InsertLogEvent(ctx context.Context, e models.LogEvent) error
}

// Handler owns the websocket endpoint: upgrade, admission control,
// authentication, and the per-connection frame loop.
type Handler struct {
	auth      Authenticator
	registry  *registry.Registry
	limiter   *ratelimit.Limiter
	notifier  Notifier
	events    EventRecorder
	logger    *logging.Logger
	upgrader  websocket.Upgrader
	connLimit int
	period    time.Duration
}

func NewHandler(auth Authenticator, reg *registry.Registry, limiter *ratelimit.Limiter, notifier Notifier, events EventRecorder, connLimit int, period time.Duration, logger *logging.Logger) *Handler {
	return &Handler{
		auth:     auth,
		registry: reg,
		limiter:  limiter,
		notifier: notifier,
		events:   events,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		connLimit: connLimit,
		period:    period,
	}
}

// Connect handles GET /ws/connect/:channel. The bearer token may arrive
// as a query parameter or later as an in-band auth frame; until it does,
// the connection stays unauthenticated on its requested channel.
func (h *Handler) Connect(c *gin.Context) {
	channel := c.Param("channel")
	if channel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrValidation.WithDetails("channel is required")})
		return
	}

	if h.limiter.IsRateLimited(c.Request.Context(), "connect:"+c.ClientIP(), h.connLimit, h.period) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": errs.ErrRateLimited})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("Websocket upgrade failed from %s: %v", c.ClientIP(), err)
		return
	}
	transport := newTransport(raw)

	meta := registry.Metadata{}
	authenticated := false
	if token := c.Query("token"); token != "" {
		principal, err := h.auth.Authenticate(context.Background(), token)
		if err != nil {
			h.rejectAuth(transport, err)
			return
		}
		meta = registry.Metadata{UserID: principal.UserID, Role: principal.Role}
		authenticated = true
		if err := h.auth.TouchSession(context.Background(), principal.UserID); err != nil {
			h.logger.Warnf("Session touch failed for user %s: %v", principal.UserID, err)
		}
	}

	conn, err := h.registry.Connect(transport, channel, meta)
	if err != nil {
		frame := models.NewOutbound(models.FrameError)
		frame.Error = errs.ErrChannelCapacity.WithDetails(channel)
		_ = transport.SendJSON(frame)
		_ = transport.Close(1013, "channel capacity exceeded")
		return
	}

	// Membership in the personal channel is what makes per-user sends
	// reach this connection.
	if authenticated && channel != registry.UserChannel(meta.UserID) {
		if err := h.registry.Subscribe(conn, registry.UserChannel(meta.UserID)); err != nil {
			h.logger.Warnf("Personal channel subscribe failed for user %s: %v", meta.UserID, err)
		}
	}

	welcome := models.NewOutbound(models.FrameConnected)
	welcome.Message = "connected to channel " + channel
	welcome.Channel = channel
	welcome.UserID = meta.UserID
	if err := transport.SendJSON(welcome); err != nil {
		h.registry.Disconnect(conn)
		_ = transport.Close(1011, "welcome send failed")
		return
	}

	h.readLoop(transport, conn)
}

func (h *Handler) readLoop(transport *wsTransport, conn *registry.Connection) {
	defer h.registry.Disconnect(conn)

	for {
		_, raw, err := transport.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warnf("Connection %s read failed: %v", conn.ID, err)
			}
			return
		}
		h.registry.Touch(conn)

		frame, err := models.ParseFrame(raw)
		if err != nil {
			h.sendError(transport, errs.ErrValidation.WithDetails(err.Error()))
			continue
		}

		switch frame.Type {
		case models.FramePing:
			_ = transport.SendJSON(models.NewOutbound(models.FramePong))

		case models.FrameAuth:
			if !h.handleAuth(transport, conn, frame) {
				return
			}

		case models.FrameMessage:
			h.handleMessage(transport, conn, frame)

		case models.FrameNotify:
			h.handleNotification(transport, conn, frame)

		case models.FrameErrorReport:
			h.handleErrorReport(conn, frame)
		}
	}
}

// handleAuth upgrades an anonymous connection in place. On success the
// connection migrates to its personal channel; on failure the connection
// is closed with a policy violation. Returns false when the loop must
// stop.
func (h *Handler) handleAuth(transport *wsTransport, conn *registry.Connection, frame models.Frame) bool {
	principal, err := h.auth.Authenticate(context.Background(), frame.Token)
	if err != nil {
		h.rejectAuth(transport, err)
		h.registry.Disconnect(conn)
		return false
	}

	h.registry.Identify(conn, registry.Metadata{UserID: principal.UserID, Role: principal.Role})
	if err := h.auth.TouchSession(context.Background(), principal.UserID); err != nil {
		h.logger.Warnf("Session touch failed for user %s: %v", principal.UserID, err)
	}

	personal := registry.UserChannel(principal.UserID)
	if conn.Channel != personal {
		if err := h.registry.MigrateChannel(conn, conn.Channel, personal); err != nil {
			h.logger.Warnf("Channel migration failed for connection %s: %v", conn.ID, err)
		}
	}

	success := models.NewOutbound(models.FrameAuthSuccess)
	success.UserID = principal.UserID
	success.Channel = conn.Channel
	success.Message = "authentication successful"
	_ = transport.SendJSON(success)
	return true
}

// handleMessage relays a transient frame to the connection's channel.
// Only admins may fan out to shared channels.
func (h *Handler) handleMessage(transport *wsTransport, conn *registry.Connection, frame models.Frame) {
	if !isAdminRole(conn.Role) && conn.Channel != registry.UserChannel(conn.UserID) {
		h.sendError(transport, errs.ErrPermissionDenied)
		return
	}
	out := models.NewOutbound(models.FrameMessage)
	out.Data = frame.Data
	out.UserID = conn.UserID
	out.Channel = conn.Channel
	if _, err := h.registry.Broadcast(conn.Channel, out); err != nil {
		h.sendError(transport, errs.ErrInternal)
	}
}

// handleNotification routes a persisted notification to a target user
// through the outbox. Admin only.
func (h *Handler) handleNotification(transport *wsTransport, conn *registry.Connection, frame models.Frame) {
	if !isAdminRole(conn.Role) {
		h.sendError(transport, errs.ErrPermissionDenied)
		return
	}
	if frame.TargetUserID == "" {
		h.sendError(transport, errs.ErrValidation.WithDetails("notification frame requires target_user_id"))
		return
	}
	if _, err := h.notifier.SendToUser(context.Background(), frame.TargetUserID, models.FrameNotify, frame.Data, models.PriorityMedium); err != nil {
		h.logger.Errorf("Notification relay from %s to %s failed: %v", conn.UserID, frame.TargetUserID, err)
		h.sendError(transport, errs.ErrInternal)
	}
}

// handleErrorReport lands a client-side error in the structured event
// log, where the alert rules can see it.
func (h *Handler) handleErrorReport(conn *registry.Connection, frame models.Frame) {
	level := frame.Severity
	if level == "" {
		level = models.LevelError
	}
	event := models.LogEvent{
		TraceID:  uuid.New().String(),
		Level:    level,
		Category: models.CategorySystem,
		Action:   "CLIENT_ERROR_REPORT",
		Message:  frame.Message,
		UserID:   conn.UserID,
		Role:     conn.Role,
		Metadata: map[string]string{
			"error_type": frame.ErrorType,
			"component":  frame.Component,
		},
		Timestamp: time.Now(),
	}
	if err := h.events.InsertLogEvent(context.Background(), event); err != nil {
		h.logger.Errorf("Error report from connection %s not recorded: %v", conn.ID, err)
	}
}

// rejectAuth sends the structured error frame and closes with a policy
// violation.
func (h *Handler) rejectAuth(transport *wsTransport, err error) {
	frame := models.NewOutbound(models.FrameError)
	frame.Error = asClientError(err)
	_ = transport.SendJSON(frame)
	_ = transport.Close(websocket.ClosePolicyViolation, "authentication failed")
}

func (h *Handler) sendError(transport *wsTransport, err error) {
	frame := models.NewOutbound(models.FrameError)
	frame.Error = asClientError(err)
	_ = transport.SendJSON(frame)
}

// asClientError maps any error to its client-visible form without
// leaking internals.
func asClientError(err error) *errs.Error {
	var e *errs.Error
	if errors.As(err, &e) {
		if e.Code == errs.ErrInternal.Code {
			return errs.ErrInternal
		}
		return e
	}
	return errs.ErrInternal
}

func isAdminRole(role string) bool {
	return models.Principal{Role: role}.IsAdmin()
}
