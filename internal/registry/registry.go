package registry

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"realtime-service/internal/errs"
	"realtime-service/internal/logging"
	"realtime-service/internal/models"
)

// Transport abstracts one bidirectional client connection.
type Transport interface {
	Send(payload []byte) error
	Close(code int, reason string) error
}

// MetricsSink receives registry event records. Implementations must not
// block; failures stay inside the sink.
type MetricsSink interface {
	Record(m models.ConnectionMetric)
}

// Metadata is the identity attached to a connection at registration.
type Metadata struct {
	UserID string
	Role   string
}

// Connection is the registry's record of one registered transport. It is
// owned exclusively by the registry from Connect until Disconnect.
type Connection struct {
	ID           string
	Channel      string // primary channel
	UserID       string
	Role         string
	ConnectedAt  time.Time
	LastActivity time.Time

	transport Transport
	channels  map[string]struct{} // guarded by the registry mutex
}

// Registry is the in-memory channel -> connection-set map. All map
// mutation happens under mu; transport sends happen outside it.
type Registry struct {
	mu            sync.RWMutex
	channels      map[string]map[*Connection]struct{}
	maxPerChannel int
	metrics       MetricsSink
	logger        *logging.Logger
}

// New constructs a Registry. maxPerChannel <= 0 disables the capacity
// check.
func New(maxPerChannel int, metrics MetricsSink, logger *logging.Logger) *Registry {
	return &Registry{
		channels:      make(map[string]map[*Connection]struct{}),
		maxPerChannel: maxPerChannel,
		metrics:       metrics,
		logger:        logger,
	}
}

// UserChannel is the per-user broadcast group name.
func UserChannel(userID string) string {
	return "user_" + userID
}

// Connect registers the transport under channel and returns the owned
// Connection.
func (r *Registry) Connect(t Transport, channel string, meta Metadata) (*Connection, error) {
	now := time.Now()
	conn := &Connection{
		ID:           uuid.New().String(),
		Channel:      channel,
		UserID:       meta.UserID,
		Role:         meta.Role,
		ConnectedAt:  now,
		LastActivity: now,
		transport:    t,
		channels:     map[string]struct{}{channel: {}},
	}

	r.mu.Lock()
	if r.maxPerChannel > 0 && len(r.channels[channel]) >= r.maxPerChannel {
		r.mu.Unlock()
		r.record(conn, channel, "connect", false, "channel capacity exceeded", 0)
		return nil, errs.ErrChannelCapacity.WithDetails(channel)
	}
	if _, ok := r.channels[channel]; !ok {
		r.channels[channel] = make(map[*Connection]struct{})
	}
	r.channels[channel][conn] = struct{}{}
	r.mu.Unlock()

	r.record(conn, channel, "connect", true, "", 0)
	r.logger.Infof("Connection %s registered on channel %s (user=%s)", conn.ID, channel, meta.UserID)
	return conn, nil
}

// Disconnect removes the connection from every channel it belongs to.
// Disconnecting an already-removed connection is a no-op.
func (r *Registry) Disconnect(conn *Connection) {
	r.mu.Lock()
	removed := false
	for name := range conn.channels {
		if set, ok := r.channels[name]; ok {
			if _, member := set[conn]; member {
				delete(set, conn)
				removed = true
				if len(set) == 0 {
					delete(r.channels, name)
				}
			}
		}
	}
	conn.channels = map[string]struct{}{}
	r.mu.Unlock()

	if removed {
		duration := time.Since(conn.ConnectedAt)
		r.record(conn, conn.Channel, "disconnect", true, "", duration.Milliseconds())
		r.logger.Infof("Connection %s disconnected after %s", conn.ID, duration.Round(time.Millisecond))
	}
}

// Subscribe adds the connection to an additional channel.
func (r *Registry) Subscribe(conn *Connection, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(conn.channels) == 0 {
		return errs.ErrValidation.WithDetails("connection is not registered")
	}
	if r.maxPerChannel > 0 && len(r.channels[channel]) >= r.maxPerChannel {
		return errs.ErrChannelCapacity.WithDetails(channel)
	}
	if _, ok := r.channels[channel]; !ok {
		r.channels[channel] = make(map[*Connection]struct{})
	}
	r.channels[channel][conn] = struct{}{}
	conn.channels[channel] = struct{}{}
	return nil
}

// Unsubscribe removes the connection from an additional channel. The
// primary registration is untouchable through this path.
func (r *Registry) Unsubscribe(conn *Connection, channel string) error {
	if channel == conn.Channel {
		return errs.ErrValidation.WithDetails("cannot unsubscribe from primary channel")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.channels[channel]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.channels, channel)
		}
	}
	delete(conn.channels, channel)
	return nil
}

// MigrateChannel moves the connection between channels while preserving
// the transport. Used for the session upgrade after in-band auth.
func (r *Registry) MigrateChannel(conn *Connection, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, member := conn.channels[from]; !member {
		return errs.ErrChannelNotFound.WithDetails(from)
	}
	if set, ok := r.channels[from]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.channels, from)
		}
	}
	delete(conn.channels, from)

	if _, ok := r.channels[to]; !ok {
		r.channels[to] = make(map[*Connection]struct{})
	}
	r.channels[to][conn] = struct{}{}
	conn.channels[to] = struct{}{}
	if conn.Channel == from {
		conn.Channel = to
	}
	r.logger.Infof("Connection %s migrated %s -> %s", conn.ID, from, to)
	return nil
}

// Result reports the outcome of one broadcast.
type Result struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
}

// Broadcast delivers the frame to every connection in the channel.
// Transports whose send fails are disconnected (self-healing membership).
// A channel with no subscribers yields zero deliveries, not an error.
func (r *Registry) Broadcast(channel string, frame models.OutboundFrame) (Result, error) {
	frame.DeliveryID = uuid.New().String()
	frame.Timestamp = time.Now()
	payload, err := json.Marshal(frame)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal broadcast frame: %w", err)
	}

	// Snapshot recipients so sends happen outside the lock and a
	// mid-broadcast disconnect cannot abort the remaining deliveries.
	r.mu.RLock()
	recipients := make([]*Connection, 0, len(r.channels[channel]))
	for conn := range r.channels[channel] {
		recipients = append(recipients, conn)
	}
	r.mu.RUnlock()

	start := time.Now()
	res := Result{Attempted: len(recipients)}
	var failed []*Connection
	for _, conn := range recipients {
		if err := conn.transport.Send(payload); err != nil {
			r.logger.Warnf("Send to connection %s failed on channel %s: %v", conn.ID, channel, err)
			failed = append(failed, conn)
			continue
		}
		res.Delivered++
	}

	for _, conn := range failed {
		_ = conn.transport.Close(1011, "send failed")
		r.Disconnect(conn)
	}

	r.metrics.Record(models.ConnectionMetric{
		ConnectionID: frame.DeliveryID,
		Channel:      channel,
		EventType:    "broadcast",
		Success:      len(failed) == 0,
		DurationMS:   time.Since(start).Milliseconds(),
		Timestamp:    time.Now(),
	})
	return res, nil
}

// SendToUser broadcasts to the user's personal channel.
func (r *Registry) SendToUser(userID string, frame models.OutboundFrame) (Result, error) {
	return r.Broadcast(UserChannel(userID), frame)
}

// Identify attaches (or replaces) the authenticated identity on a live
// connection, for transports that authenticate after registering.
func (r *Registry) Identify(conn *Connection, meta Metadata) {
	r.mu.Lock()
	conn.UserID = meta.UserID
	conn.Role = meta.Role
	r.mu.Unlock()
}

// Touch bumps the connection's last-activity timestamp.
func (r *Registry) Touch(conn *Connection) {
	r.mu.Lock()
	conn.LastActivity = time.Now()
	r.mu.Unlock()
}

func (r *Registry) record(conn *Connection, channel, event string, success bool, errMsg string, durationMS int64) {
	r.metrics.Record(models.ConnectionMetric{
		ConnectionID: conn.ID,
		UserID:       conn.UserID,
		Channel:      channel,
		EventType:    event,
		Success:      success,
		ErrorMessage: errMsg,
		DurationMS:   durationMS,
		Timestamp:    time.Now(),
	})
}
