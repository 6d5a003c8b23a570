package registry

import (
	"time"

	"realtime-service/internal/errs"
)

// Stats is the registry-wide snapshot served by the admin surface.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveChannels   int            `json:"active_channels"`
	PerChannel       map[string]int `json:"connections_per_channel"`
}

// ChannelInfo summarizes one active channel.
type ChannelInfo struct {
	Channel        string `json:"channel"`
	Connections    int    `json:"connections"`
	UsersConnected int    `json:"users_connected"`
}

// UserConnection describes one live connection of a user.
type UserConnection struct {
	UserID          string    `json:"user_id"`
	Channel         string    `json:"channel"`
	ConnectedSince  time.Time `json:"connected_since"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// Snapshot returns current totals and per-channel counts.
func (r *Registry) Snapshot() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := Stats{PerChannel: make(map[string]int, len(r.channels))}
	for name, set := range r.channels {
		stats.PerChannel[name] = len(set)
		stats.TotalConnections += len(set)
	}
	stats.ActiveChannels = len(r.channels)
	return stats
}

// Channels lists active channels with connection and distinct-user counts.
func (r *Registry) Channels() []ChannelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]ChannelInfo, 0, len(r.channels))
	for name, set := range r.channels {
		users := make(map[string]struct{})
		for conn := range set {
			if conn.UserID != "" {
				users[conn.UserID] = struct{}{}
			}
		}
		infos = append(infos, ChannelInfo{
			Channel:        name,
			Connections:    len(set),
			UsersConnected: len(users),
		})
	}
	return infos
}

// ConnectedUsers lists every live connection that carries a user id.
func (r *Registry) ConnectedUsers() []UserConnection {
	now := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	var users []UserConnection
	for name, set := range r.channels {
		for conn := range set {
			if conn.UserID == "" {
				continue
			}
			users = append(users, UserConnection{
				UserID:          conn.UserID,
				Channel:         name,
				ConnectedSince:  conn.ConnectedAt,
				DurationSeconds: now.Sub(conn.ConnectedAt).Seconds(),
			})
		}
	}
	return users
}

// UserInfo returns the live connections of one user.
func (r *Registry) UserInfo(userID string) []UserConnection {
	var conns []UserConnection
	for _, uc := range r.ConnectedUsers() {
		if uc.UserID == userID {
			conns = append(conns, uc)
		}
	}
	return conns
}

// CloseChannel force-closes every connection in a channel and removes it.
// Returns the number of connections closed.
func (r *Registry) CloseChannel(channel string) (int, error) {
	r.mu.Lock()
	set, ok := r.channels[channel]
	if !ok {
		r.mu.Unlock()
		return 0, errs.ErrChannelNotFound.WithDetails(channel)
	}
	conns := make([]*Connection, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	r.mu.Unlock()

	for _, conn := range conns {
		_ = conn.transport.Close(1000, "channel closed by admin")
		r.Disconnect(conn)
	}
	return len(conns), nil
}

// DisconnectUser force-closes every connection of a user. Returns the
// number of connections closed, or ErrUserNotFound if the user has none.
func (r *Registry) DisconnectUser(userID string) (int, error) {
	r.mu.RLock()
	var conns []*Connection
	seen := make(map[*Connection]struct{})
	for _, set := range r.channels {
		for conn := range set {
			if conn.UserID != userID {
				continue
			}
			if _, dup := seen[conn]; dup {
				continue
			}
			seen[conn] = struct{}{}
			conns = append(conns, conn)
		}
	}
	r.mu.RUnlock()

	if len(conns) == 0 {
		return 0, errs.ErrUserNotFound.WithDetails(userID)
	}
	for _, conn := range conns {
		_ = conn.transport.Close(1000, "disconnected by admin")
		r.Disconnect(conn)
	}
	return len(conns), nil
}
