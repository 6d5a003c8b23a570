package models

import "time"

// Log levels.
const (
	LevelDebug    = "debug"
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelError    = "error"
	LevelCritical = "critical"
)

// Log categories.
const (
	CategoryAuth          = "auth"
	CategoryAuthorization = "authorization"
	CategoryInventory     = "inventory"
	CategorySales         = "sales"
	CategorySecurity      = "security"
	CategorySystem        = "system"
	CategoryDatabase      = "database"
	CategoryAPI           = "api"
)

// LogEvent is one structured audit record. Produced by request-handling
// middleware upstream; this service consumes them read-only for anomaly
// detection.
type LogEvent struct {
	TraceID   string            `json:"trace_id"`
	Level     string            `json:"level"`
	Category  string            `json:"category"`
	Action    string            `json:"action"`
	Message   string            `json:"message"`
	UserID    string            `json:"user_id,omitempty"`
	Role      string            `json:"role,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Endpoint  string            `json:"endpoint,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Validate checks the fields every ingested event must carry.
func (e LogEvent) Validate() bool {
	return e.TraceID != "" && e.Level != "" && e.Category != "" &&
		e.Action != "" && e.Message != "" && !e.Timestamp.IsZero()
}
