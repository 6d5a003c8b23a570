package models

import "time"

// Alert severities, lowest to highest.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert is a triggered security rule with supporting evidence. Alerts are
// ephemeral: constructed per trigger and pushed through the notification
// facade, not persisted by the engine itself.
type Alert struct {
	Rule        string            `json:"rule"`
	Severity    string            `json:"severity"`
	Description string            `json:"description"`
	Events      []LogEvent        `json:"events"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	TriggeredAt time.Time         `json:"triggered_at"`
}

// Broadcastable reports whether the alert is severe enough for the admin
// channel fan-out.
func (a Alert) Broadcastable() bool {
	return a.Severity == SeverityHigh || a.Severity == SeverityCritical
}
