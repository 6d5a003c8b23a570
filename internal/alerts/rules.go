package alerts

import (
	"strings"
	"time"

	"realtime-service/internal/models"
)

// Rule is one anomaly detector. Predicate inspects the shared snapshot
// for a cycle and returns the supporting events when it triggers.
type Rule struct {
	Name        string
	Severity    string
	Description string
	Predicate   func(now time.Time, events []models.LogEvent) ([]models.LogEvent, bool)
}

// BuiltinRules returns the standard detection set.
func BuiltinRules() []Rule {
	return []Rule{
		{
			Name:        "brute_force",
			Severity:    models.SeverityCritical,
			Description: "multiple failed authentication attempts from one IP",
			Predicate:   detectBruteForce,
		},
		{
			Name:        "port_scan",
			Severity:    models.SeverityHigh,
			Description: "many distinct endpoints touched by one IP in a short burst",
			Predicate:   detectPortScan,
		},
		{
			Name:        "unusual_hours_access",
			Severity:    models.SeverityMedium,
			Description: "admin action outside working hours",
			Predicate:   detectUnusualHours,
		},
		{
			Name:        "multiple_failures",
			Severity:    models.SeverityHigh,
			Description: "one user failing across several distinct actions",
			Predicate:   detectMultipleFailures,
		},
	}
}

func isFailure(e models.LogEvent) bool {
	return e.Category == models.CategorySecurity && strings.Contains(e.Action, "FAILED")
}

// detectBruteForce triggers on >= 10 failed-auth events from one IP
// within the trailing minute.
func detectBruteForce(now time.Time, events []models.LogEvent) ([]models.LogEvent, bool) {
	cutoff := now.Add(-time.Minute)
	byIP := make(map[string][]models.LogEvent)
	for _, e := range events {
		if isFailure(e) && e.IP != "" && e.Timestamp.After(cutoff) {
			byIP[e.IP] = append(byIP[e.IP], e)
		}
	}
	for _, hits := range byIP {
		if len(hits) >= 10 {
			return hits, true
		}
	}
	return nil, false
}

// detectPortScan triggers on >= 20 distinct endpoints from one IP within
// the trailing 30 seconds.
func detectPortScan(now time.Time, events []models.LogEvent) ([]models.LogEvent, bool) {
	cutoff := now.Add(-30 * time.Second)
	endpoints := make(map[string]map[string]struct{})
	hits := make(map[string][]models.LogEvent)
	for _, e := range events {
		if e.IP == "" || e.Endpoint == "" || !e.Timestamp.After(cutoff) {
			continue
		}
		if _, ok := endpoints[e.IP]; !ok {
			endpoints[e.IP] = make(map[string]struct{})
		}
		endpoints[e.IP][e.Endpoint] = struct{}{}
		hits[e.IP] = append(hits[e.IP], e)
	}
	for ip, eps := range endpoints {
		if len(eps) >= 20 {
			return hits[ip], true
		}
	}
	return nil, false
}

// detectUnusualHours triggers on any admin-category action logged with a
// local hour before 06:00 or after 22:00.
func detectUnusualHours(_ time.Time, events []models.LogEvent) ([]models.LogEvent, bool) {
	var hits []models.LogEvent
	for _, e := range events {
		if e.Category != models.CategoryAuthorization || !strings.Contains(e.Action, "ADMIN") {
			continue
		}
		hour := e.Timestamp.Local().Hour()
		if hour < 6 || hour > 22 {
			hits = append(hits, e)
		}
	}
	return hits, len(hits) > 0
}

// detectMultipleFailures triggers when one user fails >= 3 distinct
// actions within the trailing 5 minutes.
func detectMultipleFailures(now time.Time, events []models.LogEvent) ([]models.LogEvent, bool) {
	cutoff := now.Add(-5 * time.Minute)
	actions := make(map[string]map[string]struct{})
	hits := make(map[string][]models.LogEvent)
	for _, e := range events {
		if !isFailure(e) || e.UserID == "" || !e.Timestamp.After(cutoff) {
			continue
		}
		if _, ok := actions[e.UserID]; !ok {
			actions[e.UserID] = make(map[string]struct{})
		}
		actions[e.UserID][e.Action] = struct{}{}
		hits[e.UserID] = append(hits[e.UserID], e)
	}
	for user, acts := range actions {
		if len(acts) >= 3 {
			return hits[user], true
		}
	}
	return nil, false
}
