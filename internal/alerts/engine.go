package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"realtime-service/internal/logging"
	"realtime-service/internal/models"
)

// EventSource yields structured log events since a timestamp.
type EventSource interface {
	EventsSince(ctx context.Context, since time.Time) ([]models.LogEvent, error)
}

// Notifier pushes triggered alerts to their recipients.
type Notifier interface {
	SendSystemAlert(ctx context.Context, alert models.Alert) error
}

const maxSupportingEvents = 5
const recentAlertCap = 100

// Engine evaluates the rule set over a rolling window of log events on a
// fixed timer. Every rule in a cycle sees the same snapshot; a failing
// rule or a failing cycle is logged and skipped, never fatal.
type Engine struct {
	source    EventSource
	notifier  Notifier
	rules     []Rule
	interval  time.Duration
	timeframe time.Duration
	logger    *logging.Logger

	stop chan struct{}
	done chan struct{}

	mu     sync.Mutex
	recent []models.Alert
}

func NewEngine(source EventSource, notifier Notifier, rules []Rule, interval, timeframe time.Duration, logger *logging.Logger) *Engine {
	return &Engine{
		source:    source,
		notifier:  notifier,
		rules:     rules,
		interval:  interval,
		timeframe: timeframe,
		logger:    logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the evaluation loop.
func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
}

// Stop signals the loop to halt and waits for the current cycle to
// finish.
func (e *Engine) Stop() {
	close(e.stop)
	<-e.done
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Infof("Alert engine started (interval=%s, timeframe=%s, rules=%d)", e.interval, e.timeframe, len(e.rules))
	for {
		select {
		case <-e.stop:
			e.logger.Infof("Alert engine stopped")
			return
		case <-ctx.Done():
			e.logger.Infof("Alert engine context cancelled")
			return
		case <-ticker.C:
			e.safeCycle(ctx)
		}
	}
}

// safeCycle shields the loop: one bad cycle must never stop the detector.
func (e *Engine) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("Alert cycle panicked: %v", r)
		}
	}()
	if err := e.Evaluate(ctx); err != nil {
		e.logger.Errorf("Alert cycle failed: %v", err)
	}
}

// Evaluate runs one full cycle: fetch the snapshot once, run every rule
// against it, and push any triggered alerts.
func (e *Engine) Evaluate(ctx context.Context) error {
	now := time.Now()
	events, err := e.source.EventsSince(ctx, now.Add(-e.timeframe))
	if err != nil {
		return fmt.Errorf("event snapshot failed: %w", err)
	}

	for _, rule := range e.rules {
		alert, triggered := e.evaluateRule(rule, now, events)
		if !triggered {
			continue
		}
		e.remember(alert)
		e.logger.Warnf("Alert triggered: rule=%s severity=%s events=%d", alert.Rule, alert.Severity, len(events))
		if err := e.notifier.SendSystemAlert(ctx, alert); err != nil {
			e.logger.Errorf("Alert dispatch failed for rule %s: %v", rule.Name, err)
		}
	}
	return nil
}

// evaluateRule isolates a single rule: a panicking predicate is logged
// and treated as not triggered.
func (e *Engine) evaluateRule(rule Rule, now time.Time, events []models.LogEvent) (alert models.Alert, triggered bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("Rule %s panicked: %v", rule.Name, r)
			triggered = false
		}
	}()

	supporting, ok := rule.Predicate(now, events)
	if !ok {
		return models.Alert{}, false
	}
	if len(supporting) > maxSupportingEvents {
		supporting = supporting[:maxSupportingEvents]
	}
	return models.Alert{
		Rule:        rule.Name,
		Severity:    rule.Severity,
		Description: rule.Description,
		Events:      supporting,
		Metadata: map[string]string{
			"rule":                  rule.Name,
			"description":           rule.Description,
			"timeframe":             fmt.Sprintf("%dmin", int(e.timeframe.Minutes())),
			"total_events_analyzed": fmt.Sprintf("%d", len(events)),
		},
		TriggeredAt: now,
	}, true
}

func (e *Engine) remember(alert models.Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recent = append(e.recent, alert)
	if len(e.recent) > recentAlertCap {
		e.recent = e.recent[len(e.recent)-recentAlertCap:]
	}
}

// RecentAlerts returns the retained alerts, newest last.
func (e *Engine) RecentAlerts() []models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Alert, len(e.recent))
	copy(out, e.recent)
	return out
}
