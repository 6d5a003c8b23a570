package notification

import (
	"context"
	"testing"

	"realtime-service/internal/logging"
	"realtime-service/internal/models"
	"realtime-service/internal/registry"
)

type fakeBroadcaster struct {
	result   registry.Result
	channels []string
	frames   []models.OutboundFrame
}

func (b *fakeBroadcaster) Broadcast(channel string, frame models.OutboundFrame) (registry.Result, error) {
	b.channels = append(b.channels, channel)
	b.frames = append(b.frames, frame)
	return b.result, nil
}

func (b *fakeBroadcaster) SendToUser(userID string, frame models.OutboundFrame) (registry.Result, error) {
	return b.Broadcast(registry.UserChannel(userID), frame)
}

type fakeOutbox struct {
	enqueued  []models.OutboxMessage
	delivered []string
	failed    []string
}

func (o *fakeOutbox) Enqueue(_ context.Context, m models.OutboxMessage) error {
	o.enqueued = append(o.enqueued, m)
	return nil
}

func (o *fakeOutbox) MarkDelivered(_ context.Context, id string) error {
	o.delivered = append(o.delivered, id)
	return nil
}

func (o *fakeOutbox) MarkFailed(_ context.Context, id string) error {
	o.failed = append(o.failed, id)
	return nil
}

func newTestService(b *fakeBroadcaster, o *fakeOutbox) *Service {
	return New(b, o, "admin_alerts", logging.Discard())
}

func TestSendToUserDelivered(t *testing.T) {
	b := &fakeBroadcaster{result: registry.Result{Attempted: 2, Delivered: 2}}
	o := &fakeOutbox{}
	svc := newTestService(b, o)

	id, err := svc.SendToUser(context.Background(), "u1", "notification", map[string]string{"k": "v"}, models.PriorityMedium)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a message id")
	}
	if len(o.enqueued) != 1 || o.enqueued[0].Channel != registry.UserChannel("u1") {
		t.Errorf("message should be enqueued to the personal channel, got %+v", o.enqueued)
	}
	if len(o.delivered) != 1 || o.delivered[0] != id {
		t.Errorf("message should be marked delivered, got %+v", o.delivered)
	}
}

func TestSendToUserNoSubscribersStillDelivered(t *testing.T) {
	b := &fakeBroadcaster{result: registry.Result{Attempted: 0, Delivered: 0}}
	o := &fakeOutbox{}
	svc := newTestService(b, o)

	id, err := svc.SendToUser(context.Background(), "offline", "notification", "hello", models.PriorityLow)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	// Absence of subscribers is not a delivery failure: the message is
	// persisted and nobody existed to fail against.
	if len(o.delivered) != 1 || o.delivered[0] != id {
		t.Errorf("expected delivered, got delivered=%v failed=%v", o.delivered, o.failed)
	}
}

func TestSendToUserAllRecipientsFailed(t *testing.T) {
	b := &fakeBroadcaster{result: registry.Result{Attempted: 3, Delivered: 0}}
	o := &fakeOutbox{}
	svc := newTestService(b, o)

	id, err := svc.SendToUser(context.Background(), "u1", "notification", "hello", models.PriorityHigh)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(o.failed) != 1 || o.failed[0] != id {
		t.Errorf("expected failed when every attempted recipient rejected, got delivered=%v failed=%v", o.delivered, o.failed)
	}
}

func TestSendToAdminsUsesAdminChannel(t *testing.T) {
	b := &fakeBroadcaster{result: registry.Result{Attempted: 1, Delivered: 1}}
	o := &fakeOutbox{}
	svc := newTestService(b, o)

	if _, err := svc.SendToAdmins(context.Background(), "system_alert", "notice", models.PriorityCritical); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(b.channels) != 1 || b.channels[0] != "admin_alerts" {
		t.Errorf("expected broadcast to admin channel, got %v", b.channels)
	}
}

func TestSystemAlertLowSeverityPersistsWithoutBroadcast(t *testing.T) {
	b := &fakeBroadcaster{result: registry.Result{Attempted: 1, Delivered: 1}}
	o := &fakeOutbox{}
	svc := newTestService(b, o)

	alert := models.Alert{Rule: "unusual_hours_access", Severity: models.SeverityMedium}
	if err := svc.SendSystemAlert(context.Background(), alert); err != nil {
		t.Fatalf("alert failed: %v", err)
	}
	if len(b.channels) != 0 {
		t.Errorf("medium severity must not broadcast, got %v", b.channels)
	}
	if len(o.enqueued) != 1 {
		t.Errorf("alert must always be persisted, got %d rows", len(o.enqueued))
	}
}

func TestSystemAlertHighSeverityBroadcasts(t *testing.T) {
	b := &fakeBroadcaster{result: registry.Result{Attempted: 1, Delivered: 1}}
	o := &fakeOutbox{}
	svc := newTestService(b, o)

	alert := models.Alert{Rule: "brute_force", Severity: models.SeverityCritical}
	if err := svc.SendSystemAlert(context.Background(), alert); err != nil {
		t.Fatalf("alert failed: %v", err)
	}
	if len(b.channels) != 1 || b.channels[0] != "admin_alerts" {
		t.Errorf("critical severity must reach the admin channel, got %v", b.channels)
	}
}

func TestSystemAlertNotifiesListedUsers(t *testing.T) {
	b := &fakeBroadcaster{result: registry.Result{Attempted: 1, Delivered: 1}}
	o := &fakeOutbox{}
	svc := newTestService(b, o)

	alert := models.Alert{
		Rule:     "multiple_failures",
		Severity: models.SeverityHigh,
		Metadata: map[string]string{"user_ids": "u1, u2"},
	}
	if err := svc.SendSystemAlert(context.Background(), alert); err != nil {
		t.Fatalf("alert failed: %v", err)
	}

	want := map[string]bool{
		"admin_alerts":             true,
		registry.UserChannel("u1"): true,
		registry.UserChannel("u2"): true,
	}
	if len(b.channels) != len(want) {
		t.Fatalf("expected %d broadcasts, got %v", len(want), b.channels)
	}
	for _, ch := range b.channels {
		if !want[ch] {
			t.Errorf("unexpected broadcast channel %s", ch)
		}
	}
}
