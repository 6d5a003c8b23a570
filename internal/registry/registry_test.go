package registry

import (
	"errors"
	"fmt"
	"testing"

	"realtime-service/internal/errs"
	"realtime-service/internal/logging"
	"realtime-service/internal/metrics"
	"realtime-service/internal/models"
)

type fakeTransport struct {
	sent   [][]byte
	failAt int // fail every send when > 0 and len(sent) >= failAt
	closed bool
}

func (t *fakeTransport) Send(payload []byte) error {
	if t.failAt > 0 && len(t.sent)+1 >= t.failAt {
		return errors.New("transport broken")
	}
	t.sent = append(t.sent, payload)
	return nil
}

func (t *fakeTransport) Close(code int, reason string) error {
	t.closed = true
	return nil
}

func newTestRegistry(maxPerChannel int) *Registry {
	return New(maxPerChannel, metrics.NopSink{}, logging.Discard())
}

func TestConnectDisconnectMembership(t *testing.T) {
	reg := newTestRegistry(0)
	const n, m = 7, 4

	conns := make([]*Connection, 0, n)
	for i := 0; i < n; i++ {
		conn, err := reg.Connect(&fakeTransport{}, "orders", Metadata{UserID: fmt.Sprintf("u%d", i)})
		if err != nil {
			t.Fatalf("connect %d failed: %v", i, err)
		}
		conns = append(conns, conn)
	}
	for i := 0; i < m; i++ {
		reg.Disconnect(conns[i])
	}

	stats := reg.Snapshot()
	if got := stats.PerChannel["orders"]; got != n-m {
		t.Errorf("expected %d members, got %d", n-m, got)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	reg := newTestRegistry(0)
	conn, err := reg.Connect(&fakeTransport{}, "orders", Metadata{UserID: "u1"})
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	reg.Disconnect(conn)
	reg.Disconnect(conn) // must be a no-op

	if stats := reg.Snapshot(); stats.TotalConnections != 0 {
		t.Errorf("expected empty registry, got %d connections", stats.TotalConnections)
	}
}

func TestBroadcastEmptyChannel(t *testing.T) {
	reg := newTestRegistry(0)
	res, err := reg.Broadcast("nobody-home", models.NewOutbound(models.FrameMessage))
	if err != nil {
		t.Fatalf("broadcast on empty channel should not fail: %v", err)
	}
	if res.Attempted != 0 || res.Delivered != 0 {
		t.Errorf("expected zero deliveries, got %+v", res)
	}
}

func TestBroadcastSelfHealing(t *testing.T) {
	reg := newTestRegistry(0)
	healthy := &fakeTransport{}
	broken := &fakeTransport{failAt: 1}

	if _, err := reg.Connect(healthy, "orders", Metadata{UserID: "good"}); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if _, err := reg.Connect(broken, "orders", Metadata{UserID: "bad"}); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	res, err := reg.Broadcast("orders", models.NewOutbound(models.FrameMessage))
	if err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}
	if res.Attempted != 2 || res.Delivered != 1 {
		t.Errorf("expected 1/2 delivered, got %+v", res)
	}
	if len(healthy.sent) != 1 {
		t.Errorf("healthy transport should have received the frame")
	}
	if !broken.closed {
		t.Errorf("broken transport should have been closed")
	}
	if got := reg.Snapshot().PerChannel["orders"]; got != 1 {
		t.Errorf("broken connection should have been removed, membership = %d", got)
	}
}

func TestBroadcastAssignsDeliveryID(t *testing.T) {
	reg := newTestRegistry(0)
	tr := &fakeTransport{}
	if _, err := reg.Connect(tr, "orders", Metadata{}); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	if _, err := reg.Broadcast("orders", models.NewOutbound(models.FrameMessage)); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}
	if _, err := reg.Broadcast("orders", models.NewOutbound(models.FrameMessage)); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}
	if len(tr.sent) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(tr.sent))
	}
	if string(tr.sent[0]) == string(tr.sent[1]) {
		t.Errorf("each broadcast should carry a distinct delivery id")
	}
}

func TestSendToUser(t *testing.T) {
	reg := newTestRegistry(0)
	tr := &fakeTransport{}
	if _, err := reg.Connect(tr, UserChannel("u42"), Metadata{UserID: "u42"}); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	res, err := reg.SendToUser("u42", models.NewOutbound(models.FrameNotify))
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if res.Delivered != 1 {
		t.Errorf("expected 1 delivery, got %+v", res)
	}
}

func TestChannelCapacity(t *testing.T) {
	reg := newTestRegistry(1)
	if _, err := reg.Connect(&fakeTransport{}, "orders", Metadata{}); err != nil {
		t.Fatalf("first connect failed: %v", err)
	}
	_, err := reg.Connect(&fakeTransport{}, "orders", Metadata{})
	if !errors.Is(err, errs.ErrChannelCapacity) {
		t.Errorf("expected ErrChannelCapacity, got %v", err)
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	reg := newTestRegistry(0)
	conn, err := reg.Connect(&fakeTransport{}, "orders", Metadata{UserID: "u1"})
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	if err := reg.Subscribe(conn, "inventory"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if got := reg.Snapshot().PerChannel["inventory"]; got != 1 {
		t.Errorf("expected membership in secondary channel, got %d", got)
	}

	if err := reg.Unsubscribe(conn, "orders"); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("unsubscribing the primary channel must fail, got %v", err)
	}
	if err := reg.Unsubscribe(conn, "inventory"); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	if _, ok := reg.Snapshot().PerChannel["inventory"]; ok {
		t.Errorf("empty channel should have been removed")
	}

	// Disconnect clears the primary registration too.
	reg.Disconnect(conn)
	if stats := reg.Snapshot(); stats.TotalConnections != 0 {
		t.Errorf("expected empty registry, got %+v", stats)
	}
}

func TestMigrateChannel(t *testing.T) {
	reg := newTestRegistry(0)
	conn, err := reg.Connect(&fakeTransport{}, "guest", Metadata{})
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	if err := reg.MigrateChannel(conn, "guest", UserChannel("u9")); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if conn.Channel != UserChannel("u9") {
		t.Errorf("primary channel should follow the migration, got %s", conn.Channel)
	}
	stats := reg.Snapshot()
	if _, ok := stats.PerChannel["guest"]; ok {
		t.Errorf("source channel should be empty after migration")
	}
	if got := stats.PerChannel[UserChannel("u9")]; got != 1 {
		t.Errorf("expected membership in target channel, got %d", got)
	}

	if err := reg.MigrateChannel(conn, "guest", "elsewhere"); !errors.Is(err, errs.ErrChannelNotFound) {
		t.Errorf("migrating from a non-member channel must fail, got %v", err)
	}
}

func TestCloseChannel(t *testing.T) {
	reg := newTestRegistry(0)
	t1, t2 := &fakeTransport{}, &fakeTransport{}
	if _, err := reg.Connect(t1, "orders", Metadata{UserID: "u1"}); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if _, err := reg.Connect(t2, "orders", Metadata{UserID: "u2"}); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	closed, err := reg.CloseChannel("orders")
	if err != nil {
		t.Fatalf("close channel failed: %v", err)
	}
	if closed != 2 {
		t.Errorf("expected 2 closed connections, got %d", closed)
	}
	if !t1.closed || !t2.closed {
		t.Errorf("transports should have been closed")
	}

	if _, err := reg.CloseChannel("orders"); !errors.Is(err, errs.ErrChannelNotFound) {
		t.Errorf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestDisconnectUser(t *testing.T) {
	reg := newTestRegistry(0)
	tr := &fakeTransport{}
	if _, err := reg.Connect(tr, UserChannel("u1"), Metadata{UserID: "u1"}); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	closed, err := reg.DisconnectUser("u1")
	if err != nil {
		t.Fatalf("disconnect user failed: %v", err)
	}
	if closed != 1 || !tr.closed {
		t.Errorf("expected the user's connection to be closed")
	}

	if _, err := reg.DisconnectUser("u1"); !errors.Is(err, errs.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
