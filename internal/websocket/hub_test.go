package websocket

import (
	"testing"
	"time"

	"tradegate/internal/models"
	"tradegate/internal/risk"
)

// ============================================================
// Unit Tests
// ============================================================

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}

	if hub.DroppedMessages() != 0 {
		t.Errorf("expected 0 dropped messages, got %d", hub.DroppedMessages())
	}
}

func TestOriginChecker_Check(t *testing.T) {
	checker := &OriginChecker{
		allowedOrigins: map[string]struct{}{
			"http://localhost:3000": {},
			"https://example.com":   {},
		},
		allowAll: false,
	}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},                       // empty origin allowed
		{"http://localhost:3000", true},  // allowed
		{"https://example.com", true},    // allowed
		{"http://evil.com", false},       // not allowed
		{"http://localhost:8080", false}, // not in list
	}

	for _, tt := range tests {
		got := checker.Check(tt.origin)
		if got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginChecker_AllowAll(t *testing.T) {
	checker := &OriginChecker{
		allowAll: true,
	}

	origins := []string{
		"http://localhost:3000",
		"https://evil.com",
		"http://anything.example.org",
	}

	for _, origin := range origins {
		if !checker.Check(origin) {
			t.Errorf("allowAll=true but Check(%q) = false", origin)
		}
	}
}

func TestHub_BroadcastNonBlocking(t *testing.T) {
	// Run намеренно не запущен: канал переполняется
	hub := NewHub()

	for i := 0; i < 1000; i++ {
		hub.Broadcast(map[string]int{"i": i})
	}

	if hub.DroppedMessages() == 0 {
		t.Error("expected dropped messages with full broadcast channel")
	}
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub()

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	hub.Stop()

	select {
	case <-done:
		// Run() завершился
	case <-time.After(1 * time.Second):
		t.Error("Hub.Run() did not exit after Stop()")
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	client := &Client{
		hub:  hub,
		send: make(chan []byte, clientSendBufferSize),
	}

	hub.register <- client
	waitForClients(t, hub, 1)

	hub.unregister <- client
	waitForClients(t, hub, 0)

	// Канал клиента должен быть закрыт
	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected send channel to be closed")
		}
	case <-time.After(time.Second):
		t.Error("send channel not closed after unregister")
	}
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	client := &Client{
		hub:  hub,
		send: make(chan []byte, clientSendBufferSize),
	}
	hub.register <- client
	waitForClients(t, hub, 1)

	order := &models.OrderRecord{
		IdempotencyKey: "key-1",
		Exchange:       "binance",
		Symbol:         "BTCUSDT",
		Side:           models.SideBuy,
		Quantity:       0.002,
		Status:         models.OrderStatusFilled,
	}
	hub.BroadcastOrderUpdate(order)

	select {
	case raw := <-client.send:
		var msg OrderUpdateMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("failed to decode broadcast: %v", err)
		}
		if msg.Type != MessageTypeOrderUpdate {
			t.Errorf("expected type %q, got %q", MessageTypeOrderUpdate, msg.Type)
		}
		if msg.Order == nil || msg.Order.Symbol != "BTCUSDT" {
			t.Error("expected order record in broadcast")
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast did not reach client")
	}
}

func TestHub_SlowClientRemoved(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	// Клиент с забитым буфером в один слот
	slow := &Client{
		hub:  hub,
		send: make(chan []byte, 1),
	}
	slow.send <- []byte("stale")

	hub.register <- slow
	waitForClients(t, hub, 1)

	hub.BroadcastRiskUpdate(risk.Status{State: risk.StateOpen})
	waitForClients(t, hub, 0)
}

func TestHub_ConsumeNotifications(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	client := &Client{
		hub:  hub,
		send: make(chan []byte, clientSendBufferSize),
	}
	hub.register <- client
	waitForClients(t, hub, 1)

	ch := make(chan *models.Notification, 4)
	go hub.ConsumeNotifications(ch)

	ch <- models.NewNotification(models.NotificationTypeFill, models.SeverityInfo, "binance", "order %s filled", "key-1")
	close(ch)

	select {
	case raw := <-client.send:
		var msg NotificationMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("failed to decode broadcast: %v", err)
		}
		if msg.Data == nil || msg.Data.Type != models.NotificationTypeFill {
			t.Error("expected FILL notification in broadcast")
		}
	case <-time.After(time.Second):
		t.Fatal("notification did not reach client")
	}
}

// waitForClients ждет пока число клиентов hub не станет равно want
func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d clients, got %d", want, hub.ClientCount())
}
