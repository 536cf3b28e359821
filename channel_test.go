package frontdesk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// ============================================================================
// Helpers
// ============================================================================

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) HandleEvent(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) count(typ string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (l *eventLog) last(typ string) (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Type == typ {
			return l.events[i], true
		}
	}
	return Event{}, false
}

func (l *eventLog) watch(m *ChannelManager, types ...string) *eventLog {
	for _, typ := range types {
		m.Subscribe(typ, l)
	}
	return l
}

func newTestChannel(t *testing.T, cfg ChannelConfig) (*ChannelManager, *fakeDialer, *recordingNotifier) {
	t.Helper()
	d := newFakeDialer()
	notes := &recordingNotifier{}
	cfg.URL = "wss://realtime.test/ws"
	cfg.Dialer = d
	cfg.Notifier = notes
	cfg.Logger = zerolog.Nop()
	if cfg.Store == nil {
		cfg.Store = NewMemoryCredentialStore(Credentials{AccessToken: "tok", UserID: "u1"})
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = time.Hour
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 10 * time.Millisecond
	}
	m := NewChannelManager(cfg)
	t.Cleanup(func() { _ = m.Close() })
	return m, d, notes
}

// openChannel connects m and completes the auth handshake.
func openChannel(t *testing.T, m *ChannelManager, d *fakeDialer) *fakeSocket {
	t.Helper()
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s := d.next(t)
	if got := s.nextWrite(t); got != `{"type":"auth","token":"tok"}` {
		t.Fatalf("auth message = %s", got)
	}
	s.send(`{"type":"connected","userId":"u1"}`)
	waitFor(t, "channel open", func() bool { return m.State() == StateOpen })
	return s
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestChannelConnect(t *testing.T) {
	m, d, _ := newTestChannel(t, ChannelConfig{HeartbeatInterval: 10 * time.Millisecond})
	var (
		mu     sync.Mutex
		states []ChannelState
	)
	m.StateValue().Subscribe(func(s ChannelState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})
	events := (&eventLog{}).watch(m, EventConnected, EventChannelOpen)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s := d.next(t)
	if got := s.nextWrite(t); got != `{"type":"auth","token":"tok"}` {
		t.Fatalf("auth message = %s", got)
	}
	if m.State() != StateAuthenticating {
		t.Fatalf("state = %s, want authenticating", m.State())
	}

	// Connecting again while a connection is live is a no-op.
	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.send(`{"type":"connected","userId":"u1"}`)
	waitFor(t, "channel open", func() bool { return m.State() == StateOpen })

	if got := s.nextWrite(t); got != `{"type":"ping"}` {
		t.Fatalf("heartbeat = %s", got)
	}
	if d.count() != 1 {
		t.Fatalf("dials = %d, want 1", d.count())
	}
	if m.UserID() != "u1" {
		t.Fatalf("UserID = %q", m.UserID())
	}
	waitFor(t, "connected event", func() bool { return events.count(EventConnected) == 1 })
	if events.count(EventChannelOpen) != 1 {
		t.Fatalf("open events = %d", events.count(EventChannelOpen))
	}
	e, _ := events.last(EventConnected)
	var ack ConnectedPayload
	if err := e.Decode(&ack); err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Compare(ConnectedPayload{UserID: "u1"}, ack); diff != "" {
		t.Fatalf("connected payload (-want +got):\n%s", diff)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []ChannelState{StateConnecting, StateAuthenticating, StateOpen}
	if diff := pretty.Compare(want, states); diff != "" {
		t.Fatalf("states (-want +got):\n%s", diff)
	}
}

func TestChannelHeartbeatAck(t *testing.T) {
	m, d, _ := newTestChannel(t, ChannelConfig{})
	events := (&eventLog{}).watch(m, EventHeartbeatAck)
	s := openChannel(t, m, d)

	if !m.LastHeartbeatAck().IsZero() {
		t.Fatal("no ack received yet")
	}
	s.send(`{"type":"heartbeat-ack"}`)
	waitFor(t, "ack recorded", func() bool { return !m.LastHeartbeatAck().IsZero() })
	if events.count(EventHeartbeatAck) != 0 {
		t.Fatal("heartbeat acks are not published")
	}
}

func TestChannelNotAuthenticated(t *testing.T) {
	m, d, _ := newTestChannel(t, ChannelConfig{Store: NewMemoryCredentialStore(Credentials{})})
	if err := m.Connect(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
	if d.count() != 0 || m.State() != StateIdle {
		t.Fatalf("dials = %d state = %s", d.count(), m.State())
	}
}

func TestChannelSendRequiresOpen(t *testing.T) {
	m, d, _ := newTestChannel(t, ChannelConfig{})
	if err := m.Send(context.Background(), map[string]string{"type": "typing"}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("err = %v, want ErrNotOpen", err)
	}

	s := openChannel(t, m, d)
	if err := m.Send(context.Background(), map[string]string{"type": "typing"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := s.nextWrite(t); got != `{"type":"typing"}` {
		t.Fatalf("sent = %s", got)
	}
}

// ============================================================================
// Reconnection
// ============================================================================

func TestChannelReconnectsAfterAbnormalClose(t *testing.T) {
	m, d, _ := newTestChannel(t, ChannelConfig{ReconnectDelay: 20 * time.Millisecond})
	events := (&eventLog{}).watch(m, EventChannelClosed, EventChannelReconnecting, EventNotification)
	s := openChannel(t, m, d)

	s.drop(CloseAbnormal, "network lost")
	waitFor(t, "reconnect scheduled", func() bool { return events.count(EventChannelReconnecting) == 1 })
	if m.ReconnectAttempts() != 1 {
		t.Fatalf("attempts = %d, want 1", m.ReconnectAttempts())
	}

	e, _ := events.last(EventChannelReconnecting)
	var rp ReconnectingPayload
	if err := e.Decode(&rp); err != nil {
		t.Fatal(err)
	}
	if diff := pretty.Compare(ReconnectingPayload{Attempt: 1, DelayMS: 20}, rp); diff != "" {
		t.Fatalf("reconnecting payload (-want +got):\n%s", diff)
	}
	e, _ = events.last(EventChannelClosed)
	var cp ClosedPayload
	if err := e.Decode(&cp); err != nil || cp.Code != CloseAbnormal {
		t.Fatalf("closed payload = %+v, %v", cp, err)
	}

	s2 := d.next(t)
	if got := s2.nextWrite(t); got != `{"type":"auth","token":"tok"}` {
		t.Fatalf("auth message on reconnect = %s", got)
	}
	s2.send(`{"type":"connected","userId":"u1"}`)
	waitFor(t, "reopened", func() bool { return m.State() == StateOpen })
	if m.ReconnectAttempts() != 0 {
		t.Fatalf("attempts after open = %d, want 0", m.ReconnectAttempts())
	}

	// Registrations made before the drop still receive events.
	s2.send(`{"type":"notification","id":"n1"}`)
	waitFor(t, "notification", func() bool { return events.count(EventNotification) == 1 })
}

func TestChannelReconnectCeiling(t *testing.T) {
	m, d, notes := newTestChannel(t, ChannelConfig{ReconnectDelay: time.Millisecond})
	d.dial = func(ctx context.Context, n int) (Socket, error) {
		return nil, errors.New("connection refused")
	}
	events := (&eventLog{}).watch(m, EventChannelReconnecting, EventChannelFailed)

	if err := m.Connect(context.Background()); err == nil {
		t.Fatal("Connect should report the failed dial")
	}
	waitFor(t, "terminal failure", func() bool { return m.ConnError().Get() != "" })
	time.Sleep(30 * time.Millisecond)

	if d.count() != DefaultMaxReconnectAttempts {
		t.Fatalf("dials = %d, want %d", d.count(), DefaultMaxReconnectAttempts)
	}
	if got := events.count(EventChannelReconnecting); got != DefaultMaxReconnectAttempts-1 {
		t.Fatalf("reconnecting events = %d, want %d", got, DefaultMaxReconnectAttempts-1)
	}
	if events.count(EventChannelFailed) != 1 {
		t.Fatalf("failed events = %d, want 1", events.count(EventChannelFailed))
	}
	_, errs, _ := notes.snapshot()
	if len(errs) != 1 || !strings.Contains(errs[0], "10 attempts") {
		t.Fatalf("errors = %q", errs)
	}
	if m.State() != StateClosed {
		t.Fatalf("state = %s", m.State())
	}

	// A manual connect starts a fresh cycle.
	d.dial = nil
	openChannel(t, m, d)
	if m.ConnError().Get() != "" {
		t.Fatal("open should clear the connection error")
	}
}

func TestChannelNoReconnect(t *testing.T) {
	t.Run("explicit disconnect", func(t *testing.T) {
		m, d, _ := newTestChannel(t, ChannelConfig{})
		events := (&eventLog{}).watch(m, EventChannelClosed, EventChannelReconnecting)
		s := openChannel(t, m, d)

		if err := m.Disconnect(); err != nil {
			t.Fatal(err)
		}
		if s.clientCloseCode() != CloseNormal {
			t.Fatalf("close code = %d, want %d", s.clientCloseCode(), CloseNormal)
		}
		if m.State() != StateClosed {
			t.Fatalf("state = %s", m.State())
		}
		time.Sleep(50 * time.Millisecond)
		if d.count() != 1 || events.count(EventChannelReconnecting) != 0 {
			t.Fatalf("dials = %d, reconnecting = %d", d.count(), events.count(EventChannelReconnecting))
		}
		if events.count(EventChannelClosed) != 1 {
			t.Fatalf("closed events = %d, want 1", events.count(EventChannelClosed))
		}
	})

	t.Run("disconnect cancels pending reconnect", func(t *testing.T) {
		m, d, _ := newTestChannel(t, ChannelConfig{ReconnectDelay: 40 * time.Millisecond})
		s := openChannel(t, m, d)

		s.drop(CloseAbnormal, "network lost")
		waitFor(t, "reconnect scheduled", func() bool { return m.ReconnectAttempts() == 1 })
		_ = m.Disconnect()
		time.Sleep(80 * time.Millisecond)
		if d.count() != 1 {
			t.Fatalf("dials = %d, want 1", d.count())
		}
	})

	t.Run("normal close from server", func(t *testing.T) {
		m, d, _ := newTestChannel(t, ChannelConfig{})
		s := openChannel(t, m, d)

		s.drop(CloseNormal, "server shutdown")
		waitFor(t, "closed", func() bool { return m.State() == StateClosed })
		time.Sleep(50 * time.Millisecond)
		if d.count() != 1 {
			t.Fatalf("dials = %d, want 1", d.count())
		}
	})

	t.Run("session ended", func(t *testing.T) {
		store := NewMemoryCredentialStore(Credentials{AccessToken: "tok"})
		m, d, _ := newTestChannel(t, ChannelConfig{Store: store})
		s := openChannel(t, m, d)

		_ = store.Clear()
		s.drop(CloseAbnormal, "network lost")
		waitFor(t, "closed", func() bool { return m.State() == StateClosed })
		time.Sleep(50 * time.Millisecond)
		if d.count() != 1 || m.ReconnectAttempts() != 0 {
			t.Fatalf("dials = %d attempts = %d", d.count(), m.ReconnectAttempts())
		}
	})

	t.Run("closed manager", func(t *testing.T) {
		m, d, _ := newTestChannel(t, ChannelConfig{})
		openChannel(t, m, d)
		if err := m.Close(); err != nil {
			t.Fatal(err)
		}
		if err := m.Connect(context.Background()); !errors.Is(err, ErrClosed) {
			t.Fatalf("err = %v, want ErrClosed", err)
		}
		if m.Dispatcher().Count(EventChannelClosed) != 0 {
			t.Fatal("close should drop subscriptions")
		}
	})
}

// ============================================================================
// Inbound frames
// ============================================================================

func TestChannelFrames(t *testing.T) {
	t.Run("malformed frames are dropped", func(t *testing.T) {
		m, d, _ := newTestChannel(t, ChannelConfig{})
		events := (&eventLog{}).watch(m, "custom.thing", EventError)
		s := openChannel(t, m, d)

		s.send(`not json`)
		s.send(`{"no":"type"}`)
		s.send(`[1,2,3]`)
		s.send(`{"type":42}`)
		s.send(`{"type":"custom.thing","x":1}`)
		waitFor(t, "custom event", func() bool { return events.count("custom.thing") == 1 })

		e, _ := events.last("custom.thing")
		if string(e.Payload) != `{"x":1}` {
			t.Fatalf("payload = %s, want type stripped", e.Payload)
		}
		if m.State() != StateOpen {
			t.Fatalf("state = %s, want open", m.State())
		}
	})

	t.Run("unread count", func(t *testing.T) {
		m, d, _ := newTestChannel(t, ChannelConfig{})
		events := (&eventLog{}).watch(m, EventNotification, EventUnreadCount)
		s := openChannel(t, m, d)

		s.send(`{"type":"unread-count","count":5}`)
		waitFor(t, "unread 5", func() bool { return m.Unread().Get() == 5 })
		s.send(`{"type":"notification","id":"n1","title":"Missed call","data":{"from":"+15550100"}}`)
		waitFor(t, "unread 6", func() bool { return m.Unread().Get() == 6 })

		e, _ := events.last(EventNotification)
		var p NotificationPayload
		if err := e.Decode(&p); err != nil {
			t.Fatal(err)
		}
		want := NotificationPayload{ID: "n1", Title: "Missed call", Data: map[string]any{"from": "+15550100"}}
		if diff := pretty.Compare(want, p); diff != "" {
			t.Fatalf("payload (-want +got):\n%s", diff)
		}
		if events.count(EventUnreadCount) != 1 {
			t.Fatalf("unread-count events = %d", events.count(EventUnreadCount))
		}
	})

	t.Run("frames before connected are dropped", func(t *testing.T) {
		m, d, _ := newTestChannel(t, ChannelConfig{})
		events := (&eventLog{}).watch(m, EventNotification, EventUnreadCount, EventConnected)
		if err := m.Connect(context.Background()); err != nil {
			t.Fatalf("Connect: %v", err)
		}
		s := d.next(t)
		s.nextWrite(t)

		s.send(`{"type":"notification","id":"early"}`)
		s.send(`{"type":"unread-count","count":9}`)
		s.send(`{"type":"connected","userId":"u1"}`)
		waitFor(t, "connected event", func() bool { return events.count(EventConnected) == 1 })

		if events.count(EventNotification) != 0 || events.count(EventUnreadCount) != 0 {
			t.Fatal("frames received while authenticating must not be published")
		}
		if m.Unread().Get() != 0 {
			t.Fatalf("unread = %d, want 0", m.Unread().Get())
		}
		if m.State() != StateOpen {
			t.Fatalf("state = %s, want open", m.State())
		}
	})

	t.Run("undecodable server error is still forwarded", func(t *testing.T) {
		m, d, _ := newTestChannel(t, ChannelConfig{})
		events := (&eventLog{}).watch(m, EventError)
		s := openChannel(t, m, d)

		s.send(`{"type":"error","message":42}`)
		waitFor(t, "error event", func() bool { return events.count(EventError) == 1 })
		e, _ := events.last(EventError)
		if string(e.Payload) != `{"message":42}` {
			t.Fatalf("payload = %s", e.Payload)
		}
		if m.State() != StateOpen {
			t.Fatal("server errors do not close the channel")
		}
	})

	t.Run("server error is forwarded", func(t *testing.T) {
		m, d, _ := newTestChannel(t, ChannelConfig{})
		events := (&eventLog{}).watch(m, EventError)
		s := openChannel(t, m, d)

		s.send(`{"type":"error","message":"bad subscription","code":"E_SUB"}`)
		waitFor(t, "error event", func() bool { return events.count(EventError) == 1 })
		e, _ := events.last(EventError)
		var p ChannelErrorPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil || p.Code != "E_SUB" {
			t.Fatalf("payload = %+v, %v", p, err)
		}
		if m.State() != StateOpen {
			t.Fatal("server errors do not close the channel")
		}
	})
}

// ============================================================================
// End to end
// ============================================================================

func TestChannelWebSocket(t *testing.T) {
	serverClose := make(chan websocket.StatusCode, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		ctx := r.Context()

		_, data, err := c.Read(ctx)
		if err != nil {
			t.Errorf("read auth: %v", err)
			return
		}
		var auth authMessage
		if err := json.Unmarshal(data, &auth); err != nil || auth.Type != "auth" || auth.Token != "tok" {
			t.Errorf("auth message = %s", data)
			c.Close(websocket.StatusPolicyViolation, "unauthorized")
			return
		}
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"connected","userId":"u1"}`))

		_, data, err = c.Read(ctx)
		if err != nil || string(data) != `{"type":"ping"}` {
			t.Errorf("ping = %s, %v", data, err)
			return
		}
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"heartbeat-ack"}`))
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"notification","id":"n1","title":"New booking"}`))

		for {
			if _, _, err := c.Read(ctx); err != nil {
				serverClose <- websocket.CloseStatus(err)
				return
			}
		}
	}))
	defer srv.Close()

	m := NewChannelManager(ChannelConfig{
		URL:               "ws" + strings.TrimPrefix(srv.URL, "http"),
		Store:             NewMemoryCredentialStore(Credentials{AccessToken: "tok"}),
		Notifier:          &recordingNotifier{},
		Logger:            zerolog.Nop(),
		HeartbeatInterval: 20 * time.Millisecond,
	})
	defer m.Close()
	events := (&eventLog{}).watch(m, EventNotification)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, "open", func() bool { return m.State() == StateOpen })
	waitFor(t, "heartbeat ack", func() bool { return !m.LastHeartbeatAck().IsZero() })
	waitFor(t, "notification", func() bool { return events.count(EventNotification) == 1 })
	if m.Unread().Get() != 1 {
		t.Fatalf("unread = %d", m.Unread().Get())
	}

	if err := m.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	select {
	case code := <-serverClose:
		if code != websocket.StatusNormalClosure {
			t.Fatalf("server saw close %d, want %d", code, websocket.StatusNormalClosure)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw the close")
	}
}
