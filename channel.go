package frontdesk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// ============================================================================
// States and event names
// ============================================================================

// ChannelState is the lifecycle state of the realtime channel.
type ChannelState string

const (
	StateIdle           ChannelState = "idle"
	StateConnecting     ChannelState = "connecting"
	StateAuthenticating ChannelState = "authenticating"
	StateOpen           ChannelState = "open"
	StateClosing        ChannelState = "closing"
	StateClosed         ChannelState = "closed"
)

// Inbound message types with dedicated handling.
const (
	EventConnected    = "connected"
	EventNotification = "notification"
	EventUnreadCount  = "unread-count"
	EventError        = "error"
	EventHeartbeatAck = "heartbeat-ack"
)

// Lifecycle events published by the manager itself.
const (
	EventChannelOpen         = "channel.open"
	EventChannelClosed       = "channel.closed"
	EventChannelReconnecting = "channel.reconnecting"
	EventChannelFailed       = "channel.failed"
)

type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type pingMessage struct {
	Type string `json:"type"`
}

// ============================================================================
// Configuration
// ============================================================================

// ChannelConfig configures a ChannelManager.
type ChannelConfig struct {
	URL                  string
	Store                CredentialStore
	Dialer               Dialer
	Notifier             Notifier
	Logger               zerolog.Logger
	HeartbeatInterval    time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	DialTimeout          time.Duration
}

func (c *ChannelConfig) defaults() {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 15 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = &WebSocketDialer{}
	}
	if c.Notifier == nil {
		c.Notifier = NewLogNotifier(c.Logger)
	}
}

// ============================================================================
// ChannelManager
// ============================================================================

// ChannelManager owns the single realtime connection of a session. It
// authenticates the socket, pings it while open, reconnects after
// unsolicited closes up to a ceiling, and fans inbound messages out through
// its EventDispatcher.
type ChannelManager struct {
	cfg        ChannelConfig
	dispatcher *EventDispatcher
	recon      *Reconnector
	log        zerolog.Logger
	metrics    *instruments

	stateValue *Value[ChannelState]
	connErr    *Value[string]
	unread     *Value[int]

	mu          sync.Mutex
	st          ChannelState
	gen         uint64
	sock        Socket
	cancelConn  context.CancelFunc
	hb          *heartbeat
	timer       *time.Timer
	timerSeq    uint64
	intentional bool
	torndown    bool
	userID      string
	lastAck     time.Time
}

// NewChannelManager returns an Idle manager. Nothing is dialed until Connect.
func NewChannelManager(cfg ChannelConfig) *ChannelManager {
	cfg.defaults()
	return &ChannelManager{
		cfg:        cfg,
		dispatcher: NewEventDispatcher(cfg.Logger),
		recon:      NewReconnector(cfg.ReconnectDelay, cfg.MaxReconnectAttempts),
		log:        cfg.Logger.With().Str("component", "realtime").Logger(),
		metrics:    newInstruments(),
		stateValue: NewValue(StateIdle),
		connErr:    NewValue(""),
		unread:     NewValue(0),
		st:         StateIdle,
	}
}

// State returns the current connection state.
func (m *ChannelManager) State() ChannelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

// StateValue exposes state changes to subscribers.
func (m *ChannelManager) StateValue() *Value[ChannelState] { return m.stateValue }

// ConnError holds the terminal connection error message, or "".
func (m *ChannelManager) ConnError() *Value[string] { return m.connErr }

// Unread holds the latest unread notification count.
func (m *ChannelManager) Unread() *Value[int] { return m.unread }

// Dispatcher returns the manager's event registry.
func (m *ChannelManager) Dispatcher() *EventDispatcher { return m.dispatcher }

// Subscribe registers l for eventType. See EventDispatcher.Subscribe.
func (m *ChannelManager) Subscribe(eventType string, l Listener) func() {
	return m.dispatcher.Subscribe(eventType, l)
}

// SubscribeFunc registers fn for eventType.
func (m *ChannelManager) SubscribeFunc(eventType string, fn func(Event)) func() {
	return m.dispatcher.SubscribeFunc(eventType, fn)
}

// UserID returns the identity acknowledged by the server.
func (m *ChannelManager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// ReconnectAttempts returns the unsolicited closes since the last open.
func (m *ChannelManager) ReconnectAttempts() int { return m.recon.Attempts() }

// LastHeartbeatAck returns when the server last acknowledged a ping.
func (m *ChannelManager) LastHeartbeatAck() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAck
}

// Connect opens the channel if the session is authenticated. It is a no-op
// while a connection is already being established or open. A failed dial
// is returned and, like any unsolicited close, schedules a reconnect.
func (m *ChannelManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.torndown {
		m.mu.Unlock()
		return ErrClosed
	}
	switch m.st {
	case StateConnecting, StateAuthenticating, StateOpen:
		m.mu.Unlock()
		return nil
	}
	m.intentional = false
	m.stopTimerLocked()
	m.mu.Unlock()

	m.recon.Reset()
	return m.open(ctx)
}

// Disconnect closes the channel on purpose. Pending heartbeat and reconnect
// timers are cancelled before it returns and no reconnect follows.
func (m *ChannelManager) Disconnect() error {
	m.mu.Lock()
	m.intentional = true
	m.stopTimerLocked()
	m.hb.stop()
	m.hb = nil
	m.gen++
	sock := m.sock
	m.sock = nil
	cancel := m.cancelConn
	m.cancelConn = nil
	prev := m.st
	if sock != nil {
		m.st = StateClosing
	} else if prev != StateIdle {
		m.st = StateClosed
	}
	m.mu.Unlock()
	m.syncState()

	var err error
	if sock != nil {
		err = sock.Close(CloseNormal, "client disconnect")
		m.mu.Lock()
		m.st = StateClosed
		m.mu.Unlock()
		m.syncState()
	}
	if cancel != nil {
		cancel()
	}

	if prev != StateIdle && prev != StateClosed {
		m.log.Info().Msg("disconnected")
		m.dispatcher.PublishValue(EventChannelClosed, ClosedPayload{Code: CloseNormal, Reason: "client disconnect"})
	}
	return err
}

// Close disconnects and drops every subscription. The manager cannot be
// reused afterwards.
func (m *ChannelManager) Close() error {
	err := m.Disconnect()
	m.mu.Lock()
	m.torndown = true
	m.mu.Unlock()
	m.dispatcher.Clear()
	return err
}

// Send writes v as a JSON text frame. It returns ErrNotOpen unless the
// channel is Open; nothing is buffered.
func (m *ChannelManager) Send(ctx context.Context, v interface{}) error {
	m.mu.Lock()
	sock, st := m.sock, m.st
	m.mu.Unlock()
	if st != StateOpen || sock == nil {
		return ErrNotOpen
	}
	return writeJSON(ctx, sock, v)
}

// ============================================================================
// Connection lifecycle
// ============================================================================

func (m *ChannelManager) open(ctx context.Context) error {
	if m.cfg.Store == nil || !m.cfg.Store.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if m.cfg.URL == "" {
		return ErrNoChannelURL
	}

	connCtx, cancelConn := context.WithCancel(context.Background())
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.st = StateConnecting
	m.cancelConn = cancelConn
	m.mu.Unlock()
	m.syncState()

	dialCtx, cancelDial := context.WithTimeout(connCtx, m.cfg.DialTimeout)
	stop := context.AfterFunc(ctx, cancelDial)
	sock, err := m.cfg.Dialer.Dial(dialCtx, m.cfg.URL)
	stop()
	cancelDial()
	if err != nil {
		m.log.Warn().Err(err).Msg("dial failed")
		m.handleClose(gen, CloseAbnormal, err.Error())
		return err
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		_ = sock.Close(CloseNormal, "superseded")
		return nil
	}
	m.sock = sock
	m.st = StateAuthenticating
	m.mu.Unlock()
	m.syncState()

	go m.readLoop(connCtx, gen, sock)

	token := m.cfg.Store.Credentials().AccessToken
	if err := writeJSON(ctx, sock, authMessage{Type: "auth", Token: token}); err != nil {
		// The read loop observes the broken socket and drives the close.
		m.log.Warn().Err(err).Msg("send auth message")
	}
	return nil
}

func (m *ChannelManager) readLoop(ctx context.Context, gen uint64, sock Socket) {
	for {
		data, err := sock.Read(ctx)
		if err != nil {
			code, reason := closeCode(err)
			m.handleClose(gen, code, reason)
			return
		}
		m.handleFrame(gen, data)
	}
}

// handleClose moves a live connection to Closed and decides on a reconnect.
// Callbacks from superseded connections are ignored.
func (m *ChannelManager) handleClose(gen uint64, code int, reason string) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.hb.stop()
	m.hb = nil
	m.sock = nil
	if m.cancelConn != nil {
		m.cancelConn()
		m.cancelConn = nil
	}
	m.st = StateClosed
	unsolicited := !m.intentional && !m.torndown && code != CloseNormal
	authenticated := m.cfg.Store.IsAuthenticated()

	var (
		delay   time.Duration
		attempt int
		retry   bool
	)
	if unsolicited && authenticated {
		delay, attempt, retry = m.recon.Next()
		if retry {
			m.scheduleLocked(delay)
		}
	}
	m.mu.Unlock()
	m.syncState()

	m.log.Info().Int("code", code).Str("reason", reason).Msg("channel closed")
	m.dispatcher.PublishValue(EventChannelClosed, ClosedPayload{Code: code, Reason: reason})

	switch {
	case !unsolicited || !authenticated:
	case retry:
		m.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnect scheduled")
		m.metrics.add(m.metrics.reconnects)
		m.dispatcher.PublishValue(EventChannelReconnecting, ReconnectingPayload{Attempt: attempt, DelayMS: delay.Milliseconds()})
	default:
		msg := fmt.Sprintf("Realtime connection lost after %d attempts.", attempt)
		m.log.Error().Int("attempts", attempt).Msg("reconnect ceiling reached")
		m.connErr.Set(msg)
		m.cfg.Notifier.ShowError(msg)
		m.dispatcher.PublishValue(EventChannelFailed, ChannelErrorPayload{Message: msg})
	}
}

// scheduleLocked replaces any pending reconnect timer. m.mu must be held.
func (m *ChannelManager) scheduleLocked(delay time.Duration) {
	m.stopTimerLocked()
	m.timerSeq++
	seq := m.timerSeq
	m.timer = time.AfterFunc(delay, func() { m.fireReconnect(seq) })
}

func (m *ChannelManager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
}

func (m *ChannelManager) fireReconnect(seq uint64) {
	m.mu.Lock()
	if seq != m.timerSeq || m.intentional || m.torndown {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()

	if err := m.open(context.Background()); err != nil {
		m.log.Debug().Err(err).Msg("reconnect attempt failed")
	}
}

func (m *ChannelManager) onConnected(gen uint64, p ConnectedPayload) bool {
	m.mu.Lock()
	if gen != m.gen || m.sock == nil {
		m.mu.Unlock()
		return false
	}
	m.userID = p.UserID
	if m.st == StateOpen {
		m.mu.Unlock()
		return true
	}
	m.st = StateOpen
	sock := m.sock
	m.hb.stop()
	m.hb = startHeartbeat(m.cfg.HeartbeatInterval, func(ctx context.Context) error {
		return writeJSON(ctx, sock, pingMessage{Type: "ping"})
	})
	m.mu.Unlock()

	m.recon.Reset()
	m.connErr.Set("")
	m.syncState()
	m.log.Info().Str("user_id", p.UserID).Msg("channel open")
	m.dispatcher.PublishValue(EventChannelOpen, p)
	return true
}

// ============================================================================
// Inbound frames
// ============================================================================

func (m *ChannelManager) handleFrame(gen uint64, data []byte) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		m.dropFrame(data, err)
		return
	}
	var typ string
	if err := json.Unmarshal(fields["type"], &typ); err != nil || typ == "" {
		m.dropFrame(data, fmt.Errorf("missing message type"))
		return
	}
	// Until the server acknowledges the auth message only the ack is
	// accepted.
	if typ != EventConnected && m.State() != StateOpen {
		m.dropFrame(data, fmt.Errorf("%q frame before connected", typ))
		return
	}
	delete(fields, "type")
	payload, err := json.Marshal(fields)
	if err != nil {
		m.dropFrame(data, err)
		return
	}

	switch typ {
	case EventConnected:
		var p ConnectedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			m.dropFrame(data, err)
			return
		}
		if !m.onConnected(gen, p) {
			return
		}
	case EventNotification:
		m.unread.Set(m.unread.Get() + 1)
	case EventUnreadCount:
		var p UnreadCount
		if err := json.Unmarshal(payload, &p); err != nil {
			m.dropFrame(data, err)
			return
		}
		m.unread.Set(p.Count)
	case EventError:
		var p ChannelErrorPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			m.log.Warn().Err(err).RawJSON("payload", payload).Msg("undecodable server error")
		} else {
			m.log.Warn().Str("message", p.Message).Str("code", p.Code).Msg("server error")
		}
	case EventHeartbeatAck:
		m.mu.Lock()
		m.lastAck = time.Now()
		m.mu.Unlock()
		return
	}
	m.dispatcher.Publish(typ, payload)
}

func (m *ChannelManager) dropFrame(data []byte, err error) {
	m.metrics.add(m.metrics.droppedFrames, attribute.Int("bytes", len(data)))
	m.log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping malformed frame")
}

func (m *ChannelManager) syncState() {
	m.stateValue.Set(m.State())
}

func writeJSON(ctx context.Context, sock Socket, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return sock.Write(ctx, data)
}
