package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Default reconnection policy.
const (
	DefaultMaxAttempts    = 5
	DefaultInitialDelay   = 1 * time.Second
	DefaultMaxDelay       = 5 * time.Second
	DefaultConnectTimeout = 20 * time.Second
	DefaultJitter         = 0.25
	eventBuffer           = 256
)

// Config configures a Manager.
type Config struct {
	// URL is the Socket.IO WebSocket endpoint, see ChannelURL.
	URL string

	// MaxAttempts is the number of reconnection attempts after a failure
	// before the manager gives up and enters Failed. Zero disables
	// reconnection.
	MaxAttempts int

	InitialDelay   time.Duration
	MaxDelay       time.Duration
	ConnectTimeout time.Duration

	// Jitter is the backoff randomization factor. Negative disables it.
	Jitter float64
}

func (c *Config) defaults() {
	if c.InitialDelay == 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Jitter == 0 {
		c.Jitter = DefaultJitter
	} else if c.Jitter < 0 {
		c.Jitter = 0
	}
}

var (
	ErrNotConnected   = errors.New("channel not connected")
	ErrClosed         = errors.New("channel manager closed")
	ErrAlreadyRunning = errors.New("channel already running")

	errServerDisconnect = errors.New("server closed the session")
)

// Manager owns the persistent channel. Inbound events, including synthetic
// lifecycle events, are delivered on Events in arrival order.
type Manager struct {
	cfg    Config
	dialer Dialer
	log    zerolog.Logger
	events chan Event

	mu      sync.Mutex
	state   State
	attempt int
	conn    Conn
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
}

// NewManager creates a Manager. Call Connect to start it.
func NewManager(cfg Config, dialer Dialer, log zerolog.Logger) *Manager {
	cfg.defaults()
	if dialer == nil {
		dialer = WebSocketDialer{}
	}
	return &Manager{
		cfg:    cfg,
		dialer: dialer,
		log:    log,
		events: make(chan Event, eventBuffer),
	}
}

// Events returns the inbound event stream. It is closed by Close.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// State returns the current state and reconnect attempt number.
func (m *Manager) State() (State, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.attempt
}

// Connect starts the connection loop. It returns immediately; progress is
// reported through Events.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.done != nil {
		select {
		case <-m.done:
		default:
			return ErrAlreadyRunning
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(runCtx, m.done)
	return nil
}

// Retry restarts the connection loop after it reached Failed.
func (m *Manager) Retry(ctx context.Context) error {
	st, _ := m.State()
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()

	if done != nil {
		if st != Failed {
			select {
			case <-done:
			default:
				return fmt.Errorf("retry in state %s: %w", st, ErrAlreadyRunning)
			}
		}
		// The loop exits right after announcing Failed.
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.log.Info().Msg("manual reconnect requested")
	return m.Connect(ctx)
}

// Send emits an outbound event.
func (m *Manager) Send(name string, payload any) error {
	m.mu.Lock()
	conn := m.conn
	st := m.state
	m.mu.Unlock()

	if st != Connected || conn == nil {
		return ErrNotConnected
	}
	data, err := encodeEvent(name, payload)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(data); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	return nil
}

// Close stops the loop, closes the connection and the event stream.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel, done, conn := m.cancel, m.done, m.conn
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
	close(m.events)
	return nil
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	b := m.newBackOff()
	attempt := 0

	for {
		if attempt == 0 {
			m.setState(Connecting, 0)
		} else {
			m.setState(Reconnecting, attempt)
			m.emit(ctx, NewEvent(EventReconnectAttempt, StatusPayload{
				State: Reconnecting.String(), Attempt: attempt, Max: m.cfg.MaxAttempts,
			}))
		}

		conn, open, err := m.open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				m.setState(Disconnected, 0)
				return
			}
			m.log.Warn().Err(err).Int("attempt", attempt).Msg("channel connect failed")
			m.emit(ctx, NewEvent(EventConnectError, StatusPayload{
				State: m.currentState().String(), Attempt: attempt, Error: err.Error(),
			}))
			if attempt >= m.cfg.MaxAttempts {
				m.setState(Failed, attempt)
				m.log.Error().Int("attempts", attempt).Msg("channel reconnection exhausted")
				m.emit(ctx, NewEvent(EventReconnectFailed, StatusPayload{
					State: Failed.String(), Attempt: attempt, Max: m.cfg.MaxAttempts,
				}))
				return
			}
			attempt++
			if !sleep(ctx, m.nextDelay(b)) {
				m.setState(Disconnected, 0)
				return
			}
			continue
		}

		b.Reset()
		attempt = 0
		m.setConn(conn)
		m.setState(Connected, 0)
		m.log.Info().Str("sid", open.SID).Msg("channel connected")
		m.emit(ctx, NewEvent(EventConnect, StatusPayload{State: Connected.String()}))
		m.resync()

		err = m.readLoop(ctx, conn, open)
		m.setConn(nil)
		conn.Close()

		if ctx.Err() != nil {
			m.setState(Disconnected, 0)
			return
		}
		m.log.Warn().Err(err).Msg("channel lost")
		m.setState(Disconnected, 0)
		m.emit(ctx, NewEvent(EventDisconnect, StatusPayload{State: Disconnected.String(), Error: errString(err)}))

		if m.cfg.MaxAttempts == 0 {
			m.setState(Failed, 0)
			m.emit(ctx, NewEvent(EventReconnectFailed, StatusPayload{State: Failed.String()}))
			return
		}
		attempt = 1
		if !sleep(ctx, m.nextDelay(b)) {
			m.setState(Disconnected, 0)
			return
		}
	}
}

// open dials and completes the Engine.IO and Socket.IO handshakes within the
// connect timeout.
func (m *Manager) open(ctx context.Context) (Conn, openPacket, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	conn, err := m.dialer.Dial(dialCtx, m.cfg.URL)
	if err != nil {
		return nil, openPacket{}, err
	}

	// Unblock reads if the caller goes away mid-handshake.
	stop := context.AfterFunc(dialCtx, func() {
		if ctx.Err() != nil {
			conn.Close()
		}
	})
	defer stop()

	deadline, _ := dialCtx.Deadline()
	_ = conn.SetReadDeadline(deadline)

	open, err := handshake(conn)
	if err != nil {
		conn.Close()
		return nil, openPacket{}, err
	}
	_ = conn.SetReadDeadline(time.Time{})
	return conn, open, nil
}

func handshake(conn Conn) (openPacket, error) {
	data, err := conn.ReadMessage()
	if err != nil {
		return openPacket{}, fmt.Errorf("read open packet: %w", err)
	}
	pkt, err := decodePacket(data)
	if err != nil {
		return openPacket{}, err
	}
	if pkt.kind != kindOpen {
		return openPacket{}, fmt.Errorf("expected open packet, got %q", data)
	}
	open := pkt.open
	if err := conn.WriteMessage(connectPacket); err != nil {
		return openPacket{}, fmt.Errorf("write connect packet: %w", err)
	}

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return openPacket{}, fmt.Errorf("await connect ack: %w", err)
		}
		pkt, err := decodePacket(data)
		if err != nil {
			continue
		}
		switch pkt.kind {
		case kindConnect:
			return open, nil
		case kindConnectError:
			return openPacket{}, fmt.Errorf("server rejected connection: %s", pkt.err)
		case kindPing:
			if err := conn.WriteMessage(pongPacket); err != nil {
				return openPacket{}, fmt.Errorf("write pong: %w", err)
			}
		case kindClose, kindDisconnect:
			return openPacket{}, errServerDisconnect
		}
	}
}

func (m *Manager) readLoop(ctx context.Context, conn Conn, open openPacket) error {
	timeout := open.readTimeout()
	for {
		if timeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(timeout))
		}
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		pkt, err := decodePacket(data)
		if err != nil {
			m.log.Warn().Err(err).Msg("dropping malformed packet")
			continue
		}
		switch pkt.kind {
		case kindPing:
			if err := conn.WriteMessage(pongPacket); err != nil {
				return fmt.Errorf("write pong: %w", err)
			}
		case kindEvent:
			if !m.emit(ctx, pkt.event) {
				return ctx.Err()
			}
		case kindConnectError:
			return fmt.Errorf("server error: %s", pkt.err)
		case kindClose, kindDisconnect:
			return errServerDisconnect
		}
	}
}

// resync re-requests the server baseline. Missed events are not replayed
// across reconnects.
func (m *Manager) resync() {
	for _, name := range []string{EventGetAlerts, EventStartStreams} {
		if err := m.Send(name, nil); err != nil {
			m.log.Warn().Err(err).Str("event", name).Msg("baseline request failed")
		}
	}
}

func (m *Manager) emit(ctx context.Context, ev Event) bool {
	select {
	case m.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) setState(s State, attempt int) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.attempt = attempt
	m.mu.Unlock()
	if prev != s {
		m.log.Debug().Str("from", prev.String()).Str("to", s.String()).Int("attempt", attempt).Msg("channel state")
	}
}

func (m *Manager) currentState() State {
	st, _ := m.State()
	return st
}

func (m *Manager) setConn(c Conn) {
	m.mu.Lock()
	m.conn = c
	m.mu.Unlock()
}

func (m *Manager) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.InitialDelay
	b.MaxInterval = m.cfg.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = m.cfg.Jitter
	b.Reset()
	return b
}

func (m *Manager) nextDelay(b *backoff.ExponentialBackOff) time.Duration {
	d := b.NextBackOff()
	if d == backoff.Stop || d > m.cfg.MaxDelay {
		d = m.cfg.MaxDelay
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
