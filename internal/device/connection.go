package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"

	"github.com/foodlens/framelink/internal/bus"
	"github.com/foodlens/framelink/internal/connectors"
	"github.com/foodlens/framelink/internal/metrics"
)

const (
	eventConnect     = "connect"
	eventEstablished = "established"
	eventFail        = "fail"
	eventDisconnect  = "disconnect"
)

var (
	stateDisconnected = string(connectors.ConnectionStateDisconnected)
	stateConnecting   = string(connectors.ConnectionStateConnecting)
	stateConnected    = string(connectors.ConnectionStateConnected)
)

// ConnectionListener receives every connection transition, in order.
type ConnectionListener func(status connectors.ConnectionStatus)

// ConnectionOptions configures a ConnectionManager.
type ConnectionOptions struct {
	Logger         *slog.Logger
	Bus            bus.MessageBus
	Metrics        *metrics.Metrics
	ConnectTimeout time.Duration
}

// ConnectionManager owns the connection state of one pair of glasses.
//
// Transitions (connect, disconnect, link failure) are serialized by one mutex and
// listeners run synchronously while it is held, so every listener sees every
// transition exactly once and in order. Listeners must not call Connect or
// Disconnect synchronously. ReportLinkFailure never waits behind a running
// transition, so work a listener waits on may report link loss.
type ConnectionManager struct {
	logger         *slog.Logger
	link           Link
	bus            bus.MessageBus
	metrics        *metrics.Metrics
	connectTimeout time.Duration

	transitionMu  sync.Mutex
	machine       *fsm.FSM
	epoch         uint64
	cancelConnect context.CancelFunc

	state     atomic.Value
	session   atomic.Uint64
	observers observerRegistry
}

func NewConnectionManager(link Link, opts ConnectionOptions) *ConnectionManager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &ConnectionManager{
		logger:         logger,
		link:           link,
		bus:            opts.Bus,
		metrics:        opts.Metrics,
		connectTimeout: opts.ConnectTimeout,
		machine: fsm.NewFSM(
			stateDisconnected,
			fsm.Events{
				{Name: eventConnect, Src: []string{stateDisconnected}, Dst: stateConnecting},
				{Name: eventEstablished, Src: []string{stateConnecting}, Dst: stateConnected},
				{Name: eventFail, Src: []string{stateConnecting}, Dst: stateDisconnected},
				{Name: eventDisconnect, Src: []string{stateConnecting, stateConnected}, Dst: stateDisconnected},
			},
			fsm.Callbacks{},
		),
	}
	m.state.Store(connectors.ConnectionStateDisconnected)
	m.metrics.SetConnectionState(stateGaugeValue(connectors.ConnectionStateDisconnected))

	return m
}

func (m *ConnectionManager) State() connectors.ConnectionState {
	return m.state.Load().(connectors.ConnectionState)
}

func (m *ConnectionManager) IsConnected() bool {
	return m.State() == connectors.ConnectionStateConnected
}

// Connect runs the handshake. It is a no-op returning the current state while
// Connecting or Connected. Failures end Disconnected and wrap ErrConnectFailed.
func (m *ConnectionManager) Connect(ctx context.Context) (connectors.ConnectionState, error) {
	m.transitionMu.Lock()
	if current := m.State(); current != connectors.ConnectionStateDisconnected {
		m.transitionMu.Unlock()
		m.logger.Debug("connect skipped", "state", current)
		return current, nil
	}
	m.fireLocked(eventConnect, nil)

	m.epoch++
	epoch := m.epoch
	connectCtx, cancel := m.connectContext(ctx)
	m.cancelConnect = cancel
	m.transitionMu.Unlock()

	started := time.Now()
	info, err := m.link.Open(connectCtx)
	cancel()

	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	if m.epoch != epoch {
		// Disconnect won the race; it already published the transition.
		if err == nil && m.State() == connectors.ConnectionStateDisconnected {
			_ = m.link.Close()
		}
		m.metrics.ObserveConnect(false)
		return m.State(), fmt.Errorf("%w: cancelled by disconnect", ErrConnectFailed)
	}
	m.cancelConnect = nil

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("handshake exceeded %s: %w", m.connectTimeout, err)
		}
		_ = m.link.Close()
		m.logger.Warn("connect failed", "transport", m.link.Name(), "error", err)
		m.metrics.ObserveConnect(false)
		m.fireLocked(eventFail, err)
		return connectors.ConnectionStateDisconnected, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	m.logger.Info("connected", "transport", m.link.Name(), "firmware", info.Firmware, "elapsed", time.Since(started))
	m.metrics.ObserveConnect(true)
	m.session.Add(1)
	m.fireLocked(eventEstablished, nil)

	return connectors.ConnectionStateConnected, nil
}

// Disconnect is idempotent. A disconnect during Connecting cancels the handshake.
func (m *ConnectionManager) Disconnect() {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	switch m.State() {
	case connectors.ConnectionStateDisconnected:
		return
	case connectors.ConnectionStateConnecting:
		m.epoch++
		if m.cancelConnect != nil {
			m.cancelConnect()
			m.cancelConnect = nil
		}
	case connectors.ConnectionStateConnected:
		if err := m.link.Close(); err != nil {
			m.logger.Warn("close link failed", "error", err)
		}
	}

	m.logger.Info("disconnected", "transport", m.link.Name())
	m.fireLocked(eventDisconnect, nil)
}

// ReportLinkFailure moves a Connected manager to Disconnected after the link dropped.
// When another transition is running the report is applied after it finishes, and
// only if the session that failed is still the current one.
func (m *ConnectionManager) ReportLinkFailure(cause error) {
	if m.State() != connectors.ConnectionStateConnected {
		return
	}
	session := m.session.Load()
	if !m.transitionMu.TryLock() {
		go func() {
			m.transitionMu.Lock()
			defer m.transitionMu.Unlock()
			m.linkLostLocked(session, cause)
		}()
		return
	}
	defer m.transitionMu.Unlock()
	m.linkLostLocked(session, cause)
}

func (m *ConnectionManager) linkLostLocked(session uint64, cause error) {
	if m.State() != connectors.ConnectionStateConnected || m.session.Load() != session {
		return
	}
	_ = m.link.Close()
	m.logger.Warn("link lost", "transport", m.link.Name(), "error", cause)
	m.fireLocked(eventDisconnect, cause)
}

// Subscribe registers listener and returns an idempotent unsubscribe func.
func (m *ConnectionManager) Subscribe(listener ConnectionListener) func() {
	if listener == nil {
		return func() {}
	}
	id := m.observers.add(listener)
	var once sync.Once

	return func() {
		once.Do(func() {
			m.observers.remove(id)
		})
	}
}

func (m *ConnectionManager) connectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.connectTimeout > 0 {
		return context.WithTimeout(ctx, m.connectTimeout)
	}
	return context.WithCancel(ctx)
}

// fireLocked applies event and notifies. transitionMu must be held.
func (m *ConnectionManager) fireLocked(event string, cause error) {
	if err := m.machine.Event(context.Background(), event); err != nil {
		m.logger.Error("invalid connection transition", "event", event, "from", m.machine.Current(), "error", err)
		return
	}

	state := connectors.ConnectionState(m.machine.Current())
	m.state.Store(state)
	m.metrics.SetConnectionState(stateGaugeValue(state))

	status := connectors.ConnectionStatus{
		State:         state,
		TransportName: m.link.Name(),
		Target:        m.link.Target(),
		Timestamp:     time.Now(),
	}
	if cause != nil {
		status.Err = cause.Error()
	}

	for _, listener := range m.observers.snapshot() {
		listener(status)
	}
	if m.bus != nil {
		m.bus.Publish(connectors.TopicConnStatus, status)
	}
}

func stateGaugeValue(state connectors.ConnectionState) float64 {
	switch state {
	case connectors.ConnectionStateConnecting:
		return 1
	case connectors.ConnectionStateConnected:
		return 2
	default:
		return 0
	}
}

type observerEntry struct {
	id       uint64
	listener ConnectionListener
}

// observerRegistry keeps listeners in registration order.
type observerRegistry struct {
	mu      sync.Mutex
	nextID  uint64
	entries []observerEntry
}

func (r *observerRegistry) add(listener ConnectionListener) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.entries = append(r.entries, observerEntry{id: r.nextID, listener: listener})
	return r.nextID
}

func (r *observerRegistry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, entry := range r.entries {
		if entry.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

func (r *observerRegistry) snapshot() []ConnectionListener {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ConnectionListener, len(r.entries))
	for i, entry := range r.entries {
		out[i] = entry.listener
	}
	return out
}

func (r *observerRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
