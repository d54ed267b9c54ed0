package transport

import (
	"context"
	"errors"
	"sync"
	"time"
)

const simulatedReplyQueueSize = 512

// ErrSimulatedConnectFailure is returned by Connect when failure injection is on.
var ErrSimulatedConnectFailure = errors.New("simulated device did not answer")

// Responder produces the device reply frames for one written frame. No replies
// means the device stays silent. delay is the reference device latency before replying.
type Responder interface {
	Respond(request []byte) (replies [][]byte, delay time.Duration)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(request []byte) ([][]byte, time.Duration)

func (f ResponderFunc) Respond(request []byte) ([][]byte, time.Duration) {
	return f(request)
}

// SimulatedOptions tunes a SimulatedTransport.
type SimulatedOptions struct {
	ConnectDelay time.Duration
	// LatencyPercent scales every delay; 100 is reference speed, 0 disables sleeping.
	LatencyPercent int
	FailConnect    bool
}

type simulatedConn struct {
	replies   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// SimulatedTransport is an in-memory stand-in for the glasses.
type SimulatedTransport struct {
	responder Responder

	mu          sync.Mutex
	opts        SimulatedOptions
	conn        *simulatedConn
	connects    int
	lastWritten []byte
}

func NewSimulatedTransport(responder Responder, opts SimulatedOptions) *SimulatedTransport {
	if opts.LatencyPercent < 0 {
		opts.LatencyPercent = 0
	}
	return &SimulatedTransport{responder: responder, opts: opts}
}

func (t *SimulatedTransport) Name() string {
	return "simulated"
}

func (t *SimulatedTransport) StatusTarget() string {
	return "in-memory glasses"
}

// SetFailConnect toggles connect failure injection for subsequent Connect calls.
func (t *SimulatedTransport) SetFailConnect(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opts.FailConnect = fail
}

func (t *SimulatedTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	opts := t.opts
	t.mu.Unlock()

	if err := t.sleep(ctx, nil, opts.ConnectDelay, opts.LatencyPercent); err != nil {
		return err
	}
	if opts.FailConnect {
		linkLogger("simulated").Info("connect failure injected")
		return ErrSimulatedConnectFailure
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		t.conn = &simulatedConn{
			replies: make(chan []byte, simulatedReplyQueueSize),
			closed:  make(chan struct{}),
		}
		t.connects++
	}

	return nil
}

func (t *SimulatedTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn != nil {
		conn.close()
	}

	return nil
}

// Drop simulates the glasses going out of range: pending and future frame
// operations fail until the next Connect.
func (t *SimulatedTransport) Drop() {
	linkLogger("simulated").Info("link drop injected")
	_ = t.Close()
}

// Connects reports how many successful Connect handshakes happened.
func (t *SimulatedTransport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

// LastWritten returns a copy of the most recent frame written by the host.
func (t *SimulatedTransport) LastWritten() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.lastWritten...)
}

func (t *SimulatedTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	conn, err := t.current()
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-conn.closed:
		return nil, ErrClosed
	case reply := <-conn.replies:
		return reply, nil
	}
}

func (t *SimulatedTransport) WriteFrame(ctx context.Context, payload []byte) error {
	conn, err := t.current()
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.lastWritten = append([]byte(nil), payload...)
	pct := t.opts.LatencyPercent
	t.mu.Unlock()

	if t.responder == nil {
		return nil
	}
	replies, delay := t.responder.Respond(payload)
	if err := t.sleep(ctx, conn.closed, delay, pct); err != nil {
		return err
	}

	for _, reply := range replies {
		select {
		case <-conn.closed:
			return ErrClosed
		case conn.replies <- reply:
		default:
			return errors.New("simulated reply queue is full")
		}
	}

	return nil
}

func (t *SimulatedTransport) current() (*simulatedConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, ErrNotConnected
	}
	return t.conn, nil
}

// sleep waits out a scaled device delay. A closed link ends the wait early with ErrClosed.
func (t *SimulatedTransport) sleep(ctx context.Context, closed <-chan struct{}, d time.Duration, pct int) error {
	scaled := ScaleLatency(d, pct)
	if scaled <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(scaled)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-closed:
		return ErrClosed
	case <-timer.C:
		return nil
	}
}

func (c *simulatedConn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// ScaleLatency scales d by pct percent.
func ScaleLatency(d time.Duration, pct int) time.Duration {
	if pct <= 0 || d <= 0 {
		return 0
	}
	return d * time.Duration(pct) / 100
}
