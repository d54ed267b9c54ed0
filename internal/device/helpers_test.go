package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/foodlens/framelink/internal/connectors"
	"github.com/foodlens/framelink/internal/logging"
	"github.com/foodlens/framelink/internal/transport"
)

const testFirmware = "v25.080.0838"

type testSession struct {
	transport *transport.SimulatedTransport
	device    *SimulatedDevice
	link      *TransportLink
	conn      *ConnectionManager
}

func newTestSession(t *testing.T) *testSession {
	t.Helper()

	dev := NewSimulatedDevice(testFirmware)
	tr := transport.NewSimulatedTransport(dev, transport.SimulatedOptions{LatencyPercent: 0})
	link := NewTransportLink(logging.Discard(), tr, nil, "v24.0.0")
	conn := NewConnectionManager(link, ConnectionOptions{Logger: logging.Discard(), ConnectTimeout: time.Second})

	return &testSession{transport: tr, device: dev, link: link, conn: conn}
}

func (s *testSession) connect(t *testing.T) {
	t.Helper()
	state, err := s.conn.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if state != connectors.ConnectionStateConnected {
		t.Fatalf("state after connect = %q, want connected", state)
	}
}

func (s *testSession) dispatcher(t *testing.T, opts DispatcherOptions) *Dispatcher {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	d := NewDispatcher(s.conn, s.link, opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d.Start(ctx)
	return d
}

// stateRecorder collects the states a listener observed.
type stateRecorder struct {
	mu     sync.Mutex
	states []connectors.ConnectionState
}

func (r *stateRecorder) listener(status connectors.ConnectionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, status.State)
}

func (r *stateRecorder) snapshot() []connectors.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]connectors.ConnectionState(nil), r.states...)
}

// blockingLink never completes Open until its context ends.
type blockingLink struct {
	opened chan struct{}
	closes int
	mu     sync.Mutex
}

func newBlockingLink() *blockingLink {
	return &blockingLink{opened: make(chan struct{}, 8)}
}

func (l *blockingLink) Open(ctx context.Context) (LinkInfo, error) {
	l.opened <- struct{}{}
	<-ctx.Done()
	return LinkInfo{}, ctx.Err()
}

func (l *blockingLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closes++
	return nil
}

func (l *blockingLink) Exec(ctx context.Context, _ string) (Reply, error) {
	<-ctx.Done()
	return Reply{}, ctx.Err()
}

func (l *blockingLink) Name() string   { return "blocking" }
func (l *blockingLink) Target() string { return "" }

// instantLink opens immediately.
type instantLink struct{}

func (instantLink) Open(context.Context) (LinkInfo, error)      { return LinkInfo{Firmware: "v25.0.0"}, nil }
func (instantLink) Close() error                                { return nil }
func (instantLink) Exec(context.Context, string) (Reply, error) { return Reply{}, nil }
func (instantLink) Name() string                                { return "instant" }
func (instantLink) Target() string                              { return "" }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
