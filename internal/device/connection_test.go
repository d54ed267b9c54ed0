package device

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/foodlens/framelink/internal/bus"
	"github.com/foodlens/framelink/internal/connectors"
	"github.com/foodlens/framelink/internal/logging"
	"github.com/foodlens/framelink/internal/metrics"
	"github.com/foodlens/framelink/internal/transport"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var (
	disconnected = connectors.ConnectionStateDisconnected
	connecting   = connectors.ConnectionStateConnecting
	connected    = connectors.ConnectionStateConnected
)

func TestConnectNotifiesOnceAndIsReentrant(t *testing.T) {
	s := newTestSession(t)
	rec := &stateRecorder{}
	s.conn.Subscribe(rec.listener)

	if s.conn.IsConnected() {
		t.Fatalf("new manager must start disconnected")
	}
	s.connect(t)

	state, err := s.conn.Connect(context.Background())
	if err != nil || state != connected {
		t.Fatalf("second connect = (%q, %v), want (connected, nil)", state, err)
	}

	want := []connectors.ConnectionState{connecting, connected}
	if got := rec.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	if s.transport.Connects() != 1 {
		t.Fatalf("transport connects = %d, want 1", s.transport.Connects())
	}
	if got := s.link.Info().Firmware; got != testFirmware {
		t.Fatalf("firmware = %q, want %q", got, testFirmware)
	}
}

func TestConnectFailureEndsDisconnected(t *testing.T) {
	s := newTestSession(t)
	s.transport.SetFailConnect(true)
	rec := &stateRecorder{}
	s.conn.Subscribe(rec.listener)

	state, err := s.conn.Connect(context.Background())
	if !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("expected ErrConnectFailed, got %v", err)
	}
	if !errors.Is(err, transport.ErrSimulatedConnectFailure) {
		t.Fatalf("expected transport cause to be wrapped, got %v", err)
	}
	if state != disconnected || s.conn.IsConnected() {
		t.Fatalf("state = %q, want disconnected", state)
	}

	want := []connectors.ConnectionState{connecting, disconnected}
	if got := rec.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
}

func TestConnectRejectsOldFirmware(t *testing.T) {
	dev := NewSimulatedDevice("v23.179.1006")
	tr := transport.NewSimulatedTransport(dev, transport.SimulatedOptions{})
	link := NewTransportLink(logging.Discard(), tr, nil, "v24.0.0")
	conn := NewConnectionManager(link, ConnectionOptions{Logger: logging.Discard()})

	_, err := conn.Connect(context.Background())
	if !errors.Is(err, ErrConnectFailed) || !errors.Is(err, ErrFirmwareTooOld) {
		t.Fatalf("expected connect failure for old firmware, got %v", err)
	}
	if _, err := tr.ReadFrame(context.Background()); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("transport should be closed after a rejected handshake, got %v", err)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	s := newTestSession(t)
	rec := &stateRecorder{}
	s.conn.Subscribe(rec.listener)

	s.conn.Disconnect()
	s.connect(t)
	s.conn.Disconnect()
	s.conn.Disconnect()

	want := []connectors.ConnectionState{connecting, connected, disconnected}
	if got := rec.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	if s.conn.State() != disconnected {
		t.Fatalf("state = %q, want disconnected", s.conn.State())
	}
}

func TestDisconnectDuringConnectCancelsHandshake(t *testing.T) {
	link := newBlockingLink()
	conn := NewConnectionManager(link, ConnectionOptions{Logger: logging.Discard(), ConnectTimeout: 10 * time.Second})
	rec := &stateRecorder{}
	conn.Subscribe(rec.listener)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Connect(context.Background())
		errCh <- err
	}()

	<-link.opened
	if conn.State() != connecting {
		t.Fatalf("state = %q, want connecting", conn.State())
	}
	conn.Disconnect()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrConnectFailed) {
			t.Fatalf("expected ErrConnectFailed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("connect did not return after disconnect")
	}

	want := []connectors.ConnectionState{connecting, disconnected}
	if got := rec.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
}

func TestConnectTimeout(t *testing.T) {
	conn := NewConnectionManager(newBlockingLink(), ConnectionOptions{Logger: logging.Discard(), ConnectTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := conn.Connect(context.Background())
	if !errors.Is(err, ErrConnectFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected connect timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("connect took %s, expected it to be bounded", elapsed)
	}
	if conn.State() != disconnected {
		t.Fatalf("state = %q, want disconnected", conn.State())
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	conn := NewConnectionManager(instantLink{}, ConnectionOptions{Logger: logging.Discard()})
	first := &stateRecorder{}
	second := &stateRecorder{}
	unsubscribe := conn.Subscribe(first.listener)
	conn.Subscribe(second.listener)

	unsubscribe()
	unsubscribe()
	if got := conn.observers.count(); got != 1 {
		t.Fatalf("observer count = %d, want 1", got)
	}

	if _, err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if len(first.snapshot()) != 0 {
		t.Fatalf("unsubscribed listener was notified: %v", first.snapshot())
	}
	if len(second.snapshot()) != 2 {
		t.Fatalf("remaining listener saw %v", second.snapshot())
	}
}

func TestListenersSeeEveryTransitionInOrder(t *testing.T) {
	conn := NewConnectionManager(instantLink{}, ConnectionOptions{Logger: logging.Discard()})
	first := &stateRecorder{}
	second := &stateRecorder{}
	conn.Subscribe(first.listener)
	conn.Subscribe(second.listener)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = conn.Connect(context.Background())
				conn.Disconnect()
			}
		}()
	}
	wg.Wait()

	a, b := first.snapshot(), second.snapshot()
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("listeners diverged: %d vs %d transitions", len(a), len(b))
	}

	prev := disconnected
	for i, state := range a {
		valid := (prev == disconnected && state == connecting) ||
			(prev == connecting && (state == connected || state == disconnected)) ||
			(prev == connected && state == disconnected)
		if !valid {
			t.Fatalf("invalid transition %q -> %q at %d", prev, state, i)
		}
		prev = state
	}
	if prev != disconnected {
		t.Fatalf("final observed state = %q, want disconnected", prev)
	}
}

func TestReportLinkFailure(t *testing.T) {
	s := newTestSession(t)
	rec := &stateRecorder{}

	s.conn.ReportLinkFailure(errors.New("ignored while disconnected"))
	s.connect(t)
	s.conn.Subscribe(rec.listener)
	s.conn.ReportLinkFailure(transport.ErrClosed)
	s.conn.ReportLinkFailure(transport.ErrClosed)

	want := []connectors.ConnectionState{disconnected}
	if got := rec.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
}

func TestConnectionPublishesStatus(t *testing.T) {
	b := bus.New(logging.Discard())
	t.Cleanup(b.Close)
	sub := b.Subscribe(connectors.TopicConnStatus)
	m := metrics.New()

	conn := NewConnectionManager(instantLink{}, ConnectionOptions{Logger: logging.Discard(), Bus: b, Metrics: m})
	if _, err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	for _, want := range []connectors.ConnectionState{connecting, connected} {
		select {
		case msg := <-sub:
			status, ok := msg.(connectors.ConnectionStatus)
			if !ok {
				t.Fatalf("unexpected payload %T", msg)
			}
			if status.State != want || status.TransportName != "instant" {
				t.Fatalf("status = %+v, want state %q", status, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("no status published for %q", want)
		}
	}

	if got := testutil.ToFloat64(m.ConnectionState); got != 2 {
		t.Fatalf("connection gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ConnectAttempts.WithLabelValues("success")); got != 1 {
		t.Fatalf("successful connects = %v, want 1", got)
	}
}
