package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foodlens/framelink/internal/bus"
	"github.com/foodlens/framelink/internal/connectors"
	"github.com/foodlens/framelink/internal/logging"
	"github.com/foodlens/framelink/internal/metrics"
	"github.com/foodlens/framelink/internal/transport"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestStreams(t *testing.T, s *testSession, opts StreamOptions) *StreamManager {
	t.Helper()
	opts.Logger = logging.Discard()
	if opts.CameraInterval == 0 {
		opts.CameraInterval = 5 * time.Millisecond
	}
	if opts.MicrophoneInterval == 0 {
		opts.MicrophoneInterval = 5 * time.Millisecond
	}
	m := NewStreamManager(s.conn, opts)
	t.Cleanup(m.Close)
	return m
}

func TestStreamRequiresConnection(t *testing.T) {
	s := newTestSession(t)
	m := newTestStreams(t, s, StreamOptions{})

	if _, err := m.StreamCamera(func(connectors.CameraFrame) {}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("camera: expected not connected, got %v", err)
	}
	if _, err := m.StreamMicrophone(func(connectors.AudioChunk) {}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("microphone: expected not connected, got %v", err)
	}
	if m.Active() != 0 {
		t.Fatalf("expected no active streams, got %d", m.Active())
	}
}

func TestCameraStreamEmitsDescriptors(t *testing.T) {
	s := newTestSession(t)
	s.connect(t)
	m := newTestStreams(t, s, StreamOptions{})

	frames := make(chan connectors.CameraFrame, 64)
	sub, err := m.StreamCamera(func(f connectors.CameraFrame) {
		select {
		case frames <- f:
		default:
		}
	})
	if err != nil {
		t.Fatalf("stream camera: %v", err)
	}
	defer sub.Cancel()

	var last uint64
	for i := 0; i < 3; i++ {
		select {
		case f := <-frames:
			if f.Sequence <= last {
				t.Fatalf("sequence did not increase: %d after %d", f.Sequence, last)
			}
			last = f.Sequence
			if f.Width != 640 || f.Height != 400 || f.Handle == "" {
				t.Fatalf("unexpected frame %+v", f)
			}
		case <-time.After(time.Second):
			t.Fatalf("no camera frame after %d emissions", i)
		}
	}
}

func TestMicrophoneStreamSampleRate(t *testing.T) {
	s := newTestSession(t)
	s.connect(t)
	m := newTestStreams(t, s, StreamOptions{Source: SyntheticSensors{SampleRate: 8000}})

	chunks := make(chan connectors.AudioChunk, 64)
	sub, err := m.StreamMicrophone(func(c connectors.AudioChunk) {
		select {
		case chunks <- c:
		default:
		}
	})
	if err != nil {
		t.Fatalf("stream microphone: %v", err)
	}
	defer sub.Cancel()

	select {
	case c := <-chunks:
		if c.SampleRate != 8000 {
			t.Fatalf("sample rate = %d, want 8000", c.SampleRate)
		}
	case <-time.After(time.Second):
		t.Fatalf("no audio chunk emitted")
	}
}

func TestCancelStopsEmissions(t *testing.T) {
	s := newTestSession(t)
	s.connect(t)
	m := newTestStreams(t, s, StreamOptions{})

	var count atomic.Int64
	sub, err := m.StreamCamera(func(connectors.CameraFrame) { count.Add(1) })
	if err != nil {
		t.Fatalf("stream camera: %v", err)
	}
	waitFor(t, time.Second, func() bool { return count.Load() >= 2 }, "camera emissions")

	sub.Cancel()
	sub.Cancel()
	if sub.Active() {
		t.Fatalf("subscription still active after cancel")
	}
	after := count.Load()
	time.Sleep(30 * time.Millisecond)
	if got := count.Load(); got != after {
		t.Fatalf("emissions continued after cancel: %d -> %d", after, got)
	}
	if m.Active() != 0 {
		t.Fatalf("active streams = %d, want 0", m.Active())
	}
}

func TestNoEmissionAfterDisconnect(t *testing.T) {
	s := newTestSession(t)
	s.connect(t)
	m := newTestStreams(t, s, StreamOptions{CameraInterval: time.Millisecond, MicrophoneInterval: time.Millisecond})

	var (
		disconnected atomic.Bool
		late         atomic.Int64
		emitted      atomic.Int64
	)
	check := func() {
		emitted.Add(1)
		if disconnected.Load() {
			late.Add(1)
		}
	}
	cam, err := m.StreamCamera(func(connectors.CameraFrame) { check() })
	if err != nil {
		t.Fatalf("stream camera: %v", err)
	}
	mic, err := m.StreamMicrophone(func(connectors.AudioChunk) { check() })
	if err != nil {
		t.Fatalf("stream microphone: %v", err)
	}
	waitFor(t, time.Second, func() bool { return emitted.Load() >= 4 }, "stream emissions")

	s.conn.Disconnect()
	disconnected.Store(true)

	time.Sleep(20 * time.Millisecond)
	if late.Load() != 0 {
		t.Fatalf("%d emissions after disconnect returned", late.Load())
	}
	if cam.Active() || mic.Active() || m.Active() != 0 {
		t.Fatalf("streams still active after disconnect")
	}
}

func TestCallbackMayStopItsOwnStream(t *testing.T) {
	s := newTestSession(t)
	s.connect(t)
	m := newTestStreams(t, s, StreamOptions{})

	var (
		count atomic.Int64
		sub   atomic.Pointer[StreamSubscription]
	)
	started, err := m.StreamMicrophone(func(connectors.AudioChunk) {
		if count.Add(1) == 3 {
			if own := sub.Load(); own != nil {
				own.Stop()
			}
		}
	})
	if err != nil {
		t.Fatalf("stream microphone: %v", err)
	}
	sub.Store(started)

	waitFor(t, time.Second, func() bool { return !started.Active() }, "self cancel")
	time.Sleep(20 * time.Millisecond)
	if got := count.Load(); got != 3 {
		t.Fatalf("emissions = %d, want 3", got)
	}
}

func TestCancelAllAndPublishing(t *testing.T) {
	b := bus.New(logging.Discard())
	t.Cleanup(b.Close)
	camSub := b.Subscribe(connectors.TopicStreamCamera)
	reg := metrics.New()

	s := newTestSession(t)
	s.connect(t)
	m := newTestStreams(t, s, StreamOptions{Bus: b, Metrics: reg})

	for i := 0; i < 3; i++ {
		if _, err := m.StreamCamera(func(connectors.CameraFrame) {}); err != nil {
			t.Fatalf("stream camera: %v", err)
		}
	}
	if m.Active() != 3 {
		t.Fatalf("active = %d, want 3", m.Active())
	}
	if got := testutil.ToFloat64(reg.ActiveStreams.WithLabelValues(SensorCamera)); got != 3 {
		t.Fatalf("active stream gauge = %v, want 3", got)
	}

	select {
	case msg := <-camSub:
		if _, ok := msg.(connectors.CameraFrame); !ok {
			t.Fatalf("unexpected bus payload %T", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("camera frame not published")
	}

	m.CancelAll()
	if m.Active() != 0 {
		t.Fatalf("active after CancelAll = %d", m.Active())
	}
	if got := testutil.ToFloat64(reg.ActiveStreams.WithLabelValues(SensorCamera)); got != 0 {
		t.Fatalf("active stream gauge after cancel = %v, want 0", got)
	}
}

// gatedSensors blocks the first camera descriptor until release is closed.
type gatedSensors struct {
	SyntheticSensors
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedSensors) CameraFrame(seq uint64, at time.Time) connectors.CameraFrame {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.SyntheticSensors.CameraFrame(seq, at)
}

func TestCancelWaitsForInFlightEmission(t *testing.T) {
	s := newTestSession(t)
	s.connect(t)
	source := &gatedSensors{entered: make(chan struct{}), release: make(chan struct{})}
	m := newTestStreams(t, s, StreamOptions{Source: source})

	var calls atomic.Int64
	sub, err := m.StreamCamera(func(connectors.CameraFrame) { calls.Add(1) })
	if err != nil {
		t.Fatalf("stream camera: %v", err)
	}
	select {
	case <-source.entered:
	case <-time.After(time.Second):
		t.Fatalf("camera descriptor was never requested")
	}

	cancelled := make(chan struct{})
	go func() {
		sub.Cancel()
		close(cancelled)
	}()
	select {
	case <-cancelled:
		t.Fatalf("Cancel returned while an emission was still in progress")
	case <-time.After(20 * time.Millisecond):
	}

	close(source.release)
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatalf("Cancel did not return after the emission finished")
	}
	time.Sleep(20 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Fatalf("callback fired %d time(s) for an emission cancelled mid-flight", got)
	}
}

func TestDisconnectWhileCallbackSendsCommand(t *testing.T) {
	dev := NewSimulatedDevice(testFirmware)
	tr := transport.NewSimulatedTransport(dev, transport.SimulatedOptions{LatencyPercent: 100})
	link := NewTransportLink(logging.Discard(), tr, nil, "v24.0.0")
	s := &testSession{
		transport: tr,
		device:    dev,
		link:      link,
		conn:      NewConnectionManager(link, ConnectionOptions{Logger: logging.Discard(), ConnectTimeout: 3 * time.Second}),
	}
	d := s.dispatcher(t, DispatcherOptions{})
	s.connect(t)
	m := newTestStreams(t, s, StreamOptions{})

	sending := make(chan struct{})
	results := make(chan Result, 1)
	var once sync.Once
	if _, err := m.StreamCamera(func(connectors.CameraFrame) {
		first := false
		once.Do(func() { first = true })
		if !first {
			return
		}
		close(sending)
		results <- d.Send(context.Background(), NewCaptureCommand())
	}); err != nil {
		t.Fatalf("stream camera: %v", err)
	}

	select {
	case <-sending:
	case <-time.After(time.Second):
		t.Fatalf("callback never sent a command")
	}
	// The capture takes about a second at reference latency.
	time.Sleep(50 * time.Millisecond)

	disconnected := make(chan struct{})
	go func() {
		s.conn.Disconnect()
		close(disconnected)
	}()
	select {
	case <-disconnected:
	case <-time.After(3 * time.Second):
		t.Fatalf("Disconnect did not return while a stream callback waited on a command")
	}

	res := <-results
	if res.OK() {
		t.Fatalf("capture interrupted by disconnect should fail, got %+v", res)
	}
	if s.conn.IsConnected() || m.Active() != 0 {
		t.Fatalf("expected disconnected with no streams, connected=%v active=%d", s.conn.IsConnected(), m.Active())
	}
}
