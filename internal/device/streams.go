package device

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foodlens/framelink/internal/bus"
	"github.com/foodlens/framelink/internal/connectors"
	"github.com/foodlens/framelink/internal/hud"
	"github.com/foodlens/framelink/internal/metrics"
)

const (
	SensorCamera     = "camera"
	SensorMicrophone = "microphone"

	DefaultCameraInterval       = 100 * time.Millisecond
	DefaultMicrophoneInterval   = 50 * time.Millisecond
	DefaultMicrophoneSampleRate = 16000
)

// SensorSource produces the descriptor emitted on each stream tick.
type SensorSource interface {
	CameraFrame(seq uint64, at time.Time) connectors.CameraFrame
	AudioChunk(seq uint64, at time.Time) connectors.AudioChunk
}

// SyntheticSensors describes frames and chunks without real sensor data.
type SyntheticSensors struct {
	SampleRate int
}

func (s SyntheticSensors) CameraFrame(seq uint64, at time.Time) connectors.CameraFrame {
	return connectors.CameraFrame{
		Sequence:  seq,
		Timestamp: at,
		Width:     hud.DisplayWidth,
		Height:    hud.DisplayHeight,
		Handle:    fmt.Sprintf("camera/%d", seq),
	}
}

func (s SyntheticSensors) AudioChunk(seq uint64, at time.Time) connectors.AudioChunk {
	rate := s.SampleRate
	if rate <= 0 {
		rate = DefaultMicrophoneSampleRate
	}
	return connectors.AudioChunk{
		Sequence:   seq,
		Timestamp:  at,
		SampleRate: rate,
		Handle:     fmt.Sprintf("microphone/%d", seq),
	}
}

// StreamState is the slice of ConnectionManager the stream manager depends on.
type StreamState interface {
	IsConnected() bool
	Subscribe(listener ConnectionListener) func()
}

// StreamOptions configures a StreamManager.
type StreamOptions struct {
	Logger             *slog.Logger
	Bus                bus.MessageBus
	Metrics            *metrics.Metrics
	Source             SensorSource
	CameraInterval     time.Duration
	MicrophoneInterval time.Duration
}

// StreamManager runs periodic sensor emission loops while the glasses are connected.
//
// Callbacks run on the stream goroutine and must return quickly; ticks that
// arrive while a callback is busy are dropped. Callbacks may send commands. A
// callback ends its own stream with Stop, never Cancel, and must not call
// Disconnect synchronously.
type StreamManager struct {
	logger      *slog.Logger
	conn        StreamState
	bus         bus.MessageBus
	metrics     *metrics.Metrics
	source      SensorSource
	camInterval time.Duration
	micInterval time.Duration

	mu     sync.Mutex
	nextID uint64
	active map[uint64]*StreamSubscription

	unsubscribe func()
}

func NewStreamManager(conn StreamState, opts StreamOptions) *StreamManager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	source := opts.Source
	if source == nil {
		source = SyntheticSensors{SampleRate: DefaultMicrophoneSampleRate}
	}
	camInterval := opts.CameraInterval
	if camInterval <= 0 {
		camInterval = DefaultCameraInterval
	}
	micInterval := opts.MicrophoneInterval
	if micInterval <= 0 {
		micInterval = DefaultMicrophoneInterval
	}

	m := &StreamManager{
		logger:      logger,
		conn:        conn,
		bus:         opts.Bus,
		metrics:     opts.Metrics,
		source:      source,
		camInterval: camInterval,
		micInterval: micInterval,
		active:      make(map[uint64]*StreamSubscription),
	}
	m.unsubscribe = conn.Subscribe(func(status connectors.ConnectionStatus) {
		if status.State == connectors.ConnectionStateDisconnected {
			m.CancelAll()
		}
	})

	return m
}

// StreamCamera emits a frame descriptor every camera interval until cancelled or disconnected.
func (m *StreamManager) StreamCamera(cb func(connectors.CameraFrame)) (*StreamSubscription, error) {
	if cb == nil {
		return nil, fmt.Errorf("camera callback is nil")
	}
	return m.start(SensorCamera, m.camInterval, func(seq uint64, at time.Time) func() {
		frame := m.source.CameraFrame(seq, at)
		return func() {
			cb(frame)
			if m.bus != nil {
				m.bus.Publish(connectors.TopicStreamCamera, frame)
			}
		}
	})
}

// StreamMicrophone emits an audio chunk descriptor every microphone interval until cancelled or disconnected.
func (m *StreamManager) StreamMicrophone(cb func(connectors.AudioChunk)) (*StreamSubscription, error) {
	if cb == nil {
		return nil, fmt.Errorf("microphone callback is nil")
	}
	return m.start(SensorMicrophone, m.micInterval, func(seq uint64, at time.Time) func() {
		chunk := m.source.AudioChunk(seq, at)
		return func() {
			cb(chunk)
			if m.bus != nil {
				m.bus.Publish(connectors.TopicStreamMicrophone, chunk)
			}
		}
	})
}

// Active returns the number of live subscriptions.
func (m *StreamManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// CancelAll cancels every subscription and waits for in-flight callbacks to return.
func (m *StreamManager) CancelAll() {
	m.mu.Lock()
	subs := make([]*StreamSubscription, 0, len(m.active))
	for _, sub := range m.active {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	if len(subs) > 0 {
		m.logger.Info("streams cancelled", "count", len(subs))
	}
}

// Close cancels all streams and detaches from the connection manager.
func (m *StreamManager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.CancelAll()
}

// emitFunc builds the descriptor for one tick and returns its delivery.
type emitFunc func(seq uint64, at time.Time) (deliver func())

func (m *StreamManager) start(sensor string, interval time.Duration, emit emitFunc) (*StreamSubscription, error) {
	if !m.conn.IsConnected() {
		return nil, ErrNotConnected
	}

	m.mu.Lock()
	m.nextID++
	sub := &StreamSubscription{
		id:      m.nextID,
		sensor:  sensor,
		manager: m,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	m.active[sub.id] = sub
	m.mu.Unlock()

	m.metrics.StreamStarted(sensor)
	m.logger.Info("stream started", "sensor", sensor, "interval", interval)
	go sub.run(interval, emit)

	return sub, nil
}

func (m *StreamManager) remove(sub *StreamSubscription) {
	m.mu.Lock()
	delete(m.active, sub.id)
	m.mu.Unlock()
	m.metrics.StreamStopped(sub.sensor)
}

// StreamSubscription is the cancel handle of one running stream.
type StreamSubscription struct {
	id      uint64
	sensor  string
	manager *StreamManager

	// emitMu is held for a whole emission, descriptor and callback.
	emitMu    sync.Mutex
	cancelled atomic.Bool
	seq       uint64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Active reports whether the stream can still emit.
func (s *StreamSubscription) Active() bool {
	return !s.cancelled.Load()
}

// Cancel stops the stream and waits for an emission already in progress, so no
// callback runs after it returns. Idempotent. Inside the stream's own callback
// use Stop instead.
func (s *StreamSubscription) Cancel() {
	s.Stop()
	s.emitMu.Lock()
	s.emitMu.Unlock() //nolint:staticcheck
}

// Stop marks the stream cancelled without waiting for the current emission.
func (s *StreamSubscription) Stop() {
	s.stopOnce.Do(func() {
		s.cancelled.Store(true)
		close(s.stop)
		s.manager.remove(s)
		s.manager.logger.Debug("stream cancelled", "sensor", s.sensor, "emitted", atomic.LoadUint64(&s.seq))
	})
}

func (s *StreamSubscription) run(interval time.Duration, emit emitFunc) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			if !s.tick(now, emit) {
				return
			}
		}
	}
}

// tick emits once unless the subscription was cancelled or the connection left Connected.
func (s *StreamSubscription) tick(now time.Time, emit emitFunc) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	if !s.live() {
		return false
	}
	seq := atomic.AddUint64(&s.seq, 1)
	deliver := emit(seq, now.UTC())
	// Building the descriptor may have raced a cancel or a disconnect.
	if !s.live() {
		return false
	}
	deliver()
	s.manager.metrics.StreamEmitted(s.sensor)

	return !s.cancelled.Load()
}

// live reports whether the stream may emit, stopping it once the glasses are gone.
func (s *StreamSubscription) live() bool {
	if s.cancelled.Load() {
		return false
	}
	if !s.manager.conn.IsConnected() {
		s.Stop()
		return false
	}
	return true
}
