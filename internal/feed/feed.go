// Package feed serves bus events to websocket clients next to the Prometheus endpoint.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foodlens/framelink/internal/bus"
	"github.com/foodlens/framelink/internal/connectors"
	"github.com/foodlens/framelink/internal/metrics"
)

const (
	// TopicReady is sent once per client after its bus subscription is live.
	TopicReady = "feed.ready"

	writeWait         = 5 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = 50 * time.Second
	shutdownWait      = 3 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// DefaultTopics are forwarded when a client does not ask for specific ones.
var DefaultTopics = []string{
	connectors.TopicConnStatus,
	connectors.TopicDeviceCommand,
	connectors.TopicStreamCamera,
	connectors.TopicStreamMicrophone,
	connectors.TopicMealLogged,
}

// Envelope is one websocket text message.
type Envelope struct {
	Topic   string    `json:"topic"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// Health is the /healthz body.
type Health struct {
	Status string                       `json:"status"`
	Device *connectors.ConnectionStatus `json:"device,omitempty"`
	Feed   int                          `json:"feed_clients"`
}

// Options configures a Server.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Status reports the current device connection for /healthz.
	Status func() (connectors.ConnectionStatus, bool)
}

type Server struct {
	logger   *slog.Logger
	bus      bus.MessageBus
	metrics  *metrics.Metrics
	status   func() (connectors.ConnectionStatus, bool)
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients int
}

func New(b bus.MessageBus, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		logger:  logger,
		bus:     b,
		metrics: opts.Metrics,
		status:  opts.Status,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler routes /ws, /metrics and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", s.serveHealth)
	if reg := s.metrics.Registry(); reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	return mux
}

// Run listens on addr until ctx ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("event feed listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("event feed shutdown", "error", err)
		_ = srv.Close()
	}
	<-errCh

	return nil
}

// Clients is the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	body := Health{Status: "ok", Feed: s.Clients()}
	if s.status != nil {
		if status, known := s.status(); known {
			body.Device = &status
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("write health response", "error", err)
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	topics := requestedTopics(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sub := s.bus.Subscribe(topics...)
	s.addClient(1)
	logger := s.logger.With("remote", r.RemoteAddr)
	logger.Info("feed client connected", "topics", topics)

	defer func() {
		s.bus.Unsubscribe(sub)
		s.addClient(-1)
		_ = conn.Close()
		logger.Info("feed client disconnected")
	}()

	done := make(chan struct{})
	go s.readLoop(conn, done)

	if err := writeEnvelope(conn, Envelope{Topic: TopicReady, Payload: topics, At: time.Now().UTC()}); err != nil {
		return
	}
	s.writeLoop(r.Context(), conn, sub, done, logger)
}

// readLoop discards client messages; it exists to process control frames and notice closes.
func (s *Server) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, sub bus.Subscription, done <-chan struct{}, logger *slog.Logger) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-done:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case msg, ok := <-sub:
			if !ok {
				return
			}
			env := Envelope{Topic: topicOf(msg), Payload: msg, At: time.Now().UTC()}
			if err := writeEnvelope(conn, env); err != nil {
				logger.Debug("feed write failed", "topic", env.Topic, "error", err)
				return
			}
		}
	}
}

func (s *Server) addClient(delta int) {
	s.mu.Lock()
	s.clients += delta
	s.mu.Unlock()
	if delta > 0 {
		s.metrics.FeedClientConnected()
	} else {
		s.metrics.FeedClientDisconnected()
	}
}

func writeEnvelope(conn *websocket.Conn, env Envelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}

// requestedTopics reads ?topics=a,b; unknown names are ignored.
func requestedTopics(r *http.Request) []string {
	raw := strings.TrimSpace(r.URL.Query().Get("topics"))
	if raw == "" {
		return DefaultTopics
	}

	var out []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		for _, known := range DefaultTopics {
			if name == known {
				out = append(out, name)
				break
			}
		}
	}
	if len(out) == 0 {
		return DefaultTopics
	}

	return out
}

// topicOf recovers the topic from the payload type; pubsub channels do not carry it.
func topicOf(msg any) string {
	switch msg.(type) {
	case connectors.ConnectionStatus:
		return connectors.TopicConnStatus
	case connectors.CommandEvent:
		return connectors.TopicDeviceCommand
	case connectors.CameraFrame:
		return connectors.TopicStreamCamera
	case connectors.AudioChunk:
		return connectors.TopicStreamMicrophone
	case connectors.MealLoggedEvent:
		return connectors.TopicMealLogged
	default:
		return "unknown"
	}
}
