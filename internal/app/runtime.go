package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foodlens/framelink/internal/bus"
	"github.com/foodlens/framelink/internal/config"
	"github.com/foodlens/framelink/internal/connectors"
	"github.com/foodlens/framelink/internal/device"
	"github.com/foodlens/framelink/internal/domain"
	"github.com/foodlens/framelink/internal/hud"
	"github.com/foodlens/framelink/internal/logging"
	"github.com/foodlens/framelink/internal/meallog"
	"github.com/foodlens/framelink/internal/metrics"
	"github.com/foodlens/framelink/internal/persistence"
	"github.com/foodlens/framelink/internal/platform"
)

// Options adjusts runtime initialization.
type Options struct {
	// Paths overrides the user config and cache locations.
	Paths *Paths
	// Override is applied to the loaded config before validation, e.g. for CLI flags.
	Override func(*config.AppConfig)
}

type Runtime struct {
	mu sync.RWMutex

	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig

	LogManager *logging.Manager
	Bus        *bus.PubSubBus
	Metrics    *metrics.Metrics
	DB         *sql.DB

	MealRepo    *persistence.MealRepo
	CommandLog  *persistence.CommandLogRepo
	WriterQueue *persistence.WriterQueue
	MealLog     *meallog.Log

	ConnectionTransport *SwitchableTransport
	Link                *device.TransportLink
	Connection          *device.ConnectionManager
	Dispatcher          *device.Dispatcher
	Streams             *device.StreamManager
	Evaluator           *Evaluator

	deviceLockMu sync.Mutex
	deviceLock   platform.DeviceLock

	connStatusMu    sync.RWMutex
	connStatus      connectors.ConnectionStatus
	connStatusKnown bool
}

func Initialize(parent context.Context, opts Options) (*Runtime, error) {
	var paths Paths
	if opts.Paths != nil {
		paths = *opts.Paths
	} else {
		resolved, err := ResolvePaths()
		if err != nil {
			return nil, err
		}
		paths = resolved
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if opts.Override != nil {
		opts.Override(&cfg)
		cfg.FillMissingDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:    ctx,
		cancel: cancel,
		Paths:  paths,
		Config: cfg,
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		cancel()
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	build := CurrentBuild()
	slog.Info("starting framelink runtime", "version", build.Version, "build_date", build.Date, "commit", build.Commit, "connector", cfg.Connection.Connector)

	db, err := persistence.Open(ctx, paths.DBFile)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.DB = db
	rt.MealRepo = persistence.NewMealRepo(db)
	rt.CommandLog = persistence.NewCommandLogRepo(db)

	b := bus.New(logMgr.Logger("bus"))
	rt.Bus = b
	rt.setConnStatus(ConnectionStatusFromConfig(cfg.Connection))
	connSub := b.Subscribe(connectors.TopicConnStatus)
	go rt.captureConnStatus(ctx, connSub)

	rt.Metrics = metrics.New()

	writerQueue := persistence.NewWriterQueue(logMgr.Logger("persistence"), WriterQueueCapacity)
	writerQueue.Start(ctx)
	rt.WriterQueue = writerQueue
	domain.StartPersistenceProjection(ctx, b, writerQueue, rt.CommandLog)

	connTransport, err := NewConnectionTransport(cfg.Connection, cfg.Simulator)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("initialize transport: %w", err)
	}
	rt.ConnectionTransport = connTransport

	rt.Link = device.NewTransportLink(logMgr.Logger("link"), connTransport, b, cfg.Device.MinFirmware)
	rt.Connection = device.NewConnectionManager(rt.Link, device.ConnectionOptions{
		Logger:         logMgr.Logger("connection"),
		Bus:            b,
		Metrics:        rt.Metrics,
		ConnectTimeout: cfg.Device.ConnectTimeout(),
	})

	var renderer *hud.Renderer
	if cfg.HUD.RenderPreview {
		renderer, err = hud.NewRenderer()
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("initialize hud renderer: %w", err)
		}
	}
	rt.Dispatcher = device.NewDispatcher(rt.Connection, rt.Link, device.DispatcherOptions{
		Logger:         logMgr.Logger("dispatcher"),
		Bus:            b,
		Metrics:        rt.Metrics,
		CommandTimeout: cfg.Device.CommandTimeout(),
		Renderer:       renderer,
	})
	rt.Dispatcher.Start(ctx)

	rt.Streams = device.NewStreamManager(rt.Connection, device.StreamOptions{
		Logger:             logMgr.Logger("streams"),
		Bus:                b,
		Metrics:            rt.Metrics,
		Source:             device.SyntheticSensors{SampleRate: cfg.Streams.MicrophoneSampleRate},
		CameraInterval:     cfg.Streams.CameraInterval(),
		MicrophoneInterval: cfg.Streams.MicrophoneInterval(),
	})

	var recorder MealRecorder
	if cfg.MealLog.Enabled {
		rt.MealLog = meallog.New(rt.MealRepo, meallog.Options{
			Logger:  logMgr.Logger("meallog"),
			Bus:     b,
			Metrics: rt.Metrics,
			Queue:   writerQueue,
			UserID:  cfg.MealLog.UserID,
		})
		recorder = rt.MealLog
	}
	classifier := FallbackClassifier{
		Primary: DefaultCatalogClassifier(),
		Secondary: FixedClassifier{Result: domain.Classification{
			FoodName:     "Mixed Salad",
			Confidence:   0.76,
			Alternatives: []string{"Green Salad", "Caesar Salad"},
			Source:       domain.ClassificationSourceCloud,
		}},
		MinConfidence: 0.8,
	}
	rt.Evaluator = NewEvaluator(logMgr.Logger("evaluator"), rt.Dispatcher, classifier, NutritionChain{DefaultNutritionCatalog()}, recorder)

	return rt, nil
}

func (r *Runtime) captureConnStatus(ctx context.Context, sub bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub:
			if !ok {
				return
			}
			status, ok := raw.(connectors.ConnectionStatus)
			if !ok {
				continue
			}
			r.setConnStatus(status)
		}
	}
}

func (r *Runtime) setConnStatus(status connectors.ConnectionStatus) {
	r.connStatusMu.Lock()
	r.connStatus = status
	r.connStatusKnown = true
	r.connStatusMu.Unlock()
}

func (r *Runtime) CurrentConnStatus() (connectors.ConnectionStatus, bool) {
	r.connStatusMu.RLock()
	status := r.connStatus
	known := r.connStatusKnown
	r.connStatusMu.RUnlock()
	return status, known
}

// Connect brings the glasses session up using the configured connector.
// The device stays claimed by this process until Close or a connector change.
// A call made during another caller's handshake waits for that handshake.
func (r *Runtime) Connect(ctx context.Context) error {
	if err := r.claimDevice(r.CurrentConfig().Connection); err != nil {
		return err
	}

	state, err := r.Connection.Connect(ctx)
	if err != nil {
		r.releaseDevice()
		return err
	}
	if state == connectors.ConnectionStateConnecting {
		// Another caller owns the handshake; its outcome is ours.
		if state, err = r.awaitHandshake(ctx); err != nil {
			return err
		}
	}
	if state != connectors.ConnectionStateConnected {
		return fmt.Errorf("%w: concurrent handshake ended %s", device.ErrConnectFailed, state)
	}
	return nil
}

func (r *Runtime) awaitHandshake(ctx context.Context) (connectors.ConnectionState, error) {
	changed := make(chan struct{}, 1)
	unsubscribe := r.Connection.Subscribe(func(connectors.ConnectionStatus) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		if state := r.Connection.State(); state != connectors.ConnectionStateConnecting {
			return state, nil
		}
		select {
		case <-ctx.Done():
			return connectors.ConnectionStateConnecting, ctx.Err()
		case <-changed:
		}
	}
}

func (r *Runtime) claimDevice(cfg config.ConnectionConfig) error {
	key := DeviceLockKey(cfg)
	if key == "" {
		return nil
	}

	r.deviceLockMu.Lock()
	defer r.deviceLockMu.Unlock()
	if r.deviceLock != nil {
		return nil
	}

	lock, err := platform.AcquireDeviceLock(Name, key)
	if errors.Is(err, platform.ErrDeviceLockUnsupported) {
		slog.Debug("device lock unavailable", "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim %s: %w", key, err)
	}
	r.deviceLock = lock
	return nil
}

func (r *Runtime) releaseDevice() {
	r.deviceLockMu.Lock()
	defer r.deviceLockMu.Unlock()
	if r.deviceLock == nil {
		return
	}
	if err := r.deviceLock.Release(); err != nil {
		slog.Warn("release device lock", "error", err)
	}
	r.deviceLock = nil
}

// SaveAndApplyConfig persists cfg and applies logging and connector changes.
// A connector change ends the current device session.
func (r *Runtime) SaveAndApplyConfig(cfg config.AppConfig) error {
	cfg.FillMissingDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if err := config.Save(r.Paths.ConfigFile, cfg); err != nil {
		r.mu.Unlock()
		return err
	}
	previous := r.Config
	r.Config = cfg
	r.mu.Unlock()

	if err := r.LogManager.Configure(cfg.Logging, r.Paths.LogFile); err != nil {
		return err
	}

	if r.ConnectionTransport != nil && (previous.Connection != cfg.Connection || previous.Simulator != cfg.Simulator) {
		if r.Connection != nil {
			r.Connection.Disconnect()
		}
		r.releaseDevice()
		if err := r.ConnectionTransport.Apply(cfg.Connection, cfg.Simulator); err != nil {
			return err
		}
		r.setConnStatus(ConnectionStatusFromConfig(cfg.Connection))
	}

	return nil
}

func (r *Runtime) CurrentConfig() config.AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Config
}

func (r *Runtime) ClearDatabase() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if r.WriterQueue != nil {
		if err := r.WriterQueue.Flush(ctx); err != nil {
			return fmt.Errorf("flush pending writes: %w", err)
		}
	}
	if err := persistence.ClearDatabase(ctx, r.DB); err != nil {
		return err
	}
	slog.Info("database cleared")

	return nil
}

func (r *Runtime) Close() error {
	if r.Streams != nil {
		r.Streams.Close()
	}
	if r.Connection != nil {
		r.Connection.Disconnect()
	}
	r.releaseDevice()
	var errs []error
	if r.WriterQueue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownFlushWait)
		if err := r.WriterQueue.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush pending writes: %w", err))
		}
		cancel()
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.ConnectionTransport != nil {
		_ = r.ConnectionTransport.Close()
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	if r.LogManager != nil {
		_ = r.LogManager.Close()
	}
	return errors.Join(errs...)
}
