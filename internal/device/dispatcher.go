package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foodlens/framelink/internal/bus"
	"github.com/foodlens/framelink/internal/connectors"
	"github.com/foodlens/framelink/internal/hud"
	"github.com/foodlens/framelink/internal/metrics"
	"github.com/foodlens/framelink/internal/transport"
)

const (
	DefaultCommandTimeout = 5 * time.Second
	defaultOutboxSize     = 64
)

// Executor runs one script exchange against the device.
type Executor interface {
	Exec(ctx context.Context, script string) (Reply, error)
}

// Handler executes one command type. It returns the structured result data and
// the script it sent.
type Handler func(ctx context.Context, ex Executor, cmd Command) (data any, script string, err error)

// ConnectionGate is the slice of ConnectionManager the dispatcher depends on.
type ConnectionGate interface {
	IsConnected() bool
	ReportLinkFailure(cause error)
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Logger         *slog.Logger
	Bus            bus.MessageBus
	Metrics        *metrics.Metrics
	CommandTimeout time.Duration
	// Renderer enables bitmap previews of details overlays.
	Renderer *hud.Renderer
}

type dispatchJob struct {
	ctx       context.Context
	cmd       Command
	handler   Handler
	submitted time.Time
	result    chan Result
}

// Dispatcher sends typed commands to the glasses. A single worker owns the
// device session, so commands run one at a time in submission order.
type Dispatcher struct {
	logger   *slog.Logger
	conn     ConnectionGate
	exec     Executor
	bus      bus.MessageBus
	metrics  *metrics.Metrics
	timeout  time.Duration
	renderer *hud.Renderer

	handlersMu sync.RWMutex
	handlers   map[CommandType]Handler

	outbox    chan dispatchJob
	startOnce sync.Once
	stopped   chan struct{}
	closeMu   sync.RWMutex
	started   bool
	closed    bool
}

func NewDispatcher(conn ConnectionGate, exec Executor, opts DispatcherOptions) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	d := &Dispatcher{
		logger:   logger,
		conn:     conn,
		exec:     exec,
		bus:      opts.Bus,
		metrics:  opts.Metrics,
		timeout:  timeout,
		renderer: opts.Renderer,
		handlers: make(map[CommandType]Handler),
		outbox:   make(chan dispatchJob, defaultOutboxSize),
		stopped:  make(chan struct{}),
	}
	d.handlers[CommandCapture] = handleCapture
	d.handlers[CommandVerdictIcon] = handleVerdictIcon
	d.handlers[CommandDetailsOverlay] = d.handleDetailsOverlay
	d.handlers[CommandLogEntry] = handleLogEntry
	d.handlers[CommandScript] = handleScript

	return d
}

// RegisterHandler adds or replaces the handler for a command type.
func (d *Dispatcher) RegisterHandler(commandType CommandType, handler Handler) {
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()
	if handler == nil {
		delete(d.handlers, commandType)
		return
	}
	d.handlers[commandType] = handler
}

// Start runs the worker until ctx is done. Subsequent calls are no-ops.
// Commands submitted before Start fail with ErrDispatcherStopped.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.closeMu.Lock()
		d.started = true
		d.closeMu.Unlock()
		go d.runOutbox(ctx)
	})
}

// Send submits cmd and waits for its result.
func (d *Dispatcher) Send(ctx context.Context, cmd Command) Result {
	return <-d.Submit(ctx, cmd)
}

// Submit queues cmd and returns a channel that receives exactly one Result.
// While not connected it fails immediately with ErrNotConnected without touching the device.
func (d *Dispatcher) Submit(ctx context.Context, cmd Command) <-chan Result {
	resCh := make(chan Result, 1)
	submitted := time.Now()

	if !d.conn.IsConnected() {
		resCh <- d.finish(Result{Command: cmd, Err: ErrNotConnected}, submitted)
		close(resCh)
		return resCh
	}

	d.handlersMu.RLock()
	handler, ok := d.handlers[cmd.Type]
	d.handlersMu.RUnlock()
	if !ok {
		resCh <- d.finish(Result{Command: cmd, Err: ErrUnsupportedCommand}, submitted)
		close(resCh)
		return resCh
	}

	job := dispatchJob{ctx: ctx, cmd: cmd, handler: handler, submitted: submitted, result: resCh}
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed || !d.started {
		resCh <- d.finish(Result{Command: cmd, Err: ErrDispatcherStopped}, submitted)
		close(resCh)
		return resCh
	}
	select {
	case d.outbox <- job:
	case <-ctx.Done():
		resCh <- d.finish(Result{Command: cmd, Err: ctx.Err()}, submitted)
		close(resCh)
	case <-d.stopped:
		resCh <- d.finish(Result{Command: cmd, Err: ErrDispatcherStopped}, submitted)
		close(resCh)
	}

	return resCh
}

func (d *Dispatcher) runOutbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(d.stopped)
			d.closeMu.Lock()
			d.closed = true
			d.closeMu.Unlock()
			d.drain()
			return
		case job := <-d.outbox:
			res := d.execute(ctx, job)
			job.result <- d.finish(res, job.submitted)
			close(job.result)
		}
	}
}

// drain fails queued jobs so no caller waits forever on a stopped worker.
func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.outbox:
			job.result <- d.finish(Result{Command: job.cmd, Err: ErrDispatcherStopped}, job.submitted)
			close(job.result)
		default:
			return
		}
	}
}

func (d *Dispatcher) execute(workerCtx context.Context, job dispatchJob) Result {
	res := Result{Command: job.cmd}
	if err := job.ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	// The link may have dropped while the job was queued.
	if !d.conn.IsConnected() {
		res.Err = ErrNotConnected
		return res
	}

	execCtx, cancel := context.WithTimeout(job.ctx, d.timeout)
	defer cancel()
	stop := context.AfterFunc(workerCtx, cancel)
	defer stop()

	data, script, err := job.handler(execCtx, d.exec, job.cmd)
	res.Data = data
	res.Script = script
	if err != nil {
		res.Data = nil
		res.Err = d.classify(job.ctx, err)
	}

	return res
}

func (d *Dispatcher) classify(callerCtx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrScriptFailed):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		if callerCtx.Err() != nil {
			return callerCtx.Err()
		}
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return err
	case transport.IsLinkLoss(err):
		d.conn.ReportLinkFailure(err)
		return fmt.Errorf("%w: %w", ErrTransmissionFailed, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransmissionFailed, err)
	}
}

func (d *Dispatcher) finish(res Result, submitted time.Time) Result {
	res.Duration = time.Since(submitted)
	commandType := string(res.Command.Type)

	if res.OK() {
		d.logger.Info("command done", "type", commandType, "duration", res.Duration)
	} else {
		d.logger.Warn("command failed", "type", commandType, "reason", res.Reason(), "duration", res.Duration)
	}
	d.metrics.ObserveCommand(commandType, res.OK(), res.Duration)
	if d.bus != nil {
		d.bus.Publish(connectors.TopicDeviceCommand, connectors.CommandEvent{
			Type:       commandType,
			Success:    res.OK(),
			Reason:     res.Reason(),
			Script:     res.Script,
			DurationMS: res.Duration.Milliseconds(),
			Timestamp:  time.Now(),
		})
	}

	return res
}
