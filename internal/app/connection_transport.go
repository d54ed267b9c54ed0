package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/foodlens/framelink/internal/config"
	"github.com/foodlens/framelink/internal/device"
	"github.com/foodlens/framelink/internal/transport"
)

// SwitchableTransport wraps the active connector and lets runtime swap it on config updates.
type SwitchableTransport struct {
	mu sync.RWMutex

	cfg       config.ConnectionConfig
	sim       config.SimulatorConfig
	transport transport.Transport
}

func NewConnectionTransport(cfg config.ConnectionConfig, sim config.SimulatorConfig) (*SwitchableTransport, error) {
	tr, err := newTransportForConnection(cfg, sim)
	if err != nil {
		return nil, err
	}

	return &SwitchableTransport{
		cfg:       cfg,
		sim:       sim,
		transport: tr,
	}, nil
}

// Apply replaces the active transport. The old one is closed, so callers
// disconnect the device session first.
func (t *SwitchableTransport) Apply(cfg config.ConnectionConfig, sim config.SimulatorConfig) error {
	next, err := newTransportForConnection(cfg, sim)
	if err != nil {
		return err
	}

	t.mu.Lock()
	current := t.transport
	t.transport = next
	t.cfg = cfg
	t.sim = sim
	t.mu.Unlock()

	if current != nil {
		_ = current.Close()
	}

	return nil
}

func (t *SwitchableTransport) Name() string {
	tr := t.current()
	if tr == nil {
		return "unknown"
	}

	return tr.Name()
}

func (t *SwitchableTransport) StatusTarget() string {
	t.mu.RLock()
	tr := t.transport
	cfg := t.cfg
	t.mu.RUnlock()

	if provider, ok := tr.(transport.StatusTargetResolver); ok {
		target := strings.TrimSpace(provider.StatusTarget())
		if target != "" {
			return target
		}
	}

	return ConnectionTarget(cfg)
}

func (t *SwitchableTransport) Connect(ctx context.Context) error {
	tr := t.current()
	if tr == nil {
		return fmt.Errorf("transport is not configured")
	}

	return tr.Connect(ctx)
}

func (t *SwitchableTransport) Close() error {
	tr := t.current()
	if tr == nil {
		return nil
	}

	return tr.Close()
}

func (t *SwitchableTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	tr := t.current()
	if tr == nil {
		return nil, fmt.Errorf("transport is not configured")
	}

	return tr.ReadFrame(ctx)
}

func (t *SwitchableTransport) WriteFrame(ctx context.Context, payload []byte) error {
	tr := t.current()
	if tr == nil {
		return fmt.Errorf("transport is not configured")
	}

	return tr.WriteFrame(ctx, payload)
}

// Simulated returns the active transport when it is the in-memory device.
func (t *SwitchableTransport) Simulated() (*transport.SimulatedTransport, bool) {
	sim, ok := t.current().(*transport.SimulatedTransport)
	return sim, ok
}

func (t *SwitchableTransport) current() transport.Transport {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.transport
}

func (t *SwitchableTransport) Config() config.ConnectionConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.cfg
}

func NewTransportForConnection(cfg config.ConnectionConfig, sim config.SimulatorConfig) (transport.Transport, error) {
	return newTransportForConnection(cfg, sim)
}

func newTransportForConnection(cfg config.ConnectionConfig, sim config.SimulatorConfig) (transport.Transport, error) {
	switch cfg.Connector {
	case config.ConnectorSimulated:
		firmware := strings.TrimSpace(sim.Firmware)
		if firmware == "" {
			firmware = config.DefaultSimulatorFirmware
		}
		return transport.NewSimulatedTransport(device.NewSimulatedDevice(firmware), transport.SimulatedOptions{
			ConnectDelay:   device.SimConnectDelay,
			LatencyPercent: sim.LatencyPercent,
			FailConnect:    sim.FailConnect,
		}), nil
	case config.ConnectorSerial:
		return transport.NewSerialTransport(cfg.SerialPort, cfg.SerialBaud), nil
	case config.ConnectorBluetooth:
		return transport.NewBluetoothTransport(cfg.BluetoothAddress, cfg.BluetoothAdapter), nil
	default:
		return nil, fmt.Errorf("unknown connector: %q", cfg.Connector)
	}
}
