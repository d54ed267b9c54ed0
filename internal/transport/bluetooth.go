package transport

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/foodlens/framelink/internal/bluetoothutil"
	"tinygo.org/x/bluetooth"
)

const (
	bleInboundQueueSize = 128
	bleScanWait         = 12 * time.Second
	bleSubscribeWait    = 8 * time.Second
	// bluetoothWriteChunk keeps each TX write under the negotiated ATT payload of the glasses.
	bluetoothWriteChunk = 240
)

// txCharacteristic is the subset of bluetooth.DeviceCharacteristic used for writes.
type txCharacteristic interface {
	WriteWithoutResponse(p []byte) (int, error)
}

// bleSession is one live link to the glasses. It is discarded on close or failure.
type bleSession struct {
	device bluetooth.Device
	tx     txCharacteristic
	rx     *bluetooth.DeviceCharacteristic

	inbound chan []byte
	done    chan struct{}

	doneOnce sync.Once
	causeMu  sync.RWMutex
	cause    error
}

// BluetoothTransport connects to the glasses' Lua UART service over BLE.
// Each RX notification is surfaced as one frame.
type BluetoothTransport struct {
	address   string
	adapterID string

	mu      sync.RWMutex
	session *bleSession
	writeMu sync.Mutex
}

func NewBluetoothTransport(address, adapterID string) *BluetoothTransport {
	return &BluetoothTransport{
		address:   strings.TrimSpace(address),
		adapterID: strings.TrimSpace(adapterID),
	}
}

func (t *BluetoothTransport) Name() string {
	return "bluetooth"
}

func (t *BluetoothTransport) SetConfig(address, adapterID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.address = strings.TrimSpace(address)
	t.adapterID = strings.TrimSpace(adapterID)
}

func (t *BluetoothTransport) StatusTarget() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.address
}

func (t *BluetoothTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := linkLogger("bluetooth", "address", t.address, "adapter", bluetoothutil.AdapterLabel(t.adapterID))
	if t.session != nil {
		logger.Debug("already connected")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr, err := parseBluetoothAddress(t.address)
	if err != nil {
		logger.Warn("invalid glasses address", "error", err)
		return err
	}

	logger.Info("connecting")
	device, err := t.dial(ctx, addr)
	if err != nil {
		logger.Warn("dial glasses failed", "error", err)
		return err
	}

	session, err := openSession(ctx, device)
	if err != nil {
		_ = device.Disconnect()
		logger.Warn("open glasses session failed", "error", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		session.teardown()
		return err
	}

	t.session = session
	logger.Info("connected")

	return nil
}

// dial enables the adapter and connects, scanning once when BlueZ does not know the device yet.
func (t *BluetoothTransport) dial(ctx context.Context, addr bluetooth.Address) (bluetooth.Device, error) {
	adapter, err := bluetoothutil.OpenAdapter(t.adapterID)
	if err != nil {
		return bluetooth.Device{}, err
	}
	if err := ctx.Err(); err != nil {
		return bluetooth.Device{}, err
	}

	device, err := adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err == nil {
		return device, nil
	}
	if !needsScanBeforeConnect(err) {
		return bluetooth.Device{}, fmt.Errorf("connect glasses %q: %w", t.address, err)
	}

	linkLogger("bluetooth", "address", t.address).Info("glasses unknown to the adapter, scanning", "error", err)
	if scanErr := scanUntilSeen(ctx, adapter, addr); scanErr != nil {
		return bluetooth.Device{}, fmt.Errorf("connect glasses %q: %w", t.address, errors.Join(err, scanErr))
	}
	device, err = adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return bluetooth.Device{}, fmt.Errorf("connect glasses %q after scan: %w", t.address, err)
	}

	return device, nil
}

// openSession finds the UART characteristics and subscribes to RX.
func openSession(ctx context.Context, device bluetooth.Device) (*bleSession, error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{bluetoothutil.GlassesServiceUUID()})
	if err != nil {
		return nil, fmt.Errorf("discover glasses service: %w", err)
	}
	if len(services) == 0 {
		return nil, errors.New("glasses BLE service is not available")
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{
		bluetoothutil.GlassesTXUUID(),
		bluetoothutil.GlassesRXUUID(),
	})
	if err != nil {
		return nil, fmt.Errorf("discover glasses characteristics: %w", err)
	}
	if len(chars) != 2 {
		return nil, fmt.Errorf("glasses exposed %d UART characteristics, want 2", len(chars))
	}

	rx := chars[1]
	session := &bleSession{
		device:  device,
		tx:      chars[0],
		rx:      &rx,
		inbound: make(chan []byte, bleInboundQueueSize),
		done:    make(chan struct{}),
	}
	notify := func(payload []byte) { pushNotification(session, payload) }
	if err := subscribeRX(ctx, device, rx, notify, bleSubscribeWait); err != nil {
		return nil, fmt.Errorf("subscribe to RX notifications: %w", err)
	}

	return session, nil
}

func (t *BluetoothTransport) Close() error {
	t.mu.Lock()
	session := t.session
	t.session = nil
	address := t.address
	t.mu.Unlock()
	if session == nil {
		return nil
	}

	logger := linkLogger("bluetooth", "address", address)
	logger.Info("disconnecting")
	session.shutdown()

	var errs []error
	if session.rx != nil {
		if err := session.rx.EnableNotifications(nil); err != nil {
			errs = append(errs, fmt.Errorf("disable RX notifications: %w", err))
		}
	}
	if err := session.device.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("disconnect glasses: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("disconnect finished with errors", "error", err)
		return err
	}

	return nil
}

func (t *BluetoothTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	session, err := t.active()
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case payload := <-session.inbound:
		return payload, nil
	case <-session.done:
		return nil, errors.Join(ErrClosed, session.failure())
	}
}

// WriteFrame writes payload to TX, split into ATT-sized chunks.
func (t *BluetoothTransport) WriteFrame(ctx context.Context, payload []byte) error {
	session, err := t.active()
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	for _, chunk := range splitChunks(payload, bluetoothWriteChunk) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if session.isDone() {
			return ErrClosed
		}

		n, err := session.tx.WriteWithoutResponse(chunk)
		if err != nil {
			t.drop(session, err)
			return errors.Join(ErrClosed, fmt.Errorf("write to TX: %w", err))
		}
		if n != len(chunk) {
			return fmt.Errorf("short write to TX: wrote %d of %d", n, len(chunk))
		}
	}
	linkLogger("bluetooth").Debug("wrote frame", "payload_len", len(payload))

	return nil
}

func (t *BluetoothTransport) active() (*bleSession, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.session == nil {
		return nil, ErrNotConnected
	}
	return t.session, nil
}

// drop forgets a session whose link failed so the next Connect starts fresh.
func (t *BluetoothTransport) drop(session *bleSession, err error) {
	session.recordFailure(err)

	t.mu.Lock()
	if t.session == session {
		t.session = nil
	}
	t.mu.Unlock()

	session.teardown()
	linkLogger("bluetooth").Warn("glasses link failed", "error", err)
}

// pushNotification queues one RX payload, dropping the oldest when the reader falls behind.
func pushNotification(session *bleSession, payload []byte) {
	if session.isDone() {
		return
	}
	frame := append([]byte(nil), payload...)

	for attempt := 0; attempt < 2; attempt++ {
		select {
		case session.inbound <- frame:
			return
		default:
		}
		if attempt == 0 {
			linkLogger("bluetooth").Warn("inbound queue full, dropping oldest frame", "capacity", cap(session.inbound))
			select {
			case <-session.inbound:
			default:
			}
		}
	}
}

func splitChunks(payload []byte, size int) [][]byte {
	if len(payload) == 0 || size <= 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(payload)+size-1)/size)
	for len(payload) > size {
		chunks = append(chunks, payload[:size])
		payload = payload[size:]
	}

	return append(chunks, payload)
}

func parseBluetoothAddress(raw string) (bluetooth.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return bluetooth.Address{}, errors.New("bluetooth address is empty")
	}

	mac, err := bluetooth.ParseMAC(strings.ToUpper(trimmed))
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("invalid bluetooth address %q: %w", trimmed, err)
	}

	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}

// needsScanBeforeConnect reports the BlueZ error for a device it has not seen this session.
func needsScanBeforeConnect(err error) bool {
	if err == nil || runtime.GOOS != "linux" {
		return false
	}
	msg := strings.ToLower(err.Error())
	propertiesGet := strings.Contains(msg, "org.freedesktop.dbus.properties") && strings.Contains(msg, "method \"get\"")
	if bluetoothutil.IsDBusErrorName(err, bluetoothutil.DBusUnknownMethod) {
		return propertiesGet
	}

	return propertiesGet && strings.Contains(msg, "doesn't exist")
}

func scanUntilSeen(ctx context.Context, adapter *bluetooth.Adapter, target bluetooth.Address) error {
	if err := bluetoothutil.StopScan(adapter); err != nil {
		return fmt.Errorf("reset bluetooth scan state: %w", err)
	}

	scanCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, bleScanWait)
		defer cancel()
	}

	seen := make(chan struct{}, 1)
	scanDone := make(chan error, 1)
	go func() {
		scanDone <- adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if result.Address.MAC != target.MAC {
				return
			}
			select {
			case seen <- struct{}{}:
			default:
			}
			_ = a.StopScan()
		})
	}()

	found := false
	select {
	case <-seen:
		found = true
	case <-scanCtx.Done():
		linkLogger("bluetooth", "target", target.String()).Warn("glasses scan ended without a match", "error", scanCtx.Err())
		_ = bluetoothutil.StopScan(adapter)
	}

	if err := bluetoothutil.NormalizeScanError(<-scanDone); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("glasses %q not seen; wake them and keep them nearby", target.String())
	}

	return nil
}

// subscribeRX enables RX notifications, giving up after wait.
func subscribeRX(
	ctx context.Context,
	device bluetooth.Device,
	rx bluetooth.DeviceCharacteristic,
	callback func([]byte),
	wait time.Duration,
) error {
	result := make(chan error, 1)
	go func() {
		result <- rx.EnableNotifications(callback)
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		_ = device.Disconnect()
		select {
		case <-result:
		case <-time.After(2 * time.Second):
		}
		return ctx.Err()
	case <-timer.C:
		_ = device.Disconnect()
		return fmt.Errorf("timed out after %s", wait)
	}
}

func (s *bleSession) shutdown() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}

func (s *bleSession) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// teardown stops delivery and releases the device without reporting errors.
func (s *bleSession) teardown() {
	s.shutdown()
	if s.rx != nil {
		_ = s.rx.EnableNotifications(nil)
	}
	_ = s.device.Disconnect()
}

func (s *bleSession) recordFailure(err error) {
	if err == nil {
		return
	}
	s.causeMu.Lock()
	if s.cause == nil {
		s.cause = err
	}
	s.causeMu.Unlock()
}

func (s *bleSession) failure() error {
	s.causeMu.RLock()
	defer s.causeMu.RUnlock()
	return s.cause
}
