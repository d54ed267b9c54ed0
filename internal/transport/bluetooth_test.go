package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"testing"

	"github.com/foodlens/framelink/internal/bluetoothutil"
	"github.com/godbus/dbus/v5"
)

func TestParseBluetoothAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid upper", input: "AA:BB:CC:DD:EE:FF"},
		{name: "valid lower", input: "aa:bb:cc:dd:ee:ff"},
		{name: "empty", input: "   ", wantErr: true},
		{name: "invalid", input: "not-a-mac", wantErr: true},
	}

	for _, tc := range tests {
		_, err := parseBluetoothAddress(tc.input)
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestNeedsScanBeforeConnect(t *testing.T) {
	err := dbus.NewError(bluetoothutil.DBusUnknownMethod, []interface{}{
		`Method "Get" with signature "ss" on interface "org.freedesktop.DBus.Properties" doesn't exist`,
	})
	got := needsScanBeforeConnect(fmt.Errorf("wrapped: %w", err))
	want := runtime.GOOS == "linux"
	if got != want {
		t.Fatalf("unexpected retry decision: got=%v want=%v", got, want)
	}
	if needsScanBeforeConnect(errors.New("connection refused")) {
		t.Fatalf("unrelated error should not trigger a scan")
	}
}

func TestSplitChunks(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 2*bluetoothWriteChunk+5)
	chunks := splitChunks(payload, bluetoothWriteChunk)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[2]) != 5 {
		t.Fatalf("last chunk len = %d, want 5", len(chunks[2]))
	}
	if !bytes.Equal(bytes.Join(chunks, nil), payload) {
		t.Fatalf("chunks do not reassemble to payload")
	}
	if splitChunks(nil, bluetoothWriteChunk) != nil {
		t.Fatalf("empty payload should produce no chunks")
	}
}

type recordingTX struct {
	writes [][]byte
	err    error
}

func (r *recordingTX) WriteWithoutResponse(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.writes = append(r.writes, append([]byte(nil), p...))
	return len(p), nil
}

func TestBluetoothTransportWriteFrameChunks(t *testing.T) {
	tx := &recordingTX{}
	state := &bleSession{tx: tx, done: make(chan struct{})}
	tr := &BluetoothTransport{session: state}

	payload := bytes.Repeat([]byte("x"), bluetoothWriteChunk+1)
	if err := tr.WriteFrame(context.Background(), payload); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if len(tx.writes) != 2 {
		t.Fatalf("got %d writes, want 2", len(tx.writes))
	}
}

func TestBluetoothTransportErrorsWhenNotConnected(t *testing.T) {
	tr := NewBluetoothTransport("AA:BB:CC:DD:EE:FF", "")
	if _, err := tr.ReadFrame(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("read: got %v, want ErrNotConnected", err)
	}
	if err := tr.WriteFrame(context.Background(), []byte("print(1)")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("write: got %v, want ErrNotConnected", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close when not connected: %v", err)
	}
}

func TestBleSessionCloseAndError(t *testing.T) {
	state := &bleSession{done: make(chan struct{})}

	state.recordFailure(testErr("notify failed"))
	state.recordFailure(testErr("second"))
	state.shutdown()
	state.shutdown()

	select {
	case <-state.done:
	default:
		t.Fatalf("expected closed channel to be closed")
	}
	if got := state.failure(); got == nil || got.Error() != "notify failed" {
		t.Fatalf("unexpected async error: %v", got)
	}
}

func TestBluetoothTransportReadFrameReturnsClosed(t *testing.T) {
	state := &bleSession{
		inbound: make(chan []byte),
		done:    make(chan struct{}),
	}
	state.recordFailure(testErr("link supervision timeout"))
	state.shutdown()

	tr := &BluetoothTransport{session: state}
	_, err := tr.ReadFrame(context.Background())
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if !IsLinkLoss(err) {
		t.Fatalf("expected link loss classification")
	}
}

func TestPushNotificationDropsOldestWhenFull(t *testing.T) {
	state := &bleSession{
		inbound: make(chan []byte, 2),
		done:    make(chan struct{}),
	}
	pushNotification(state, []byte("1"))
	pushNotification(state, []byte("2"))
	pushNotification(state, []byte("3"))

	first := <-state.inbound
	second := <-state.inbound
	if string(first) != "2" || string(second) != "3" {
		t.Fatalf("expected oldest frame dropped, got %q %q", first, second)
	}
}

type testErr string

func (e testErr) Error() string {
	return string(e)
}
