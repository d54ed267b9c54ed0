package bluetoothutil

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestDBusErrorName(t *testing.T) {
	err := dbus.NewError(bluezInProgress, nil)

	if name, ok := DBusErrorName(err); !ok || name != bluezInProgress {
		t.Fatalf("direct error: got %q, %v", name, ok)
	}
	if !IsDBusErrorName(fmt.Errorf("wrapped: %w", err), bluezInProgress) {
		t.Fatalf("expected wrapped dbus error match")
	}
	if !IsDBusErrorName(*err, bluezInProgress) {
		t.Fatalf("expected value dbus error match")
	}
	if _, ok := DBusErrorName(errors.New("plain")); ok {
		t.Fatalf("plain error has no dbus name")
	}
}

func TestNormalizeScanError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantNil bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "adapter not ready", err: dbus.NewError(bluezNotReady, nil), wantNil: true},
		{name: "no discovery started", err: dbus.NewError(bluezFailed, []interface{}{"No discovery started"}), wantNil: true},
		{name: "cancelled", err: errors.New("scan cancelled"), wantNil: true},
		{name: "other bluez failure", err: dbus.NewError(bluezFailed, []interface{}{"Resource busy"})},
		{name: "plain failure", err: errors.New("adapter vanished")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeScanError(tt.err)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}

			var scanErr *ScanError
			if !errors.As(got, &scanErr) {
				t.Fatalf("expected ScanError, got %T", got)
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("ScanError must wrap the cause")
			}
			if !strings.Contains(got.Error(), "7a230001-5475-a6a4-654c-8431f6ad49c4") {
				t.Fatalf("error should name the glasses service: %q", got)
			}
			if again := NormalizeScanError(got); again != got {
				t.Fatalf("normalizing twice must not wrap again")
			}
		})
	}
}

func TestScanBusy(t *testing.T) {
	if scanBusy(nil) {
		t.Fatalf("nil is not busy")
	}
	if !scanBusy(dbus.NewError(bluezInProgress, nil)) {
		t.Fatalf("dbus in-progress should match")
	}
	if !scanBusy(errors.New("Operation already in progress")) {
		t.Fatalf("text fallback should match")
	}
	if scanBusy(errors.New("another error")) {
		t.Fatalf("unexpected positive match")
	}
}
