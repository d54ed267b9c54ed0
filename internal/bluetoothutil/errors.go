package bluetoothutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"
)

// D-Bus error names the glasses transport reacts to.
const (
	DBusUnknownMethod = "org.freedesktop.DBus.Error.UnknownMethod"

	bluezNotReady   = "org.bluez.Error.NotReady"
	bluezFailed     = "org.bluez.Error.Failed"
	bluezInProgress = "org.bluez.Error.InProgress"
)

// DBusErrorName returns the D-Bus error name carried anywhere in err's chain.
func DBusErrorName(err error) (string, bool) {
	var ptr *dbus.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Name, true
	}
	var val dbus.Error
	if errors.As(err, &val) {
		return val.Name, true
	}
	return "", false
}

func IsDBusErrorName(err error, want string) bool {
	name, ok := DBusErrorName(err)
	return ok && name == want
}

// ScanError is a discovery failure while looking for the glasses service.
type ScanError struct {
	Service bluetooth.UUID
	Err     error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("discovery for glasses service %s: %v", e.Service.String(), e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// NormalizeScanError drops the errors a stopped or cancelled discovery ends with
// and wraps the rest in a ScanError.
func NormalizeScanError(err error) error {
	if scanEnded(err) {
		return nil
	}
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return err
	}
	return &ScanError{Service: glassesServiceUUID, Err: err}
}

// scanEnded reports errors meaning discovery is no longer running.
func scanEnded(err error) bool {
	if err == nil {
		return true
	}
	msg := strings.ToLower(err.Error())
	if name, ok := DBusErrorName(err); ok {
		switch {
		case name == bluezNotReady:
			return true
		case name == bluezFailed && strings.Contains(msg, "no discovery started"):
			return true
		}
	}
	for _, marker := range []string{"cancel", "stopped", "not scanning", "no scan in progress"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// scanBusy reports a discovery left running by an earlier session.
func scanBusy(err error) bool {
	if err == nil {
		return false
	}
	return IsDBusErrorName(err, bluezInProgress) || strings.Contains(strings.ToLower(err.Error()), "already in progress")
}
