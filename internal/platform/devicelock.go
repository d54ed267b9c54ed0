package platform

import (
	"errors"
	"strings"
)

// ErrDeviceBusy indicates another process already holds the link to the device.
var ErrDeviceBusy = errors.New("device is in use by another process")

// ErrDeviceLockUnsupported indicates the current platform has no lock backend implementation.
var ErrDeviceLockUnsupported = errors.New("device lock unsupported")

// DeviceLock represents an acquired per-device lock.
type DeviceLock interface {
	Release() error
}

// AcquireDeviceLock claims exclusive use of the device identified by key
// (a serial port path or a bluetooth address) for this process.
func AcquireDeviceLock(appID, key string) (DeviceLock, error) {
	return acquireDeviceLock(normalizeLockComponent(appID, "app"), normalizeLockComponent(key, "device"))
}

func normalizeLockComponent(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			// Bluetooth addresses arrive in either case.
			b.WriteRune(r - 'A' + 'a')
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	normalized := strings.Trim(b.String(), "_-.")
	if normalized == "" {
		return fallback
	}

	return normalized
}
