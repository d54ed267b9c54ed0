package bluetoothutil

import (
	"errors"
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// Frame advertises its name even when the service UUID does not fit the packet.
const glassesNamePrefix = "frame"

// IsGlassesAdvertisement reports whether result comes from a pair of glasses.
func IsGlassesAdvertisement(result bluetooth.ScanResult) bool {
	if result.HasServiceUUID(glassesServiceUUID) {
		return true
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(result.LocalName())), glassesNamePrefix)
}

// StopScan ends discovery, treating "nothing to stop" as success.
func StopScan(adapter *bluetooth.Adapter) error {
	if err := adapter.StopScan(); !scanEnded(err) {
		return err
	}
	return nil
}

// Scan runs discovery until the callback or StopScan ends it. A discovery left
// over from an earlier session is stopped and the scan retried once.
func Scan(adapter *bluetooth.Adapter, callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error {
	err := adapter.Scan(callback)
	if !scanBusy(err) {
		return err
	}
	if stopErr := StopScan(adapter); stopErr != nil {
		return errors.Join(err, fmt.Errorf("stop stale discovery: %w", stopErr))
	}
	return adapter.Scan(callback)
}
