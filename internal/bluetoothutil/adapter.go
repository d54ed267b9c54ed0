package bluetoothutil

import (
	"fmt"
	"runtime"
	"strings"

	"tinygo.org/x/bluetooth"
)

const defaultAdapterLabel = "default"

// OpenAdapter powers on the adapter the glasses are paired through.
// An empty adapterID selects the system default.
func OpenAdapter(adapterID string) (*bluetooth.Adapter, error) {
	adapter, label := resolveAdapter(adapterID)
	if err := adapter.Enable(); err != nil && !comAlreadyInitialized(err) {
		return nil, fmt.Errorf("enable bluetooth adapter %s: %w", label, err)
	}
	return adapter, nil
}

// AdapterLabel names the adapter OpenAdapter would use, for logs and status.
func AdapterLabel(adapterID string) string {
	_, label := resolveAdapter(adapterID)
	return label
}

// The WinRT backend reports RoInitialize returning S_FALSE as "Incorrect function.".
func comAlreadyInitialized(err error) bool {
	if err == nil || runtime.GOOS != "windows" {
		return false
	}
	msg := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(err.Error())), ".")
	return msg == "incorrect function"
}
