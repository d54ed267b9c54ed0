//go:build linux

package bluetoothutil

import (
	"strings"

	"tinygo.org/x/bluetooth"
)

// BlueZ addresses adapters by their hci name.
func resolveAdapter(adapterID string) (*bluetooth.Adapter, string) {
	id := strings.TrimSpace(adapterID)
	if id == "" {
		return bluetooth.DefaultAdapter, defaultAdapterLabel
	}
	return bluetooth.NewAdapter(id), id
}
