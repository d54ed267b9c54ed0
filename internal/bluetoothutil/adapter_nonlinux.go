//go:build !linux

package bluetoothutil

import "tinygo.org/x/bluetooth"

// Only the BlueZ backend can pick an adapter; elsewhere adapterID is ignored.
func resolveAdapter(_ string) (*bluetooth.Adapter, string) {
	return bluetooth.DefaultAdapter, defaultAdapterLabel
}
