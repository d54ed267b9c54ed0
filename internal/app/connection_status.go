package app

import (
	"strings"

	"github.com/foodlens/framelink/internal/config"
	"github.com/foodlens/framelink/internal/connectors"
)

func TransportNameFromConnector(connector config.ConnectorType) string {
	switch connector {
	case config.ConnectorSimulated:
		return "simulated"
	case config.ConnectorSerial:
		return "serial"
	case config.ConnectorBluetooth:
		return "bluetooth"
	default:
		if value := strings.TrimSpace(string(connector)); value != "" {
			return value
		}
		return "unknown"
	}
}

func ConnectionTarget(cfg config.ConnectionConfig) string {
	switch cfg.Connector {
	case config.ConnectorSimulated:
		return "in-memory glasses"
	case config.ConnectorSerial:
		return strings.TrimSpace(cfg.SerialPort)
	case config.ConnectorBluetooth:
		return strings.TrimSpace(cfg.BluetoothAddress)
	default:
		return ""
	}
}

// ConnectionStatusFromConfig is the status shown before the first transition is observed.
func ConnectionStatusFromConfig(cfg config.ConnectionConfig) connectors.ConnectionStatus {
	return connectors.ConnectionStatus{
		State:         connectors.ConnectionStateDisconnected,
		TransportName: TransportNameFromConnector(cfg.Connector),
		Target:        ConnectionTarget(cfg),
	}
}

// DeviceLockKey identifies the physical device a connector talks to.
// The simulated connector has no shared device and returns "".
func DeviceLockKey(cfg config.ConnectionConfig) string {
	switch cfg.Connector {
	case config.ConnectorSerial:
		return strings.TrimSpace(cfg.SerialPort)
	case config.ConnectorBluetooth:
		return strings.ToUpper(strings.TrimSpace(cfg.BluetoothAddress))
	default:
		return ""
	}
}
