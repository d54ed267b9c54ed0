package connectors

import (
	"time"
)

// ConnectionState describes the device connection lifecycle state.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
)

// ConnectionStatus is a bus event snapshot of a connection state transition.
type ConnectionStatus struct {
	State         ConnectionState `json:"state"`
	Err           string          `json:"error,omitempty"`
	TransportName string          `json:"transport"`
	Target        string          `json:"target,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// CommandEvent reports the outcome of a single dispatched device command.
type CommandEvent struct {
	Type       string    `json:"type"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason,omitempty"`
	Script     string    `json:"script,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// CameraFrame describes one camera emission of a stream subscription.
type CameraFrame struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Handle    string    `json:"data"`
}

// AudioChunk describes one microphone emission of a stream subscription.
type AudioChunk struct {
	Sequence   uint64    `json:"seq"`
	Timestamp  time.Time `json:"timestamp"`
	SampleRate int       `json:"sample_rate"`
	Handle     string    `json:"data"`
}

// RawFrame carries frame diagnostics for debug/log views.
type RawFrame struct {
	Hex string `json:"hex"`
	Len int    `json:"len"`
}

// MealLoggedEvent is published after a meal entry was accepted by the meal log.
type MealLoggedEvent struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	FoodName     string    `json:"food_name"`
	Verdict      string    `json:"verdict"`
	GlycemicLoad float64   `json:"glycemic_load"`
	NetCarbs     float64   `json:"net_carbs"`
	Context      string    `json:"context,omitempty"`
	LoggedAt     time.Time `json:"logged_at"`
}
