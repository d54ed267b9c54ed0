package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ConnectorType identifies which transport backend should be used.
type ConnectorType string

const (
	ConnectorBluetooth ConnectorType = "bluetooth"
	ConnectorSerial    ConnectorType = "serial"
	ConnectorSimulated ConnectorType = "simulated"
	DefaultSerialBaud                = 115200

	DefaultConnectTimeoutMS    = 10000
	DefaultCommandTimeoutMS    = 5000
	DefaultMinFirmware         = "v24.0.0"
	DefaultCameraIntervalMS    = 100
	DefaultMicIntervalMS       = 50
	DefaultMicSampleRate       = 16000
	DefaultSimulatorFirmware   = "v25.080.0838"
	DefaultMQTTTopicPrefix     = "framelink"
	DefaultMealLogUserID       = "local"
	DefaultSimulatorLatencyPct = 100
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	Format    string `json:"format"`
	LogToFile bool   `json:"log_to_file"`
}

// ConnectionConfig contains connector-specific connection parameters.
type ConnectionConfig struct {
	Connector        ConnectorType `json:"connector"`
	SerialPort       string        `json:"serial_port"`
	SerialBaud       int           `json:"serial_baud"`
	BluetoothAddress string        `json:"bluetooth_address"`
	BluetoothAdapter string        `json:"bluetooth_adapter"`
}

// DeviceConfig bounds the device session.
type DeviceConfig struct {
	ConnectTimeoutMS int    `json:"connect_timeout_ms"`
	CommandTimeoutMS int    `json:"command_timeout_ms"`
	MinFirmware      string `json:"min_firmware"`
}

// HUDConfig stores HUD presentation options that do not affect display geometry.
type HUDConfig struct {
	RenderPreview bool `json:"render_preview"`
}

// StreamsConfig stores sensor stream cadences.
type StreamsConfig struct {
	CameraIntervalMS     int `json:"camera_interval_ms"`
	MicrophoneIntervalMS int `json:"microphone_interval_ms"`
	MicrophoneSampleRate int `json:"microphone_sample_rate"`
}

// SimulatorConfig tunes the in-memory device used by the simulated connector.
type SimulatorConfig struct {
	// LatencyPercent scales the reference device latencies; 0 disables delays.
	LatencyPercent int    `json:"latency_percent"`
	FailConnect    bool   `json:"fail_connect"`
	Firmware       string `json:"firmware"`
}

// MealLogConfig controls meal record persistence.
type MealLogConfig struct {
	Enabled bool   `json:"enabled"`
	UserID  string `json:"user_id"`
}

// FeedConfig controls the websocket/metrics HTTP listener. Empty address disables it.
type FeedConfig struct {
	ListenAddr string `json:"listen_addr"`
}

// MQTTConfig controls the meal event bridge. Empty broker disables it.
type MQTTConfig struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Connection ConnectionConfig `json:"connection"`
	Device     DeviceConfig     `json:"device"`
	HUD        HUDConfig        `json:"hud"`
	Streams    StreamsConfig    `json:"streams"`
	Simulator  SimulatorConfig  `json:"simulator"`
	MealLog    MealLogConfig    `json:"meal_log"`
	Feed       FeedConfig       `json:"feed"`
	MQTT       MQTTConfig       `json:"mqtt"`
	Logging    LoggingConfig    `json:"logging"`
}

func Default() AppConfig {
	return AppConfig{
		Connection: ConnectionConfig{
			Connector:  ConnectorSimulated,
			SerialBaud: DefaultSerialBaud,
		},
		Device: DeviceConfig{
			ConnectTimeoutMS: DefaultConnectTimeoutMS,
			CommandTimeoutMS: DefaultCommandTimeoutMS,
			MinFirmware:      DefaultMinFirmware,
		},
		HUD: HUDConfig{
			RenderPreview: false,
		},
		Streams: StreamsConfig{
			CameraIntervalMS:     DefaultCameraIntervalMS,
			MicrophoneIntervalMS: DefaultMicIntervalMS,
			MicrophoneSampleRate: DefaultMicSampleRate,
		},
		Simulator: SimulatorConfig{
			LatencyPercent: DefaultSimulatorLatencyPct,
			Firmware:       DefaultSimulatorFirmware,
		},
		MealLog: MealLogConfig{
			Enabled: true,
			UserID:  DefaultMealLogUserID,
		},
		MQTT: MQTTConfig{
			TopicPrefix: DefaultMQTTTopicPrefix,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			LogToFile: false,
		},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if c.Connection.Connector == "" {
		c.Connection.Connector = ConnectorSimulated
	}
	if c.Connection.SerialBaud <= 0 {
		c.Connection.SerialBaud = DefaultSerialBaud
	}
	if c.Device.ConnectTimeoutMS <= 0 {
		c.Device.ConnectTimeoutMS = DefaultConnectTimeoutMS
	}
	if c.Device.CommandTimeoutMS <= 0 {
		c.Device.CommandTimeoutMS = DefaultCommandTimeoutMS
	}
	if strings.TrimSpace(c.Device.MinFirmware) == "" {
		c.Device.MinFirmware = DefaultMinFirmware
	}
	if c.Streams.CameraIntervalMS <= 0 {
		c.Streams.CameraIntervalMS = DefaultCameraIntervalMS
	}
	if c.Streams.MicrophoneIntervalMS <= 0 {
		c.Streams.MicrophoneIntervalMS = DefaultMicIntervalMS
	}
	if c.Streams.MicrophoneSampleRate <= 0 {
		c.Streams.MicrophoneSampleRate = DefaultMicSampleRate
	}
	if c.Simulator.LatencyPercent < 0 {
		c.Simulator.LatencyPercent = 0
	}
	if strings.TrimSpace(c.Simulator.Firmware) == "" {
		c.Simulator.Firmware = DefaultSimulatorFirmware
	}
	if strings.TrimSpace(c.MealLog.UserID) == "" {
		c.MealLog.UserID = DefaultMealLogUserID
	}
	if strings.TrimSpace(c.MQTT.TopicPrefix) == "" {
		c.MQTT.TopicPrefix = DefaultMQTTTopicPrefix
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func (c AppConfig) Validate() error {
	switch c.Connection.Connector {
	case ConnectorSimulated:
	case ConnectorSerial:
		if strings.TrimSpace(c.Connection.SerialPort) == "" {
			return errors.New("serial port is required")
		}
		if c.Connection.SerialBaud <= 0 {
			return errors.New("serial baud must be positive")
		}
	case ConnectorBluetooth:
		if strings.TrimSpace(c.Connection.BluetoothAddress) == "" {
			return errors.New("bluetooth address is required")
		}
	default:
		return fmt.Errorf("unknown connector: %s", c.Connection.Connector)
	}

	if c.Device.ConnectTimeoutMS <= 0 {
		return errors.New("connect timeout must be positive")
	}
	if c.Device.CommandTimeoutMS <= 0 {
		return errors.New("command timeout must be positive")
	}
	if c.Streams.CameraIntervalMS <= 0 || c.Streams.MicrophoneIntervalMS <= 0 {
		return errors.New("stream intervals must be positive")
	}
	if broker := strings.TrimSpace(c.MQTT.Broker); broker != "" {
		u, err := url.Parse(broker)
		if err != nil {
			return fmt.Errorf("invalid mqtt broker url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid mqtt broker url: %q", broker)
		}
	}

	return nil
}

func (c DeviceConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

func (c DeviceConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMS) * time.Millisecond
}

func (c StreamsConfig) CameraInterval() time.Duration {
	return time.Duration(c.CameraIntervalMS) * time.Millisecond
}

func (c StreamsConfig) MicrophoneInterval() time.Duration {
	return time.Duration(c.MicrophoneIntervalMS) * time.Millisecond
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
