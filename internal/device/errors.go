package device

import "errors"

var (
	ErrNotConnected       = errors.New("not connected")
	ErrConnectFailed      = errors.New("connect failed")
	ErrTransmissionFailed = errors.New("transmission failed")
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrTimeout            = errors.New("timeout")
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrScriptFailed       = errors.New("script failed")
	ErrFirmwareTooOld     = errors.New("firmware too old")
	ErrDispatcherStopped  = errors.New("dispatcher stopped")
)
