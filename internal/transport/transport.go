package transport

import (
	"context"
	"errors"
)

var (
	// ErrNotConnected is returned when a frame operation is attempted before Connect.
	ErrNotConnected = errors.New("transport is not connected")
	// ErrClosed is returned when the link went away while an operation was pending.
	ErrClosed = errors.New("transport is closed")
)

// Transport moves opaque byte frames between the host and the glasses.
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, payload []byte) error
}

// StatusTargetResolver is implemented by transports that can describe their peer.
type StatusTargetResolver interface {
	StatusTarget() string
}

// IsLinkLoss reports whether err means the underlying link is gone.
func IsLinkLoss(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, ErrNotConnected)
}
