package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func echoResponder() Responder {
	return ResponderFunc(func(request []byte) ([][]byte, time.Duration) {
		switch string(request) {
		case "silent":
			return nil, 0
		case "burst":
			return [][]byte{[]byte("a"), []byte("b"), []byte("c")}, 0
		}
		return [][]byte{append([]byte("echo:"), request...)}, 10 * time.Millisecond
	})
}

func TestSimulatedTransportRoundTrip(t *testing.T) {
	tr := NewSimulatedTransport(echoResponder(), SimulatedOptions{LatencyPercent: 0})
	ctx := context.Background()

	if err := tr.WriteFrame(ctx, []byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("write before connect: got %v, want ErrNotConnected", err)
	}
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if tr.Connects() != 1 {
		t.Fatalf("connects = %d, want 1", tr.Connects())
	}

	if err := tr.WriteFrame(ctx, []byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := tr.ReadFrame(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "echo:ping" {
		t.Fatalf("reply = %q, want echo:ping", got)
	}
	if string(tr.LastWritten()) != "ping" {
		t.Fatalf("last written = %q", tr.LastWritten())
	}
}

func TestSimulatedTransportMultiFrameReply(t *testing.T) {
	tr := NewSimulatedTransport(echoResponder(), SimulatedOptions{})
	ctx := context.Background()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := tr.WriteFrame(ctx, []byte("burst")); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := tr.ReadFrame(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(got) != want {
			t.Fatalf("frame = %q, want %q", got, want)
		}
	}
}

func TestSimulatedTransportSilentReply(t *testing.T) {
	tr := NewSimulatedTransport(echoResponder(), SimulatedOptions{})
	ctx := context.Background()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := tr.WriteFrame(ctx, []byte("silent")); err != nil {
		t.Fatalf("write: %v", err)
	}

	readCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := tr.ReadFrame(readCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded for silent device, got %v", err)
	}
}

func TestSimulatedTransportFailConnect(t *testing.T) {
	tr := NewSimulatedTransport(echoResponder(), SimulatedOptions{FailConnect: true})
	if err := tr.Connect(context.Background()); !errors.Is(err, ErrSimulatedConnectFailure) {
		t.Fatalf("expected injected failure, got %v", err)
	}

	tr.SetFailConnect(false)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect after clearing failure: %v", err)
	}
}

func TestSimulatedTransportConnectHonorsContext(t *testing.T) {
	tr := NewSimulatedTransport(echoResponder(), SimulatedOptions{ConnectDelay: time.Second, LatencyPercent: 100})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := tr.Connect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("connect did not abort promptly")
	}
}

func TestSimulatedTransportDropUnblocksReader(t *testing.T) {
	tr := NewSimulatedTransport(echoResponder(), SimulatedOptions{})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.ReadFrame(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	tr.Drop()

	select {
	case err := <-errCh:
		if !IsLinkLoss(err) {
			t.Fatalf("expected link loss, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("reader was not released by Drop")
	}

	if err := tr.WriteFrame(context.Background(), []byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("write after drop: got %v, want ErrNotConnected", err)
	}
}

func TestSimulatedTransportDropInterruptsSlowWrite(t *testing.T) {
	slow := ResponderFunc(func([]byte) ([][]byte, time.Duration) {
		return [][]byte{[]byte("late")}, 5 * time.Second
	})
	tr := NewSimulatedTransport(slow, SimulatedOptions{LatencyPercent: 100})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- tr.WriteFrame(context.Background(), []byte("capture"))
	}()

	time.Sleep(10 * time.Millisecond)
	tr.Drop()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("write kept sleeping after Drop")
	}
}

func TestScaleLatency(t *testing.T) {
	tests := []struct {
		d    time.Duration
		pct  int
		want time.Duration
	}{
		{d: 200 * time.Millisecond, pct: 100, want: 200 * time.Millisecond},
		{d: 200 * time.Millisecond, pct: 50, want: 100 * time.Millisecond},
		{d: 200 * time.Millisecond, pct: 0, want: 0},
		{d: 0, pct: 100, want: 0},
	}
	for _, tc := range tests {
		if got := ScaleLatency(tc.d, tc.pct); got != tc.want {
			t.Fatalf("ScaleLatency(%s, %d) = %s, want %s", tc.d, tc.pct, got, tc.want)
		}
	}
}
