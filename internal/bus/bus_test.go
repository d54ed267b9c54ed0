package bus

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestBus(t *testing.T) *PubSubBus {
	t.Helper()
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(b.Close)
	return b
}

func TestPublishDeliversToTopicSubscribers(t *testing.T) {
	b := newTestBus(t)
	sub := b.Subscribe("conn.status")

	b.Publish("conn.status", "connected")

	select {
	case got := <-sub:
		if got != "connected" {
			t.Fatalf("unexpected payload: got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for message")
	}
}

func TestSubscribeManyTopics(t *testing.T) {
	b := newTestBus(t)
	sub := b.Subscribe("stream.camera", "stream.microphone")

	b.Publish("stream.camera", 1)
	b.Publish("stream.microphone", 2)

	seen := map[any]bool{}
	for i := 0; i < 2; i++ {
		select {
		case got := <-sub:
			seen[got] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("expected both topics to be delivered, got %v", seen)
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.Close()
	b.Close()

	done := make(chan struct{})
	go func() {
		b.Publish("conn.status", "late")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish on closed bus blocked")
	}
}

func TestPayloadType(t *testing.T) {
	if got := payloadType(nil); got != "<nil>" {
		t.Fatalf("unexpected nil payload type: %q", got)
	}
	if got := payloadType("x"); got != "string" {
		t.Fatalf("unexpected payload type: %q", got)
	}
}
