package main

import (
	"strings"
	"testing"

	"github.com/foodlens/framelink/internal/connectors"
)

func TestDescribeEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   any
		want string
	}{
		{
			name: "connection failure",
			ev:   connectors.ConnectionStatus{State: connectors.ConnectionStateDisconnected, TransportName: "serial", Err: "port busy"},
			want: `conn state=disconnected transport=serial error="port busy"`,
		},
		{
			name: "command",
			ev:   connectors.CommandEvent{Type: "capture", Success: true, DurationMS: 812},
			want: "command type=capture success=true duration=812ms",
		},
		{
			name: "failed command",
			ev:   connectors.CommandEvent{Type: "log_entry", Reason: "timeout", DurationMS: 5000},
			want: "command type=log_entry success=false duration=5000ms reason=timeout",
		},
		{
			name: "meal",
			ev:   connectors.MealLoggedEvent{ID: "m1", FoodName: "White Rice", Verdict: "red", GlycemicLoad: 29},
			want: `meal id=m1 food="White Rice" verdict=red gl=29.0`,
		},
		{
			name: "raw",
			ev:   connectors.RawFrame{Hex: "0102", Len: 2},
			want: "raw len=2 hex=0102",
		},
		{name: "unknown", ev: 7, want: ""},
	}

	for _, tc := range tests {
		if got := describeEvent(tc.ev); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestPreviewHex(t *testing.T) {
	short := strings.Repeat("AB", 10)
	if got := previewHex(" " + short + " "); got != short {
		t.Fatalf("expected %q, got %q", short, got)
	}

	long := strings.Repeat("CD", 40)
	got := previewHex(long)
	if len(got) != maxHexPreviewLen+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected preview %q", got)
	}
}

func TestWatchReportsConnection(t *testing.T) {
	out := simulatedRun(t, t.TempDir(), "watch", "-for", "300ms")
	if !strings.Contains(out, "conn state=connecting") || !strings.Contains(out, "conn state=connected transport=simulated") {
		t.Fatalf("unexpected watch output %q", out)
	}
}
