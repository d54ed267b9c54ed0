package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/foodlens/framelink/internal/app"
	"github.com/foodlens/framelink/internal/bus"
	"github.com/foodlens/framelink/internal/connectors"
)

const maxHexPreviewLen = 64

var watchTopics = []string{
	connectors.TopicConnStatus,
	connectors.TopicDeviceCommand,
	connectors.TopicMealLogged,
	connectors.TopicRawFrameIn,
	connectors.TopicRawFrameOut,
}

// runWatch connects and logs bus traffic until interrupted or -for elapses.
func runWatch(ctx context.Context, rt *app.Runtime, args []string, out io.Writer) error {
	fs := newFlagSet("watch", out)
	listenFor := fs.Duration("for", 0, "watch duration, e.g. 30s (0 = until interrupt)")
	raw := fs.Bool("raw", false, "include raw frame traffic")
	if err := fs.Parse(args); err != nil {
		return err
	}

	topics := watchTopics
	if !*raw {
		topics = watchTopics[:3]
	}
	sub := rt.Bus.Subscribe(topics...)
	defer rt.Bus.Unsubscribe(sub)

	logger := rt.LogManager.Logger("watch")
	if *listenFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *listenFor)
		defer cancel()
		logger.Info("listen mode", "duration", *listenFor)
	}

	if err := rt.Connect(ctx); err != nil {
		return err
	}
	watch(ctx, sub, out)
	return nil
}

func watch(ctx context.Context, sub bus.Subscription, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub:
			if !ok {
				return
			}
			if line := describeEvent(raw); line != "" {
				fmt.Fprintf(out, "%s %s\n", time.Now().Format("15:04:05.000"), line)
			}
		}
	}
}

func describeEvent(raw any) string {
	switch ev := raw.(type) {
	case connectors.ConnectionStatus:
		line := fmt.Sprintf("conn state=%s transport=%s", ev.State, ev.TransportName)
		if ev.Err != "" {
			line += " error=" + quoteIfNeeded(ev.Err)
		}
		return line
	case connectors.CommandEvent:
		line := fmt.Sprintf("command type=%s success=%t duration=%dms", ev.Type, ev.Success, ev.DurationMS)
		if ev.Reason != "" {
			line += " reason=" + quoteIfNeeded(ev.Reason)
		}
		return line
	case connectors.MealLoggedEvent:
		return fmt.Sprintf("meal id=%s food=%s verdict=%s gl=%.1f", ev.ID, quoteIfNeeded(ev.FoodName), ev.Verdict, ev.GlycemicLoad)
	case connectors.RawFrame:
		return fmt.Sprintf("raw len=%d hex=%s", ev.Len, previewHex(ev.Hex))
	default:
		slog.Debug("watch: unexpected event", "type", fmt.Sprintf("%T", raw))
		return ""
	}
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, " \t\"") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func previewHex(hex string) string {
	hex = strings.TrimSpace(hex)
	if len(hex) <= maxHexPreviewLen {
		return hex
	}
	return hex[:maxHexPreviewLen] + "..."
}
