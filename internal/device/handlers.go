package device

import (
	"context"
	"fmt"
	"time"

	"github.com/foodlens/framelink/internal/hud"
)

func handleCapture(ctx context.Context, ex Executor, _ Command) (any, string, error) {
	script := captureScript(hud.DisplayWidth, hud.DisplayHeight, hud.ColorDepth)
	reply, err := ex.Exec(ctx, script)
	if err != nil {
		return nil, script, err
	}

	return CaptureData{
		Width:      hud.DisplayWidth,
		Height:     hud.DisplayHeight,
		ColorDepth: hud.ColorDepth,
		Timestamp:  time.Now().UTC(),
		Image:      reply.Data,
	}, script, nil
}

// handleVerdictIcon shows the traffic-light icon. Unknown verdicts are shown as yellow.
func handleVerdictIcon(ctx context.Context, ex Executor, cmd Command) (any, string, error) {
	payload, ok := cmd.Payload.(VerdictIconPayload)
	if !ok {
		return nil, "", payloadError(cmd, VerdictIconPayload{})
	}

	verdict := hud.NormalizeVerdict(payload.Verdict)
	icon := hud.IconFor(verdict)
	script := iconScript(icon.Name, IconX, IconY, icon.Color)
	if _, err := ex.Exec(ctx, script); err != nil {
		return nil, script, err
	}

	return VerdictIconData{
		Verdict: verdict,
		Icon:    icon.Name,
		Text:    icon.DisplayText,
		X:       IconX,
		Y:       IconY,
		Color:   icon.Color,
	}, script, nil
}

func (d *Dispatcher) handleDetailsOverlay(ctx context.Context, ex Executor, cmd Command) (any, string, error) {
	payload, ok := cmd.Payload.(DetailsOverlayPayload)
	if !ok {
		return nil, "", payloadError(cmd, DetailsOverlayPayload{})
	}

	lines := hud.WrapForDisplay(payload.Text)
	script := overlayScript(lines)
	if _, err := ex.Exec(ctx, script); err != nil {
		return nil, script, err
	}

	data := DetailsOverlayData{Lines: lines, LinesDisplayed: len(lines)}
	if d.renderer != nil {
		data.Preview = d.renderer.Render(hud.Page(lines, hud.VisibleLines, 0))
	}

	return data, script, nil
}

func handleLogEntry(ctx context.Context, ex Executor, cmd Command) (any, string, error) {
	payload, ok := cmd.Payload.(LogEntryPayload)
	if !ok {
		return nil, "", payloadError(cmd, LogEntryPayload{})
	}

	text := "Logged: " + payload.FoodName
	script := notificationScript(text, NotificationDurationMS)
	if _, err := ex.Exec(ctx, script); err != nil {
		return nil, script, err
	}

	return LogEntryData{Confirmed: true, Text: text, DurationMS: NotificationDurationMS}, script, nil
}

func handleScript(ctx context.Context, ex Executor, cmd Command) (any, string, error) {
	payload, ok := cmd.Payload.(ScriptPayload)
	if !ok {
		return nil, "", payloadError(cmd, ScriptPayload{})
	}

	reply, err := ex.Exec(ctx, payload.Source)
	if err != nil {
		return nil, payload.Source, err
	}

	return ScriptData{Output: reply.Output}, payload.Source, nil
}

func payloadError(cmd Command, want any) error {
	return fmt.Errorf("%w: %s expects %T, got %T", ErrInvalidPayload, cmd.Type, want, cmd.Payload)
}
