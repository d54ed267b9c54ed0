package device

import (
	"bytes"
	"image"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/bmp"

	"github.com/foodlens/framelink/internal/hud"
	"github.com/foodlens/framelink/internal/transport"
)

// Reference latencies of the glasses, used by the simulated device.
const (
	SimConnectDelay = 1500 * time.Millisecond
	simCommandDelay = 200 * time.Millisecond
	simCaptureDelay = 800 * time.Millisecond
	simIconDelay    = 300 * time.Millisecond
	simOverlayDelay = 400 * time.Millisecond
	simLogDelay     = 200 * time.Millisecond
	simScriptDelay  = 100 * time.Millisecond

	simDataChunk = 4000
)

// SimulatedDevice answers wrapped scripts the way the glasses' Lua runtime does.
type SimulatedDevice struct {
	firmware string

	mu      sync.Mutex
	scripts []string
	image   []byte
}

var _ transport.Responder = (*SimulatedDevice)(nil)

func NewSimulatedDevice(firmware string) *SimulatedDevice {
	return &SimulatedDevice{firmware: firmware}
}

// Scripts returns the unwrapped scripts received so far.
func (d *SimulatedDevice) Scripts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.scripts...)
}

func (d *SimulatedDevice) Respond(request []byte) ([][]byte, time.Duration) {
	seq, script, ok := unwrapScript(string(request))
	if !ok {
		// Unwrapped input gets no status frame, like a bare REPL line.
		return nil, simScriptDelay
	}

	d.mu.Lock()
	d.scripts = append(d.scripts, script)
	d.mu.Unlock()

	call, args, isCall := parseCall(script)
	switch {
	case script == FirmwareQueryScript:
		return [][]byte{[]byte(d.firmware), statusFrame(seq, "")}, simScriptDelay
	case isCall && call == "frame_msg.capture_image":
		replies := d.captureFrames()
		return append(replies, statusFrame(seq, "")), simCommandDelay + simCaptureDelay
	case isCall && call == "frame_msg.show_icon":
		if len(args) != 4 {
			return [][]byte{statusFrame(seq, "show_icon expects 4 arguments")}, simCommandDelay
		}
		return [][]byte{statusFrame(seq, "")}, simCommandDelay + simIconDelay
	case isCall && call == "frame_msg.show_text_overlay":
		return [][]byte{statusFrame(seq, "")}, simCommandDelay + simOverlayDelay
	case isCall && call == "frame_msg.show_notification":
		return [][]byte{statusFrame(seq, "")}, simCommandDelay + simLogDelay
	case isCall && call == "print" && len(args) == 1:
		if text, ok := luaUnquote(args[0]); ok {
			return [][]byte{[]byte(text), statusFrame(seq, "")}, simScriptDelay
		}
		return [][]byte{[]byte(args[0]), statusFrame(seq, "")}, simScriptDelay
	case isCall && call == "error":
		msg := "error"
		if len(args) > 0 {
			if text, ok := luaUnquote(args[0]); ok {
				msg = text
			}
		}
		return [][]byte{statusFrame(seq, msg)}, simScriptDelay
	default:
		return [][]byte{statusFrame(seq, "")}, simScriptDelay
	}
}

func (d *SimulatedDevice) captureFrames() [][]byte {
	d.mu.Lock()
	if d.image == nil {
		d.image = testPatternBMP()
	}
	img := d.image
	d.mu.Unlock()

	frames := make([][]byte, 0, len(img)/simDataChunk+1)
	for start := 0; start < len(img); start += simDataChunk {
		end := min(start+simDataChunk, len(img))
		frame := make([]byte, 0, end-start+1)
		frame = append(frame, dataFrameKind)
		frames = append(frames, append(frame, img[start:end]...))
	}

	return frames
}

// testPatternBMP renders vertical bars of the display palette.
func testPatternBMP() []byte {
	img := image.NewPaletted(image.Rect(0, 0, hud.DisplayWidth, hud.DisplayHeight), hud.Palette)
	barWidth := hud.DisplayWidth / hud.ColorDepth
	for y := 0; y < hud.DisplayHeight; y++ {
		for x := 0; x < hud.DisplayWidth; x++ {
			img.SetColorIndex(x, y, uint8(min(x/barWidth, hud.ColorDepth-1)))
		}
	}

	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

// parseCall splits `name(arg, ...)` into the callee and its top-level arguments.
func parseCall(script string) (string, []string, bool) {
	script = strings.TrimSpace(script)
	open := strings.IndexByte(script, '(')
	if open <= 0 || !strings.HasSuffix(script, ")") {
		return "", nil, false
	}
	name := script[:open]
	if strings.ContainsAny(name, " \n\t;") {
		return "", nil, false
	}

	return name, splitLuaArgs(script[open+1 : len(script)-1]), true
}
