package device

import (
	"image"
	"time"

	"github.com/foodlens/framelink/internal/domain"
)

// CommandType routes a command to its handler.
type CommandType string

const (
	CommandCapture        CommandType = "capture"
	CommandVerdictIcon    CommandType = "verdict_icon"
	CommandDetailsOverlay CommandType = "details_overlay"
	CommandLogEntry       CommandType = "log_entry"
	CommandScript         CommandType = "script"
)

// Command is an immutable request for the glasses. Payload type depends on Type;
// capture carries none.
type Command struct {
	Type    CommandType
	Payload any
}

type VerdictIconPayload struct {
	Verdict domain.Verdict
}

type DetailsOverlayPayload struct {
	Text string
}

type LogEntryPayload struct {
	FoodName string
}

type ScriptPayload struct {
	Source string
}

func NewCaptureCommand() Command {
	return Command{Type: CommandCapture}
}

func NewVerdictIconCommand(verdict domain.Verdict) Command {
	return Command{Type: CommandVerdictIcon, Payload: VerdictIconPayload{Verdict: verdict}}
}

func NewDetailsOverlayCommand(text string) Command {
	return Command{Type: CommandDetailsOverlay, Payload: DetailsOverlayPayload{Text: text}}
}

func NewLogEntryCommand(foodName string) Command {
	return Command{Type: CommandLogEntry, Payload: LogEntryPayload{FoodName: foodName}}
}

func NewScriptCommand(source string) Command {
	return Command{Type: CommandScript, Payload: ScriptPayload{Source: source}}
}

// Result is the outcome of one command. It succeeded when Err is nil.
type Result struct {
	Command  Command
	Data     any
	Script   string
	Err      error
	Duration time.Duration
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Reason is the failure text, empty on success.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

type CaptureData struct {
	Width      int
	Height     int
	ColorDepth int
	Timestamp  time.Time
	Image      []byte
}

type VerdictIconData struct {
	Verdict domain.Verdict
	Icon    string
	Text    string
	X       int
	Y       int
	Color   string
}

type DetailsOverlayData struct {
	Lines          []string
	LinesDisplayed int
	// Preview is the first visible window rendered in the display palette, when enabled.
	Preview *image.Paletted
}

type LogEntryData struct {
	Confirmed  bool
	Text       string
	DurationMS int
}

type ScriptData struct {
	Output []string
}
