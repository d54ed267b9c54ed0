package device

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/foodlens/framelink/internal/bus"
	"github.com/foodlens/framelink/internal/connectors"
	"github.com/foodlens/framelink/internal/transport"
)

// Reply frames from the glasses start with a kind byte: data chunks carry raw
// bytes (images), status frames close one exchange. Anything else is print output.
const (
	dataFrameKind   = 0x01
	statusFrameKind = 0x02

	rawFramePreviewBytes = 64
)

// LinkInfo describes an opened device session.
type LinkInfo struct {
	Firmware string
}

// Reply is everything the device sent back for one script.
type Reply struct {
	Output []string
	Data   []byte
}

// Link is the request/reply session the connection manager opens and commands run over.
type Link interface {
	Open(ctx context.Context) (LinkInfo, error)
	Close() error
	Exec(ctx context.Context, script string) (Reply, error)
	Name() string
	Target() string
}

// TransportLink runs Lua exchanges over a byte-frame Transport. Exchanges are serialized.
type TransportLink struct {
	logger      *slog.Logger
	tr          transport.Transport
	bus         bus.MessageBus
	minFirmware string

	mu  sync.Mutex
	seq uint64

	infoMu sync.RWMutex
	info   LinkInfo
}

func NewTransportLink(logger *slog.Logger, tr transport.Transport, b bus.MessageBus, minFirmware string) *TransportLink {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransportLink{
		logger:      logger,
		tr:          tr,
		bus:         b,
		minFirmware: minFirmware,
	}
}

func (l *TransportLink) Name() string {
	return l.tr.Name()
}

func (l *TransportLink) Target() string {
	if resolver, ok := l.tr.(transport.StatusTargetResolver); ok {
		return resolver.StatusTarget()
	}
	return ""
}

func (l *TransportLink) Info() LinkInfo {
	l.infoMu.RLock()
	defer l.infoMu.RUnlock()
	return l.info
}

// Open connects the transport and checks the firmware version against the configured minimum.
func (l *TransportLink) Open(ctx context.Context) (LinkInfo, error) {
	if err := l.tr.Connect(ctx); err != nil {
		return LinkInfo{}, fmt.Errorf("connect transport: %w", err)
	}

	reply, err := l.Exec(ctx, FirmwareQueryScript)
	if err != nil {
		_ = l.tr.Close()
		return LinkInfo{}, fmt.Errorf("query firmware: %w", err)
	}
	version := ""
	if len(reply.Output) > 0 {
		version = strings.TrimSpace(reply.Output[0])
	}
	if err := CheckFirmware(version, l.minFirmware); err != nil {
		_ = l.tr.Close()
		return LinkInfo{}, err
	}

	info := LinkInfo{Firmware: version}
	l.infoMu.Lock()
	l.info = info
	l.infoMu.Unlock()
	l.logger.Info("device session opened", "transport", l.tr.Name(), "firmware", version)

	return info, nil
}

func (l *TransportLink) Close() error {
	l.infoMu.Lock()
	l.info = LinkInfo{}
	l.infoMu.Unlock()

	return l.tr.Close()
}

// Exec sends script wrapped in a status reporter and collects replies until the
// matching status frame arrives. Status frames of earlier, abandoned exchanges are skipped.
func (l *TransportLink) Exec(ctx context.Context, script string) (Reply, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	seq := l.seq
	payload := []byte(wrapScript(seq, script))
	if err := l.tr.WriteFrame(ctx, payload); err != nil {
		return Reply{}, fmt.Errorf("write script: %w", err)
	}
	l.publishRaw(connectors.TopicRawFrameOut, payload)

	var reply Reply
	for {
		frame, err := l.tr.ReadFrame(ctx)
		if err != nil {
			return Reply{}, fmt.Errorf("read reply: %w", err)
		}
		l.publishRaw(connectors.TopicRawFrameIn, frame)
		if len(frame) == 0 {
			continue
		}

		switch frame[0] {
		case dataFrameKind:
			reply.Data = append(reply.Data, frame[1:]...)
		case statusFrameKind:
			status, ok := parseStatus(string(frame[1:]))
			if !ok {
				l.logger.Debug("malformed status frame", "len", len(frame))
				continue
			}
			if status.seq != seq {
				l.logger.Debug("stale status frame skipped", "seq", status.seq, "want", seq)
				continue
			}
			if status.errMsg != "" {
				return reply, fmt.Errorf("%w: %s", ErrScriptFailed, status.errMsg)
			}
			return reply, nil
		default:
			reply.Output = append(reply.Output, strings.TrimRight(string(frame), "\r\n"))
		}
	}
}

func (l *TransportLink) publishRaw(topic string, payload []byte) {
	if l.bus == nil {
		return
	}
	preview := payload
	if len(preview) > rawFramePreviewBytes {
		preview = preview[:rawFramePreviewBytes]
	}
	l.bus.Publish(topic, connectors.RawFrame{Hex: strings.ToUpper(hex.EncodeToString(preview)), Len: len(payload)})
}

const (
	scriptHead = "local ok, err = pcall(function()\n"
	scriptTail = "\nend)\nif ok then print(string.char(2) .. \"%d ok\") else print(string.char(2) .. \"%d err \" .. tostring(err)) end"
)

func wrapScript(seq uint64, script string) string {
	return scriptHead + script + fmt.Sprintf(scriptTail, seq, seq)
}

// unwrapScript recovers the sequence number and body of a wrapped script.
func unwrapScript(wrapped string) (uint64, string, bool) {
	body, ok := strings.CutPrefix(wrapped, scriptHead)
	if !ok {
		return 0, "", false
	}
	idx := strings.LastIndex(body, "\nend)\nif ok then print(string.char(2) .. \"")
	if idx < 0 {
		return 0, "", false
	}
	script := body[:idx]
	rest := body[idx+len("\nend)\nif ok then print(string.char(2) .. \""):]
	digits, _, ok := strings.Cut(rest, " ")
	if !ok {
		return 0, "", false
	}
	seq, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, "", false
	}

	return seq, script, true
}

type scriptStatus struct {
	seq    uint64
	errMsg string
}

// parseStatus reads "<seq> ok" or "<seq> err <message>".
func parseStatus(raw string) (scriptStatus, bool) {
	raw = strings.TrimRight(raw, "\r\n")
	digits, rest, ok := strings.Cut(raw, " ")
	if !ok {
		return scriptStatus{}, false
	}
	seq, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return scriptStatus{}, false
	}

	switch {
	case rest == "ok":
		return scriptStatus{seq: seq}, true
	case strings.HasPrefix(rest, "err"):
		msg := strings.TrimSpace(strings.TrimPrefix(rest, "err"))
		if msg == "" {
			msg = "unknown device error"
		}
		return scriptStatus{seq: seq, errMsg: msg}, true
	default:
		return scriptStatus{}, false
	}
}

// statusFrame builds the status frame the device prints for an exchange.
func statusFrame(seq uint64, errMsg string) []byte {
	if errMsg == "" {
		return []byte(fmt.Sprintf("%c%d ok", statusFrameKind, seq))
	}
	return []byte(fmt.Sprintf("%c%d err %s", statusFrameKind, seq, errMsg))
}
