package device

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	IconX = 100
	IconY = 100

	// NotificationDurationMS is how long a log confirmation stays on the HUD.
	NotificationDurationMS = 2000
	overlayMode            = "scrollable"
)

func captureScript(width, height, colors int) string {
	return fmt.Sprintf("frame_msg.capture_image(%d, %d, %d)", width, height, colors)
}

func iconScript(icon string, x, y int, color string) string {
	return fmt.Sprintf("frame_msg.show_icon(%s, %d, %d, %s)", luaQuote(icon), x, y, luaQuote(color))
}

func overlayScript(lines []string) string {
	quoted := make([]string, len(lines))
	for i, line := range lines {
		quoted[i] = luaQuote(line)
	}
	return fmt.Sprintf("frame_msg.show_text_overlay({%s}, %s)", strings.Join(quoted, ", "), luaQuote(overlayMode))
}

func notificationScript(text string, durationMS int) string {
	return fmt.Sprintf("frame_msg.show_notification(%s, %d)", luaQuote(text), durationMS)
}

// luaQuote renders s as a double-quoted Lua string literal.
func luaQuote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&b, `\%03d`, c)
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')

	return b.String()
}

// luaUnquote reverses luaQuote for the literals produced by this package.
func luaUnquote(s string) (string, bool) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", false
	}
	body := s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '"' {
			return "", false
		}
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(body) {
			return "", false
		}
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '"', '\\':
			b.WriteByte(body[i])
		default:
			if i+2 >= len(body) {
				return "", false
			}
			n, err := strconv.Atoi(body[i : i+3])
			if err != nil || n > 255 {
				return "", false
			}
			b.WriteByte(byte(n))
			i += 2
		}
	}

	return b.String(), true
}

// splitLuaArgs splits a flat argument list on top-level commas, respecting
// string literals and braces.
func splitLuaArgs(args string) []string {
	var (
		out     []string
		depth   int
		inStr   bool
		escaped bool
		start   int
	)
	for i := 0; i < len(args); i++ {
		c := args[i]
		switch {
		case inStr && escaped:
			escaped = false
		case inStr && c == '\\':
			escaped = true
		case c == '"':
			inStr = !inStr
		case inStr:
		case c == '{':
			depth++
		case c == '}':
			depth--
		case c == ',' && depth == 0:
			out = append(out, strings.TrimSpace(args[start:i]))
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(args[start:]); tail != "" || len(out) > 0 {
		out = append(out, tail)
	}

	return out
}
