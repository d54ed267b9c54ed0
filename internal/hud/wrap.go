package hud

import (
	"strings"
	"unicode/utf8"
)

// Wrap greedily packs words into lines of at most maxLineWidth character cells.
// A word longer than maxLineWidth is emitted alone on its own over-long line, never split.
func Wrap(text string, maxLineWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	lines := make([]string, 0, len(words))
	var (
		current      strings.Builder
		currentWidth int
	)
	for _, word := range words {
		wordWidth := utf8.RuneCountInString(word)
		if currentWidth == 0 {
			current.WriteString(word)
			currentWidth = wordWidth
			continue
		}
		if currentWidth+1+wordWidth <= maxLineWidth {
			current.WriteByte(' ')
			current.WriteString(word)
			currentWidth += 1 + wordWidth
			continue
		}
		lines = append(lines, current.String())
		current.Reset()
		current.WriteString(word)
		currentWidth = wordWidth
	}
	if currentWidth > 0 {
		lines = append(lines, current.String())
	}

	return lines
}

// WrapForDisplay wraps text at the device's fixed line width.
func WrapForDisplay(text string) []string {
	return Wrap(text, CharsPerLine)
}
