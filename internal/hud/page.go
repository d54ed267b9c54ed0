package hud

// MaxCursor returns the largest valid scroll cursor for total lines shown through a window.
func MaxCursor(total, window int) int {
	if window <= 0 || total <= window {
		return 0
	}
	return total - window
}

// ClampCursor moves cursor into [0, MaxCursor(total, window)].
func ClampCursor(total, window, cursor int) int {
	if cursor < 0 {
		return 0
	}
	if maxCursor := MaxCursor(total, window); cursor > maxCursor {
		return maxCursor
	}
	return cursor
}

// Page returns the visible window of lines starting at the clamped cursor.
func Page(lines []string, window, cursor int) []string {
	if window <= 0 || len(lines) == 0 {
		return nil
	}
	start := ClampCursor(len(lines), window, cursor)
	end := start + window
	if end > len(lines) {
		end = len(lines)
	}

	out := make([]string, end-start)
	copy(out, lines[start:end])
	return out
}

// Scroller tracks the scroll position of a paginated HUD text block.
type Scroller struct {
	lines  []string
	window int
	cursor int
}

func NewScroller(lines []string, window int) *Scroller {
	if window <= 0 {
		window = VisibleLines
	}
	return &Scroller{lines: append([]string(nil), lines...), window: window}
}

func (s *Scroller) Lines() []string {
	return append([]string(nil), s.lines...)
}

func (s *Scroller) Cursor() int {
	return s.cursor
}

func (s *Scroller) SetCursor(cursor int) {
	s.cursor = ClampCursor(len(s.lines), s.window, cursor)
}

func (s *Scroller) Visible() []string {
	return Page(s.lines, s.window, s.cursor)
}

func (s *Scroller) CanScrollUp() bool {
	return s.cursor > 0
}

func (s *Scroller) CanScrollDown() bool {
	return s.cursor < MaxCursor(len(s.lines), s.window)
}

// Up scrolls one line towards the start and reports whether the cursor moved.
func (s *Scroller) Up() bool {
	if !s.CanScrollUp() {
		return false
	}
	s.cursor--
	return true
}

// Down scrolls one line towards the end and reports whether the cursor moved.
func (s *Scroller) Down() bool {
	if !s.CanScrollDown() {
		return false
	}
	s.cursor++
	return true
}
