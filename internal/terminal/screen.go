package terminal

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tuzig/vt10x"
)

// Screen mirrors a terminal's output into a virtual terminal so that a
// subscriber who connects late can be shown the current screen.
type Screen struct {
	mu   sync.Mutex
	term vt10x.Terminal
	cols int
	rows int
}

func NewScreen(cols, rows int) *Screen {
	return &Screen{
		term: vt10x.New(vt10x.WithSize(cols, rows)),
		cols: cols,
		rows: rows,
	}
}

func (s *Screen) Write(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.term.Write(data)
}

func (s *Screen) Resize(cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.term.Resize(cols, rows)
	s.cols, s.rows = cols, rows
}

// Lines returns the visible rows with trailing blanks removed.
func (s *Screen) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linesLocked()
}

func (s *Screen) linesLocked() []string {
	lines := make([]string, s.rows)
	row := make([]rune, s.cols)
	for y := 0; y < s.rows; y++ {
		for x := 0; x < s.cols; x++ {
			ch := s.term.Cell(x, y).Char
			if ch == 0 {
				ch = ' '
			}
			row[x] = ch
		}
		lines[y] = strings.TrimRight(string(row), " ")
	}
	return lines
}

// Snapshot renders the screen as bytes that redraw it on a fresh xterm:
// clear, the visible rows, then the cursor position. Empty when nothing was
// drawn yet.
func (s *Screen) Snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.linesLocked()
	last := len(lines) - 1
	for last >= 0 && lines[last] == "" {
		last--
	}
	if last < 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("\x1b[2J\x1b[H")
	b.WriteString(strings.Join(lines[:last+1], "\r\n"))
	cur := s.term.Cursor()
	fmt.Fprintf(&b, "\x1b[%d;%dH", cur.Y+1, cur.X+1)
	return []byte(b.String())
}
