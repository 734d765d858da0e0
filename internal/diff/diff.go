// internal/diff/diff.go
package diff

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrTooLarge is returned when the LCS table for two inputs would exceed maxCells.
var ErrTooLarge = errors.New("content too large to diff")

const maxCells = 16 << 20

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

func (t LineType) String() string {
	switch t {
	case Addition:
		return "add"
	case Deletion:
		return "del"
	default:
		return "ctx"
	}
}

func (t LineType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *LineType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "add":
		*t = Addition
	case "del":
		*t = Deletion
	case "ctx":
		*t = Context
	default:
		return fmt.Errorf("unknown line type %q", b)
	}
	return nil
}

// Line is a single line of a hunk. OldNum and NewNum are 1-based and zero
// when the line does not exist on that side.
type Line struct {
	Type    LineType `json:"type"`
	Content string   `json:"content"`
	OldNum  int      `json:"oldNum,omitempty"`
	NewNum  int      `json:"newNum,omitempty"`
}

// Hunk represents a continuous section of changes
type Hunk struct {
	OldStart int    `json:"oldStart"`
	OldLines int    `json:"oldLines"`
	NewStart int    `json:"newStart"`
	NewLines int    `json:"newLines"`
	Lines    []Line `json:"lines"`
}

type Stats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Changes   int `json:"changes"`
}

type DiffResult struct {
	Hunks []Hunk `json:"hunks"`
	Stats Stats  `json:"stats"`
}

// Engine provides diffing capabilities
type Engine struct {
	contextLines int
}

func NewEngine(contextLines int) *Engine {
	if contextLines < 0 {
		contextLines = 0
	}
	return &Engine{contextLines: contextLines}
}

// Diff generates a line-by-line diff between two contents
func (e *Engine) Diff(oldContent, newContent []byte) (*DiffResult, error) {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	if (len(oldLines)+1)*(len(newLines)+1) > maxCells {
		return nil, ErrTooLarge
	}

	script := editScript(oldLines, newLines)
	result := &DiffResult{Hunks: e.group(script)}
	for _, l := range script {
		switch l.Type {
		case Addition:
			result.Stats.Additions++
		case Deletion:
			result.Stats.Deletions++
		}
	}
	result.Stats.Changes = result.Stats.Additions + result.Stats.Deletions
	return result, nil
}

func splitLines(content []byte) [][]byte {
	if len(content) == 0 {
		return nil
	}
	return bytes.Split(bytes.TrimSuffix(content, []byte{'\n'}), []byte{'\n'})
}

// editScript walks the suffix LCS table front to back, preferring deletions
// before additions inside a change.
func editScript(a, b [][]byte) []Line {
	n, m := len(a), len(b)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if bytes.Equal(a[i], b[j]) {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	script := make([]Line, 0, n+m)
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case bytes.Equal(a[i], b[j]):
			script = append(script, Line{Type: Context, Content: string(a[i]), OldNum: i + 1, NewNum: j + 1})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			script = append(script, Line{Type: Deletion, Content: string(a[i]), OldNum: i + 1})
			i++
		default:
			script = append(script, Line{Type: Addition, Content: string(b[j]), NewNum: j + 1})
			j++
		}
	}
	for ; i < n; i++ {
		script = append(script, Line{Type: Deletion, Content: string(a[i]), OldNum: i + 1})
	}
	for ; j < m; j++ {
		script = append(script, Line{Type: Addition, Content: string(b[j]), NewNum: j + 1})
	}
	return script
}

// group cuts the script into hunks, keeping contextLines of unchanged lines
// around each change and merging hunks whose context would overlap.
func (e *Engine) group(script []Line) []Hunk {
	var hunks []Hunk
	lo, hi := -1, -1

	flush := func() {
		if lo < 0 {
			return
		}
		hunks = append(hunks, makeHunk(script, lo, hi))
		lo, hi = -1, -1
	}

	for idx, l := range script {
		if l.Type == Context {
			continue
		}
		start := max(0, idx-e.contextLines)
		end := min(len(script), idx+e.contextLines+1)
		if lo >= 0 && start > hi {
			flush()
		}
		if lo < 0 {
			lo = start
		}
		hi = end
	}
	flush()
	return hunks
}

func makeHunk(script []Line, lo, hi int) Hunk {
	h := Hunk{Lines: append([]Line(nil), script[lo:hi]...)}

	oldBefore, newBefore := 0, 0
	for _, l := range script[:lo] {
		if l.Type != Addition {
			oldBefore++
		}
		if l.Type != Deletion {
			newBefore++
		}
	}

	for _, l := range h.Lines {
		if l.Type != Addition {
			h.OldLines++
		}
		if l.Type != Deletion {
			h.NewLines++
		}
	}

	h.OldStart = oldBefore
	if h.OldLines > 0 {
		h.OldStart++
	}
	h.NewStart = newBefore
	if h.NewLines > 0 {
		h.NewStart++
	}
	return h
}

// Format returns a unified-style rendering of the diff
func (r *DiffResult) Format() string {
	var buf bytes.Buffer

	for _, hunk := range r.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n",
			hunk.OldStart, hunk.OldLines,
			hunk.NewStart, hunk.NewLines)

		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				buf.WriteByte('+')
			case Deletion:
				buf.WriteByte('-')
			default:
				buf.WriteByte(' ')
			}
			buf.WriteString(line.Content)
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}
