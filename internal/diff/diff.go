// internal/diff/diff.go
package diff

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

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
		return "addition"
	case Deletion:
		return "deletion"
	default:
		return "context"
	}
}

func (t LineType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *LineType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "addition":
		*t = Addition
	case "deletion":
		*t = Deletion
	case "context":
		*t = Context
	default:
		return fmt.Errorf("unknown line type %q", b)
	}
	return nil
}

// Line is a single diff line. Text is the raw line including its marker.
type Line struct {
	Type LineType `json:"type"`
	Text string   `json:"text"`
}

// Content returns the line without its leading marker.
func (l Line) Content() string {
	if l.Text == "" {
		return ""
	}
	switch l.Text[0] {
	case '+', '-', ' ':
		return l.Text[1:]
	}
	return l.Text
}

// Hunk is a contiguous block of changes. Header is the raw "@@" line and is
// never interpreted.
type Hunk struct {
	Header string `json:"header"`
	Lines  []Line `json:"lines"`
}

// Record holds the hunks of one file section.
type Record struct {
	FilePath string `json:"file_path"`
	Hunks    []Hunk `json:"hunks"`
}

type Stats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Changes   int `json:"changes"`
}

func countStats(hunks []Hunk) Stats {
	var s Stats
	for _, hunk := range hunks {
		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				s.Additions++
			case Deletion:
				s.Deletions++
			}
		}
	}
	s.Changes = s.Additions + s.Deletions
	return s
}

func (r Record) Stats() Stats {
	return countStats(r.Hunks)
}

// DiffResult contains the complete diff information
type DiffResult struct {
	Hunks []Hunk
	Stats Stats
}

// Engine provides diffing capabilities
type Engine struct {
	contextLines int
}

// NewEngine creates a new diff engine with specified context lines
func NewEngine(contextLines int) *Engine {
	if contextLines < 0 {
		contextLines = 0
	}
	return &Engine{
		contextLines: contextLines,
	}
}

// Diff generates a line-by-line diff between two contents
func (e *Engine) Diff(oldContent, newContent string) *DiffResult {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	matcher := difflib.NewMatcher(oldLines, newLines)
	result := &DiffResult{}

	for _, group := range matcher.GetGroupedOpCodes(e.contextLines) {
		if onlyEqual(group) {
			continue
		}
		result.Hunks = append(result.Hunks, buildHunk(group, oldLines, newLines))
	}

	result.Stats = countStats(result.Hunks)
	return result
}

func onlyEqual(group []difflib.OpCode) bool {
	for _, op := range group {
		if op.Tag != 'e' {
			return false
		}
	}
	return true
}

func buildHunk(group []difflib.OpCode, oldLines, newLines []string) Hunk {
	first, last := group[0], group[len(group)-1]
	oldStart, oldCount := first.I1+1, last.I2-first.I1
	newStart, newCount := first.J1+1, last.J2-first.J1
	// an empty side points at the line before the change
	if oldCount == 0 {
		oldStart--
	}
	if newCount == 0 {
		newStart--
	}

	hunk := Hunk{
		Header: fmt.Sprintf("@@ -%d,%d +%d,%d @@", oldStart, oldCount, newStart, newCount),
	}
	for _, op := range group {
		switch op.Tag {
		case 'e':
			for _, l := range oldLines[op.I1:op.I2] {
				hunk.Lines = append(hunk.Lines, Line{Type: Context, Text: " " + l})
			}
		case 'd', 'r', 'i':
			for _, l := range oldLines[op.I1:op.I2] {
				hunk.Lines = append(hunk.Lines, Line{Type: Deletion, Text: "-" + l})
			}
			for _, l := range newLines[op.J1:op.J2] {
				hunk.Lines = append(hunk.Lines, Line{Type: Addition, Text: "+" + l})
			}
		}
	}
	return hunk
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// Empty reports whether the two inputs were identical.
func (r *DiffResult) Empty() bool {
	return len(r.Hunks) == 0
}

// Format returns the hunks as unified diff text
func (r *DiffResult) Format() string {
	var buf strings.Builder

	for _, hunk := range r.Hunks {
		buf.WriteString(hunk.Header)
		buf.WriteByte('\n')
		for _, line := range hunk.Lines {
			buf.WriteString(line.Text)
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// FormatFile prefixes Format with a file section header for path.
func (r *DiffResult) FormatFile(path string) string {
	return fmt.Sprintf("diff --git a/%s b/%s\n--- a/%s\n+++ b/%s\n%s", path, path, path, path, r.Format())
}
