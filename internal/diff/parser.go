package diff

import (
	"bufio"
	"io"
	"strings"
)

const (
	fileMarker = "diff --"
	hunkMarker = "@@"
)

type parseState int

const (
	stateIdle parseState = iota
	stateInFile
	stateInHunk
)

// Parser turns unified diff text into Records one line at a time. The zero
// value is ready to use.
type Parser struct {
	state   parseState
	records []Record
	file    *Record
	hunk    *Hunk
}

// Feed classifies one line. Lines that fit no rule in the current state are
// ignored.
func (p *Parser) Feed(line string) {
	line = strings.TrimSuffix(line, "\r")

	switch {
	case strings.HasPrefix(line, fileMarker):
		p.closeFile()
		p.file = &Record{FilePath: markerPath(line), Hunks: []Hunk{}}
		p.state = stateInFile

	case strings.HasPrefix(line, hunkMarker) && p.file != nil:
		p.closeHunk()
		p.hunk = &Hunk{Header: line, Lines: []Line{}}
		p.state = stateInHunk

	case p.state == stateInHunk && line != "":
		p.hunk.Lines = append(p.hunk.Lines, classify(line))
	}
}

// Finish flushes the open file and hunk and returns every record in input
// order. The parser is reset afterwards.
func (p *Parser) Finish() []Record {
	p.closeFile()
	records := p.records
	if records == nil {
		records = []Record{}
	}
	*p = Parser{}
	return records
}

func (p *Parser) closeHunk() {
	if p.hunk != nil {
		p.file.Hunks = append(p.file.Hunks, *p.hunk)
		p.hunk = nil
	}
}

func (p *Parser) closeFile() {
	if p.file == nil {
		return
	}
	p.closeHunk()
	p.records = append(p.records, *p.file)
	p.file = nil
	p.state = stateIdle
}

func classify(line string) Line {
	switch line[0] {
	case '+':
		return Line{Type: Addition, Text: line}
	case '-':
		return Line{Type: Deletion, Text: line}
	default:
		return Line{Type: Context, Text: line}
	}
}

// Parse parses diff text held in memory.
func Parse(text string) []Record {
	var p Parser
	for _, line := range strings.Split(text, "\n") {
		p.Feed(line)
	}
	return p.Finish()
}

// ParseReader parses diff text from r without loading it whole.
func ParseReader(r io.Reader) ([]Record, error) {
	var p Parser
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		p.Feed(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p.Finish(), nil
}
