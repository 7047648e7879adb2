// Package tail follows an append-only JSONL file and yields only the records
// appended since the last read.
package tail

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// Record is one parsed line of the watched file.
type Record map[string]any

// Tracker remembers how far into a file it has read. Each Poll returns the
// complete lines appended since the previous Poll. Safe for concurrent use;
// read-and-advance is a single critical section.
type Tracker struct {
	path string

	mu     sync.Mutex
	offset int64
}

// NewTracker creates a Tracker positioned at the current end of path, so lines
// already in the file are not returned by Poll. A missing file starts at 0.
func NewTracker(path string) (*Tracker, error) {
	t := &Tracker{path: path}
	info, err := os.Stat(path)
	switch {
	case err == nil:
		t.offset = info.Size()
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return t, nil
}

// Path returns the tracked file path.
func (t *Tracker) Path() string {
	return t.path
}

// Offset returns the byte offset just past the last consumed line.
func (t *Tracker) Offset() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// Reset moves the offset back to the start of the file.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.offset = 0
	t.mu.Unlock()
}

// Poll reads the bytes between the offset and the current end of the file and
// returns the records on complete lines, in file order. A trailing line with no
// newline is left for the next Poll. Blank and malformed lines are skipped.
// If the file shrank below the offset it was truncated or replaced, and reading
// restarts from 0. A missing file yields no records and resets the offset.
func (t *Tracker) Poll() ([]Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		t.offset = 0
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", t.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", t.path, err)
	}
	size := info.Size()
	if size < t.offset {
		t.offset = 0
	}
	if size == t.offset {
		return nil, nil
	}

	buf := make([]byte, size-t.offset)
	n, err := f.ReadAt(buf, t.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s: %w", t.path, err)
	}
	buf = buf[:n]

	end := bytes.LastIndexByte(buf, '\n')
	if end < 0 {
		return nil, nil
	}
	t.offset += int64(end + 1)

	return parseLines(buf[:end+1]), nil
}

// ReadAll parses every line of path, including a final unterminated line.
// A missing file yields no records.
func ReadAll(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return parseLines(data), nil
}

// Last returns the final n records. n <= 0 returns none.
func Last(records []Record, n int) []Record {
	if n <= 0 {
		return []Record{}
	}
	if n >= len(records) {
		return records
	}
	return records[len(records)-n:]
}

func parseLines(data []byte) []Record {
	records := make([]Record, 0)
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if rec, ok := parseLine(line); ok {
			records = append(records, rec)
		}
	}
	return records
}

// parseLine decodes a single JSON object. Numbers are kept as json.Number so
// they re-encode exactly as written.
func parseLine(line []byte) (Record, bool) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil || rec == nil {
		return nil, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}
	return rec, true
}
