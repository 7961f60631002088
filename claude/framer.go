package claude

import (
	"bytes"
	"strings"
)

// LineFramer reassembles newline-delimited records from stdout chunks that
// may split a line anywhere, including inside a multi-byte character.
// The zero value is ready to use. It is not safe for concurrent use.
type LineFramer struct {
	pending []byte
	scanned int // bytes of pending already searched for '\n'
}

// Feed appends chunk and returns every line it completed, in order.
// A trailing '\r' is stripped and whitespace-only lines are dropped.
func (f *LineFramer) Feed(chunk []byte) []string {
	f.pending = append(f.pending, chunk...)

	var lines []string
	start := 0
	from := f.scanned
	for {
		i := bytes.IndexByte(f.pending[from:], '\n')
		if i < 0 {
			break
		}
		end := from + i
		if line, ok := frameLine(f.pending[start:end]); ok {
			lines = append(lines, line)
		}
		start = end + 1
		from = start
	}

	// Shift the unterminated tail to the front so pending does not grow
	// without bound on a long-running stream.
	n := copy(f.pending, f.pending[start:])
	f.pending = f.pending[:n]
	f.scanned = n
	return lines
}

// Flush returns the unterminated tail at end of stream, if it holds a line.
func (f *LineFramer) Flush() (string, bool) {
	line, ok := frameLine(f.pending)
	f.pending = f.pending[:0]
	f.scanned = 0
	return line, ok
}

func frameLine(b []byte) (string, bool) {
	b = bytes.TrimSuffix(b, []byte{'\r'})
	s := string(b)
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
