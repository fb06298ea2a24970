package relay

import "bytes"

// LineAssembler splits an arbitrarily chunked byte stream into lines. Lines
// come out whole no matter where chunk boundaries fall.
type LineAssembler struct {
	buf []byte
}

// Feed appends chunk and returns every line it completed, without the line
// terminator. The trailing partial line is retained for the next call.
func (a *LineAssembler) Feed(chunk []byte) [][]byte {
	a.buf = append(a.buf, chunk...)
	var lines [][]byte
	start := 0
	for {
		i := bytes.IndexByte(a.buf[start:], '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(a.buf[start:start+i], []byte("\r"))
		lines = append(lines, append([]byte(nil), line...))
		start += i + 1
	}
	if start > 0 {
		a.buf = append(a.buf[:0], a.buf[start:]...)
	}
	return lines
}

// Flush returns whatever partial line is buffered and resets the assembler.
func (a *LineAssembler) Flush() []byte {
	rest := bytes.TrimSuffix(a.buf, []byte("\r"))
	out := append([]byte(nil), rest...)
	a.buf = a.buf[:0]
	return out
}

// Pending reports the number of buffered bytes not yet returned as a line.
func (a *LineAssembler) Pending() int {
	return len(a.buf)
}
