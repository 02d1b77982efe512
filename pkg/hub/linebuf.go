package hub

// LineBuffer accumulates command bytes up to a fixed capacity. Bytes past the
// capacity are dropped until the next line terminator.
type LineBuffer struct {
	buf []byte
	max int
}

// NewLineBuffer returns a buffer holding at most size bytes per line.
func NewLineBuffer(size int) *LineBuffer {
	if size <= 0 {
		size = DefaultCommandBufferSize
	}
	return &LineBuffer{buf: make([]byte, 0, size), max: size}
}

// Feed consumes one byte. On '\n' or '\r' it returns the accumulated line and
// clears the buffer; terminators on an empty buffer yield nothing.
func (l *LineBuffer) Feed(b byte) (string, bool) {
	if b == '\n' || b == '\r' {
		if len(l.buf) == 0 {
			return "", false
		}
		line := string(l.buf)
		l.buf = l.buf[:0]
		return line, true
	}
	if len(l.buf) < l.max {
		l.buf = append(l.buf, b)
	}
	return "", false
}

// Len returns the number of buffered bytes.
func (l *LineBuffer) Len() int { return len(l.buf) }

// Reset discards any partial line.
func (l *LineBuffer) Reset() { l.buf = l.buf[:0] }
