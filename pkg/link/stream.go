package link

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/itohio/gosensorhub/pkg/hub"
	"github.com/itohio/gosensorhub/pkg/protocol"
)

// ErrNoData is returned by StreamTransport.ReadByte when nothing is buffered.
var ErrNoData = errors.New("no data buffered")

var _ hub.Transport = (*StreamTransport)(nil)

// StreamTransport adapts a blocking reader and a writer to the non-blocking
// byte interface the hub polls. A background goroutine moves received bytes
// into a bounded buffer.
type StreamTransport struct {
	r     io.Reader
	w     io.Writer
	bytes chan byte
	done  chan struct{}
}

// NewStreamTransport returns a transport reading r and writing w. Call Start
// before the hub polls it.
func NewStreamTransport(r io.Reader, w io.Writer, size int) *StreamTransport {
	if size <= 0 {
		size = 4 * hub.DefaultCommandBufferSize
	}
	return &StreamTransport{r: r, w: w, bytes: make(chan byte, size), done: make(chan struct{})}
}

// Start reads r until it fails or ctx is done.
func (t *StreamTransport) Start(ctx context.Context) {
	go func() {
		defer close(t.done)
		buf := make([]byte, 64)
		for {
			n, err := t.r.Read(buf)
			for _, b := range buf[:n] {
				select {
				case t.bytes <- b:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
}

// Done is closed once the reader stopped.
func (t *StreamTransport) Done() <-chan struct{} { return t.done }

func (t *StreamTransport) Buffered() int { return len(t.bytes) }

func (t *StreamTransport) ReadByte() (byte, error) {
	select {
	case b := <-t.bytes:
		return b, nil
	default:
		return 0, ErrNoData
	}
}

func (t *StreamTransport) Write(p []byte) (int, error) { return t.w.Write(p) }

// readFrames decodes hub output line by line until r fails or ctx is done.
// Frames are dropped when out is full.
func readFrames(ctx context.Context, r io.Reader, out chan<- Frame, logger *slog.Logger) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic in frame reader", "panic", p)
		}
	}()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		msg, err := protocol.Decode(line)
		if err != nil {
			logger.Warn("failed to decode line", "line", line, "error", err)
			continue
		}

		// Send frame to channel (non-blocking)
		select {
		case out <- Frame{Received: time.Now(), Message: msg}:
		case <-ctx.Done():
			return
		default:
			logger.Warn("frames channel full, dropping message", "type", msg.Type)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logger.Error("error reading from hub", "error", err)
	}
}
