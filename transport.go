package embedpy

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// MaxFrameSize bounds a single frame read by FrameTransport.
const MaxFrameSize = 64 << 20

// Transport sends and receives whole messages.
type Transport interface {
	// Send transmits one message.
	Send(data []byte) error

	// Receive reads one complete message. It returns io.EOF when the peer
	// closed the stream between messages.
	Receive() ([]byte, error)

	// Close releases the underlying streams.
	Close() error
}

// FrameTransport frames messages with a 4-byte big-endian length prefix.
// Send and Receive may be called from different goroutines.
type FrameTransport struct {
	r    io.Reader
	w    io.Writer
	pool *BufferPool

	sendMu sync.Mutex
	recvMu sync.Mutex
}

// NewFrameTransport returns a transport reading frames from r and writing
// them to w. Writers with a Flush method are flushed after every frame.
func NewFrameTransport(r io.Reader, w io.Writer) *FrameTransport {
	return &FrameTransport{r: r, w: w, pool: NewBufferPool(8192, 8)}
}

func (t *FrameTransport) Send(data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds the %d byte limit", len(data), MaxFrameSize)
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := t.w.Write(prefix[:]); err != nil {
		return err
	}
	if _, err := t.w.Write(data); err != nil {
		return err
	}
	if f, ok := t.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (t *FrameTransport) Receive() ([]byte, error) {
	t.recvMu.Lock()
	defer t.recvMu.Unlock()

	var prefix [4]byte
	if _, err := io.ReadFull(t.r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds the %d byte limit", n, MaxFrameSize)
	}

	// Small frames are read into a pooled buffer and copied out.
	if int(n) <= t.pool.Size() {
		buf := t.pool.Get()[:n]
		defer t.pool.Put(buf)
		if _, err := io.ReadFull(t.r, buf); err != nil {
			return nil, unexpected(err)
		}
		return append([]byte(nil), buf...), nil
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(t.r, data); err != nil {
		return nil, unexpected(err)
	}
	return data, nil
}

// Close closes the reader and the writer when they are closers.
func (t *FrameTransport) Close() error {
	var first error
	for _, s := range []any{t.r, t.w} {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// unexpected reports a stream that ended inside a frame.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
