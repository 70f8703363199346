package embedpy

import (
	"bytes"
	"io"
	"sync"
)

// lineSink receives guest stdout or stderr text and forwards it to a host
// writer one complete line at a time. A partial trailing line is held until
// the next newline or Flush.
type lineSink struct {
	name string
	w    io.Writer
	pool *BufferPool

	mu  sync.Mutex
	buf []byte
}

func newLineSink(name string, w io.Writer, pool *BufferPool) *lineSink {
	return &lineSink{name: name, w: w, pool: pool}
}

func (s *lineSink) Write(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		s.buf = s.pool.Get()
	}
	s.buf = s.pool.AppendString(s.buf, text)
	i := bytes.LastIndexByte(s.buf, '\n')
	if i < 0 {
		return nil
	}
	if _, err := s.w.Write(s.buf[:i+1]); err != nil {
		return err
	}
	s.buf = s.buf[:copy(s.buf, s.buf[i+1:])]
	return nil
}

// Flush writes any held partial line and returns the buffer to the pool.
func (s *lineSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return nil
	}
	var err error
	if len(s.buf) > 0 {
		_, err = s.w.Write(s.buf)
	}
	s.pool.Put(s.buf)
	s.buf = nil
	return err
}
