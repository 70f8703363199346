package interp

import (
	"io"

	"go.starlark.net/starlark"
)

// Sink receives text written by guest code to a stream.
type Sink interface {
	Write(text string) error
	Flush() error
}

type writerSink struct{ w io.Writer }

// WriterSink adapts an io.Writer; writes are unbuffered.
func WriterSink(w io.Writer) Sink { return writerSink{w} }

func (s writerSink) Write(text string) error {
	_, err := io.WriteString(s.w, text)
	return err
}

func (s writerSink) Flush() error { return nil }

// Stream is the guest-visible file-like object bound to sys.stdout and
// sys.stderr.
type Stream struct {
	name  string
	sink  Sink
	write *starlark.Builtin
	flush *starlark.Builtin
}

var _ starlark.HasAttrs = (*Stream)(nil)

// NewStream wraps sink as a guest object exposing write(text) and flush().
func NewStream(name string, sink Sink) *Stream {
	s := &Stream{name: name, sink: sink}
	s.write = starlark.NewBuiltin("write", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var text starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &text); err != nil {
			return nil, err
		}
		str, ok := starlark.AsString(text)
		if !ok {
			str = text.String()
		}
		if err := s.sink.Write(str); err != nil {
			return nil, NewException(RuntimeError, "%s.write: %v", s.name, err)
		}
		return starlark.MakeInt(len(str)), nil
	})
	s.flush = starlark.NewBuiltin("flush", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
			return nil, err
		}
		if err := s.sink.Flush(); err != nil {
			return nil, NewException(RuntimeError, "%s.flush: %v", s.name, err)
		}
		return starlark.None, nil
	})
	return s
}

// Sink returns the host side of the stream.
func (s *Stream) Sink() Sink { return s.sink }

func (s *Stream) String() string        { return "<stream '" + s.name + "'>" }
func (s *Stream) Type() string          { return "stream" }
func (s *Stream) Freeze()               {}
func (s *Stream) Truth() starlark.Bool  { return true }
func (s *Stream) Hash() (uint32, error) { return starlark.String(s.name).Hash() }
func (s *Stream) AttrNames() []string   { return []string{"flush", "name", "write"} }

func (s *Stream) Attr(name string) (starlark.Value, error) {
	switch name {
	case "write":
		return s.write, nil
	case "flush":
		return s.flush, nil
	case "name":
		return starlark.String(s.name), nil
	}
	return nil, nil
}
