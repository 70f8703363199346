package embedpy

// BufferPool recycles byte buffers of one capacity. The guest output sinks
// hold one while a partial line is pending, and FrameTransport reads small
// frames into one.
//
// Buffers come out empty and append-ready. It is safe for concurrent use.
type BufferPool struct {
	free chan []byte
	size int
}

// NewBufferPool returns a pool holding count buffers with capacity size.
func NewBufferPool(size, count int) *BufferPool {
	bp := &BufferPool{free: make(chan []byte, count), size: size}
	for i := 0; i < count; i++ {
		bp.free <- make([]byte, 0, size)
	}
	return bp
}

// Size is the capacity of the buffers the pool hands out.
func (bp *BufferPool) Size() int { return bp.size }

// Available is the number of idle buffers.
func (bp *BufferPool) Available() int { return len(bp.free) }

// Get takes an empty buffer from the pool, allocating when it is empty.
func (bp *BufferPool) Get() []byte {
	select {
	case buf := <-bp.free:
		return buf
	default:
		return make([]byte, 0, bp.size)
	}
}

// Put returns buf, whatever its length. Buffers of another capacity, and any
// beyond the pool's capacity, are left to the garbage collector.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) != bp.size {
		return
	}
	select {
	case bp.free <- buf[:0]:
	default:
	}
}

// AppendString is append(buf, s...) for a buffer taken from the pool. When s
// does not fit, the contents move to a larger unpooled buffer and the pooled
// one is put back at once.
func (bp *BufferPool) AppendString(buf []byte, s string) []byte {
	if len(buf)+len(s) <= cap(buf) {
		return append(buf, s...)
	}
	grown := make([]byte, len(buf), 2*(len(buf)+len(s)))
	copy(grown, buf)
	bp.Put(buf)
	return append(grown, s...)
}
