//go:build !linux && !windows

package interp

import (
	"bytes"
	"runtime"
	"strconv"
)

// Without a portable thread id syscall, the goroutine id stands in. Callers
// pin their goroutine with LockOSThread, so the two identify the same thing.
func threadID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
