// Package buffers provides a pooled byte buffer for streaming transfer
// copies, reducing GC pressure on a daemon that may be relaying many
// concurrent uploads and downloads at once (§4.1).
package buffers

import "sync"

// CopySize is the buffer length transfer.scheduler's copy loop reads and
// writes in.
const CopySize = 32 * 1024

var copyPool = &sync.Pool{
	New: func() interface{} {
		buf := make([]byte, CopySize)
		return &buf
	},
}

// Get retrieves a CopySize buffer from the pool. It must be returned with
// Put once the caller is done with it.
func Get() *[]byte {
	return copyPool.Get().(*[]byte)
}

// Put returns buf to the pool for reuse. A buffer of the wrong size is
// dropped rather than pooled; a nil buf is a no-op.
func Put(buf *[]byte) {
	if buf != nil && len(*buf) == CopySize {
		clear(*buf)
		copyPool.Put(buf)
	}
}
