package groq

import (
	"bytes"
	"sync"
)

// bufferPool reuses request body buffers across calls sharing a client.
var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// getBuffer retrieves a reset buffer from the pool.
// Caller must call putBuffer() once the request body has been sent.
func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// putBuffer returns a buffer to the pool. Oversized buffers are dropped
// so a single large multimodal request does not pin memory.
func putBuffer(buf *bytes.Buffer) {
	const maxBufferSize = 64 * 1024
	if buf.Cap() <= maxBufferSize {
		bufferPool.Put(buf)
	}
}
