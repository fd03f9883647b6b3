package server

import (
	"sync"

	"github.com/aesdlogd/aesdlogd/internal/constants"
)

// chunkPool recycles the fixed-size RECV_CHUNK/SEND_CHUNK buffers used by
// every connection worker, adapted from the teacher's internal/queue
// BufferPool: that pool size-buckets block-I/O buffers up to 1MB for a
// handful of queue runners, where here there is exactly one buffer size
// (constants.RecvChunk == constants.SendChunk) shared by a much larger
// number of short-lived per-connection goroutines — a single sync.Pool
// bucket, not a size-bucketed set.
var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, constants.RecvChunk)
		return &b
	},
}

// getChunk returns a buffer of length constants.RecvChunk. Callers must
// call putChunk when done.
func getChunk() []byte {
	return *(chunkPool.Get().(*[]byte))
}

// putChunk returns buf to the pool. buf must have been obtained from
// getChunk and not resliced beyond its original length.
func putChunk(buf []byte) {
	buf = buf[:constants.RecvChunk]
	chunkPool.Put(&buf)
}
