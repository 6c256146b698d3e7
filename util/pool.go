package util

import "sync"

// readBufs recycles the DefaultBufSize read buffers of pixel sessions.
// Clients that connect, blast a few thousand pixels and leave would
// otherwise allocate 32 KiB each.
var readBufs = sync.Pool{
	New: func() any {
		buf := make([]byte, DefaultBufSize)
		return &buf
	},
}

// GetBuf returns a DefaultBufSize buffer.  Hand it back with [PutBuf].
func GetBuf() *[]byte {
	return readBufs.Get().(*[]byte)
}

// PutBuf recycles buf.  Buffers that were resliced to another size are
// dropped so every GetBuf caller sees the full length.
func PutBuf(buf *[]byte) {
	if buf == nil || len(*buf) != DefaultBufSize {
		return
	}
	readBufs.Put(buf)
}
