package internal

import "sync"

// BufferPool recycles datagram buffers. Get hands out a zero length
// slice with at least the configured capacity; append into it and Put
// it back once the datagram has been handled.
type BufferPool struct {
	pool sync.Pool
}

func NewBufferPool(capacity int) *BufferPool {
	if capacity <= 0 {
		capacity = 64 * 1024
	}
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				return make([]byte, 0, capacity)
			},
		},
	}
}

func (bp *BufferPool) Get() []byte {
	return bp.pool.Get().([]byte)[:0]
}

func (bp *BufferPool) Put(buf []byte) {
	if buf == nil {
		return
	}
	bp.pool.Put(buf)
}
