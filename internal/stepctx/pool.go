// Package stepctx provides pooled byte buffers for management-step
// context allocation, adapted from the teacher's hot-path
// buffer pool (formerly internal/queue/pool.go, which pooled I/O
// payload buffers for the ublk completion path) into three
// step-context-sized buckets instead of I/O-sized ones. Uses
// size-bucketed sync.Pool instances with *[]byte to avoid the
// interface-allocation overhead of pooling []byte directly.
package stepctx

import "sync"

// Bucket sizes match internal/constants.StepCtxBucket4K/16K/64K; a step
// context of any ArgSize up to 64K is served from the smallest bucket
// that fits it. Process contexts are not pooled.
const (
	bucket4k  = 4 * 1024
	bucket16k = 16 * 1024
	bucket64k = 64 * 1024
)

var pools = struct {
	p4k, p16k, p64k sync.Pool
}{
	p4k:  sync.Pool{New: func() any { b := make([]byte, bucket4k); return &b }},
	p16k: sync.Pool{New: func() any { b := make([]byte, bucket16k); return &b }},
	p64k: sync.Pool{New: func() any { b := make([]byte, bucket64k); return &b }},
}

// Get returns a buffer of at least size bytes, pulled from the smallest
// bucket that fits or freshly allocated if size exceeds every bucket.
// Callers that want pooling must call Put when the buffer is no longer
// needed; Get never panics on an oversized request.
func Get(size int) []byte {
	switch {
	case size <= bucket4k:
		return (*pools.p4k.Get().(*[]byte))[:size]
	case size <= bucket16k:
		return (*pools.p16k.Get().(*[]byte))[:size]
	case size <= bucket64k:
		return (*pools.p64k.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// Put returns buf to its bucket pool. Buffers larger than bucket64k, or
// not obtained from Get, are silently dropped rather than pooled.
func Put(buf []byte) {
	switch cap(buf) {
	case bucket4k:
		b := buf[:bucket4k]
		pools.p4k.Put(&b)
	case bucket16k:
		b := buf[:bucket16k]
		pools.p16k.Put(&b)
	case bucket64k:
		b := buf[:bucket64k]
		pools.p64k.Put(&b)
	}
}
