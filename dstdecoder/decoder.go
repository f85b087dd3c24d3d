// Package dstdecoder defines the DST Decoder capability the core consumes
// (spec.md §6.2). The real DST entropy decoder is out of scope for this
// repository; only the interface lives here. A deterministic, reversible
// (but NOT a real DST implementation) reference codec for tests lives in
// the fixture subpackage.
package dstdecoder

// Decoder performs a single, stateless decode of one DST-compressed frame
// into one decoded DSD frame. Per spec.md §6.2, instances are created fresh
// per call and must never be shared between goroutines/threads.
type Decoder interface {
	// Decode decompresses compressed (exactly one DST frame) into dst,
	// which must be pre-sized to channels*frameBytes. Returns the number
	// of bytes written, which on success always equals len(dst).
	Decode(dst, compressed []byte) (int, error)
}

// Factory creates a fresh Decoder instance. The MT pipeline and the
// single-threaded audio path both call Factory once per frame (spec.md §9:
// "per-job DST decoder construction" is the choice documented here).
type Factory func() Decoder
