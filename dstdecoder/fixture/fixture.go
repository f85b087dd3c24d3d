// Package fixture provides a deterministic, reversible stand-in for the
// real DST entropy decoder, used by tests, the benchmark CLI and the
// sacdmountd daemon (which has no other decoder to pass to its mount table).
// It is explicitly NOT a DST implementation: spec.md treats DST decoding as
// an opaque external capability (§6.2). The scheme here is a trivial byte-wise XOR with a
// position-derived keystream, which is enough to exercise the MT pipeline's
// dispatch/decode/ordering machinery and the ST/MT equivalence property
// (spec.md §8) without claiming real-format fidelity.
package fixture

import (
	"fmt"

	"github.com/sacdfs/sacdfs/dstdecoder"
)

// Encode produces a "compressed" representation of raw that Decode can
// invert. Test-only; not a real DST codec.
func Encode(raw []byte) []byte {
	out := make([]byte, len(raw))
	for i, b := range raw {
		out[i] = b ^ keystream(i)
	}
	return out
}

func keystream(i int) byte {
	return byte((i*2654435761 + 1) >> 3)
}

// decoder implements dstdecoder.Decoder.
type decoder struct{}

// NewFactory returns a dstdecoder.Factory producing fresh fixture decoders,
// matching the real pipeline's per-job construction discipline.
func NewFactory() dstdecoder.Factory {
	return func() dstdecoder.Decoder { return &decoder{} }
}

func (*decoder) Decode(dst, compressed []byte) (int, error) {
	if len(dst) != len(compressed) {
		return 0, fmt.Errorf("fixture dst decoder: dst size %d != compressed size %d", len(dst), len(compressed))
	}
	for i, b := range compressed {
		dst[i] = b ^ keystream(i)
	}
	return len(dst), nil
}
