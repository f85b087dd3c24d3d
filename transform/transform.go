// Package transform implements the Frame Transformer (spec.md §4.1): it
// de-interleaves byte-interleaved SACD sample data into per-channel,
// block-interleaved DSF layout, bit-reversing every byte along the way.
package transform

// reverseTable is a precomputed MSB<->LSB bit-reversal lookup, the
// idiomatic replacement for reversing each byte bit-by-bit in the hot path.
var reverseTable = buildReverseTable()

func buildReverseTable() [256]byte {
	var t [256]byte
	for i := 0; i < 256; i++ {
		b := byte(i)
		var r byte
		for bit := 0; bit < 8; bit++ {
			r <<= 1
			r |= b & 1
			b >>= 1
		}
		t[i] = r
	}
	return t
}

// ReverseByte reverses the bit order of a single byte (MSB<->LSB).
func ReverseByte(b byte) byte {
	return reverseTable[b]
}

// State holds one area's per-channel accumulators and emits completed
// 4096-byte-per-channel DSF block groups as SACD frames are fed in.
//
// State is not safe for concurrent use; each Virtual File owns a private
// instance (spec.md §5).
type State struct {
	channels  int
	frameSize int // F: SACD bytes per channel per frame
	blockSize int // B: DSF bytes per channel per block

	channelBufs   [][]byte // channels x blockSize
	bytesBuffered int      // common to all channels, in [0, blockSize)

	staging []byte // reused output buffer, sized for the worst case per Feed
}

// New constructs a transformer for the given channel count and frame/block
// grid. frameSize and blockSize are spec.md's F=4704 and B=4096 in
// production; tests may use other grids to exercise edge cases, as long as
// frameSize > 0 and blockSize > 0.
func New(channels, frameSize, blockSize int) *State {
	bufs := make([][]byte, channels)
	for i := range bufs {
		bufs[i] = make([]byte, blockSize)
	}
	maxBlocksPerFeed := (blockSize - 1 + frameSize) / blockSize
	return &State{
		channels:    channels,
		frameSize:   frameSize,
		blockSize:   blockSize,
		channelBufs: bufs,
		staging:     make([]byte, maxBlocksPerFeed*channels*blockSize),
	}
}

// BytesBuffered reports the current common per-channel accumulator fill
// level. It is 0 exactly at alignment-group boundaries (spec.md §3).
func (s *State) BytesBuffered() int { return s.bytesBuffered }

// Reset discards any partially buffered block, per spec.md §4.4's seek
// algorithm ("bytes_buffered = 0"). Seeking always lands on an alignment
// group boundary, so the discarded partial data is never needed again.
func (s *State) Reset() {
	s.bytesBuffered = 0
}

// Feed consumes one decoded DSD frame (channels*frameSize bytes,
// byte-interleaved across channels) and returns the completed block groups
// it produced, channel-major (channel 0's block, then channel 1's, ...).
// The returned slice aliases State's internal staging buffer and is only
// valid until the next call to Feed or Flush.
//
// Feed panics if len(frame) != channels*frameSize: a mismatched frame size
// is a caller precondition violation, not a runtime failure the transformer
// itself can raise (spec.md §4.1: "Failure semantics: None").
func (s *State) Feed(frame []byte) []byte {
	if len(frame) != s.channels*s.frameSize {
		panic("transform: frame size mismatch")
	}

	outPos := 0
	idx := 0
	for pos := 0; pos < s.frameSize; pos++ {
		for ch := 0; ch < s.channels; ch++ {
			s.channelBufs[ch][s.bytesBuffered] = reverseTable[frame[idx]]
			idx++
		}
		s.bytesBuffered++
		if s.bytesBuffered == s.blockSize {
			for ch := 0; ch < s.channels; ch++ {
				copy(s.staging[outPos:], s.channelBufs[ch])
				outPos += s.blockSize
			}
			s.bytesBuffered = 0
		}
	}
	return s.staging[:outPos]
}

// Flush emits one final, zero-padded block group from whatever partial data
// remains in the per-channel accumulators, and resets BytesBuffered to 0.
// Flush returns nil if there is nothing buffered.
func (s *State) Flush() []byte {
	if s.bytesBuffered == 0 {
		return nil
	}
	out := make([]byte, s.channels*s.blockSize)
	pos := 0
	for ch := 0; ch < s.channels; ch++ {
		copy(out[pos:], s.channelBufs[ch][:s.bytesBuffered])
		for i := s.bytesBuffered; i < s.blockSize; i++ {
			out[pos+i] = 0
		}
		pos += s.blockSize
	}
	s.bytesBuffered = 0
	return out
}
