package dsf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizeEmptyMetadataHeader(t *testing.T) {
	// spec.md §8 scenario 1.
	const frameLength = 1
	const channels = 2
	const sampleRate = 2822400

	audioSize := AudioSize(frameLength, channels)
	require.Equal(t, uint64(16384), audioSize)

	sampleCount := SampleCount(frameLength)
	h, info := Synthesize(channels, sampleRate, sampleCount, audioSize, 0)

	assert.Equal(t, uint64(92), info.HeaderEnd)
	assert.Equal(t, uint64(16476), info.MetadataOff)
	assert.Equal(t, uint64(16476), info.TotalSize)

	assert.Equal(t, []byte("DSD "), h[0:4])
	assert.Equal(t, []byte{0x5c, 0x40, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, h[12:20])
	assert.Equal(t, []byte{0x5c, 0x40, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, h[20:28])
}

func TestSynthesizeFieldLayout(t *testing.T) {
	h, info := Synthesize(1, 2822400, SampleCount(128), AudioSize(128, 1), 10)

	assert.Equal(t, []byte("fmt "), h[28:32])
	assert.Equal(t, []byte("data"), h[80:84])
	assert.Equal(t, uint32(1), leU32(h[40:44])) // format version
	assert.Equal(t, uint32(0), leU32(h[44:48])) // format id
	assert.Equal(t, uint32(ChannelTypeMono), leU32(h[48:52]))
	assert.Equal(t, uint32(1), leU32(h[52:56])) // channel count
	assert.Equal(t, uint32(2822400), leU32(h[56:60]))
	assert.Equal(t, uint32(1), leU32(h[60:64])) // bits per sample
	assert.Equal(t, uint32(BlockBytes), leU32(h[72:76]))
	assert.Equal(t, uint32(0), leU32(h[76:80])) // reserved
	assert.Equal(t, info.AudioSize+12, leU64(h[84:92]))
}

func TestChannelTypeDefaultsToStereoOnUnknown(t *testing.T) {
	assert.Equal(t, ChannelTypeStereo, channelTypeFor(0))
	assert.Equal(t, ChannelTypeStereo, channelTypeFor(7))
}

func TestOneTrackSingleChannelAlignmentGroup(t *testing.T) {
	// spec.md §8: a one-track disc with channel_count=1 and a 128-frame
	// track produces H + 147*B + metadata_size.
	audioSize := AudioSize(128, 1)
	assert.Equal(t, uint64(BlocksPerAlignmentGroup*BlockBytes), audioSize)

	_, info := Synthesize(1, 2822400, SampleCount(128), audioSize, 5)
	assert.Equal(t, uint64(HeaderSize)+uint64(BlocksPerAlignmentGroup*BlockBytes)+5, info.TotalSize)
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
