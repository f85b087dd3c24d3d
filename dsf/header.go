// Package dsf implements the Header Synthesizer (spec.md §4.2) and the
// region layout of a synthetic Sony DSF stream (spec.md §3, §6.6).
package dsf

import "encoding/binary"

// HeaderSize is H, the fixed size of the synthesized DSF header region.
const HeaderSize = 92

// Per-channel grid constants (spec.md §3).
const (
	FrameBytes = 4704 // F: SACD bytes per channel per frame
	BlockBytes = 4096 // B: DSF bytes per channel per block
	AlignmentGroupFrames = 128
	BlocksPerAlignmentGroup = 147
)

// ChannelType is the DSF fmt-chunk channel type field (spec.md §4.2 table).
type ChannelType uint32

const (
	ChannelTypeMono   ChannelType = 1
	ChannelTypeStereo ChannelType = 2
	ChannelType3      ChannelType = 3
	ChannelTypeQuad   ChannelType = 4
	ChannelType5      ChannelType = 6
	ChannelType51     ChannelType = 7
)

// channelTypeFor maps a channel count to its DSF channel type, defaulting
// to stereo for any count the format table does not assign a distinct type
// to (spec.md §4.2: "default to stereo on unknown").
func channelTypeFor(channels int) ChannelType {
	switch channels {
	case 1:
		return ChannelTypeMono
	case 2:
		return ChannelTypeStereo
	case 3:
		return ChannelType3
	case 4:
		return ChannelTypeQuad
	case 5:
		return ChannelType5
	case 6:
		return ChannelType51
	default:
		return ChannelTypeStereo
	}
}

// Info holds the computed region offsets and dimensions of one synthetic
// DSF stream (spec.md §3 "Virtual DSF file layout").
type Info struct {
	Channels     int
	SampleRate   uint32
	SampleCount  uint64 // per channel, in bits
	AudioSize    uint64 // bytes, region [H, M)
	MetadataSize uint64 // bytes, region [M, T)

	HeaderEnd   uint64 // H
	MetadataOff uint64 // M
	TotalSize   uint64 // T
}

// NumBlocks returns ceil(frameLength*FrameBytes / BlockBytes), the number of
// per-channel DSF blocks a track of frameLength SACD frames occupies.
func NumBlocks(frameLength uint32) uint64 {
	totalBytes := uint64(frameLength) * FrameBytes
	return (totalBytes + BlockBytes - 1) / BlockBytes
}

// AudioSize returns the total audio-region byte size for a track with the
// given frame length and channel count.
func AudioSize(frameLength uint32, channels int) uint64 {
	return NumBlocks(frameLength) * BlockBytes * uint64(channels)
}

// SampleCount returns the per-channel sample count in bits for a track
// spanning frameLength SACD frames (spec.md §3: "Sample count per channel").
func SampleCount(frameLength uint32) uint64 {
	return uint64(frameLength) * FrameBytes * 8
}

// Synthesize produces the 92-byte DSF header for a track and its derived
// region offsets. audioSize and metadataSize are in bytes.
func Synthesize(channels int, sampleRate uint32, sampleCount, audioSize, metadataSize uint64) ([HeaderSize]byte, Info) {
	info := Info{
		Channels:     channels,
		SampleRate:   sampleRate,
		SampleCount:  sampleCount,
		AudioSize:    audioSize,
		MetadataSize: metadataSize,
		HeaderEnd:    HeaderSize,
		MetadataOff:  HeaderSize + audioSize,
	}
	info.TotalSize = info.MetadataOff + metadataSize

	var h [HeaderSize]byte
	copy(h[0:4], "DSD ")
	binary.LittleEndian.PutUint64(h[4:12], 28)
	binary.LittleEndian.PutUint64(h[12:20], info.TotalSize)
	binary.LittleEndian.PutUint64(h[20:28], info.MetadataOff)

	copy(h[28:32], "fmt ")
	binary.LittleEndian.PutUint64(h[32:40], 52)
	binary.LittleEndian.PutUint32(h[40:44], 1) // format version
	binary.LittleEndian.PutUint32(h[44:48], 0) // format id: DSD raw
	binary.LittleEndian.PutUint32(h[48:52], uint32(channelTypeFor(channels)))
	binary.LittleEndian.PutUint32(h[52:56], uint32(channels))
	binary.LittleEndian.PutUint32(h[56:60], sampleRate)
	binary.LittleEndian.PutUint32(h[60:64], 1) // bits per sample
	binary.LittleEndian.PutUint64(h[64:72], sampleCount)
	binary.LittleEndian.PutUint32(h[72:76], BlockBytes)
	binary.LittleEndian.PutUint32(h[76:80], 0) // reserved

	copy(h[80:84], "data")
	binary.LittleEndian.PutUint64(h[84:92], 12+audioSize)

	return h, info
}
