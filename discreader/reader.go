// Package discreader defines the Disc Reader capability that the core
// consumes (spec.md §6.1). Low-level ISO parsing, sector I/O, area
// selection, track indexing, and disc-text decoding are deliberately out of
// scope for this repository; only the interface a conforming implementation
// must satisfy lives here. A deterministic reference implementation for
// tests lives in the fixture subpackage.
package discreader

import "fmt"

// Area is one of the two channel configurations a SACD may carry.
type Area int

const (
	AreaStereo Area = iota
	AreaMultiChannel
)

func (a Area) String() string {
	switch a {
	case AreaStereo:
		return "Stereo"
	case AreaMultiChannel:
		return "Multi-channel"
	default:
		return fmt.Sprintf("Area(%d)", int(a))
	}
}

// FrameFormat identifies how an area's per-track frame data is encoded.
type FrameFormat int

const (
	RawDSD FrameFormat = iota
	DST
)

// TextKind selects which piece of disc/track text a reader should return.
type TextKind int

const (
	TextTitle TextKind = iota
	TextArtist
	TextAlbum
)

// TextChannel selects which localized text channel to read; 1 is the
// disc's primary (usually romanized) text channel.
type TextChannel int

// Reader is the capability the core consumes to read one opened SACD ISO.
// Implementations are not required to be safe for concurrent use except
// where noted: the core opens one private Reader per virtual file so that
// two tracks may be read concurrently without cross-file coordination
// (spec.md §5).
type Reader interface {
	// AvailableAreas reports which audio areas the disc exposes.
	AvailableAreas() []Area

	// SelectArea selects the working area for all subsequent calls.
	// spec.md's open question: whether repeated calls after the first
	// are safe is undocumented upstream; this repository's Virtual File
	// calls SelectArea exactly once on its private reader, at open, and
	// the MT reader goroutine reads through that same reader without
	// selecting again (see DESIGN.md). vfscontext's enumeration reader
	// selects each available area in turn.
	SelectArea(a Area) error

	// TrackCount reports the number of tracks in the selected area.
	TrackCount() (uint8, error)

	// TrackFrameLength reports the number of SACD frames the given
	// 1-based track spans.
	TrackFrameLength(track uint8) (uint32, error)

	// TrackIndexStart reports the starting SACD frame number of the
	// given 1-based track on the given text channel.
	TrackIndexStart(track uint8, textChannel TextChannel) (uint32, error)

	// GetSoundData reads exactly one frame (compressed or raw,
	// depending on AreaFrameFormat) at frameNumber into buf, which
	// must be large enough for the area's maximum frame size. Returns
	// the number of bytes written.
	GetSoundData(buf []byte, frameNumber uint32) (int, error)

	// AreaChannelCount, AreaSampleFrequency, AreaFrameFormat describe
	// the currently selected area.
	AreaChannelCount() (uint16, error)
	AreaSampleFrequency() (uint32, error)
	AreaFrameFormat() (FrameFormat, error)

	// GetTrackText and GetAlbumText feed the ID3 Renderer (§6.3); the
	// core itself never interprets their contents.
	GetTrackText(track uint8, channel TextChannel, kind TextKind) (string, error)
	GetAlbumText(channel TextChannel, kind TextKind) (string, error)

	// Close releases any resources (file handles, mmaps) the reader holds.
	Close() error
}

// Factory opens a fresh, independent Reader instance against the same ISO
// path. vfscontext uses one Factory-produced Reader for its own area/track
// enumeration; vfile.Open acquires a second, private instance per open file.
type Factory func(isoPath string) (Reader, error)
