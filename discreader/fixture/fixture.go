// Package fixture is a deterministic, in-memory reference implementation of
// discreader.Reader, used by tests, the benchmark CLI and sacdmountd's
// -demo mode. It performs
// no real ISO9660/SACD sector parsing (that is out of scope per spec.md §1);
// it instead synthesizes frame bytes procedurally so the virtual DSF
// synthesizer and MT pipeline can be exercised end to end without a real
// SACD ISO on disk.
package fixture

import (
	"fmt"

	"github.com/sacdfs/sacdfs/discreader"
	dstfixture "github.com/sacdfs/sacdfs/dstdecoder/fixture"
)

// SACDFrameBytes is the per-channel SACD frame size (spec.md §3).
const SACDFrameBytes = 4704

// Track describes one track within an AreaSpec.
type Track struct {
	StartFrame uint32
	EndFrame   uint32 // exclusive
	Title      string
}

// AreaSpec describes one audio area of a fixture disc.
type AreaSpec struct {
	Channels   uint16
	SampleRate uint32
	Format     discreader.FrameFormat
	Tracks     []Track
}

// Disc is a fully specified, deterministic fixture SACD.
type Disc struct {
	AlbumTitle  string
	AlbumArtist string
	Areas       map[discreader.Area]AreaSpec
}

// NewFactory returns a discreader.Factory that always opens independent
// reader instances against the same Disc (the isoPath argument is ignored).
func NewFactory(disc *Disc) discreader.Factory {
	return func(string) (discreader.Reader, error) {
		return &reader{disc: disc}, nil
	}
}

type reader struct {
	disc     *Disc
	selected discreader.Area
	hasArea  bool
	closed   bool
}

func (r *reader) AvailableAreas() []discreader.Area {
	var areas []discreader.Area
	for _, a := range []discreader.Area{discreader.AreaStereo, discreader.AreaMultiChannel} {
		if _, ok := r.disc.Areas[a]; ok {
			areas = append(areas, a)
		}
	}
	return areas
}

func (r *reader) SelectArea(a discreader.Area) error {
	if _, ok := r.disc.Areas[a]; !ok {
		return fmt.Errorf("fixture: area %s not present on disc", a)
	}
	r.selected = a
	r.hasArea = true
	return nil
}

func (r *reader) area() (AreaSpec, error) {
	if !r.hasArea {
		return AreaSpec{}, fmt.Errorf("fixture: no area selected")
	}
	return r.disc.Areas[r.selected], nil
}

func (r *reader) TrackCount() (uint8, error) {
	a, err := r.area()
	if err != nil {
		return 0, err
	}
	return uint8(len(a.Tracks)), nil
}

func (r *reader) track(track uint8) (Track, error) {
	a, err := r.area()
	if err != nil {
		return Track{}, err
	}
	if track == 0 || int(track) > len(a.Tracks) {
		return Track{}, fmt.Errorf("fixture: track %d out of range (1..%d)", track, len(a.Tracks))
	}
	return a.Tracks[track-1], nil
}

func (r *reader) TrackFrameLength(track uint8) (uint32, error) {
	t, err := r.track(track)
	if err != nil {
		return 0, err
	}
	return t.EndFrame - t.StartFrame, nil
}

func (r *reader) TrackIndexStart(track uint8, _ discreader.TextChannel) (uint32, error) {
	t, err := r.track(track)
	if err != nil {
		return 0, err
	}
	return t.StartFrame, nil
}

// GetSoundData synthesizes a deterministic frame at frameNumber: raw DSD
// bytes for RawDSD areas, or the fixture "DST" encoding (dstdecoder/fixture)
// for DST areas. The frame content is a pure function of (area, channels,
// frameNumber), so repeated or out-of-order reads of the same frame are
// byte-identical, matching a real disc reader's behavior.
func (r *reader) GetSoundData(buf []byte, frameNumber uint32) (int, error) {
	a, err := r.area()
	if err != nil {
		return 0, err
	}
	n := int(a.Channels) * SACDFrameBytes
	if len(buf) < n {
		return 0, fmt.Errorf("fixture: buffer too small: have %d need %d", len(buf), n)
	}
	raw := synthesizeFrame(int(a.Channels), frameNumber)
	if a.Format == discreader.DST {
		copy(buf, dstfixture.Encode(raw))
	} else {
		copy(buf, raw)
	}
	return n, nil
}

// synthesizeFrame builds one byte-interleaved SACD frame: for each of the F
// per-channel byte positions, C bytes in channel order.
func synthesizeFrame(channels int, frameNumber uint32) []byte {
	out := make([]byte, channels*SACDFrameBytes)
	idx := 0
	for pos := 0; pos < SACDFrameBytes; pos++ {
		for ch := 0; ch < channels; ch++ {
			out[idx] = sampleByte(frameNumber, ch, pos)
			idx++
		}
	}
	return out
}

func sampleByte(frame uint32, ch, pos int) byte {
	h := frame*2654435761 + uint32(ch)*97 + uint32(pos)*131 + 1
	h ^= h >> 13
	h *= 0x5bd1e995
	h ^= h >> 15
	return byte(h)
}

func (r *reader) AreaChannelCount() (uint16, error) {
	a, err := r.area()
	if err != nil {
		return 0, err
	}
	return a.Channels, nil
}

func (r *reader) AreaSampleFrequency() (uint32, error) {
	a, err := r.area()
	if err != nil {
		return 0, err
	}
	return a.SampleRate, nil
}

func (r *reader) AreaFrameFormat() (discreader.FrameFormat, error) {
	a, err := r.area()
	if err != nil {
		return 0, err
	}
	return a.Format, nil
}

func (r *reader) GetTrackText(track uint8, _ discreader.TextChannel, kind discreader.TextKind) (string, error) {
	t, err := r.track(track)
	if err != nil {
		return "", err
	}
	switch kind {
	case discreader.TextTitle:
		if t.Title != "" {
			return t.Title, nil
		}
		return fmt.Sprintf("Track %02d", track), nil
	case discreader.TextArtist:
		return r.disc.AlbumArtist, nil
	default:
		return "", nil
	}
}

func (r *reader) GetAlbumText(_ discreader.TextChannel, kind discreader.TextKind) (string, error) {
	switch kind {
	case discreader.TextTitle:
		return r.disc.AlbumTitle, nil
	case discreader.TextArtist:
		return r.disc.AlbumArtist, nil
	default:
		return "", nil
	}
}

func (r *reader) Close() error {
	r.closed = true
	return nil
}

// SynthesizeFrameForTest exposes synthesizeFrame to other packages' tests
// that need to predict fixture output without depending on internals.
func SynthesizeFrameForTest(channels int, frameNumber uint32) []byte {
	return synthesizeFrame(channels, frameNumber)
}
