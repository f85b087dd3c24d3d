// Package vfscontext implements the VFS Context (spec.md §4.6): the root
// object for one opened SACD ISO, owning area/track enumeration, the ID3
// overlay store, and area visibility policy.
package vfscontext

import (
	"fmt"

	"github.com/sacdfs/sacdfs/discreader"
	"github.com/sacdfs/sacdfs/dstdecoder"
	"github.com/sacdfs/sacdfs/id3overlay"
	"github.com/sacdfs/sacdfs/id3render"
	"github.com/sacdfs/sacdfs/mtpipeline"
	"github.com/sacdfs/sacdfs/sacderr"
	"github.com/sacdfs/sacdfs/vfile"
)

type trackInfo struct {
	title string
}

type areaInfo struct {
	channels   uint16
	sampleRate uint32
	format     discreader.FrameFormat
	tracks     []trackInfo // index 0 => track 1
}

// Context is one opened ISO's root object. Its enumeration reader (used
// only to discover the album name, areas, and track titles) is closed
// before Open returns: all later ID3 rendering and audio reads happen
// through each vfile.File's own private reader (spec.md §5 — two tracks
// read concurrently share no state), so holding the enumeration reader
// open for the Context's whole lifetime would serve no purpose here.
type Context struct {
	isoPath        string
	factory        discreader.Factory
	decoderFactory dstdecoder.Factory
	pool           *mtpipeline.Pool

	albumName string
	areas     map[discreader.Area]areaInfo
	visible   map[discreader.Area]bool

	overlayStore *id3overlay.Store
	closed       bool
}

// Open performs the VFS Context open sequence (spec.md §4.6): instantiate
// and enumerate the disc, sanitize the album name, cache per-area track
// metadata, and absorb any pre-existing XML sidecar. pool may be nil to
// force single-threaded DST decoding for every track this context opens.
func Open(factory discreader.Factory, isoPath string, renderer id3render.Renderer, decoderFactory dstdecoder.Factory, pool *mtpipeline.Pool) (ctx *Context, err error) {
	reader, err := factory(isoPath)
	if err != nil {
		return nil, sacderr.Wrap(sacderr.IO, fmt.Errorf("vfscontext: open disc reader: %w", err))
	}
	defer reader.Close()

	albumTitle, err := reader.GetAlbumText(1, discreader.TextTitle)
	if err != nil {
		return nil, sacderr.Wrap(sacderr.IO, fmt.Errorf("vfscontext: album text: %w", err))
	}
	albumName := sanitizeName(albumTitle)
	if albumName == "" {
		albumName = "Untitled Album"
	}

	overlayStore := id3overlay.New(isoPath, renderer)
	areas := make(map[discreader.Area]areaInfo)

	for _, area := range reader.AvailableAreas() {
		if err := reader.SelectArea(area); err != nil {
			return nil, sacderr.Wrap(sacderr.InvalidParameter, fmt.Errorf("vfscontext: select area %s: %w", area, err))
		}
		trackCount, err := reader.TrackCount()
		if err != nil {
			return nil, sacderr.Wrap(sacderr.IO, fmt.Errorf("vfscontext: track count: %w", err))
		}
		channels, err := reader.AreaChannelCount()
		if err != nil {
			return nil, sacderr.Wrap(sacderr.IO, fmt.Errorf("vfscontext: area channel count: %w", err))
		}
		sampleRate, err := reader.AreaSampleFrequency()
		if err != nil {
			return nil, sacderr.Wrap(sacderr.IO, fmt.Errorf("vfscontext: area sample frequency: %w", err))
		}
		format, err := reader.AreaFrameFormat()
		if err != nil {
			return nil, sacderr.Wrap(sacderr.IO, fmt.Errorf("vfscontext: area frame format: %w", err))
		}

		tracks := make([]trackInfo, trackCount)
		for tr := uint8(1); tr <= trackCount; tr++ {
			title, err := reader.GetTrackText(tr, 1, discreader.TextTitle)
			if err != nil || title == "" {
				title = fmt.Sprintf("Track %02d", tr)
			}
			tracks[tr-1] = trackInfo{title: sanitizeName(title)}
		}

		areas[area] = areaInfo{channels: channels, sampleRate: sampleRate, format: format, tracks: tracks}
		overlayStore.Init(area, int(trackCount))
	}

	if err := overlayStore.Load(); err != nil {
		return nil, sacderr.Wrap(sacderr.Format, fmt.Errorf("vfscontext: load sidecar: %w", err))
	}

	return &Context{
		isoPath:        isoPath,
		factory:        factory,
		decoderFactory: decoderFactory,
		pool:           pool,
		albumName:      albumName,
		areas:          areas,
		visible:        map[discreader.Area]bool{discreader.AreaStereo: true, discreader.AreaMultiChannel: true},
		overlayStore:   overlayStore,
	}, nil
}

// AlbumName returns the sanitized album directory name.
func (c *Context) AlbumName() string { return c.albumName }

// OverlayStore exposes the ID3 overlay store for the overlay layer's
// flush-all and write-routing responsibilities (spec.md §4.7).
func (c *Context) OverlayStore() *id3overlay.Store { return c.overlayStore }

// SetAreaVisibility sets the configurable visibility flag for area
// (spec.md §4.6 "Policies").
func (c *Context) SetAreaVisibility(area discreader.Area, visible bool) {
	c.visible[area] = visible
}

// ShouldShowArea implements spec.md §4.6's visibility rule: an
// unavailable area never shows; a visible area always shows; a hidden
// area still shows if the other area is unavailable, so a disc with only
// multi-channel content never appears empty.
func (c *Context) ShouldShowArea(area discreader.Area) bool {
	if _, ok := c.areas[area]; !ok {
		return false
	}
	if c.visible[area] {
		return true
	}
	if _, ok := c.areas[otherArea(area)]; !ok {
		return true
	}
	return false
}

func otherArea(a discreader.Area) discreader.Area {
	if a == discreader.AreaStereo {
		return discreader.AreaMultiChannel
	}
	return discreader.AreaStereo
}

// OpenTrack opens a Virtual File for (area, track) through a fresh private
// disc reader, per spec.md §5's per-file ownership model.
func (c *Context) OpenTrack(area discreader.Area, track uint8) (*vfile.File, error) {
	if _, ok := c.areas[area]; !ok {
		return nil, sacderr.Wrap(sacderr.InvalidParameter, fmt.Errorf("vfscontext: area %s not present", area))
	}
	return vfile.Open(c.factory, c.isoPath, area, track, c.overlayStore, c.decoderFactory, c.pool)
}

// Close marks the context closed. Idempotent. The per-file resources
// (disc readers, MT pipelines) are owned and released by the vfile.Files
// themselves, not by Context.
func (c *Context) Close() error {
	c.closed = true
	return nil
}
