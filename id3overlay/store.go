// Package id3overlay implements the ID3 Overlay Store (spec.md §4.3) and
// its XML sidecar persistence (spec.md §6.5).
package id3overlay

import (
	"fmt"
	"sync"

	"github.com/sacdfs/sacdfs/discreader"
	"github.com/sacdfs/sacdfs/id3render"
	"github.com/sacdfs/sacdfs/sacderr"
)

// entry is one (area, track) cache slot.
type entry struct {
	data    []byte
	valid   bool
	dirty   bool
	fromXML bool
}

// Store is a per-ISO, per-(area, track) cache of ID3v2 tag bytes, backed by
// an optional XML sidecar file next to the ISO.
//
// A FUSE/WinFSP driver normally serializes callbacks onto the owning
// mount, so the cache itself needs no locking on that path; this
// implementation nonetheless protects it with a mutex so that a
// background idle-sweeper (overlay.Mounts) may safely call Save
// concurrently with reads.
type Store struct {
	isoPath  string
	renderer id3render.Renderer

	mu    sync.Mutex
	areas map[discreader.Area][]entry
}

// New constructs an empty Store for the ISO at isoPath. Init must be called
// once per area before Get/SetOverlay/Clear are used for that area.
func New(isoPath string, renderer id3render.Renderer) *Store {
	return &Store{
		isoPath:  isoPath,
		renderer: renderer,
		areas:    make(map[discreader.Area][]entry),
	}
}

// Init allocates the cache array for area, sized to trackCount, per
// spec.md §4.6 open-sequence step 3. Calling Init again for an
// already-initialized area is a no-op if the size is unchanged.
func (s *Store) Init(area discreader.Area, trackCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.areas[area]; ok && len(existing) == trackCount {
		return
	}
	s.areas[area] = make([]entry, trackCount)
}

func (s *Store) slot(area discreader.Area, track uint8) (*[]entry, int, error) {
	arr, ok := s.areas[area]
	if !ok {
		return nil, 0, fmt.Errorf("id3overlay: area %s not initialized", area)
	}
	idx := int(track) - 1
	if idx < 0 || idx >= len(arr) {
		return nil, 0, fmt.Errorf("id3overlay: track %d out of range for area %s", track, area)
	}
	return &arr, idx, nil
}

// Get returns a copy of the cached tag bytes for (area, track), generating
// them via the renderer on first access. reader must already have area
// selected (the caller — vfscontext or vfile — owns reader selection per
// spec.md's open question on SelectArea call discipline).
func (s *Store) Get(reader discreader.Reader, area discreader.Area, track uint8) ([]byte, error) {
	s.mu.Lock()
	arrPtr, idx, err := s.slot(area, track)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if (*arrPtr)[idx].valid {
		out := make([]byte, len((*arrPtr)[idx].data))
		copy(out, (*arrPtr)[idx].data)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	rendered, err := s.renderer.Render(reader, track)
	if err != nil {
		return nil, sacderr.Wrap(sacderr.Format, fmt.Errorf("id3overlay: render track %d: %w", track, err))
	}
	if len(rendered) == 0 {
		return nil, sacderr.Wrap(sacderr.Format, fmt.Errorf("id3overlay: renderer produced zero bytes for track %d", track))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	arrPtr, idx, err = s.slot(area, track)
	if err != nil {
		return nil, err
	}
	(*arrPtr)[idx] = entry{data: rendered, valid: true, dirty: false, fromXML: false}
	out := make([]byte, len(rendered))
	copy(out, rendered)
	return out, nil
}

// SetOverlay replaces the cached bytes for (area, track) with a copy of
// data, marking the entry dirty so a later Save persists it.
func (s *Store) SetOverlay(area discreader.Area, track uint8, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	arrPtr, idx, err := s.slot(area, track)
	if err != nil {
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	(*arrPtr)[idx] = entry{data: cp, valid: true, dirty: true, fromXML: false}
	return nil
}

// Clear invalidates the cached entry for (area, track); the next Get
// re-invokes the renderer.
func (s *Store) Clear(area discreader.Area, track uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	arrPtr, idx, err := s.slot(area, track)
	if err != nil {
		return err
	}
	(*arrPtr)[idx] = entry{dirty: true}
	return nil
}

// HasUnsavedChanges reports whether any cached entry is dirty.
func (s *Store) HasUnsavedChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, arr := range s.areas {
		for _, e := range arr {
			if e.dirty {
				return true
			}
		}
	}
	return false
}
