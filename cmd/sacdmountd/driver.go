package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sacdfs/sacdfs/discreader"
	"github.com/sacdfs/sacdfs/overlay"
	"github.com/sacdfs/sacdfs/vfile"
)

// Entry is one directory listing or Lookup result in the synthetic tree a
// Driver exposes (spec.md §6.7's path convention).
type Entry struct {
	Name  string
	IsDir bool
	Size  uint64
}

// Driver is the minimal surface an external FUSE/WinFSP binding (out of
// scope per spec.md §1) would implement against: path resolution, directory
// listing, and positioned read/write over the synthesized tree
//
//	/{display_name}/{area_dir}/{NN}. {title}.dsf
//
// This repository ships one in-process implementation (below) used by its
// own smoke test; a real driver plugs a FUSE or WinFSP
// callback layer in front of the same overlay.Mounts/vfscontext/vfile stack.
type Driver interface {
	Lookup(virtualPath string) (Entry, error)
	ReadDir(virtualPath string) ([]Entry, error)
	ReadAt(virtualPath string, p []byte, off int64) (int, error)
	WriteAt(virtualPath string, p []byte, off int64) (int, error)
	Flush(virtualPath string) error
	Release(virtualPath string) error
}

// openHandle is one resolved virtual file: its VFS mount reference, its
// vfile.File (lazily opened on first ReadAt/WriteAt), and any buffered
// but unflushed ID3 write.
type openHandle struct {
	mu    sync.Mutex
	mt    *overlay.Mount
	area  discreader.Area
	track uint8

	f  *vfile.File
	wh *overlay.WriteHandle
}

// InProcessDriver is a trivial, non-caching Driver backed directly by this
// repository's overlay/vfscontext/vfile stack, scanning a single flat host
// directory for ".iso" files (spec.md §4.7's "host directories containing
// .iso files" convention; recursive host trees are a straightforward
// extension left out of this minimal surface).
type InProcessDriver struct {
	hostDir string
	mounts  *overlay.Mounts
	overlay *overlay.Overlay

	mu      sync.Mutex
	handles map[string]*openHandle // virtual path -> open handle
}

// NewInProcessDriver creates a driver rooted at hostDir.
func NewInProcessDriver(hostDir string, mounts *overlay.Mounts) *InProcessDriver {
	return &InProcessDriver{
		hostDir: hostDir,
		mounts:  mounts,
		overlay: overlay.New(mounts),
		handles: make(map[string]*openHandle),
	}
}

// isoFiles lists the ".iso" files directly under hostDir, sorted by name.
func (d *InProcessDriver) isoFiles() ([]string, error) {
	entries, err := os.ReadDir(d.hostDir)
	if err != nil {
		return nil, fmt.Errorf("sacdmountd: read host dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".iso") {
			continue
		}
		if overlay.IsBlockDevice(filepath.Join(d.hostDir, e.Name())) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// splitVirtualPath splits a virtual path into its up-to-three segments:
// display name, area directory, and track filename. Any trailing segments
// may be empty, meaning "this level of the tree".
func splitVirtualPath(virtualPath string) (displayName, areaDir, trackFile string) {
	parts := strings.Split(strings.Trim(virtualPath, "/"), "/")
	if len(parts) > 0 {
		displayName = parts[0]
	}
	if len(parts) > 1 {
		areaDir = parts[1]
	}
	if len(parts) > 2 {
		trackFile = parts[2]
	}
	return
}

// acquireMountByDisplayName finds the ISO whose resolved display name
// matches name and acquires its mount. The host directory is rescanned on
// every call: this driver trades a stat()-per-lookup cost for always
// reflecting the current directory contents, which matters more than
// lookup latency for a filesystem backed by occasional human browsing.
func (d *InProcessDriver) acquireMountByDisplayName(name string) (*overlay.Mount, error) {
	files, err := d.isoFiles()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		isoPath := filepath.Join(d.hostDir, f)
		mt, err := d.mounts.Acquire(isoPath, d.hostDir)
		if err != nil {
			continue
		}
		if mt.DisplayName() == name {
			return mt, nil
		}
		d.mounts.Release(mt)
	}
	return nil, fmt.Errorf("sacdmountd: %q: %w", name, os.ErrNotExist)
}

// ReadDir implements Driver.
func (d *InProcessDriver) ReadDir(virtualPath string) ([]Entry, error) {
	displayName, areaDir, trackFile := splitVirtualPath(virtualPath)
	if trackFile != "" {
		return nil, fmt.Errorf("sacdmountd: %q is not a directory", virtualPath)
	}

	if displayName == "" {
		files, err := d.isoFiles()
		if err != nil {
			return nil, err
		}
		var out []Entry
		for _, f := range files {
			mt, err := d.mounts.Acquire(filepath.Join(d.hostDir, f), d.hostDir)
			if err != nil {
				continue
			}
			out = append(out, Entry{Name: mt.DisplayName(), IsDir: true})
			d.mounts.Release(mt)
		}
		return out, nil
	}

	mt, err := d.acquireMountByDisplayName(displayName)
	if err != nil {
		return nil, err
	}
	defer d.mounts.Release(mt)
	ctx := mt.Context()

	if areaDir == "" {
		var out []Entry
		for _, a := range ctx.VisibleAreas() {
			out = append(out, Entry{Name: a.String(), IsDir: true})
		}
		return out, nil
	}

	area, err := parseAreaDirName(areaDir)
	if err != nil {
		return nil, err
	}
	names, err := ctx.TrackFileNames(area)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(names))
	for i, n := range names {
		out[i] = Entry{Name: n}
	}
	return out, nil
}

// Lookup implements Driver.
func (d *InProcessDriver) Lookup(virtualPath string) (Entry, error) {
	displayName, areaDir, trackFile := splitVirtualPath(virtualPath)
	if displayName == "" {
		return Entry{IsDir: true}, nil
	}
	mt, err := d.acquireMountByDisplayName(displayName)
	if err != nil {
		return Entry{}, err
	}
	if areaDir == "" {
		d.mounts.Release(mt)
		return Entry{Name: displayName, IsDir: true}, nil
	}
	area, err := parseAreaDirName(areaDir)
	if err != nil {
		d.mounts.Release(mt)
		return Entry{}, err
	}
	if trackFile == "" {
		d.mounts.Release(mt)
		return Entry{Name: areaDir, IsDir: true}, nil
	}

	// openFor takes ownership of this mount reference for the handle's
	// lifetime; it is released exactly once, by a later Driver.Release.
	h, err := d.openFor(virtualPath, mt, area, trackFile)
	if err != nil {
		d.mounts.Release(mt)
		return Entry{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return Entry{Name: trackFile, Size: h.f.Info().TotalSize}, nil
}

// openFor resolves or creates the open handle for virtualPath, taking
// ownership of mt's reference (released later by Driver.Release).
func (d *InProcessDriver) openFor(virtualPath string, mt *overlay.Mount, area discreader.Area, trackFile string) (*openHandle, error) {
	d.mu.Lock()
	h, ok := d.handles[virtualPath]
	if !ok {
		_, track, err := overlay.ParseVirtualPath("/" + area.String() + "/" + trackFile)
		if err != nil {
			d.mu.Unlock()
			return nil, err
		}
		h = &openHandle{mt: mt, area: area, track: track}
		d.handles[virtualPath] = h
	} else {
		// Already open: this call's mount reference is redundant.
		d.mu.Unlock()
		d.mounts.Release(mt)
		h.mu.Lock()
		defer h.mu.Unlock()
		return h, nil
	}
	d.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.f == nil {
		f, err := h.mt.Context().OpenTrack(h.area, h.track)
		if err != nil {
			return nil, err
		}
		h.f = f
		h.wh = d.overlay.NewWriteHandle(h.mt, virtualPath, f.Info().MetadataOff)
	}
	return h, nil
}

func parseAreaDirName(areaDir string) (discreader.Area, error) {
	switch areaDir {
	case discreader.AreaStereo.String():
		return discreader.AreaStereo, nil
	case discreader.AreaMultiChannel.String():
		return discreader.AreaMultiChannel, nil
	default:
		return 0, fmt.Errorf("sacdmountd: unknown area directory %q", areaDir)
	}
}

// ReadAt implements Driver.
func (d *InProcessDriver) ReadAt(virtualPath string, p []byte, off int64) (int, error) {
	d.mu.Lock()
	h, ok := d.handles[virtualPath]
	d.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("sacdmountd: %q not open", virtualPath)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	total := 0
	for total < len(p) {
		n, err := h.f.Read(p[total:])
		total += n
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// WriteAt implements Driver. Only the metadata region is writable
// (spec.md §4.7); writes wholly before it are accepted with no effect.
func (d *InProcessDriver) WriteAt(virtualPath string, p []byte, off int64) (int, error) {
	d.mu.Lock()
	h, ok := d.handles[virtualPath]
	d.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("sacdmountd: %q not open", virtualPath)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.wh.Write(uint64(off), p)
	return len(p), nil
}

// Flush implements Driver: persists any buffered ID3 write to the sidecar.
func (d *InProcessDriver) Flush(virtualPath string) error {
	d.mu.Lock()
	h, ok := d.handles[virtualPath]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.wh == nil {
		return nil
	}
	return h.wh.Flush()
}

// Release implements Driver: closes the virtual file and drops the mount
// reference acquired when it was opened.
func (d *InProcessDriver) Release(virtualPath string) error {
	d.mu.Lock()
	h, ok := d.handles[virtualPath]
	if ok {
		delete(d.handles, virtualPath)
	}
	d.mu.Unlock()
	if !ok {
		return nil
	}

	h.mu.Lock()
	var err error
	if h.f != nil {
		err = h.f.Close()
	}
	h.mu.Unlock()
	d.mounts.Release(h.mt)
	return err
}
