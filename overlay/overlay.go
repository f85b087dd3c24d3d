package overlay

import (
	"fmt"
	"path"
	"strings"

	"github.com/sacdfs/sacdfs/discreader"
	"github.com/sacdfs/sacdfs/sacderr"
)

// Overlay is the ID3 write-routing façade over a Mounts table (spec.md
// §4.7's "ID3 write routing"). It has no state of its own beyond the
// mount table: per-handle write buffering lives in WriteHandle.
type Overlay struct {
	Mounts *Mounts
}

// New wraps mounts in an Overlay.
func New(mounts *Mounts) *Overlay {
	return &Overlay{Mounts: mounts}
}

// ParseVirtualPath recovers (area, track_num) from a synthesized virtual
// path of the form "/{album}/{area_dir}/{NN}. {title}.dsf" (spec.md §6.7),
// by checking for the "Multi-channel" area directory segment and
// scanf-ing the leading digits of the filename, per spec.md §4.7.
func ParseVirtualPath(virtualPath string) (discreader.Area, uint8, error) {
	area := discreader.AreaStereo
	if strings.Contains(virtualPath, discreader.AreaMultiChannel.String()) {
		area = discreader.AreaMultiChannel
	}

	base := path.Base(virtualPath)
	var trackNum int
	if _, err := fmt.Sscanf(base, "%d.", &trackNum); err != nil {
		return area, 0, sacderr.Wrap(sacderr.InvalidParameter, fmt.Errorf("overlay: cannot parse track number from %q: %w", base, err))
	}
	if trackNum <= 0 || trackNum > 255 {
		return area, 0, sacderr.Wrap(sacderr.InvalidParameter, fmt.Errorf("overlay: track number %d out of range in %q", trackNum, base))
	}
	return area, uint8(trackNum), nil
}

// WriteHandle buffers metadata-region writes for one open virtual file.
// Writes are not pushed to the overlay store until Flush (spec.md §4.7:
// "buffered in the file handle, not pushed to the overlay store until
// flush"). Writes entirely before metadataOffset are silently accepted
// with no effect, matching vfile's own read-side region split.
type WriteHandle struct {
	mount          *Mount
	virtualPath    string
	metadataOffset uint64
	buf            []byte
	dirty          bool
}

// NewWriteHandle creates a write handle for virtualPath against mt's
// overlay store. metadataOffset is the file's Info().MetadataOff.
func (o *Overlay) NewWriteHandle(mt *Mount, virtualPath string, metadataOffset uint64) *WriteHandle {
	return &WriteHandle{mount: mt, virtualPath: virtualPath, metadataOffset: metadataOffset}
}

// Write buffers data at absolute file offset. The portion, if any, that
// falls before metadataOffset is dropped without effect.
func (w *WriteHandle) Write(offset uint64, data []byte) {
	end := offset + uint64(len(data))
	if end <= w.metadataOffset {
		return
	}

	skip := uint64(0)
	if offset < w.metadataOffset {
		skip = w.metadataOffset - offset
		offset = w.metadataOffset
	}
	relOffset := int(offset - w.metadataOffset)
	payload := data[skip:]

	needed := relOffset + len(payload)
	if needed > len(w.buf) {
		grown := make([]byte, needed)
		copy(grown, w.buf)
		w.buf = grown
	}
	copy(w.buf[relOffset:], payload)
	w.dirty = true
}

// Flush parses the handle's virtual path to recover (area, track_num),
// pushes the buffered bytes into the overlay store, and persists the XML
// sidecar (spec.md §4.7). A handle with nothing buffered is a no-op.
func (w *WriteHandle) Flush() error {
	if !w.dirty {
		return nil
	}
	area, track, err := ParseVirtualPath(w.virtualPath)
	if err != nil {
		return err
	}

	store := w.mount.Context().OverlayStore()
	if err := store.SetOverlay(area, track, w.buf); err != nil {
		return err
	}
	if err := store.Save(); err != nil {
		return err
	}
	w.dirty = false
	return nil
}
