// Package overlay implements the minimal in-scope surface of the Overlay
// Layer (spec.md §4.7): a process-local ISO mount table, idle-timeout
// eviction with flush-on-teardown, display-name collision resolution, and
// ID3 write buffering/routing for the metadata region of virtual files.
package overlay

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sacdfs/sacdfs/discreader"
	"github.com/sacdfs/sacdfs/dstdecoder"
	"github.com/sacdfs/sacdfs/id3render"
	"github.com/sacdfs/sacdfs/mtpipeline"
	"github.com/sacdfs/sacdfs/vfscontext"
)

// filenameMax is the filesystem filename length this layer budgets
// against when disambiguating collisions — a conservative cross-platform
// bound safe for both a POSIX FUSE mount and a WinFSP (NTFS, 255 UTF-16
// code unit) mount.
const filenameMax = 255

// Mount is one ISO's reference-counted entry in the mount table.
type Mount struct {
	mu          sync.Mutex
	isoPath     string
	parentPath  string
	displayName string
	ctx         *vfscontext.Context
	refs        int
	lastAccess  time.Time
}

// DisplayName returns the collision-resolved name this ISO is exposed as
// in its parent host directory.
func (m *Mount) DisplayName() string { return m.displayName }

// Context returns the mount's VFS context. Valid only while the caller
// holds a reference acquired via Mounts.Acquire.
func (m *Mount) Context() *vfscontext.Context { return m.ctx }

// Mounts is the process-local ISO mount table (spec.md §4.7). A single
// mutex protects the table structure; each mount's own mutex guards its
// lazy open/close against concurrent path lookups for the same ISO.
type Mounts struct {
	factory        discreader.Factory
	decoderFactory dstdecoder.Factory
	renderer       id3render.Renderer
	pool           *mtpipeline.Pool

	mu    sync.Mutex
	table *lru.LRU[string, *Mount]

	namesMu       sync.Mutex
	namesByParent map[string]map[string]string // parentPath -> isoPath -> displayName
	takenByParent map[string]map[string]bool   // parentPath -> displayName -> true
}

// NewMounts creates a mount table. maxMounts bounds concurrently cached
// ISOs; idleTimeout is how long a mount stays in the table after it was
// added. Acquire does not extend that time, and expiry does not wait for
// the mount's reference count to reach zero (see onEvict).
func NewMounts(factory discreader.Factory, decoderFactory dstdecoder.Factory, renderer id3render.Renderer, pool *mtpipeline.Pool, maxMounts int, idleTimeout time.Duration) *Mounts {
	m := &Mounts{
		factory:        factory,
		decoderFactory: decoderFactory,
		renderer:       renderer,
		pool:           pool,
		namesByParent:  make(map[string]map[string]string),
		takenByParent:  make(map[string]map[string]bool),
	}
	m.table = lru.NewLRU[string, *Mount](maxMounts, m.onEvict, idleTimeout)
	return m
}

// onEvict fires when a mount ages out of the table. Its unsaved ID3
// changes are flushed first (spec.md §4.7 "Flush-all"). Because this
// repository's Context.Close is a lightweight marker — the context's
// enumeration disc reader is already released at vfscontext.Open, and
// every open vfile.File holds its own independently-owned reader — a
// mount evicted here while a caller still holds a *mount reference from
// Acquire causes no use-after-free: the referenced mount and its overlay
// store simply stay reachable (and usable) via that reference until the
// caller's own Release, even though the table no longer indexes it.
func (m *Mounts) onEvict(_ string, mt *Mount) {
	flushMount(mt)
	mt.mu.Lock()
	if mt.ctx != nil {
		mt.ctx.Close()
	}
	mt.mu.Unlock()
}

// Acquire returns the mount for isoPath, opening it lazily on first use.
// parentPath is the host directory containing the ISO, used to resolve
// display-name collisions. The caller must call Release(mt) when done.
func (m *Mounts) Acquire(isoPath, parentPath string) (*Mount, error) {
	m.mu.Lock()
	mt, ok := m.table.Get(isoPath)
	if !ok {
		mt = &Mount{isoPath: isoPath, parentPath: parentPath}
		m.table.Add(isoPath, mt)
	}
	m.mu.Unlock()

	mt.mu.Lock()
	if mt.ctx == nil {
		ctx, err := vfscontext.Open(m.factory, isoPath, m.renderer, m.decoderFactory, m.pool)
		if err != nil {
			mt.mu.Unlock()
			m.forgetFailedMount(isoPath, mt)
			return nil, fmt.Errorf("overlay: open mount %s: %w", isoPath, err)
		}
		mt.ctx = ctx
		mt.displayName = m.resolveDisplayName(parentPath, isoPath)
	}
	mt.refs++
	mt.lastAccess = time.Now()
	mt.mu.Unlock()
	return mt, nil
}

// forgetFailedMount drops mt from the table after a failed open. It must
// run with mt.mu already unlocked: table.Remove synchronously invokes
// onEvict, which locks mt.mu itself, and sync.Mutex is not reentrant —
// calling Remove while still holding mt.mu self-deadlocks the caller.
// Removal only proceeds if mt is still the table's current entry for
// isoPath and still unopened, since a concurrent Acquire may have already
// retried on the same *Mount and succeeded.
func (m *Mounts) forgetFailedMount(isoPath string, mt *Mount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.table.Peek(isoPath)
	if !ok || cur != mt {
		return
	}
	mt.mu.Lock()
	stillFailed := mt.ctx == nil
	mt.mu.Unlock()
	if stillFailed {
		m.table.Remove(isoPath)
	}
}

// Release drops one reference acquired via Acquire.
func (m *Mounts) Release(mt *Mount) {
	mt.mu.Lock()
	if mt.refs > 0 {
		mt.refs--
	}
	mt.mu.Unlock()
}

// FlushAll saves every mount's unsaved ID3 changes, per spec.md §4.7: run
// on context shutdown and on idle cleanup.
func (m *Mounts) FlushAll() error {
	m.mu.Lock()
	mounts := m.table.Values()
	m.mu.Unlock()

	var firstErr error
	for _, mt := range mounts {
		if err := flushMount(mt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func flushMount(mt *Mount) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.ctx == nil {
		return nil
	}
	store := mt.ctx.OverlayStore()
	if !store.HasUnsavedChanges() {
		return nil
	}
	return store.Save()
}

// Shutdown flushes and closes every mount, then empties the table.
func (m *Mounts) Shutdown() error {
	err := m.FlushAll()

	m.mu.Lock()
	mounts := m.table.Values()
	m.table.Purge()
	m.mu.Unlock()

	for _, mt := range mounts {
		mt.mu.Lock()
		if mt.ctx != nil {
			mt.ctx.Close()
			mt.ctx = nil
		}
		mt.mu.Unlock()
	}
	return err
}

// resolveDisplayName implements spec.md §6.7/§9's collision resolution:
// the host ".iso" filename's stem, disambiguated within its parent
// directory by truncating to filenameMax-6 before appending " (k)".
// Resolution is sticky: once assigned, an ISO keeps its display name for
// the life of the process, so later insertions/removals of sibling ISOs
// never relabel an already-resolved one.
func (m *Mounts) resolveDisplayName(parentPath, isoPath string) string {
	m.namesMu.Lock()
	defer m.namesMu.Unlock()

	if names, ok := m.namesByParent[parentPath]; ok {
		if dn, ok := names[isoPath]; ok {
			return dn
		}
	} else {
		m.namesByParent[parentPath] = make(map[string]string)
	}
	if m.takenByParent[parentPath] == nil {
		m.takenByParent[parentPath] = make(map[string]bool)
	}
	taken := m.takenByParent[parentPath]

	base := strings.TrimSuffix(filepath.Base(isoPath), filepath.Ext(isoPath))
	dn := disambiguate(base, taken)

	m.namesByParent[parentPath][isoPath] = dn
	taken[dn] = true
	return dn
}

func disambiguate(base string, taken map[string]bool) string {
	if !taken[base] {
		return base
	}
	truncated := base
	if maxBase := filenameMax - 6; len(truncated) > maxBase {
		truncated = truncated[:maxBase]
	}
	for k := 1; ; k++ {
		candidate := fmt.Sprintf("%s (%d)", truncated, k)
		if !taken[candidate] {
			return candidate
		}
	}
}
