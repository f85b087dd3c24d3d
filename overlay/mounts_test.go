package overlay

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacdfs/sacdfs/discreader"
	fixturereader "github.com/sacdfs/sacdfs/discreader/fixture"
	dstfixture "github.com/sacdfs/sacdfs/dstdecoder/fixture"
	"github.com/sacdfs/sacdfs/id3render"
)

func singleTrackDisc(title string) *fixturereader.Disc {
	return &fixturereader.Disc{
		AlbumTitle: title,
		Areas: map[discreader.Area]fixturereader.AreaSpec{
			discreader.AreaStereo: {
				Channels:   2,
				SampleRate: 2822400,
				Format:     discreader.RawDSD,
				Tracks:     []fixturereader.Track{{StartFrame: 0, EndFrame: 10, Title: "One"}},
			},
		},
	}
}

func newTestMounts() *Mounts {
	factory := fixturereader.NewFactory(singleTrackDisc("Album"))
	return NewMounts(factory, dstfixture.NewFactory(), id3render.New(), nil, 16, time.Hour)
}

func TestAcquireCachesAndRefcounts(t *testing.T) {
	m := newTestMounts()

	mt1, err := m.Acquire("/music/disc.iso", "/music")
	require.NoError(t, err)
	require.NotNil(t, mt1.Context())

	mt2, err := m.Acquire("/music/disc.iso", "/music")
	require.NoError(t, err)
	assert.Same(t, mt1, mt2, "the same ISO path must return the same mount")
	assert.Equal(t, 2, mt1.refs)

	m.Release(mt1)
	m.Release(mt2)
	assert.Equal(t, 0, mt1.refs)
}

func TestDisambiguateTruncatesBeforeSuffixing(t *testing.T) {
	taken := map[string]bool{}
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	base := string(long)

	first := disambiguate(base, taken)
	taken[first] = true
	assert.Equal(t, base, first)

	second := disambiguate(base, taken)
	assert.LessOrEqual(t, len(second), filenameMax)
	assert.NotEqual(t, first, second)
	assert.Contains(t, second, "(1)")
}

func TestDisambiguateAssignsSequentialSuffixes(t *testing.T) {
	taken := map[string]bool{"track": true, "track (1)": true}
	got := disambiguate("track", taken)
	assert.Equal(t, "track (2)", got)
}

func TestResolveDisplayNameIsStickyAndScopedPerParent(t *testing.T) {
	m := newTestMounts()

	a1, err := m.Acquire("/music/a/disc.iso", "/music/a")
	require.NoError(t, err)
	a2, err := m.Acquire("/music/b/disc.iso", "/music/b")
	require.NoError(t, err)

	assert.Equal(t, "disc", a1.DisplayName())
	assert.Equal(t, "disc", a2.DisplayName(), "same stem in a different parent directory is not a collision")

	a3, err := m.Acquire("/music/a/disc.iso", "/music/a")
	require.NoError(t, err)
	assert.Equal(t, a1.DisplayName(), a3.DisplayName())
}

func TestResolveDisplayNameDisambiguatesWithinSameParent(t *testing.T) {
	m := newTestMounts()

	a1, err := m.Acquire("/music/a/disc.iso", "/music/a")
	require.NoError(t, err)

	// A second, distinct ISO path whose stem also sanitizes to "disc",
	// routed to the same parent directory: a genuine collision.
	dn := m.resolveDisplayName("/music/a", "/music/a/nested/disc.iso")
	assert.NotEqual(t, a1.DisplayName(), dn)
	assert.Equal(t, "disc (1)", dn)
}

func TestFlushAllSavesOnlyDirtyMounts(t *testing.T) {
	m := newTestMounts()
	mt, err := m.Acquire("/music/disc.iso", "/music")
	require.NoError(t, err)

	assert.False(t, mt.Context().OverlayStore().HasUnsavedChanges())
	require.NoError(t, m.FlushAll())

	require.NoError(t, mt.Context().OverlayStore().SetOverlay(discreader.AreaStereo, 1, []byte("id3")))
	assert.True(t, mt.Context().OverlayStore().HasUnsavedChanges())
	require.NoError(t, m.FlushAll())
	assert.False(t, mt.Context().OverlayStore().HasUnsavedChanges())

	m.Release(mt)
}

func TestAcquireFailedOpenDoesNotDeadlockAndAllowsRetry(t *testing.T) {
	// A failed vfscontext.Open (e.g. a corrupt/unreadable ISO) must not
	// wedge the table: the failure path removes the half-initialized
	// mount without re-entering its own mutex via the evicting Remove.
	failing := func(isoPath string) (discreader.Reader, error) {
		return nil, errors.New("corrupt iso")
	}
	m := NewMounts(failing, dstfixture.NewFactory(), id3render.New(), nil, 16, time.Hour)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := m.Acquire("/music/bad.iso", "/music")
		assert.Error(t, err)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire deadlocked on a failed open")
	}

	// A later successful open for the same path must not be blocked by
	// table state left behind by the earlier failure.
	m.factory = fixturereader.NewFactory(singleTrackDisc("Album"))
	mt, err := m.Acquire("/music/bad.iso", "/music")
	require.NoError(t, err)
	require.NotNil(t, mt.Context())
	m.Release(mt)
}

func TestShutdownClosesAllMounts(t *testing.T) {
	m := newTestMounts()
	_, err := m.Acquire("/music/disc.iso", "/music")
	require.NoError(t, err)

	require.NoError(t, m.Shutdown())

	mt2, err := m.Acquire("/music/disc.iso", "/music")
	require.NoError(t, err)
	assert.NotNil(t, mt2.Context(), "acquiring after shutdown must lazily reopen")
}
