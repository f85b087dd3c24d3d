package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacdfs/sacdfs/discreader"
	fixturereader "github.com/sacdfs/sacdfs/discreader/fixture"
	dstfixture "github.com/sacdfs/sacdfs/dstdecoder/fixture"
	"github.com/sacdfs/sacdfs/id3render"
	"github.com/sacdfs/sacdfs/overlay"
)

func demoDisc() *fixturereader.Disc {
	return &fixturereader.Disc{
		AlbumTitle: "Demo",
		Areas: map[discreader.Area]fixturereader.AreaSpec{
			discreader.AreaStereo: {
				Channels:   2,
				SampleRate: 2822400,
				Format:     discreader.RawDSD,
				Tracks:     []fixturereader.Track{{StartFrame: 0, EndFrame: 40, Title: "One"}},
			},
		},
	}
}

func newTestDriver(t *testing.T) (*InProcessDriver, string) {
	t.Helper()
	hostDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(hostDir, "disc.iso"), []byte("not a real iso"), 0o644))

	factory := fixturereader.NewFactory(demoDisc())
	mounts := overlay.NewMounts(factory, dstfixture.NewFactory(), id3render.New(), nil, 16, time.Hour)
	return NewInProcessDriver(hostDir, mounts), hostDir
}

func TestReadDirRootListsDisplayNames(t *testing.T) {
	d, _ := newTestDriver(t)
	entries, err := d.ReadDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "disc", entries[0].Name)
	assert.True(t, entries[0].IsDir)
}

func TestReadDirAreaAndTrackLevels(t *testing.T) {
	d, _ := newTestDriver(t)

	areas, err := d.ReadDir("/disc")
	require.NoError(t, err)
	require.Len(t, areas, 1)
	assert.Equal(t, "Stereo", areas[0].Name)

	tracks, err := d.ReadDir("/disc/Stereo")
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "01. One.dsf", tracks[0].Name)
}

func TestLookupAndReadAtReturnsHeaderBytes(t *testing.T) {
	d, _ := newTestDriver(t)

	entry, err := d.Lookup("/disc/Stereo/01. One.dsf")
	require.NoError(t, err)
	assert.Greater(t, entry.Size, uint64(0))

	buf := make([]byte, 4)
	n, err := d.ReadAt("/disc/Stereo/01. One.dsf", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "DSD ", string(buf))

	require.NoError(t, d.Release("/disc/Stereo/01. One.dsf"))
}

func TestWriteAtBuffersAndFlushPersistsID3(t *testing.T) {
	d, hostDir := newTestDriver(t)

	virtualPath := "/disc/Stereo/01. One.dsf"
	_, err := d.Lookup(virtualPath)
	require.NoError(t, err)

	h := d.handles[virtualPath]
	require.NotNil(t, h)
	off := int64(h.f.Info().MetadataOff)

	n, err := d.WriteAt(virtualPath, []byte("ID3DATA"), off)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	require.NoError(t, d.Flush(virtualPath))

	sidecar := filepath.Join(hostDir, "disc.iso.xml")
	_, err = os.Stat(sidecar)
	assert.NoError(t, err, "flush must persist the XML sidecar next to the ISO")

	require.NoError(t, d.Release(virtualPath))
}

func TestLookupUnknownDisplayNameFails(t *testing.T) {
	d, _ := newTestDriver(t)
	_, err := d.Lookup("/nonexistent/Stereo/01. One.dsf")
	assert.Error(t, err)
}
