package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacdfs/sacdfs/discreader"
)

func TestParseVirtualPathStereo(t *testing.T) {
	area, track, err := ParseVirtualPath("/Album/Stereo/01. Birdland.dsf")
	require.NoError(t, err)
	assert.Equal(t, discreader.AreaStereo, area)
	assert.Equal(t, uint8(1), track)
}

func TestParseVirtualPathMultiChannel(t *testing.T) {
	area, track, err := ParseVirtualPath("/Album/Multi-channel/12. Birdland (5.0).dsf")
	require.NoError(t, err)
	assert.Equal(t, discreader.AreaMultiChannel, area)
	assert.Equal(t, uint8(12), track)
}

func TestParseVirtualPathRejectsMissingTrackNumber(t *testing.T) {
	_, _, err := ParseVirtualPath("/Album/Stereo/Birdland.dsf")
	assert.Error(t, err)
}

func TestWriteHandleDropsWritesBeforeMetadataRegion(t *testing.T) {
	m := newTestMounts()
	mt, err := m.Acquire("/music/disc.iso", "/music")
	require.NoError(t, err)
	o := New(m)

	wh := o.NewWriteHandle(mt, "/Album/Stereo/01. One.dsf", 16476)
	wh.Write(0, []byte("garbage before metadata"))
	assert.False(t, wh.dirty)
	assert.NoError(t, wh.Flush())
}

func TestWriteHandleBuffersAndFlushesToOverlayStore(t *testing.T) {
	m := newTestMounts()
	mt, err := m.Acquire("/music/disc.iso", "/music")
	require.NoError(t, err)
	o := New(m)

	const metadataOff = 16476
	wh := o.NewWriteHandle(mt, "/Album/Stereo/01. One.dsf", metadataOff)

	wh.Write(metadataOff, []byte("ID3"))
	wh.Write(metadataOff+3, []byte("v2tag"))
	require.True(t, wh.dirty)

	require.NoError(t, wh.Flush())
	assert.False(t, wh.dirty)

	got, err := mt.Context().OverlayStore().Get(nil, discreader.AreaStereo, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3v2tag"), got)
}

func TestWriteHandleSplitsWriteStraddlingMetadataBoundary(t *testing.T) {
	m := newTestMounts()
	mt, err := m.Acquire("/music/disc.iso", "/music")
	require.NoError(t, err)
	o := New(m)

	const metadataOff = 100
	wh := o.NewWriteHandle(mt, "/Album/Stereo/01. One.dsf", metadataOff)
	wh.Write(95, []byte("01234567890"))
	require.NoError(t, wh.Flush())

	got, err := mt.Context().OverlayStore().Get(nil, discreader.AreaStereo, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("567890"), got)
}

func TestParseVirtualPathOutOfRangeTrack(t *testing.T) {
	_, _, err := ParseVirtualPath("/Album/Stereo/999. Too Big.dsf")
	assert.Error(t, err)
}
