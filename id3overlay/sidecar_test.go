package id3overlay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacdfs/sacdfs/discreader"
)

func TestSidecarPath(t *testing.T) {
	assert.Equal(t, "/music/disc.iso.xml", SidecarPath("/music/disc.iso"))
}

func TestSidecarShape(t *testing.T) {
	dir := t.TempDir()
	isoPath := filepath.Join(dir, "disc.iso")

	store := New(isoPath, &stubRenderer{})
	store.Init(discreader.AreaStereo, 1)
	require.NoError(t, store.SetOverlay(discreader.AreaStereo, 1, []byte{0x01, 0x02, 0x03}))
	require.NoError(t, store.Save())

	raw, err := os.ReadFile(SidecarPath(isoPath))
	require.NoError(t, err)
	doc := string(raw)

	assert.True(t, strings.HasPrefix(doc, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, doc, `<SacdId3Overlay version="1.0" iso="disc.iso">`)
	assert.Contains(t, doc, `<Area type="stereo">`)
	assert.Contains(t, doc, `<Track number="1">`)
	assert.Contains(t, doc, `<Id3>AQID</Id3>`) // base64 of 0x01 0x02 0x03
}

func TestLoadSkipsMalformedTrackEntries(t *testing.T) {
	dir := t.TempDir()
	isoPath := filepath.Join(dir, "disc.iso")
	sidecar := SidecarPath(isoPath)

	doc := `<?xml version="1.0" encoding="UTF-8"?>
<SacdId3Overlay version="1.0" iso="disc.iso">
  <Area type="stereo">
    <Track number="1"><Id3>not-valid-base64!!</Id3></Track>
    <Track number="2"><Id3>aGVsbG8=</Id3></Track>
    <Track number="99"><Id3>aGVsbG8=</Id3></Track>
  </Area>
  <Area type="unknown-type">
    <Track number="1"><Id3>aGVsbG8=</Id3></Track>
  </Area>
</SacdId3Overlay>
`
	require.NoError(t, os.WriteFile(sidecar, []byte(doc), 0o644))

	store := New(isoPath, &stubRenderer{})
	store.Init(discreader.AreaStereo, 2)
	require.NoError(t, store.Load())

	// track 1 malformed base64 -> skipped, still invalid
	_, _, err := store.slot(discreader.AreaStereo, 1)
	require.NoError(t, err)
	arr := store.areas[discreader.AreaStereo]
	assert.False(t, arr[0].valid)

	// track 2 valid -> loaded
	assert.True(t, arr[1].valid)
	assert.Equal(t, "hello", string(arr[1].data))
	assert.True(t, arr[1].fromXML)
}

func TestLoadMissingSidecarIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "nope.iso"), &stubRenderer{})
	store.Init(discreader.AreaStereo, 1)
	assert.NoError(t, store.Load())
}
