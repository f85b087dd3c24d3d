package id3render

import (
	"bytes"
	"fmt"

	"github.com/bogem/id3v2/v2"

	"github.com/sacdfs/sacdfs/discreader"
)

// defaultRenderer builds an in-memory ID3v2.4 tag from disc text via
// bogem/id3v2, the same library go-musicfox uses for on-disk tagging
// (internal/track/tagger.go). Unlike that caller, this renderer never
// touches a file: it serializes straight into a bytes.Buffer via
// id3v2.Tag.WriteTo, matching this repository's "synthesize, never
// materialize" design.
type defaultRenderer struct{}

// New returns the default ID3 Renderer.
func New() Renderer {
	return &defaultRenderer{}
}

func (*defaultRenderer) Render(reader discreader.Reader, track uint8) ([]byte, error) {
	tag := id3v2.NewEmptyTag()
	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)

	title, err := reader.GetTrackText(track, 1, discreader.TextTitle)
	if err != nil {
		return nil, fmt.Errorf("id3render: read track title: %w", err)
	}
	if title == "" {
		title = fmt.Sprintf("Track %02d", track)
	}
	tag.SetTitle(title)

	if artist, err := reader.GetTrackText(track, 1, discreader.TextArtist); err == nil && artist != "" {
		tag.SetArtist(artist)
	} else if albumArtist, err := reader.GetAlbumText(1, discreader.TextArtist); err == nil {
		tag.SetArtist(albumArtist)
	}

	if album, err := reader.GetAlbumText(1, discreader.TextTitle); err == nil && album != "" {
		tag.SetAlbum(album)
	}

	tag.AddFrame(tag.CommonID("Track number/Position in set"), id3v2.TextFrame{
		Encoding: tag.DefaultEncoding(),
		Text:     fmt.Sprintf("%d", track),
	})

	var buf bytes.Buffer
	if _, err := tag.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("id3render: serialize tag: %w", err)
	}
	return buf.Bytes(), nil
}
