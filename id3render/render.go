// Package id3render defines the ID3 Renderer capability the core consumes
// (spec.md §6.3) and a default implementation backed by bogem/id3v2.
package id3render

import (
	"github.com/sacdfs/sacdfs/discreader"
)

// Renderer produces an ID3v2 tag for one track, using the currently
// selected area's track text plus album/disc fallbacks from reader.
type Renderer interface {
	Render(reader discreader.Reader, track uint8) ([]byte, error)
}
