package vfscontext

import (
	"fmt"
	"strings"

	"github.com/sacdfs/sacdfs/discreader"
)

// illegalPathChars covers the characters forbidden in a filename on either
// a POSIX FUSE mount or a Windows WinFSP mount, since this repository's
// synthetic tree may be exposed through either driver (spec.md §1).
const illegalPathChars = "/\\:*?\"<>|"

// sanitizeName replaces path-illegal characters and control characters
// with '_' and trims surrounding whitespace, per spec.md §4.6 step 2.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r < 0x20:
			b.WriteRune('_')
		case strings.ContainsRune(illegalPathChars, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// AreaDirName returns the canonical area directory name (spec.md §6.7):
// "Stereo" or "Multi-channel".
func AreaDirName(area discreader.Area) string {
	return area.String()
}

// VisibleAreas returns the areas this context should show, in canonical
// order (Stereo before Multi-channel), per ShouldShowArea's policy.
func (c *Context) VisibleAreas() []discreader.Area {
	var out []discreader.Area
	for _, a := range []discreader.Area{discreader.AreaStereo, discreader.AreaMultiChannel} {
		if c.ShouldShowArea(a) {
			out = append(out, a)
		}
	}
	return out
}

// TrackCount reports the number of tracks in area.
func (c *Context) TrackCount(area discreader.Area) (int, error) {
	info, ok := c.areas[area]
	if !ok {
		return 0, fmt.Errorf("vfscontext: area %s not present", area)
	}
	return len(info.tracks), nil
}

// TrackFileName synthesizes the leaf filename for (area, track), per
// spec.md §6.7: "NN. {sanitized_title}.dsf" with NN zero-padded 1-based.
func (c *Context) TrackFileName(area discreader.Area, track uint8) (string, error) {
	info, ok := c.areas[area]
	if !ok {
		return "", fmt.Errorf("vfscontext: area %s not present", area)
	}
	if track == 0 || int(track) > len(info.tracks) {
		return "", fmt.Errorf("vfscontext: track %d out of range for area %s", track, area)
	}
	return fmt.Sprintf("%02d. %s.dsf", track, info.tracks[track-1].title), nil
}

// TrackFileNames returns every track's synthesized filename for area, in
// track-number order — the directory listing for "/{album}/{area}/".
func (c *Context) TrackFileNames(area discreader.Area) ([]string, error) {
	info, ok := c.areas[area]
	if !ok {
		return nil, fmt.Errorf("vfscontext: area %s not present", area)
	}
	names := make([]string, len(info.tracks))
	for i := range info.tracks {
		names[i] = fmt.Sprintf("%02d. %s.dsf", i+1, info.tracks[i].title)
	}
	return names, nil
}
