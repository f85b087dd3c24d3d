package id3overlay

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sacdfs/sacdfs/discreader"
)

// SidecarPath returns the path of the XML sidecar for the ISO at isoPath,
// per spec.md §6.5: "{iso}.xml" next to the ISO itself.
func SidecarPath(isoPath string) string {
	return isoPath + ".xml"
}

type xmlRoot struct {
	XMLName xml.Name  `xml:"SacdId3Overlay"`
	Version string    `xml:"version,attr"`
	ISO     string    `xml:"iso,attr"`
	Areas   []xmlArea `xml:"Area"`
}

type xmlArea struct {
	Type   string     `xml:"type,attr"`
	Tracks []xmlTrack `xml:"Track"`
}

type xmlTrack struct {
	Number int    `xml:"number,attr"`
	ID3    string `xml:"Id3"`
}

func areaXMLType(area discreader.Area) (string, error) {
	switch area {
	case discreader.AreaStereo:
		return "stereo", nil
	case discreader.AreaMultiChannel:
		return "multichannel", nil
	default:
		return "", fmt.Errorf("id3overlay: unknown area %v", area)
	}
}

func parseAreaXMLType(s string) (discreader.Area, bool) {
	switch s {
	case "stereo":
		return discreader.AreaStereo, true
	case "multichannel":
		return discreader.AreaMultiChannel, true
	default:
		return 0, false
	}
}

// Save persists every entry that is dirty or was originally loaded from the
// sidecar. If no such entry exists across the whole store, any existing
// sidecar is removed rather than writing an empty shell, per spec.md §6.5.
// Entries that are written are marked clean and fromXML on success.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := xmlRoot{
		Version: "1.0",
		ISO:     filepath.Base(s.isoPath),
	}

	type pending struct {
		area discreader.Area
		idx  int
	}
	var toMark []pending

	for area, arr := range s.areas {
		typ, err := areaXMLType(area)
		if err != nil {
			continue
		}
		var tracks []xmlTrack
		for i := range arr {
			e := &arr[i]
			if !e.valid || (!e.dirty && !e.fromXML) {
				continue
			}
			tracks = append(tracks, xmlTrack{
				Number: i + 1,
				ID3:    base64.StdEncoding.EncodeToString(e.data),
			})
			toMark = append(toMark, pending{area: area, idx: i})
		}
		if len(tracks) > 0 {
			root.Areas = append(root.Areas, xmlArea{Type: typ, Tracks: tracks})
		}
	}

	path := SidecarPath(s.isoPath)
	if len(root.Areas) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("id3overlay: remove stale sidecar: %w", err)
		}
		return nil
	}

	out, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return fmt.Errorf("id3overlay: marshal sidecar: %w", err)
	}
	doc := append([]byte(xml.Header), out...)
	doc = append(doc, '\n')

	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return fmt.Errorf("id3overlay: write sidecar %s: %w", path, err)
	}

	for _, p := range toMark {
		arr := s.areas[p.area]
		arr[p.idx].dirty = false
		arr[p.idx].fromXML = true
	}
	return nil
}

// Load reads the XML sidecar, if present, populating entries for areas
// already Init'd. Areas with an unrecognized type attribute, and
// individual Track elements that fail to base64-decode or whose number is
// out of range, are skipped without failing the rest of the load — per
// spec.md §6.5's "malformed entries are skipped" rule.
func (s *Store) Load() error {
	path := SidecarPath(s.isoPath)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("id3overlay: read sidecar %s: %w", path, err)
	}

	var root xmlRoot
	if err := xml.Unmarshal(raw, &root); err != nil {
		return fmt.Errorf("id3overlay: parse sidecar %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, xa := range root.Areas {
		area, ok := parseAreaXMLType(xa.Type)
		if !ok {
			continue
		}
		arr, ok := s.areas[area]
		if !ok {
			continue
		}
		for _, xt := range xa.Tracks {
			idx := xt.Number - 1
			if idx < 0 || idx >= len(arr) {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(xt.ID3)
			if err != nil || len(data) == 0 {
				continue
			}
			arr[idx] = entry{data: data, valid: true, dirty: false, fromXML: true}
		}
	}
	return nil
}
