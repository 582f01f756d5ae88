package exif

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"strings"

	exifv3 "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"

	"github.com/bstardust/exif-geotag/internal/fshelper"
	"github.com/bstardust/exif-geotag/pkg/common"
)

var jpegSOI = []byte{0xff, 0xd8}

// Entry is one decoded tag
type Entry struct {
	IFD   string
	ID    uint16
	Name  string
	Value string
	Raw   interface{}
}

// Listing holds the tags read from one image in stored order
type Listing struct {
	Path    string
	entries []Entry
	hasExif bool
}

// HasExif reports whether the image carried an EXIF blob at all
func (l *Listing) HasExif() bool {
	return l.hasExif
}

// Entries returns a copy of the decoded tags
func (l *Listing) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of decoded tags
func (l *Listing) Len() int {
	return len(l.entries)
}

// Get returns the first entry called name
func (l *Listing) Get(name string) (Entry, bool) {
	for _, e := range l.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// All yields (name, value) pairs in stored order
func (l *Listing) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, e := range l.entries {
			if !yield(e.Name, e.Value) {
				return
			}
		}
	}
}

// Viewer reads EXIF tags back from images
type Viewer struct {
	fs *fshelper.Resolver
}

// NewViewer creates a viewer resolving paths through fs
func NewViewer(fs *fshelper.Resolver) *Viewer {
	if fs == nil {
		fs = fshelper.NewResolver("")
	}
	return &Viewer{fs: fs}
}

// View decodes the EXIF tags of path. An image without EXIF yields an
// empty Listing and no error.
func (v *Viewer) View(path string) (*Listing, error) {
	resolved := v.fs.Resolve(path)
	listing := &Listing{Path: resolved}

	data, err := v.fs.ReadFile(path)
	if err != nil {
		return nil, &common.ViewError{Path: resolved, Err: err}
	}

	raw, err := extractRaw(data)
	if errors.Is(err, common.ErrNoExif) {
		return listing, nil
	}
	if err != nil {
		return nil, &common.ViewError{Path: resolved, Err: err}
	}

	tags, _, err := exifv3.GetFlatExifData(raw, nil)
	if err != nil {
		return nil, &common.ViewError{Path: resolved, Err: fmt.Errorf("failed to decode EXIF: %w", err)}
	}

	listing.hasExif = true
	for _, t := range tags {
		// pointers to the Exif and GPS sub-IFDs
		if t.ChildIfdPath != "" {
			continue
		}
		listing.entries = append(listing.entries, Entry{
			IFD:   t.IfdPath,
			ID:    t.TagId,
			Name:  TagName(t.IfdPath, t.TagId, t.TagName),
			Value: formatValue(t.Value),
			Raw:   t.Value,
		})
	}
	return listing, nil
}

// extractRaw returns the TIFF-structured EXIF bytes of an image. JPEGs are
// searched segment by segment so pixel data is never mistaken for a header.
func extractRaw(data []byte) ([]byte, error) {
	if bytes.HasPrefix(data, jpegSOI) {
		sl, err := parseSegments(data)
		if err != nil {
			return nil, err
		}
		_, segment, err := sl.FindExif()
		if errors.Is(err, exifv3.ErrNoExif) {
			return nil, common.ErrNoExif
		}
		if err != nil {
			return nil, fmt.Errorf("failed to locate EXIF segment: %w", err)
		}
		data = segment.Data
	}

	raw, err := exifv3.SearchAndExtractExif(data)
	if errors.Is(err, exifv3.ErrNoExif) {
		return nil, common.ErrNoExif
	}
	if err != nil {
		return nil, fmt.Errorf("failed to extract EXIF: %w", err)
	}
	return raw, nil
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return joinValues(len(v), func(i int) string { return fmt.Sprintf("%d", v[i]) })
	case []uint16:
		return joinValues(len(v), func(i int) string { return fmt.Sprintf("%d", v[i]) })
	case []uint32:
		return joinValues(len(v), func(i int) string { return fmt.Sprintf("%d", v[i]) })
	case []int32:
		return joinValues(len(v), func(i int) string { return fmt.Sprintf("%d", v[i]) })
	case []exifcommon.Rational:
		return joinValues(len(v), func(i int) string {
			return fmt.Sprintf("%d/%d", v[i].Numerator, v[i].Denominator)
		})
	case []exifcommon.SignedRational:
		return joinValues(len(v), func(i int) string {
			return fmt.Sprintf("%d/%d", v[i].Numerator, v[i].Denominator)
		})
	}
	return fmt.Sprintf("%v", value)
}

func joinValues(n int, format func(i int) string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = format(i)
	}
	return strings.Join(parts, ", ")
}
