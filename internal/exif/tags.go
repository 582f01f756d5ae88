package exif

import "fmt"

// IFD paths as reported by the flat EXIF scan
const (
	IfdPrimary = "IFD"
	IfdExif    = "IFD/Exif"
	IfdGPS     = "IFD/GPSInfo"
)

// TagDef describes one tag the encoder writes
type TagDef struct {
	ID     uint16
	Name   string
	Format string
}

// TagTable maps tag IDs to definitions for one IFD
type TagTable map[uint16]TagDef

var tagTables = map[string]TagTable{
	IfdPrimary: {
		0x010f: {0x010f, "Make", "ascii"},
		0x0110: {0x0110, "Model", "ascii"},
		0x0112: {0x0112, "Orientation", "short"},
		0x011a: {0x011a, "XResolution", "rational"},
		0x011b: {0x011b, "YResolution", "rational"},
		0x0128: {0x0128, "ResolutionUnit", "short"},
		0x0131: {0x0131, "Software", "ascii"},
		0x8769: {0x8769, "ExifTag", "long"},
		0x8825: {0x8825, "GPSTag", "long"},
	},
	IfdExif: {
		0x8822: {0x8822, "ExposureProgram", "short"},
		0x8827: {0x8827, "ISOSpeedRatings", "short"},
		0x9003: {0x9003, "DateTimeOriginal", "ascii"},
		0x9004: {0x9004, "DateTimeDigitized", "ascii"},
		0x9202: {0x9202, "ApertureValue", "rational"},
		0x9207: {0x9207, "MeteringMode", "short"},
		0x920a: {0x920a, "FocalLength", "rational"},
		0xa403: {0xa403, "WhiteBalance", "short"},
		0xa406: {0xa406, "SceneCaptureType", "short"},
	},
	IfdGPS: {
		0x0001: {0x0001, "GPSLatitudeRef", "ascii"},
		0x0002: {0x0002, "GPSLatitude", "rational"},
		0x0003: {0x0003, "GPSLongitudeRef", "ascii"},
		0x0004: {0x0004, "GPSLongitude", "rational"},
		0x0005: {0x0005, "GPSAltitudeRef", "byte"},
		0x0006: {0x0006, "GPSAltitude", "rational"},
		0x001d: {0x001d, "GPSDateStamp", "ascii"},
	},
}

// LookupTag returns the definition of id within ifd
func LookupTag(ifd string, id uint16) (TagDef, bool) {
	if table, ok := tagTables[ifd]; ok {
		def, found := table[id]
		return def, found
	}
	return TagDef{}, false
}

// TagName names id within ifd. Unknown tags fall back to fallback, then to
// the hex ID.
func TagName(ifd string, id uint16, fallback string) string {
	if def, ok := LookupTag(ifd, id); ok {
		return def.Name
	}
	if fallback != "" {
		return fallback
	}
	return fmt.Sprintf("0x%04x", id)
}
