package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bstardust/exif-geotag/internal/fshelper"
	"github.com/bstardust/exif-geotag/internal/logger"
	"github.com/bstardust/exif-geotag/pkg/common"
)

// Known record keys
const (
	KeyMake             = "Make"
	KeyModel            = "Model"
	KeySoftware         = "Software"
	KeyFocalLength      = "FocalLength"
	KeyApertureValue    = "ApertureValue"
	KeyExposureProgram  = "ExposureProgram"
	KeyMeteringMode     = "MeteringMode"
	KeyISOSpeedRatings  = "ISOSpeedRatings"
	KeyWhiteBalance     = "WhiteBalance"
	KeySceneCaptureType = "SceneCaptureType"
	KeyLatRef           = "lat_ref"
	KeyLongRef          = "long_ref"
	KeyAltitude         = "altitude"
	KeyLatitude         = "latitude"
	KeyLongitude        = "longitude"
	KeyTimestamp        = "timestamp"
)

// NumericPolicy decides what happens to a missing or malformed numeric field
type NumericPolicy int

const (
	// DefaultZero reads missing or malformed numbers as 0
	DefaultZero NumericPolicy = iota
	// Fail reports missing or malformed numbers as a FieldError
	Fail
)

func (p NumericPolicy) String() string {
	if p == Fail {
		return "fail"
	}
	return "default-zero"
}

// ParseNumericPolicy maps a configuration value to a NumericPolicy
func ParseNumericPolicy(s string) (NumericPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default-zero":
		return DefaultZero, nil
	case "fail":
		return Fail, nil
	}
	return DefaultZero, common.NewConfigError(fmt.Sprintf("unknown numeric policy %q", s))
}

// Record is a flat mapping of metadata field names to values
type Record map[string]string

// String returns the value for key, or "" if absent
func (r Record) String(key string) string {
	return r[key]
}

// Has reports whether key is present
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Float parses the value for key as a float64 under policy
func (r Record) Float(key string, policy NumericPolicy) (float64, error) {
	raw, ok := r[key]
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		if policy == Fail {
			return 0, &common.FieldError{Key: key, Err: common.ErrMissingField}
		}
		return 0, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		if policy == Fail {
			return 0, &common.FieldError{Key: key, Value: raw, Err: common.ErrMalformedField}
		}
		logger.Debug("Field %s=%q is not numeric, using 0", key, raw)
		return 0, nil
	}
	return v, nil
}

// Uint parses the value for key as an unsigned integer under policy.
// Decimal values such as "100.0" are accepted and truncated.
func (r Record) Uint(key string, policy NumericPolicy) (uint64, error) {
	f, err := r.Float(key, policy)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		if policy == Fail {
			return 0, &common.FieldError{Key: key, Value: r[key], Err: common.ErrMalformedField}
		}
		return 0, nil
	}
	return uint64(f), nil
}

// UserMetadata flattens the camera and GPS fields into object metadata
func (r Record) UserMetadata() map[string]string {
	result := make(map[string]string)

	pairs := []struct {
		key  string
		name string
	}{
		{KeyMake, "camera-make"},
		{KeyModel, "camera-model"},
		{KeySoftware, "software"},
		{KeyTimestamp, "photo-taken-time"},
		{KeyLatitude, "geo-latitude"},
		{KeyLatRef, "geo-latitude-ref"},
		{KeyLongitude, "geo-longitude"},
		{KeyLongRef, "geo-longitude-ref"},
		{KeyAltitude, "geo-altitude"},
	}
	for _, p := range pairs {
		if v := strings.TrimSpace(r[p.key]); v != "" {
			result[p.name] = v
		}
	}
	return result
}

// With returns a copy of r with key set to value
func (r Record) With(key, value string) Record {
	out := make(Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	out[key] = value
	return out
}

// Loader reads metadata records from CSV files
type Loader struct {
	fs *fshelper.Resolver
}

// NewLoader creates a loader that resolves paths through fs
func NewLoader(fs *fshelper.Resolver) *Loader {
	if fs == nil {
		fs = fshelper.NewResolver("")
	}
	return &Loader{fs: fs}
}

// Load reads a two-column key,value CSV without a header row.
// On failure it returns an empty Record together with a CSVReadError,
// so callers can continue with defaults.
func (l *Loader) Load(path string) (Record, error) {
	f, err := l.fs.Open(path)
	if err != nil {
		return Record{}, &common.CSVReadError{Path: l.fs.Resolve(path), Err: err}
	}
	defer f.Close()

	rec, err := Parse(f)
	if err != nil {
		return Record{}, &common.CSVReadError{Path: l.fs.Resolve(path), Err: err}
	}

	logger.Debug("Loaded %d metadata fields from %s", len(rec), l.fs.Resolve(path))
	return rec, nil
}

// Parse reads key,value rows from r. Rows with fewer than two fields are
// skipped and duplicate keys keep the last value.
func Parse(r io.Reader) (Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rec := make(Record)
	line := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		line++

		if len(row) < 2 {
			logger.Debug("Skipping CSV row %d with %d field(s)", line, len(row))
			continue
		}
		key := strings.TrimSpace(row[0])
		if key == "" {
			continue
		}
		rec[key] = strings.TrimSpace(row[1])
	}
	return rec, nil
}
