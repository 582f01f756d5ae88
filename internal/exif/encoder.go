package exif

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	exifv3 "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"

	"github.com/bstardust/exif-geotag/internal/fshelper"
	"github.com/bstardust/exif-geotag/internal/geo"
	"github.com/bstardust/exif-geotag/internal/logger"
	"github.com/bstardust/exif-geotag/internal/metadata"
	"github.com/bstardust/exif-geotag/pkg/common"
)

// Fixed primary IFD values
const (
	resolutionDPI        = 72
	resolutionUnitInches = 2
	orientationNormal    = 1
	altitudeAboveSea     = 0
	measureDenominator   = 100
)

var dateLayouts = []string{
	"2006:01:02 15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006:01:02",
	"2006-01-02",
}

// Options controls how records are turned into tags
type Options struct {
	NumericPolicy   metadata.NumericPolicy
	CoordinateCheck geo.CheckMode
	CameraSettings  bool
	JPEGQuality     int
}

// CameraSettings holds the optional shooting parameters of the Exif IFD
type CameraSettings struct {
	FocalLength      float64
	ApertureValue    float64
	ExposureProgram  uint16
	MeteringMode     uint16
	ISOSpeedRatings  uint16
	WhiteBalance     uint16
	SceneCaptureType uint16
}

// Fields is the resolved set of values written into a fresh EXIF blob
type Fields struct {
	Make      string
	Model     string
	Software  string
	DateTime  string
	Latitude  geo.Coordinate
	Longitude geo.Coordinate
	Altitude  float64
	Camera    *CameraSettings
}

// Encoder writes camera and GPS metadata into JPEG images
type Encoder struct {
	fs   *fshelper.Resolver
	opts Options
}

// NewEncoder creates an encoder resolving paths through fs
func NewEncoder(fs *fshelper.Resolver, opts Options) *Encoder {
	if fs == nil {
		fs = fshelper.NewResolver("")
	}
	if opts.CoordinateCheck == "" {
		opts.CoordinateCheck = geo.CheckOff
	}
	if opts.JPEGQuality == 0 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	return &Encoder{fs: fs, opts: opts}
}

// Resolve merges the record sources with the explicit values. A non-empty
// model or dateTime wins over the record's Model and timestamp.
func (e *Encoder) Resolve(geoData, meta metadata.Record, model, dateTime string, latitude, longitude float64) (Fields, error) {
	if model == "" {
		model = meta.String(metadata.KeyModel)
	}
	if dateTime == "" {
		dateTime = meta.String(metadata.KeyTimestamp)
	}

	f := Fields{
		Make:      meta.String(metadata.KeyMake),
		Model:     model,
		Software:  meta.String(metadata.KeySoftware),
		DateTime:  dateTime,
		Latitude:  geo.Coordinate{Decimal: latitude, Ref: geoData.String(metadata.KeyLatRef)},
		Longitude: geo.Coordinate{Decimal: longitude, Ref: geoData.String(metadata.KeyLongRef)},
	}

	for _, key := range []string{metadata.KeyLatRef, metadata.KeyLongRef} {
		if !geoData.Has(key) {
			logger.Debug("No %s in metadata, writing an empty reference", key)
		}
	}

	alt, err := geoData.Float(metadata.KeyAltitude, e.opts.NumericPolicy)
	if err != nil {
		return Fields{}, err
	}
	f.Altitude = alt

	if err := geo.CheckLatitude(f.Latitude, e.opts.CoordinateCheck); err != nil {
		return Fields{}, err
	}
	if err := geo.CheckLongitude(f.Longitude, e.opts.CoordinateCheck); err != nil {
		return Fields{}, err
	}

	if e.opts.CameraSettings {
		cs, err := e.cameraSettings(meta)
		if err != nil {
			return Fields{}, err
		}
		f.Camera = cs
	}
	return f, nil
}

func (e *Encoder) cameraSettings(meta metadata.Record) (*CameraSettings, error) {
	policy := e.opts.NumericPolicy
	cs := &CameraSettings{}

	var err error
	if cs.FocalLength, err = meta.Float(metadata.KeyFocalLength, policy); err != nil {
		return nil, err
	}
	if cs.ApertureValue, err = meta.Float(metadata.KeyApertureValue, policy); err != nil {
		return nil, err
	}

	shorts := []struct {
		key string
		dst *uint16
	}{
		{metadata.KeyExposureProgram, &cs.ExposureProgram},
		{metadata.KeyMeteringMode, &cs.MeteringMode},
		{metadata.KeyISOSpeedRatings, &cs.ISOSpeedRatings},
		{metadata.KeyWhiteBalance, &cs.WhiteBalance},
		{metadata.KeySceneCaptureType, &cs.SceneCaptureType},
	}
	for _, s := range shorts {
		v, err := meta.Uint(s.key, policy)
		if err != nil {
			return nil, err
		}
		if v > math.MaxUint16 {
			if policy == metadata.Fail {
				return nil, &common.FieldError{Key: s.key, Value: meta.String(s.key), Err: common.ErrMalformedField}
			}
			v = 0
		}
		*s.dst = uint16(v)
	}
	return cs, nil
}

// Encode decodes imagePath, attaches a freshly built EXIF blob and writes
// the result as JPEG to outputPath. Existing EXIF in the source is dropped.
func (e *Encoder) Encode(imagePath, outputPath string, geoData, meta metadata.Record, model, dateTime string, latitude, longitude float64) error {
	fields, err := e.Resolve(geoData, meta, model, dateTime, latitude, longitude)
	if err != nil {
		return err
	}

	if e.fs.SamePath(imagePath, outputPath) {
		return &common.ImageWriteError{
			Path: e.fs.Resolve(outputPath),
			Err:  errors.New("output path must differ from the input image"),
		}
	}

	src, err := e.fs.Open(imagePath)
	if err != nil {
		return &common.ImageOpenError{Path: e.fs.Resolve(imagePath), Err: err}
	}
	defer src.Close()

	img, format, err := decodeImage(src)
	if err != nil {
		return &common.ImageOpenError{Path: e.fs.Resolve(imagePath), Err: err}
	}

	pixels, err := encodeJPEG(img, e.opts.JPEGQuality)
	if err != nil {
		return &common.EncodeError{Err: err}
	}

	rootIb, err := newRootBuilder(fields)
	if err != nil {
		return err
	}

	sl, err := parseSegments(pixels)
	if err != nil {
		return &common.EncodeError{Err: err}
	}
	if dropped, err := sl.DropExif(); err != nil {
		return &common.EncodeError{Err: fmt.Errorf("failed to drop EXIF segment: %w", err)}
	} else if dropped {
		logger.Debug("Dropped existing EXIF segment from %s", imagePath)
	}
	if err := sl.SetExif(rootIb); err != nil {
		return &common.EncodeError{Err: fmt.Errorf("failed to attach EXIF segment: %w", err)}
	}

	err = e.fs.WriteFileAtomic(outputPath, func(w io.Writer) error {
		return sl.Write(w)
	})
	if err != nil {
		return &common.ImageWriteError{Path: e.fs.Resolve(outputPath), Err: err}
	}

	logger.Debug("Encoded %s (%s) to %s", imagePath, format, outputPath)
	return nil
}

// Build serializes f into a TIFF-structured EXIF blob
func Build(f Fields) ([]byte, error) {
	rootIb, err := newRootBuilder(f)
	if err != nil {
		return nil, err
	}
	blob, err := exifv3.NewIfdByteEncoder().EncodeToExif(rootIb)
	if err != nil {
		return nil, &common.EncodeError{Err: fmt.Errorf("failed to serialize IFDs: %w", err)}
	}
	return blob, nil
}

func parseSegments(data []byte) (*jpegstructure.SegmentList, error) {
	intfc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JPEG structure: %w", err)
	}
	sl, ok := intfc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, fmt.Errorf("unexpected JPEG media context %T", intfc)
	}
	return sl, nil
}

// newRootBuilder builds IFD0 with its Exif and GPS children from scratch
func newRootBuilder(f Fields) (*exifv3.IfdBuilder, error) {
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, &common.EncodeError{Err: fmt.Errorf("failed to create IFD mapping: %w", err)}
	}
	ti := exifv3.NewTagIndex()
	if err := exifv3.LoadStandardTags(ti); err != nil {
		return nil, &common.EncodeError{Err: fmt.Errorf("failed to load standard tags: %w", err)}
	}

	rootIb := exifv3.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)

	latitude, err := dmsRationals("GPSLatitude", geo.ToDMS(f.Latitude.Decimal))
	if err != nil {
		return nil, err
	}
	longitude, err := dmsRationals("GPSLongitude", geo.ToDMS(f.Longitude.Decimal))
	if err != nil {
		return nil, err
	}
	altitude, err := measure("GPSAltitude", f.Altitude)
	if err != nil {
		return nil, err
	}

	dpi := []exifcommon.Rational{{Numerator: resolutionDPI, Denominator: 1}}
	primary := []tagValue{
		{"Make", f.Make},
		{"Model", f.Model},
		{"XResolution", dpi},
		{"YResolution", dpi},
		{"ResolutionUnit", []uint16{resolutionUnitInches}},
		{"Software", f.Software},
		{"Orientation", []uint16{orientationNormal}},
	}
	if err := setTags(rootIb, primary); err != nil {
		return nil, err
	}

	exifTags := []tagValue{
		{"DateTimeOriginal", f.DateTime},
		{"DateTimeDigitized", f.DateTime},
	}
	if f.Camera != nil {
		cameraTags, err := f.Camera.tags()
		if err != nil {
			return nil, err
		}
		exifTags = append(exifTags, cameraTags...)
	}
	if err := setChildTags(rootIb, IfdExif, exifTags); err != nil {
		return nil, err
	}

	gps := []tagValue{
		{"GPSLatitudeRef", f.Latitude.Ref},
		{"GPSLatitude", latitude},
		{"GPSLongitudeRef", f.Longitude.Ref},
		{"GPSLongitude", longitude},
		{"GPSAltitude", altitude},
		{"GPSAltitudeRef", []byte{altitudeAboveSea}},
		{"GPSDateStamp", gpsDateStamp(f.DateTime)},
	}
	if err := setChildTags(rootIb, IfdGPS, gps); err != nil {
		return nil, err
	}

	return rootIb, nil
}

type tagValue struct {
	name  string
	value interface{}
}

func (cs *CameraSettings) tags() ([]tagValue, error) {
	focal, err := measure("FocalLength", cs.FocalLength)
	if err != nil {
		return nil, err
	}
	aperture, err := measure("ApertureValue", cs.ApertureValue)
	if err != nil {
		return nil, err
	}
	return []tagValue{
		{"FocalLength", focal},
		{"ApertureValue", aperture},
		{"ExposureProgram", []uint16{cs.ExposureProgram}},
		{"MeteringMode", []uint16{cs.MeteringMode}},
		{"ISOSpeedRatings", []uint16{cs.ISOSpeedRatings}},
		{"WhiteBalance", []uint16{cs.WhiteBalance}},
		{"SceneCaptureType", []uint16{cs.SceneCaptureType}},
	}, nil
}

func setChildTags(rootIb *exifv3.IfdBuilder, ifdPath string, tags []tagValue) error {
	ib, err := exifv3.GetOrCreateIbFromRootIb(rootIb, ifdPath)
	if err != nil {
		return &common.EncodeError{Err: fmt.Errorf("failed to create %s builder: %w", ifdPath, err)}
	}
	return setTags(ib, tags)
}

func setTags(ib *exifv3.IfdBuilder, tags []tagValue) error {
	for _, t := range tags {
		if err := ib.SetStandardWithName(t.name, t.value); err != nil {
			return &common.EncodeError{Tag: t.name, Err: err}
		}
	}
	return nil
}

// dmsRationals converts a DMS triple to unsigned EXIF rationals
func dmsRationals(tag string, d geo.DMS) ([]exifcommon.Rational, error) {
	triple := d.Triple()
	out := make([]exifcommon.Rational, 0, len(triple))
	for _, r := range triple {
		u, err := unsignedRational(tag, r)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// measure stores v with two decimal digits over a denominator of 100
func measure(tag string, v float64) ([]exifcommon.Rational, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, &common.EncodeError{Tag: tag, Err: fmt.Errorf("value %v is not finite", v)}
	}
	r := geo.Rational{Num: int64(math.Round(v * measureDenominator)), Den: measureDenominator}
	u, err := unsignedRational(tag, r)
	if err != nil {
		return nil, err
	}
	return []exifcommon.Rational{u}, nil
}

func unsignedRational(tag string, r geo.Rational) (exifcommon.Rational, error) {
	if r.Num < 0 {
		return exifcommon.Rational{}, &common.EncodeError{
			Tag: tag,
			Err: fmt.Errorf("%s: %w", r, common.ErrNegativeRational),
		}
	}
	if r.Num > math.MaxUint32 || r.Den <= 0 || r.Den > math.MaxUint32 {
		return exifcommon.Rational{}, &common.EncodeError{Tag: tag, Err: fmt.Errorf("%s does not fit an EXIF rational", r)}
	}
	return exifcommon.Rational{Numerator: uint32(r.Num), Denominator: uint32(r.Den)}, nil
}

// gpsDateStamp returns the date part of dateTime as YYYY:MM:DD, or dateTime
// unchanged when no known layout matches
func gpsDateStamp(dateTime string) string {
	s := strings.TrimSpace(dateTime)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006:01:02")
		}
	}
	return dateTime
}
