package exif

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/bstardust/exif-geotag/internal/fshelper"
	"github.com/bstardust/exif-geotag/internal/geo"
	"github.com/bstardust/exif-geotag/internal/metadata"
	"github.com/bstardust/exif-geotag/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 16), 128, 255})
		}
	}
	return img
}

func writeJPEG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(), nil))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

// tiffASCII builds a little-endian TIFF holding ASCII tags in IFD0.
// Every value is longer than four bytes so all of them live out of line.
func tiffASCII(t *testing.T, tags []struct {
	id    uint16
	value string
}) []byte {
	t.Helper()
	le := binary.LittleEndian

	ifdSize := 2 + 12*len(tags) + 4
	dataOffset := 8 + ifdSize

	var header, ifd, data bytes.Buffer
	header.WriteString("II")
	binary.Write(&header, le, uint16(42))
	binary.Write(&header, le, uint32(8))

	binary.Write(&ifd, le, uint16(len(tags)))
	for _, tag := range tags {
		value := append([]byte(tag.value), 0)
		require.Greater(t, len(value), 4)
		binary.Write(&ifd, le, tag.id)
		binary.Write(&ifd, le, uint16(2))
		binary.Write(&ifd, le, uint32(len(value)))
		binary.Write(&ifd, le, uint32(dataOffset+data.Len()))
		data.Write(value)
	}
	binary.Write(&ifd, le, uint32(0))

	return append(append(header.Bytes(), ifd.Bytes()...), data.Bytes()...)
}

// writeJPEGWithExif writes a JPEG whose APP1 segment carries tiff
func writeJPEGWithExif(t *testing.T, path string, tiff []byte) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(), nil))
	plain := buf.Bytes()

	payload := append([]byte("Exif\x00\x00"), tiff...)
	segment := []byte{0xff, 0xe1, 0, 0}
	binary.BigEndian.PutUint16(segment[2:], uint16(len(payload)+2))
	segment = append(segment, payload...)

	out := append([]byte{}, plain[:2]...)
	out = append(out, segment...)
	out = append(out, plain[2:]...)
	require.NoError(t, os.WriteFile(path, out, 0644))
}

func sampleRecord() metadata.Record {
	return metadata.Record{
		metadata.KeyMake:      "Canon",
		metadata.KeyModel:     "EOS 5D",
		metadata.KeySoftware:  "darktable 4.6",
		metadata.KeyAltitude:  "150.0",
		metadata.KeyLatRef:    "N",
		metadata.KeyLongRef:   "W",
		metadata.KeyLatitude:  "34.0522",
		metadata.KeyLongitude: "118.2437",
		metadata.KeyTimestamp: "2023:10:01 12:30:45",
	}
}

func TestBuild_FieldValues(t *testing.T) {
	enc := NewEncoder(nil, Options{})
	fields, err := enc.Resolve(sampleRecord(), sampleRecord(), "", "", 34.0522, 118.2437)
	require.NoError(t, err)
	assert.Equal(t, "EOS 5D", fields.Model)
	assert.Equal(t, "2023:10:01 12:30:45", fields.DateTime)
	assert.Equal(t, 150.0, fields.Altitude)
	assert.Nil(t, fields.Camera)

	blob, err := Build(fields)
	require.NoError(t, err)
	assert.NotEmpty(t, blob)

	alt, err := measure("GPSAltitude", fields.Altitude)
	require.NoError(t, err)
	require.Len(t, alt, 1)
	assert.EqualValues(t, 15000, alt[0].Numerator)
	assert.EqualValues(t, 100, alt[0].Denominator)
}

func TestResolve_ExplicitValuesWin(t *testing.T) {
	enc := NewEncoder(nil, Options{})
	fields, err := enc.Resolve(sampleRecord(), sampleRecord(), "X100V", "2024:01:02 03:04:05", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "X100V", fields.Model)
	assert.Equal(t, "2024:01:02 03:04:05", fields.DateTime)
	assert.Equal(t, 1.0, fields.Latitude.Decimal)
	assert.Equal(t, "N", fields.Latitude.Ref)
	assert.Equal(t, 2.0, fields.Longitude.Decimal)
}

func TestResolve_NumericPolicy(t *testing.T) {
	geoData := metadata.Record{metadata.KeyLatRef: "N", metadata.KeyLongRef: "E"}

	fields, err := NewEncoder(nil, Options{}).Resolve(geoData, metadata.Record{}, "", "", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, fields.Altitude)

	_, err = NewEncoder(nil, Options{NumericPolicy: metadata.Fail}).Resolve(geoData, metadata.Record{}, "", "", 1, 1)
	var fieldErr *common.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, metadata.KeyAltitude, fieldErr.Key)
}

func TestResolve_StrictCoordinates(t *testing.T) {
	enc := NewEncoder(nil, Options{CoordinateCheck: geo.CheckStrict})

	_, err := enc.Resolve(sampleRecord(), sampleRecord(), "", "", 34.0522, 118.2437)
	require.NoError(t, err)

	bad := sampleRecord().With(metadata.KeyLatRef, "Q")
	_, err = enc.Resolve(bad, sampleRecord(), "", "", 34.0522, 118.2437)
	var coordErr *common.CoordinateError
	require.ErrorAs(t, err, &coordErr)
	assert.Equal(t, "latitude", coordErr.Axis)
	assert.Equal(t, "validate", common.Stage(err))
}

func TestResolve_CameraSettings(t *testing.T) {
	meta := sampleRecord()
	meta[metadata.KeyFocalLength] = "50"
	meta[metadata.KeyApertureValue] = "2.8"
	meta[metadata.KeyISOSpeedRatings] = "400"
	meta[metadata.KeyWhiteBalance] = "70000"

	enc := NewEncoder(nil, Options{CameraSettings: true})
	fields, err := enc.Resolve(sampleRecord(), meta, "", "", 34.0522, 118.2437)
	require.NoError(t, err)
	require.NotNil(t, fields.Camera)
	assert.Equal(t, 50.0, fields.Camera.FocalLength)
	assert.EqualValues(t, 400, fields.Camera.ISOSpeedRatings)
	assert.EqualValues(t, 0, fields.Camera.WhiteBalance)

	_, err = NewEncoder(nil, Options{CameraSettings: true, NumericPolicy: metadata.Fail}).
		Resolve(sampleRecord(), meta, "", "", 34.0522, 118.2437)
	assert.ErrorIs(t, err, common.ErrMissingField)
}

func TestEncodeAndView(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "in.jpg"))

	fs := fshelper.NewResolver(dir)
	rec := sampleRecord()
	err := NewEncoder(fs, Options{}).Encode("in.jpg", "out.jpg", rec, rec, "", "", 34.0522, 118.2437)
	require.NoError(t, err)

	listing, err := NewViewer(fs).View("out.jpg")
	require.NoError(t, err)
	require.True(t, listing.HasExif())

	got := make(map[string]string)
	for name, value := range listing.All() {
		got[name] = value
	}

	assert.Equal(t, "Canon", got["Make"])
	assert.Equal(t, "EOS 5D", got["Model"])
	assert.Equal(t, "darktable 4.6", got["Software"])
	assert.Equal(t, "72/1", got["XResolution"])
	assert.Equal(t, "2", got["ResolutionUnit"])
	assert.Equal(t, "1", got["Orientation"])
	assert.Equal(t, "2023:10:01 12:30:45", got["DateTimeOriginal"])
	assert.Equal(t, "2023:10:01 12:30:45", got["DateTimeDigitized"])
	assert.Equal(t, "N", got["GPSLatitudeRef"])
	assert.Equal(t, "34/1, 3/1, 792/100", got["GPSLatitude"])
	assert.Equal(t, "W", got["GPSLongitudeRef"])
	assert.Equal(t, "118/1, 14/1, 3732/100", got["GPSLongitude"])
	assert.Equal(t, "15000/100", got["GPSAltitude"])
	assert.Equal(t, "0", got["GPSAltitudeRef"])
	assert.Equal(t, "2023:10:01", got["GPSDateStamp"])

	// nothing outside the fixed tag set
	assert.Len(t, got, 16)
	assert.NotContains(t, got, "FocalLength")

	entry, ok := listing.Get("GPSLatitude")
	require.True(t, ok)
	assert.Equal(t, IfdGPS, entry.IFD)
	assert.EqualValues(t, 0x0002, entry.ID)

	// independent decoder agrees
	f, err := os.Open(filepath.Join(dir, "out.jpg"))
	require.NoError(t, err)
	defer f.Close()
	data, err := Extract(f)
	require.NoError(t, err)
	assert.Equal(t, "Canon", data.Make)
	require.NotNil(t, data.GPS)
	assert.InDelta(t, 34.0522, data.GPS.Latitude, 1e-4)
	assert.InDelta(t, -118.2437, data.GPS.Longitude, 1e-4)
	assert.InDelta(t, 150.0, data.GPS.Altitude, 1e-9)
	require.NotNil(t, data.DateTime)
	assert.Equal(t, 2023, data.DateTime.Year())
}

func TestEncode_MissingSoftwareIsEmpty(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "in.jpg"))

	fs := fshelper.NewResolver(dir)
	rec := sampleRecord()
	delete(rec, metadata.KeySoftware)
	require.NoError(t, NewEncoder(fs, Options{}).Encode("in.jpg", "out.jpg", rec, rec, "", "", 34.0522, 118.2437))

	listing, err := NewViewer(fs).View("out.jpg")
	require.NoError(t, err)
	entry, ok := listing.Get("Software")
	require.True(t, ok)
	assert.Equal(t, "", entry.Value)
}

func TestEncode_CameraSettingsWritten(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "in.jpg"))

	meta := sampleRecord()
	meta[metadata.KeyFocalLength] = "50"
	meta[metadata.KeyApertureValue] = "2.8"
	meta[metadata.KeyISOSpeedRatings] = "400"

	fs := fshelper.NewResolver(dir)
	require.NoError(t, NewEncoder(fs, Options{CameraSettings: true}).
		Encode("in.jpg", "out.jpg", meta, meta, "", "", 34.0522, 118.2437))

	listing, err := NewViewer(fs).View("out.jpg")
	require.NoError(t, err)
	focal, ok := listing.Get("FocalLength")
	require.True(t, ok)
	assert.Equal(t, "5000/100", focal.Value)
	iso, ok := listing.Get("ISOSpeedRatings")
	require.True(t, ok)
	assert.Equal(t, "400", iso.Value)
}

func TestEncode_PNGInput(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.png"), buf.Bytes(), 0644))

	fs := fshelper.NewResolver(dir)
	rec := sampleRecord()
	require.NoError(t, NewEncoder(fs, Options{}).Encode("in.png", "out.jpg", rec, rec, "", "", 34.0522, 118.2437))

	out, err := os.ReadFile(filepath.Join(dir, "out.jpg"))
	require.NoError(t, err)
	_, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestEncode_DiscardsExistingExif(t *testing.T) {
	dir := t.TempDir()
	tiff := tiffASCII(t, []struct {
		id    uint16
		value string
	}{
		{0x010f, "OldCamera Inc"},
		{0x013b, "Someone Else"},
	})
	writeJPEGWithExif(t, filepath.Join(dir, "in.jpg"), tiff)

	fs := fshelper.NewResolver(dir)
	before, err := NewViewer(fs).View("in.jpg")
	require.NoError(t, err)
	require.True(t, before.HasExif())
	artist, ok := before.Get("Artist")
	require.True(t, ok)
	assert.Equal(t, "Someone Else", artist.Value)

	rec := sampleRecord()
	require.NoError(t, NewEncoder(fs, Options{}).Encode("in.jpg", "out.jpg", rec, rec, "", "", 34.0522, 118.2437))

	after, err := NewViewer(fs).View("out.jpg")
	require.NoError(t, err)
	_, ok = after.Get("Artist")
	assert.False(t, ok)
	newMake, ok := after.Get("Make")
	require.True(t, ok)
	assert.Equal(t, "Canon", newMake.Value)

	// the input is untouched
	again, err := NewViewer(fs).View("in.jpg")
	require.NoError(t, err)
	_, ok = again.Get("Artist")
	assert.True(t, ok)
}

func TestEncode_NegativeCoordinate(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "in.jpg"))

	fs := fshelper.NewResolver(dir)
	rec := sampleRecord().With(metadata.KeyLatRef, "S")
	err := NewEncoder(fs, Options{}).Encode("in.jpg", "out.jpg", rec, rec, "", "", -33.8688, 151.2093)

	var encErr *common.EncodeError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "GPSLatitude", encErr.Tag)
	assert.ErrorIs(t, err, common.ErrNegativeRational)

	ok, err := fs.Exists("out.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEncode_NegativeAltitude(t *testing.T) {
	rec := sampleRecord().With(metadata.KeyAltitude, "-10")
	fields, err := NewEncoder(nil, Options{}).Resolve(rec, rec, "", "", 34.0522, 118.2437)
	require.NoError(t, err)

	_, err = Build(fields)
	var encErr *common.EncodeError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "GPSAltitude", encErr.Tag)
}

func TestEncode_Errors(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "in.jpg"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.jpg"), []byte("not an image"), 0644))

	fs := fshelper.NewResolver(dir)
	enc := NewEncoder(fs, Options{})
	rec := sampleRecord()

	var openErr *common.ImageOpenError
	err := enc.Encode("missing.jpg", "out.jpg", rec, rec, "", "", 1, 1)
	require.ErrorAs(t, err, &openErr)

	err = enc.Encode("junk.jpg", "out.jpg", rec, rec, "", "", 1, 1)
	require.ErrorAs(t, err, &openErr)

	var writeErr *common.ImageWriteError
	err = enc.Encode("in.jpg", filepath.Join("no-such-dir", "out.jpg"), rec, rec, "", "", 1, 1)
	require.ErrorAs(t, err, &writeErr)

	err = enc.Encode("in.jpg", "in.jpg", rec, rec, "", "", 1, 1)
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "encode", common.Stage(err))
}

func TestView_NoExif(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "plain.jpg"))

	listing, err := NewViewer(fshelper.NewResolver(dir)).View("plain.jpg")
	require.NoError(t, err)
	assert.False(t, listing.HasExif())
	assert.Equal(t, 0, listing.Len())
	for range listing.All() {
		t.Fatal("expected no entries")
	}
}

func TestView_Unreadable(t *testing.T) {
	_, err := NewViewer(fshelper.NewResolver(t.TempDir())).View("missing.jpg")
	var viewErr *common.ViewError
	require.ErrorAs(t, err, &viewErr)
	assert.Equal(t, "view", common.Stage(err))
}

func TestGPSDateStamp(t *testing.T) {
	assert.Equal(t, "2023:10:01", gpsDateStamp("2023:10:01 12:30:45"))
	assert.Equal(t, "2023:10:01", gpsDateStamp("2023-10-01T12:30:45Z"))
	assert.Equal(t, "2023:10:01", gpsDateStamp("2023-10-01"))
	assert.Equal(t, "last tuesday", gpsDateStamp("last tuesday"))
	assert.Equal(t, "", gpsDateStamp(""))
}

func TestTagName(t *testing.T) {
	assert.Equal(t, "GPSAltitude", TagName(IfdGPS, 0x0006, ""))
	assert.Equal(t, "Artist", TagName(IfdPrimary, 0x013b, "Artist"))
	assert.Equal(t, "0xbeef", TagName(IfdPrimary, 0xbeef, ""))
}
