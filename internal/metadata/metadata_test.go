package metadata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bstardust/exif-geotag/internal/fshelper"
	"github.com/bstardust/exif-geotag/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `Make,Canon
Model,EOS 5D
Software,darktable 4.6
altitude,150.0
lat_ref,N
long_ref,W
latitude,34.0522
longitude,118.2437
timestamp,2023:10:01 12:30:45
Model,EOS R5
`

func TestParse(t *testing.T) {
	rec, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, "Canon", rec.String(KeyMake))
	// duplicate keys keep the last occurrence
	assert.Equal(t, "EOS R5", rec.String(KeyModel))
	assert.Equal(t, "2023:10:01 12:30:45", rec.String(KeyTimestamp))
	assert.Equal(t, "", rec.String(KeyWhiteBalance))
	assert.False(t, rec.Has(KeyWhiteBalance))
}

func TestParse_QuotedAndShortRows(t *testing.T) {
	input := "Make,\"Fuji, Inc\"\nlonely\n,orphan\nSoftware, padded \n"
	rec, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, "Fuji, Inc", rec.String(KeyMake))
	assert.Equal(t, "padded", rec.String(KeySoftware))
	assert.Len(t, rec, 2)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse(strings.NewReader("Make,\"unterminated\n"))
	assert.Error(t, err)
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta.csv"), []byte(sampleCSV), 0644))

	loader := NewLoader(fshelper.NewResolver(dir))
	rec, err := loader.Load("meta.csv")
	require.NoError(t, err)
	assert.Equal(t, "Canon", rec.String(KeyMake))
}

func TestLoader_MissingFileDegradesToEmpty(t *testing.T) {
	loader := NewLoader(fshelper.NewResolver(t.TempDir()))
	rec, err := loader.Load("missing.csv")

	var csvErr *common.CSVReadError
	require.ErrorAs(t, err, &csvErr)
	assert.True(t, os.IsNotExist(csvErr.Unwrap()))
	require.NotNil(t, rec)
	assert.Empty(t, rec)
	assert.Equal(t, "", rec.String(KeySoftware))
}

func TestRecord_Float(t *testing.T) {
	rec := Record{KeyAltitude: "150.5", KeyLatitude: "north-ish"}

	v, err := rec.Float(KeyAltitude, DefaultZero)
	require.NoError(t, err)
	assert.Equal(t, 150.5, v)

	v, err = rec.Float(KeyLatitude, DefaultZero)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	v, err = rec.Float(KeyLongitude, DefaultZero)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	var fieldErr *common.FieldError
	_, err = rec.Float(KeyLatitude, Fail)
	require.ErrorAs(t, err, &fieldErr)
	assert.ErrorIs(t, err, common.ErrMalformedField)

	_, err = rec.Float(KeyLongitude, Fail)
	assert.ErrorIs(t, err, common.ErrMissingField)
}

func TestRecord_Uint(t *testing.T) {
	rec := Record{KeyISOSpeedRatings: "400", KeyMeteringMode: "5.0", KeyWhiteBalance: "-1"}

	v, err := rec.Uint(KeyISOSpeedRatings, Fail)
	require.NoError(t, err)
	assert.EqualValues(t, 400, v)

	v, err = rec.Uint(KeyMeteringMode, Fail)
	require.NoError(t, err)
	assert.EqualValues(t, 5, v)

	v, err = rec.Uint(KeyWhiteBalance, DefaultZero)
	require.NoError(t, err)
	assert.EqualValues(t, 0, v)

	_, err = rec.Uint(KeyWhiteBalance, Fail)
	assert.Error(t, err)
}

func TestParseNumericPolicy(t *testing.T) {
	p, err := ParseNumericPolicy("fail")
	require.NoError(t, err)
	assert.Equal(t, Fail, p)
	assert.Equal(t, "fail", p.String())

	p, err = ParseNumericPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultZero, p)

	_, err = ParseNumericPolicy("maybe")
	assert.Error(t, err)
}

func TestRecord_UserMetadataAndWith(t *testing.T) {
	rec, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	meta := rec.UserMetadata()
	assert.Equal(t, "Canon", meta["camera-make"])
	assert.Equal(t, "34.0522", meta["geo-latitude"])
	assert.NotContains(t, meta, "white-balance")

	updated := rec.With(KeyModel, "X100V")
	assert.Equal(t, "X100V", updated.String(KeyModel))
	assert.Equal(t, "EOS R5", rec.String(KeyModel))
}
