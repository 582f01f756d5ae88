package geo

import (
	"math"
	"testing"

	"github.com/bstardust/exif-geotag/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDMS_KnownValues(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  DMS
	}{
		{
			name:  "los angeles latitude",
			value: 34.0522,
			want:  DMS{Rational{34, 1}, Rational{3, 1}, Rational{792, 100}},
		},
		{
			name:  "los angeles longitude magnitude",
			value: 118.2437,
			want:  DMS{Rational{118, 1}, Rational{14, 1}, Rational{3732, 100}},
		},
		{
			name:  "whole degrees",
			value: 45,
			want:  DMS{Rational{45, 1}, Rational{0, 1}, Rational{0, 100}},
		},
		{
			name:  "zero",
			value: 0,
			want:  DMS{Rational{0, 1}, Rational{0, 1}, Rational{0, 100}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToDMS(tt.value))
		})
	}
}

func TestToDMS_NegativeInputKeepsSign(t *testing.T) {
	// Truncation is toward zero, so every component of a negative value is negative.
	got := ToDMS(-33.8688)
	assert.Equal(t, Rational{-33, 1}, got.Degrees)
	assert.Equal(t, Rational{-52, 1}, got.Minutes)
	assert.Equal(t, Rational{-768, 100}, got.Seconds)
	assert.InDelta(t, -33.8688, got.Decimal(), 1e-4)
}

func TestToDMS_RoundTrip(t *testing.T) {
	for d := -180.0; d <= 180.0; d += 0.3737 {
		got := ToDMS(d).Decimal()
		if math.Abs(got-d) > 1e-4 {
			t.Fatalf("round trip of %v gave %v", d, got)
		}
	}
}

func TestToDMS_Denominators(t *testing.T) {
	for _, v := range []float64{1.5, 12.3456, 89.99999, 179.0001} {
		d := ToDMS(v)
		assert.EqualValues(t, 1, d.Degrees.Den)
		assert.EqualValues(t, 1, d.Minutes.Den)
		assert.EqualValues(t, SecondsDenominator, d.Seconds.Den)
	}
}

func TestRational(t *testing.T) {
	assert.Equal(t, 0.0, Rational{5, 0}.Float())
	assert.Equal(t, 7.92, Rational{792, 100}.Float())
	assert.Equal(t, "792/100", Rational{792, 100}.String())
	assert.Equal(t, `34° 3' 7.92"`, ToDMS(34.0522).String())
}

func TestParseCheckMode(t *testing.T) {
	m, err := ParseCheckMode("")
	require.NoError(t, err)
	assert.Equal(t, CheckOff, m)

	m, err = ParseCheckMode("STRICT")
	require.NoError(t, err)
	assert.Equal(t, CheckStrict, m)

	_, err = ParseCheckMode("loose")
	assert.Error(t, err)
}

func TestCheckCoordinates(t *testing.T) {
	var coordErr *common.CoordinateError

	// off mode trusts anything
	assert.NoError(t, CheckLatitude(Coordinate{Decimal: -500, Ref: "X"}, CheckOff))

	assert.NoError(t, CheckLatitude(Coordinate{Decimal: 34.05, Ref: "N"}, CheckStrict))
	assert.NoError(t, CheckLatitude(Coordinate{Decimal: 33.86, Ref: "S"}, CheckStrict))
	assert.NoError(t, CheckLongitude(Coordinate{Decimal: 118.24, Ref: "W"}, CheckStrict))

	err := CheckLatitude(Coordinate{Decimal: -33.86, Ref: "S"}, CheckStrict)
	require.ErrorAs(t, err, &coordErr)
	assert.Equal(t, "latitude", coordErr.Axis)

	assert.ErrorAs(t, CheckLatitude(Coordinate{Decimal: 91, Ref: "N"}, CheckStrict), &coordErr)
	assert.ErrorAs(t, CheckLongitude(Coordinate{Decimal: 10, Ref: "N"}, CheckStrict), &coordErr)
	assert.ErrorAs(t, CheckLongitude(Coordinate{Decimal: math.NaN(), Ref: "E"}, CheckStrict), &coordErr)
	assert.ErrorAs(t, CheckLongitude(Coordinate{Decimal: 181, Ref: "E"}, CheckStrict), &coordErr)
}
