// Package geo converts decimal-degree coordinates into the
// degrees/minutes/seconds rationals used by GPS EXIF fields.
package geo

import (
	"fmt"
	"math"
	"strings"

	"github.com/bstardust/exif-geotag/pkg/common"
)

// SecondsDenominator is the fixed denominator of the seconds component
const SecondsDenominator = 100

// Rational is a signed numerator/denominator pair
type Rational struct {
	Num int64
	Den int64
}

// Float returns the value of r, or 0 for a zero denominator
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// DMS is a coordinate as degrees, minutes and seconds. Degrees and minutes
// are whole units; seconds carry two decimal digits.
type DMS struct {
	Degrees Rational
	Minutes Rational
	Seconds Rational
}

// ToDMS converts decimal degrees to DMS. The sign is not split out:
// a negative input yields negative components, and the hemisphere is
// expected to travel in the reference field instead.
func ToDMS(value float64) DMS {
	degrees := math.Trunc(value)
	minutes := math.Trunc((value - degrees) * 60)
	seconds := roundPlaces((value-degrees-minutes/60)*3600, 5)

	return DMS{
		Degrees: Rational{Num: int64(degrees), Den: 1},
		Minutes: Rational{Num: int64(minutes), Den: 1},
		Seconds: Rational{Num: int64(math.RoundToEven(seconds * SecondsDenominator)), Den: SecondsDenominator},
	}
}

// Decimal converts d back to decimal degrees
func (d DMS) Decimal() float64 {
	return d.Degrees.Float() + d.Minutes.Float()/60 + d.Seconds.Float()/3600
}

// Triple returns the three components in EXIF order
func (d DMS) Triple() [3]Rational {
	return [3]Rational{d.Degrees, d.Minutes, d.Seconds}
}

func (d DMS) String() string {
	return fmt.Sprintf("%d° %d' %.2f\"", d.Degrees.Num, d.Minutes.Num, d.Seconds.Float())
}

func roundPlaces(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Coordinate is a decimal-degree value with its hemisphere reference
type Coordinate struct {
	Decimal float64
	Ref     string
}

// CheckMode selects whether coordinates are validated before encoding
type CheckMode string

const (
	// CheckOff trusts the caller; nothing is validated
	CheckOff CheckMode = "off"
	// CheckStrict validates reference letters, sign agreement and range
	CheckStrict CheckMode = "strict"
)

// ParseCheckMode maps a configuration value to a CheckMode
func ParseCheckMode(s string) (CheckMode, error) {
	switch CheckMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", CheckOff:
		return CheckOff, nil
	case CheckStrict:
		return CheckStrict, nil
	}
	return CheckOff, common.NewConfigError(fmt.Sprintf("unknown coordinate check mode %q", s))
}

// CheckLatitude validates c as a latitude under mode
func CheckLatitude(c Coordinate, mode CheckMode) error {
	return check("latitude", c, mode, 90, "N", "S")
}

// CheckLongitude validates c as a longitude under mode
func CheckLongitude(c Coordinate, mode CheckMode) error {
	return check("longitude", c, mode, 180, "E", "W")
}

func check(axis string, c Coordinate, mode CheckMode, limit float64, positive, negative string) error {
	if mode != CheckStrict {
		return nil
	}
	fail := func(msg string) error {
		return &common.CoordinateError{Axis: axis, Value: c.Decimal, Ref: c.Ref, Message: msg}
	}

	if math.IsNaN(c.Decimal) || math.IsInf(c.Decimal, 0) {
		return fail("not a finite number")
	}
	if math.Abs(c.Decimal) > limit {
		return fail(fmt.Sprintf("magnitude exceeds %v", limit))
	}
	switch c.Ref {
	case positive:
		if c.Decimal < 0 {
			return fail(fmt.Sprintf("negative value with reference %s", positive))
		}
	case negative:
		if c.Decimal < 0 {
			return fail(fmt.Sprintf("negative value with reference %s; pass the magnitude", negative))
		}
	default:
		return fail(fmt.Sprintf("reference must be %s or %s", positive, negative))
	}
	return nil
}
