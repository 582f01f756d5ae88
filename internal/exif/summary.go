package exif

import (
	"fmt"
	"io"
	"time"

	goexif "github.com/rwcarlsen/goexif/exif"
)

// Data is a typed summary of the fields this tool writes
type Data struct {
	DateTime *time.Time
	GPS      *GPSInfo
	Make     string
	Model    string
	Software string
}

// GPSInfo represents GPS information from EXIF
type GPSInfo struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

func (d *Data) String() string {
	s := fmt.Sprintf("make=%q model=%q software=%q", d.Make, d.Model, d.Software)
	if d.DateTime != nil {
		s += " taken=" + d.DateTime.Format(time.DateTime)
	}
	if d.GPS != nil {
		s += fmt.Sprintf(" gps=%.5f,%.5f alt=%.2f", d.GPS.Latitude, d.GPS.Longitude, d.GPS.Altitude)
	}
	return s
}

// Extract extracts EXIF metadata from a reader
func Extract(r io.Reader) (*Data, error) {
	x, err := goexif.Decode(r)
	if err != nil {
		return nil, err
	}

	data := &Data{
		Make:     stringTag(x, goexif.Make),
		Model:    stringTag(x, goexif.Model),
		Software: stringTag(x, goexif.Software),
	}

	if dt, err := x.DateTime(); err == nil {
		data.DateTime = &dt
	}

	if lat, long, err := x.LatLong(); err == nil {
		data.GPS = &GPSInfo{
			Latitude:  lat,
			Longitude: long,
		}

		if alt, err := x.Get(goexif.GPSAltitude); err == nil {
			if num, den, err := alt.Rat2(0); err == nil && den != 0 {
				data.GPS.Altitude = float64(num) / float64(den)
			}
		}
	}

	return data, nil
}

func stringTag(x *goexif.Exif, name goexif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	str, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return str
}
