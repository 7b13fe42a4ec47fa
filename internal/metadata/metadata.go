// Package metadata reads embedded capture metadata (EXIF) from original files.
// Absence of any field is normal; parse failures yield an empty Metadata.
package metadata

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/your-org/pixelmind/internal/models"
)

const exifTimeLayout = "2006:01:02 15:04:05"

const lensModel exif.FieldName = "LensModel"

// Metadata is the subset of capture attributes the pipeline records.
type Metadata struct {
	TakenAt      *time.Time
	Location     *models.GeoPoint
	Camera       string
	Lens         string
	FocalLength  string
	Aperture     string
	ISO          int
	ExposureTime string
	Flash        *bool
	Orientation  int
}

// Empty reports whether no field was extracted.
func (m Metadata) Empty() bool {
	return m.TakenAt == nil && m.Location == nil && m.Camera == "" && m.Lens == "" &&
		m.FocalLength == "" && m.Aperture == "" && m.ISO == 0 && m.ExposureTime == "" &&
		m.Flash == nil && m.Orientation == 0
}

// source abstracts tag lookup so field rules can be exercised without a real file.
type source interface {
	String(name exif.FieldName) (string, bool)
	Rationals(name exif.FieldName) ([]float64, bool)
	Int(name exif.FieldName) (int, bool)
}

// Extract parses original file bytes. It never returns an error.
func Extract(original []byte) (md Metadata) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("exif parse panic", "panic", fmt.Sprint(r))
			md = Metadata{}
		}
	}()

	x, err := exif.Decode(bytes.NewReader(original))
	if err != nil {
		slog.Debug("no exif data", "error", err)
		return Metadata{}
	}
	return fromSource(exifSource{x: x})
}

func fromSource(src source) Metadata {
	var md Metadata

	md.TakenAt = captureTime(src)
	md.Location = location(src)

	mk, _ := src.String(exif.Make)
	model, _ := src.String(exif.Model)
	md.Camera = CameraLabel(mk, model)

	if lens, ok := src.String(lensModel); ok {
		md.Lens = lens
	}
	if v, ok := firstRational(src, exif.FocalLength); ok && v > 0 {
		md.FocalLength = fmt.Sprintf("%smm", trimFloat(v))
	}
	if v, ok := firstRational(src, exif.FNumber); ok && v > 0 {
		md.Aperture = fmt.Sprintf("f/%s", trimFloat(v))
	}
	if v, ok := src.Int(exif.ISOSpeedRatings); ok && v > 0 {
		md.ISO = v
	}
	if v, ok := firstRational(src, exif.ExposureTime); ok && v > 0 {
		md.ExposureTime = FormatExposure(v)
	}
	if v, ok := src.Int(exif.Flash); ok {
		fired := v&1 == 1
		md.Flash = &fired
	}
	if v, ok := src.Int(exif.Orientation); ok && v >= 1 && v <= 8 {
		md.Orientation = v
	}

	return md
}

// captureTime prefers original capture time, then create date, then modified.
func captureTime(src source) *time.Time {
	for _, name := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime} {
		raw, ok := src.String(name)
		if !ok {
			continue
		}
		t, err := time.ParseInLocation(exifTimeLayout, strings.TrimSpace(raw), time.UTC)
		if err != nil || t.Year() < 1800 {
			continue
		}
		return &t
	}
	return nil
}

func location(src source) *models.GeoPoint {
	latDMS, ok := src.Rationals(exif.GPSLatitude)
	if !ok {
		return nil
	}
	lonDMS, ok := src.Rationals(exif.GPSLongitude)
	if !ok {
		return nil
	}
	latRef, _ := src.String(exif.GPSLatitudeRef)
	lonRef, _ := src.String(exif.GPSLongitudeRef)

	lat, ok := DMSToDecimal(latDMS, latRef)
	if !ok {
		return nil
	}
	lon, ok := DMSToDecimal(lonDMS, lonRef)
	if !ok {
		return nil
	}
	if !ValidCoordinates(lat, lon) {
		return nil
	}
	return &models.GeoPoint{Latitude: lat, Longitude: lon}
}

// DMSToDecimal converts degree/minute/second components plus a hemisphere
// reference (N, S, E, W) to signed decimal degrees.
func DMSToDecimal(dms []float64, ref string) (float64, bool) {
	if len(dms) == 0 || len(dms) > 3 {
		return 0, false
	}
	var deg, mins, secs float64
	deg = dms[0]
	if len(dms) > 1 {
		mins = dms[1]
	}
	if len(dms) > 2 {
		secs = dms[2]
	}
	for _, v := range []float64{deg, mins, secs} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return 0, false
		}
	}

	dec := deg + mins/60 + secs/3600
	switch strings.ToUpper(strings.TrimSpace(ref)) {
	case "S", "W":
		dec = -dec
	case "N", "E", "":
	default:
		return 0, false
	}
	return dec, true
}

// ValidCoordinates reports whether lat/lon fall within the WGS84 ranges.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// CameraLabel renders "{make} {model}", or model alone when it already starts
// with make (case-insensitive).
func CameraLabel(mk, model string) string {
	mk = strings.TrimSpace(mk)
	model = strings.TrimSpace(model)
	switch {
	case mk == "" && model == "":
		return ""
	case mk == "":
		return model
	case model == "":
		return mk
	case strings.HasPrefix(strings.ToLower(model), strings.ToLower(mk)):
		return model
	default:
		return mk + " " + model
	}
}

// FormatExposure renders seconds as "{n}s" for long exposures and "1/{n}s" otherwise.
func FormatExposure(seconds float64) string {
	if seconds >= 1 {
		return strconv.FormatFloat(seconds, 'f', -1, 64) + "s"
	}
	return fmt.Sprintf("1/%ds", int(math.Round(1/seconds)))
}

func firstRational(src source, name exif.FieldName) (float64, bool) {
	vals, ok := src.Rationals(name)
	if !ok || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.1f", v)
	return strings.TrimSuffix(s, ".0")
}

// --- goexif adapter ---

type exifSource struct {
	x *exif.Exif
}

func (s exifSource) String(name exif.FieldName) (string, bool) {
	tag, err := s.x.Get(name)
	if err != nil {
		return "", false
	}
	v, err := tag.StringVal()
	if err != nil {
		return "", false
	}
	v = strings.TrimSpace(strings.TrimRight(v, "\x00"))
	return v, v != ""
}

func (s exifSource) Rationals(name exif.FieldName) ([]float64, bool) {
	tag, err := s.x.Get(name)
	if err != nil {
		return nil, false
	}
	vals := make([]float64, 0, tag.Count)
	for i := 0; i < int(tag.Count); i++ {
		num, den, err := tag.Rat2(i)
		if err != nil || den == 0 {
			return nil, false
		}
		vals = append(vals, float64(num)/float64(den))
	}
	return vals, len(vals) > 0
}

func (s exifSource) Int(name exif.FieldName) (int, bool) {
	tag, err := s.x.Get(name)
	if err != nil {
		return 0, false
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0, false
	}
	return v, true
}
