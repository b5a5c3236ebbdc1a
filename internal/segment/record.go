package segment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"taxi-revenue/internal/geo"
)

// Timestamp layouts used by the text records.
const (
	TimeLayout = "2006-01-02 15:04:05"
	DayLayout  = "2006-01-02"
)

const (
	rawFields      = 9
	tripFields     = 10
	tripFieldsFull = 12
)

var errFieldCount = errors.New("unexpected field count")

// ParseError reports a record that could not be decoded.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseRaw decodes an input record of the form
//
//	id,'start',startLat,startLon,'startStatus','end',endLat,endLon,'endStatus'
//
// Quotes around timestamps and status codes are optional. The start status is
// not used. Timestamps are interpreted in loc.
func ParseRaw(line string, loc *time.Location, mode LandmarkMode) (Segment, error) {
	f := strings.Split(line, ",")
	if len(f) < rawFields {
		return Segment{}, &ParseError{Field: "record", Value: line, Err: errFieldCount}
	}
	id, err := parseID(f[0])
	if err != nil {
		return Segment{}, err
	}
	start, err := parseTime("start time", f[1], loc, TimeLayout)
	if err != nil {
		return Segment{}, err
	}
	end, err := parseTime("end time", f[5], loc, TimeLayout)
	if err != nil {
		return Segment{}, err
	}
	coords, err := parseFloats([]string{"start lat", "start lon", "end lat", "end lon"}, f[2], f[3], f[6], f[7])
	if err != nil {
		return Segment{}, err
	}
	status := unquote(f[8])
	if status == "" {
		return Segment{}, &ParseError{Field: "end status", Value: f[8], Err: errors.New("empty status")}
	}
	return New(id, start, end, coords[0], coords[1], coords[2], coords[3], status[0], mode), nil
}

// FormatTrip encodes a trip as an intermediate record:
//
//	id,hours,startLat,startLon,endLat,endLon,occupied,tooFast,nearLandmark,start,distanceKm,segments
func FormatTrip(s Segment, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(s.VehicleID))
	for _, v := range []float64{s.Hours, s.StartLat, s.StartLon, s.EndLat, s.EndLon} {
		b.WriteByte(',')
		b.WriteString(formatFloat(v))
	}
	for _, v := range []bool{s.Occupied, s.TooFast, s.NearLandmark} {
		b.WriteByte(',')
		b.WriteString(strconv.FormatBool(v))
	}
	b.WriteByte(',')
	b.WriteString(s.StartTime.In(loc).Format(TimeLayout))
	b.WriteByte(',')
	b.WriteString(formatFloat(s.DistanceKm))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(s.Segments))
	return b.String()
}

// ParseTrip decodes an intermediate record written by FormatTrip. The short
// ten-field form (without distance and segment count) is also accepted; its
// distance is recomputed from the trip endpoints. Flags are taken as written
// and any value other than "true" reads as false.
func ParseTrip(line string, loc *time.Location) (Segment, error) {
	f := strings.Split(line, ",")
	if len(f) < tripFields || len(f) > tripFieldsFull {
		return Segment{}, &ParseError{Field: "record", Value: line, Err: errFieldCount}
	}
	id, err := parseID(f[0])
	if err != nil {
		return Segment{}, err
	}
	nums, err := parseFloats([]string{"hours", "start lat", "start lon", "end lat", "end lon"}, f[1], f[2], f[3], f[4], f[5])
	if err != nil {
		return Segment{}, err
	}
	start, err := parseTime("start time", f[9], loc, TimeLayout, DayLayout)
	if err != nil {
		return Segment{}, err
	}
	s := Segment{
		VehicleID:    id,
		StartTime:    start,
		Hours:        nums[0],
		StartLat:     nums[1],
		StartLon:     nums[2],
		EndLat:       nums[3],
		EndLon:       nums[4],
		Occupied:     parseBool(f[6]),
		TooFast:      parseBool(f[7]),
		NearLandmark: parseBool(f[8]),
		Segments:     1,
	}
	if len(f) > tripFields {
		d, err := parseFloats([]string{"distance"}, f[10])
		if err != nil {
			return Segment{}, err
		}
		s.DistanceKm = d[0]
	} else {
		s.DistanceKm = geo.Distance(s.StartLat, s.StartLon, s.EndLat, s.EndLon)
	}
	if len(f) == tripFieldsFull {
		n, err := strconv.Atoi(strings.TrimSpace(f[11]))
		if err != nil {
			return Segment{}, &ParseError{Field: "segments", Value: f[11], Err: err}
		}
		s.Segments = n
	}
	return s, nil
}

// DayKey formats the calendar day of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayLayout)
}

func parseID(v string) (int, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return 0, &ParseError{Field: "id", Value: v, Err: err}
	}
	return int(id), nil
}

// parseTime tries each layout in order and reports the first layout's error.
func parseTime(field, v string, loc *time.Location, layouts ...string) (time.Time, error) {
	s := unquote(v)
	var firstErr error
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, &ParseError{Field: field, Value: v, Err: firstErr}
}

func parseFloats(names []string, values ...string) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, &ParseError{Field: names[i], Value: v, Err: err}
		}
		out[i] = f
	}
	return out, nil
}

func parseBool(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

func unquote(v string) string {
	return strings.Trim(strings.TrimSpace(v), "'\"")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
