// Package archive writes reconstructed trips as parquet and uploads them to
// an S3-compatible bucket.
package archive

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"taxi-revenue/internal/geo"
	"taxi-revenue/internal/revenue"
	"taxi-revenue/internal/segment"
)

// TripRow is the parquet schema of one trip.
type TripRow struct {
	VehicleID    int32   `parquet:"vehicle_id"`
	StartTime    string  `parquet:"start_time"`
	Day          string  `parquet:"day"`
	Hours        float64 `parquet:"hours"`
	StartLat     float64 `parquet:"start_lat"`
	StartLon     float64 `parquet:"start_lon"`
	EndLat       float64 `parquet:"end_lat"`
	EndLon       float64 `parquet:"end_lon"`
	Occupied     bool    `parquet:"occupied"`
	TooFast      bool    `parquet:"too_fast"`
	NearLandmark bool    `parquet:"near_landmark"`
	DistanceKm   float64 `parquet:"distance_km"`
	ChordKm      float64 `parquet:"chord_km"` // great-circle start to end
	Segments     int32   `parquet:"segments"`
	Fare         float64 `parquet:"fare"` // 0 unless the trip earns revenue
}

// Rows converts trips to parquet rows with timestamps rendered in loc.
func Rows(trips []segment.Segment, loc *time.Location) []TripRow {
	rows := make([]TripRow, 0, len(trips))
	for _, t := range trips {
		row := TripRow{
			VehicleID:    int32(t.VehicleID),
			StartTime:    t.StartTime.In(loc).Format(time.RFC3339),
			Day:          segment.DayKey(t.StartTime, loc),
			Hours:        t.Hours,
			StartLat:     t.StartLat,
			StartLon:     t.StartLon,
			EndLat:       t.EndLat,
			EndLon:       t.EndLon,
			Occupied:     t.Occupied,
			TooFast:      t.TooFast,
			NearLandmark: t.NearLandmark,
			DistanceKm:   t.DistanceKm,
			ChordKm:      geo.GreatCircleKm(t.StartLat, t.StartLon, t.EndLat, t.EndLon),
			Segments:     int32(t.Segments),
		}
		if revenue.Valid(t) {
			row.Fare = revenue.Fare(t)
		}
		rows = append(rows, row)
	}
	return rows
}

// Encode writes trips as a parquet file.
func Encode(trips []segment.Segment, loc *time.Location) ([]byte, error) {
	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[TripRow](&buf)
	if _, err := writer.Write(Rows(trips, loc)); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Key returns the object key for the trips file at path:
// trips/<base name without extension>.parquet.
func Key(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "trips"
	}
	return fmt.Sprintf("trips/%s.parquet", base)
}
