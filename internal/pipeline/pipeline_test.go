package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taxi-revenue/internal/db"
	"taxi-revenue/internal/geo"
	"taxi-revenue/internal/publisher"
	"taxi-revenue/internal/revenue"
	"taxi-revenue/internal/segment"
	"taxi-revenue/internal/stream"
)

func rawLine(id int, start, end string, sLat, sLon, eLat, eLon float64, status string) string {
	return fmt.Sprintf("%d,'%s',%v,%v,'M','%s',%v,%v,'%s'", id, start, sLat, sLon, end, eLat, eLon, status)
}

func testOptions() Options {
	return Options{Location: time.UTC, Workers: 4, RunID: "test"}
}

type fakePublisher struct {
	trips     []publisher.TripMessage
	summaries []revenue.Summary
	err       error
}

func (f *fakePublisher) PublishTrip(msg publisher.TripMessage) error {
	if f.err != nil {
		return f.err
	}
	f.trips = append(f.trips, msg)
	return nil
}

func (f *fakePublisher) PublishSummary(sum revenue.Summary) error {
	f.summaries = append(f.summaries, sum)
	return nil
}

func parseOutput(t *testing.T, out string) []segment.Segment {
	t.Helper()
	var trips []segment.Segment
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		s, err := segment.ParseTrip(line, time.UTC)
		if err != nil {
			t.Fatalf("ParseTrip(%q): %v", line, err)
		}
		trips = append(trips, s)
	}
	return trips
}

var reconstructInput = strings.Join([]string{
	rawLine(7, "2010-01-01 08:30:00", "2010-01-01 09:00:00", 0, 1, 0, 2, "M"),
	"not,a,record",
	rawLine(3, "2010-01-01 10:00:00", "2010-01-01 10:10:00", 5, 5, 5, 6, "E"),
	rawLine(7, "2010-01-01 08:00:00", "2010-01-01 08:30:00", 0, 0, 0, 1, "M"),
}, "\n")

func TestReconstructMergesPerVehicle(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	st, err := Reconstruct(context.Background(), strings.NewReader(reconstructInput), &out, testOptions(), Sinks{})
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if st.Read != 4 || st.Skipped != 1 || st.Vehicles != 2 || st.Trips != 1 {
		t.Fatalf("stats=%+v", st)
	}

	trips := parseOutput(t, out.String())
	if len(trips) != 1 {
		t.Fatalf("got %d trips want 1", len(trips))
	}
	trip := trips[0]
	if trip.VehicleID != 7 || trip.Segments != 2 {
		t.Fatalf("trip=%+v", trip)
	}
	if trip.StartLon != 0 || trip.EndLon != 2 || math.Abs(trip.Hours-1) > 1e-9 {
		t.Fatalf("trip span (%v -> %v, %vh) want (0 -> 2, 1h)", trip.StartLon, trip.EndLon, trip.Hours)
	}
	want := geo.Distance(0, 0, 0, 1) + geo.Distance(0, 1, 0, 2)
	if math.Abs(trip.DistanceKm-want) > 1e-9 {
		t.Fatalf("distance=%v want %v", trip.DistanceKm, want)
	}
	if !trip.StartTime.Equal(time.Date(2010, 1, 1, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("start=%v want 08:00", trip.StartTime)
	}
}

func TestReconstructEmitEmptyTrips(t *testing.T) {
	t.Parallel()

	opts := testOptions()
	opts.EmitEmptyTrips = true
	var out bytes.Buffer
	if _, err := Reconstruct(context.Background(), strings.NewReader(reconstructInput), &out, opts, Sinks{}); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	trips := parseOutput(t, out.String())
	if len(trips) != 2 || trips[0].VehicleID != 3 || trips[0].Occupied || trips[1].VehicleID != 7 {
		t.Fatalf("trips=%+v want unoccupied vehicle 3 then vehicle 7", trips)
	}
}

func TestReconstructFailFast(t *testing.T) {
	t.Parallel()

	opts := testOptions()
	opts.Policy = stream.FailFast
	var out bytes.Buffer
	_, err := Reconstruct(context.Background(), strings.NewReader(reconstructInput), &out, opts, Sinks{})
	var perr *segment.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("err=%v want a ParseError", err)
	}
}

func TestReconstructSkipsOverlongRecord(t *testing.T) {
	t.Parallel()

	in := strings.Join([]string{
		rawLine(7, "2010-01-01 08:00:00", "2010-01-01 08:30:00", 0, 0, 0, 1, "M"),
		strings.Repeat("junk,", 2<<20/5),
		rawLine(7, "2010-01-01 08:30:00", "2010-01-01 09:00:00", 0, 1, 0, 2, "M"),
	}, "\n")
	var out bytes.Buffer
	st, err := Reconstruct(context.Background(), strings.NewReader(in), &out, testOptions(), Sinks{})
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if st.Read != 3 || st.Skipped != 1 || st.Trips != 1 {
		t.Fatalf("stats=%+v want Read=3 Skipped=1 Trips=1", st)
	}
	trips := parseOutput(t, out.String())
	if len(trips) != 1 || trips[0].Segments != 2 {
		t.Fatalf("trips=%+v want one two-segment trip", trips)
	}
}

func TestReconstructSinks(t *testing.T) {
	t.Parallel()

	sqlDB, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "r.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer sqlDB.Close()
	ctx := context.Background()
	if err := db.Migrate(ctx, sqlDB, db.DriverSQLite); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	pub := &fakePublisher{}
	sinks := Sinks{DB: sqlDB, DBDriver: db.DriverSQLite, Publisher: pub}
	var out bytes.Buffer
	if _, err := Reconstruct(ctx, strings.NewReader(reconstructInput), &out, testOptions(), sinks); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	n, err := db.CountTrips(ctx, sqlDB, db.DriverSQLite, "test")
	if err != nil || n != 1 {
		t.Fatalf("CountTrips=%d,%v want 1", n, err)
	}
	if len(pub.trips) != 1 || pub.trips[0].VehicleID != 7 || pub.trips[0].Path == "" {
		t.Fatalf("published=%+v", pub.trips)
	}

	pub.err = errors.New("nats down")
	if _, err := Reconstruct(ctx, strings.NewReader(reconstructInput), &out, testOptions(), Sinks{Publisher: pub}); err == nil {
		t.Fatal("publish failure did not fail the job")
	}
}

// airportTrip starts south of the landmark and heads north past it.
func airportTrip(id int, start time.Time, minutes int) segment.Segment {
	return segment.New(id, start, start.Add(time.Duration(minutes)*time.Minute),
		segment.LandmarkLat-0.05, segment.LandmarkLon, segment.LandmarkLat+0.05, segment.LandmarkLon+0.001,
		'M', segment.LineMode)
}

func tripsInput(trips ...segment.Segment) string {
	var b strings.Builder
	for _, t := range trips {
		b.WriteString(segment.FormatTrip(t, time.UTC))
		b.WriteByte('\n')
	}
	return b.String()
}

func TestRevenue(t *testing.T) {
	t.Parallel()

	day := time.Date(2010, 12, 31, 9, 0, 0, 0, time.UTC)
	valid := airportTrip(1, day, 20)
	tooFast := airportTrip(2, day, 1)
	empty := airportTrip(3, day, 20)
	empty.Occupied = false
	if !tooFast.TooFast || !revenue.Valid(valid) {
		t.Fatalf("fixture flags wrong: valid=%+v tooFast=%+v", valid, tooFast)
	}

	pub := &fakePublisher{}
	var out bytes.Buffer
	in := tripsInput(valid, tooFast, empty, valid) + "garbage\n"
	sum, err := Revenue(context.Background(), strings.NewReader(in), &out, testOptions(), Sinks{Publisher: pub})
	if err != nil {
		t.Fatalf("Revenue: %v", err)
	}
	wantRevenue := 2 * revenue.Fare(valid)
	if sum.Trips != 2 || math.Abs(sum.Revenue-wantRevenue) > 1e-9 {
		t.Fatalf("sum=%+v want {%v 2}", sum, wantRevenue)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || lines[0] != formatAmount(sum.Revenue) || lines[1] != "2" {
		t.Fatalf("output=%q", out.String())
	}
	if len(pub.summaries) != 1 || pub.summaries[0] != sum {
		t.Fatalf("published summaries=%v", pub.summaries)
	}
}

func TestSeriesSumsByDay(t *testing.T) {
	t.Parallel()

	d1 := time.Date(2010, 12, 31, 9, 0, 0, 0, time.UTC)
	d2 := time.Date(2011, 1, 1, 0, 30, 0, 0, time.UTC)
	a := airportTrip(1, d1, 20)
	b := airportTrip(2, d1.Add(3*time.Hour), 20)
	c := airportTrip(3, d2, 20)
	still := airportTrip(4, d2, 20)
	still.DistanceKm = 0

	sqlDB, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "s.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer sqlDB.Close()
	ctx := context.Background()
	if err := db.Migrate(ctx, sqlDB, db.DriverSQLite); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	var out bytes.Buffer
	rows, err := Series(ctx, strings.NewReader(tripsInput(c, a, still, b)), &out, testOptions(),
		Sinks{DB: sqlDB, DBDriver: db.DriverSQLite})
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(rows) != 2 || rows[0].Day != "2010-12-31" || rows[1].Day != "2011-01-01" {
		t.Fatalf("rows=%v", rows)
	}
	if want := revenue.Fare(a) + revenue.Fare(b); math.Abs(rows[0].Revenue-want) > 1e-9 {
		t.Fatalf("day 1 revenue=%v want %v", rows[0].Revenue, want)
	}
	if want := revenue.Fare(c); math.Abs(rows[1].Revenue-want) > 1e-9 {
		t.Fatalf("day 2 revenue=%v want %v", rows[1].Revenue, want)
	}
	wantOut := fmt.Sprintf("2010-12-31\t%s\n2011-01-01\t%s\n", formatAmount(rows[0].Revenue), formatAmount(rows[1].Revenue))
	if out.String() != wantOut {
		t.Fatalf("output=%q want %q", out.String(), wantOut)
	}

	stored, err := db.LoadDailyRevenue(ctx, sqlDB)
	if err != nil || len(stored) != 2 {
		t.Fatalf("LoadDailyRevenue=%v,%v", stored, err)
	}
}

type memStore struct {
	objects map[string][]byte
	meta    map[string]map[string]string
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStore) Put(_ context.Context, key string, body []byte, meta map[string]string) error {
	m.objects[key] = body
	m.meta[key] = meta
	return nil
}

func TestArchiveSkipsExisting(t *testing.T) {
	t.Parallel()

	store := &memStore{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
	in := tripsInput(airportTrip(1, time.Date(2010, 12, 31, 9, 0, 0, 0, time.UTC), 20))
	ctx := context.Background()

	skipped, err := Archive(ctx, strings.NewReader(in), "trips/x.parquet", testOptions(), store)
	if err != nil || skipped {
		t.Fatalf("first Archive=%v,%v want uploaded", skipped, err)
	}
	if len(store.objects["trips/x.parquet"]) == 0 {
		t.Fatal("nothing uploaded")
	}
	if m := store.meta["trips/x.parquet"]; m["rows"] != "1" || m["valid"] != "1" || m["run"] != "test" {
		t.Fatalf("metadata=%v", m)
	}

	skipped, err = Archive(ctx, strings.NewReader(in), "trips/x.parquet", testOptions(), store)
	if err != nil || !skipped {
		t.Fatalf("second Archive=%v,%v want skipped", skipped, err)
	}
}
