package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"taxi-revenue/internal/segment"
	"taxi-revenue/internal/stream"
)

type Config struct {
	InputPath   string
	TripsPath   string
	RevenuePath string
	SeriesPath  string

	Workers        int
	Location       *time.Location
	Policy         stream.Policy
	EmitEmptyTrips bool
	LandmarkMode   segment.LandmarkMode

	DatabaseURL string
	DBDriver    string
	ResultsDB   string

	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	MetricsAddr string

	R2Endpoint        string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		InputPath:   os.Getenv("INPUT_PATH"),
		TripsPath:   getenvDefault("TRIPS_PATH", "trips.txt"),
		RevenuePath: getenvDefault("REVENUE_PATH", "revenue.txt"),
		SeriesPath:  getenvDefault("SERIES_PATH", "series.txt"),
	}

	// Worker count for per-vehicle reconstruction
	if v := os.Getenv("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid WORKERS: %q", v)
		}
		cfg.Workers = n
	} else {
		cfg.Workers = runtime.NumCPU()
	}

	// Time zone for record timestamps and day keys
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	if parseBool(os.Getenv("FAIL_FAST")) {
		cfg.Policy = stream.FailFast
	}
	cfg.EmitEmptyTrips = parseBool(os.Getenv("EMIT_EMPTY_TRIPS"))

	mode, err := segment.ParseLandmarkMode(os.Getenv("LANDMARK_MODE"))
	if err != nil {
		return nil, fmt.Errorf("invalid LANDMARK_MODE: %q", os.Getenv("LANDMARK_MODE"))
	}
	cfg.LandmarkMode = mode

	// Result store: pgx (DSN from DATABASE_URL / PG_DSN / PG* vars) or sqlite (file path)
	cfg.DBDriver = strings.ToLower(getenvDefault("DB_DRIVER", "pgx"))
	switch cfg.DBDriver {
	case "pgx", "postgres":
		cfg.DBDriver = "pgx"
		cfg.DatabaseURL = postgresDSN()
	case "sqlite":
		cfg.DatabaseURL = os.Getenv("SQLITE_PATH")
	default:
		return nil, fmt.Errorf("invalid DB_DRIVER: %q", cfg.DBDriver)
	}
	cfg.ResultsDB = os.Getenv("RESULTS_DB")

	// Empty NATS_URL disables trip publishing
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "trips")
	if strings.ContainsAny(cfg.NATSSubjectPrefix, " *>") {
		return nil, fmt.Errorf("invalid NATS_SUBJECT_PREFIX: %q", cfg.NATSSubjectPrefix)
	}
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	cfg.R2Endpoint = os.Getenv("R2_ENDPOINT")
	cfg.R2AccessKeyID = os.Getenv("R2_ACCESS_KEY_ID")
	cfg.R2SecretAccessKey = os.Getenv("R2_SECRET_ACCESS_KEY")
	cfg.R2Bucket = getenvDefault("R2_BUCKET", "taxi-revenue")

	return cfg, nil
}

// ArchiveEnabled reports whether all R2 credentials are present.
func (c *Config) ArchiveEnabled() bool {
	return c.R2Endpoint != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != ""
}

// postgresDSN prefers DATABASE_URL / PG_DSN and otherwise builds a DSN from the
// PG* vars. It returns "" when nothing points at a database.
func postgresDSN() string {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn
	}
	db := os.Getenv("PGDATABASE")
	if db == "" {
		return ""
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
