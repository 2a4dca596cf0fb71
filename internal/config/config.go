package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	// Timetable source: a database DSN (PostgreSQL or SQLite) or a GTFS zip.
	DatabaseURL string `validate:"required_without=GTFSZip"`
	GTFSZip     string `validate:"required_without=DatabaseURL"`
	City        string
	// ServiceDateFilter keeps only trips running on the current service day.
	ServiceDateFilter bool
	Location          *time.Location `validate:"required"`

	HTTPAddr    string
	NATSURL     string `validate:"omitempty,url"`
	NATSSubject string `validate:"required_with=NATSURL"`
	NATSQueue   string
	MetricsAddr string

	Strategy        string  `validate:"oneof=csa dijkstra astar"`
	TransferMode    string  `validate:"oneof=explicit synthesized both"`
	MaxWalkRadius   float64 `validate:"gte=0,lte=5000"`
	AccessRadius    float64 `validate:"gt=0,lte=5000"`
	WalkingSpeed    float64 `validate:"gt=0,lte=5"`
	MaxVehicleSpeed float64 `validate:"gte=0"`
	MaxJourney      time.Duration
	BuildWorkers    int `validate:"gte=1"`
	ReloadInterval  time.Duration
}

var validate = validator.New()

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.GTFSZip = os.Getenv("GTFS_ZIP")
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars unless a zip is configured
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" && cfg.GTFSZip == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		// If CITY is provided, default base DB to 'postgres' when PGDATABASE is not set.
		if db == "" && cfg.City != "" {
			db = "postgres"
		}
		if db == "" {
			return nil, errors.New("GTFS_ZIP, DATABASE_URL or PGDATABASE must be set (set PGDATABASE=postgres when using CITY)")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			dsn = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	}
	cfg.DatabaseURL = dsn

	var err error
	if cfg.ServiceDateFilter, err = getenvBool("SERVICE_DATE_FILTER", true); err != nil {
		return nil, err
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":8080")
	// NATS is optional: empty NATS_URL disables the request/reply listener.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubject = getenvDefault("NATS_SUBJECT", "planner.route")
	cfg.NATSQueue = getenvDefault("NATS_QUEUE", "planner")
	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	cfg.Strategy = strings.ToLower(getenvDefault("ROUTING_STRATEGY", "csa"))
	cfg.TransferMode = strings.ToLower(getenvDefault("TRANSFER_MODE", "both"))

	if cfg.MaxWalkRadius, err = getenvFloat("MAX_WALK_RADIUS_M", 400); err != nil {
		return nil, err
	}
	if cfg.AccessRadius, err = getenvFloat("ACCESS_RADIUS_M", 800); err != nil {
		return nil, err
	}
	if cfg.WalkingSpeed, err = getenvFloat("WALKING_SPEED_MPS", 1.39); err != nil {
		return nil, err
	}
	if cfg.MaxVehicleSpeed, err = getenvFloat("MAX_VEHICLE_SPEED_MPS", 40); err != nil {
		return nil, err
	}

	// Max journey duration (minutes)
	if v := os.Getenv("MAX_JOURNEY_MINUTES"); v != "" {
		min, err := strconv.Atoi(v)
		if err != nil || min <= 0 {
			return nil, fmt.Errorf("invalid MAX_JOURNEY_MINUTES: %q", v)
		}
		cfg.MaxJourney = time.Duration(min) * time.Minute
	} else {
		cfg.MaxJourney = 4 * time.Hour
	}

	if v := os.Getenv("BUILD_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid BUILD_WORKERS: %q", v)
		}
		cfg.BuildWorkers = n
	} else {
		cfg.BuildWorkers = runtime.GOMAXPROCS(0)
	}

	// Reload check interval (minutes); 0 disables reloading
	if v := os.Getenv("RELOAD_INTERVAL_MIN"); v != "" {
		min, err := strconv.Atoi(v)
		if err != nil || min < 0 {
			return nil, fmt.Errorf("invalid RELOAD_INTERVAL_MIN: %q", v)
		}
		cfg.ReloadInterval = time.Duration(min) * time.Minute
	} else {
		cfg.ReloadInterval = 30 * time.Minute
	}

	// Time zone
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

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvFloat(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return f, nil
}

func getenvBool(k string, def bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s: %q", k, v)
	}
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
