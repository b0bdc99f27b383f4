package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// config são os ajustes de processo; as credenciais vêm do settings.
type config struct {
	settingsPath string
	loginURL     string

	rateEnabled        bool
	rateRPS            float64
	rateBurst          int
	rateKeyHeader      string
	concurrencyMax     int
	concurrencyTimeout time.Duration

	pollInterval   time.Duration
	requestTimeout time.Duration
	maxRecords     int

	statsRedisAddr     string
	statsRedisPassword string
	statsRedisDB       int
	statsPrefix        string
	statsTTL           time.Duration
	statsBucket        string
	statsTrackKeys     bool

	historyPath string
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.settingsPath = os.Getenv("SF_SETTINGS")
	cfg.loginURL = os.Getenv("SF_LOGIN_URL")

	cfg.rateEnabled = getenvBoolDefault("SF_RATE_ENABLED", true)
	cfg.rateRPS = getenvFloatDefault("SF_RATE_RPS", 10)
	// Com RPS baixo (ex: 0.5) um burst de 20 esconde o limite nas primeiras chamadas.
	if burst, ok := getenvInt("SF_RATE_BURST"); ok {
		cfg.rateBurst = burst
	} else {
		cfg.rateBurst = 20
		if getenvIsSet("SF_RATE_RPS") && cfg.rateRPS > 0 && cfg.rateRPS < 1 {
			cfg.rateBurst = 1
		}
	}
	cfg.rateKeyHeader = os.Getenv("SF_RATE_KEY_HEADER")
	cfg.concurrencyMax = getenvIntDefault("SF_CONCURRENCY_MAX", 10)
	cfg.concurrencyTimeout = getenvDurationDefault("SF_CONCURRENCY_TIMEOUT", 0)

	cfg.pollInterval = getenvDurationDefault("SF_POLL_INTERVAL", 5*time.Second)
	cfg.requestTimeout = getenvDurationDefault("SF_REQUEST_TIMEOUT", 30*time.Second)
	cfg.maxRecords = getenvIntDefault("SF_MAX_RECORDS", 0)

	cfg.statsRedisAddr = os.Getenv("SF_STATS_REDIS_ADDR")
	cfg.statsRedisPassword = os.Getenv("SF_STATS_REDIS_PASSWORD")
	cfg.statsRedisDB = getenvIntDefault("SF_STATS_REDIS_DB", 0)
	cfg.statsPrefix = getenvDefault("SF_STATS_PREFIX", "salesforce:calls")
	cfg.statsTTL = getenvDurationDefault("SF_STATS_TTL", 24*time.Hour)
	cfg.statsBucket = getenvDefault("SF_STATS_BUCKET", "minute")
	cfg.statsTrackKeys = getenvBoolDefault("SF_STATS_TRACK_KEYS", false)

	cfg.historyPath = getenvDefault("SF_HISTORY_DB", defaultHistoryPath())

	if cfg.rateEnabled && cfg.rateRPS <= 0 {
		return config{}, errors.New("SF_RATE_RPS must be > 0")
	}
	if cfg.rateBurst <= 0 {
		return config{}, errors.New("SF_RATE_BURST must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("SF_CONCURRENCY_MAX must be >= 0")
	}
	if cfg.maxRecords < 0 {
		return config{}, errors.New("SF_MAX_RECORDS must be >= 0")
	}
	if b := strings.ToLower(cfg.statsBucket); b != "minute" && b != "none" {
		return config{}, errors.New("SF_STATS_BUCKET must be minute or none")
	}
	return cfg, nil
}

// defaultHistoryPath fica no cache do usuário; "off" desliga o histórico.
func defaultHistoryPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".sfbulk-history.db"
	}
	return filepath.Join(dir, "sfbulk", "history.db")
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
