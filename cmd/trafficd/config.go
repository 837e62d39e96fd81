package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	defaultNetworkID = "demo-grid"
	defaultDurationS = 3600
	defaultStepS     = 5
)

type Config struct {
	DBPath     string
	RedisAddr  string
	NetworkID  string
	ReportsDir string
	Seed       uint64
	DurationS  int64
	StepS      int64
	RealTime   bool
}

func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	dbPath := envOrDefault("TRAFFICD_DB_PATH", filepath.Join(cwd, "trafficd.db"))
	redisAddr := os.Getenv("TRAFFICD_REDIS_ADDR")
	networkID := envOrDefault("TRAFFICD_NETWORK", defaultNetworkID)
	reportsDir := os.Getenv("TRAFFICD_REPORTS_DIR")
	var seed uint64
	if seedEnv := os.Getenv("TRAFFICD_SEED"); seedEnv != "" {
		parsed, err := strconv.ParseUint(seedEnv, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TRAFFICD_SEED: %w", err)
		}
		seed = parsed
	}

	flagSet := flag.NewFlagSet("trafficd", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagDB := flagSet.String("db", dbPath, "path to SQLite database")
	flagRedis := flagSet.String("redis", redisAddr, "redis address for session leases (empty disables leasing)")
	flagNetwork := flagSet.String("network", networkID, "network id to simulate")
	flagReports := flagSet.String("reports", reportsDir, "directory for CSV session reports (empty disables)")
	flagSeed := flagSet.Uint64("seed", seed, "random seed (0 picks one)")
	flagDuration := flagSet.Int64("duration", defaultDurationS, "simulated duration in seconds")
	flagStep := flagSet.Int64("step", defaultStepS, "simulated seconds per tick")
	flagRealTime := flagSet.Bool("realtime", false, "pace ticks at wall-clock speed instead of as fast as possible")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	config := Config{
		DBPath:     resolvePath(*flagDB, cwd),
		RedisAddr:  strings.TrimSpace(*flagRedis),
		NetworkID:  strings.TrimSpace(*flagNetwork),
		ReportsDir: resolvePath(*flagReports, cwd),
		Seed:       *flagSeed,
		DurationS:  *flagDuration,
		StepS:      *flagStep,
		RealTime:   *flagRealTime,
	}

	if config.NetworkID == "" {
		return Config{}, errors.New("network id cannot be empty")
	}
	if config.DurationS <= 0 {
		return Config{}, fmt.Errorf("duration must be positive, got %d", config.DurationS)
	}
	if config.StepS <= 0 {
		return Config{}, fmt.Errorf("step must be positive, got %d", config.StepS)
	}

	return config, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}
