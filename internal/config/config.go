package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/augmecon/internal/optimization"
	"github.com/copyleftdev/augmecon/internal/optimization/augmecon"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
		// RunDir receives one log file per frontier run. Empty disables
		// run log files.
		RunDir string `env:"RUN_LOG_DIR" envDefault:"logs"`
	}
	Augmecon struct {
		GridPoints        int     `env:"AUGMECON_GRID_POINTS" envDefault:"10"`
		EarlyExit         bool    `env:"AUGMECON_EARLY_EXIT" envDefault:"true"`
		BypassCoefficient bool    `env:"AUGMECON_BYPASS_COEFFICIENT" envDefault:"true"`
		Precision         int     `env:"AUGMECON_PRECISION" envDefault:"2"`
		PenaltyWeight     float64 `env:"AUGMECON_PENALTY_WEIGHT" envDefault:"0.01"`
		SolverName        string  `env:"AUGMECON_SOLVER" envDefault:"simplex"`
		SolverIO          string  `env:"AUGMECON_SOLVER_IO" envDefault:"direct"`
		// ExportDir receives the Pareto set of every finished run. Empty
		// disables export.
		ExportDir    string `env:"AUGMECON_EXPORT_DIR" envDefault:"logs"`
		ExportFormat string `env:"AUGMECON_EXPORT_FORMAT" envDefault:"xlsx"`
		// MaxRuns bounds the number of frontier runs computed at once.
		MaxRuns int `env:"AUGMECON_MAX_RUNS" envDefault:"4"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, optimization.WrapError(err, "parsing environment").WithComponent("config")
	}

	// Set default logging level based on environment
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	cfg.Augmecon.ExportFormat = strings.ToLower(strings.TrimPrefix(cfg.Augmecon.ExportFormat, "."))
	switch cfg.Augmecon.ExportFormat {
	case "xlsx", "csv":
	default:
		return nil, optimization.ConfigErrorf("unsupported export format %q", cfg.Augmecon.ExportFormat).
			WithComponent("config")
	}
	if cfg.Augmecon.MaxRuns < 1 {
		cfg.Augmecon.MaxRuns = 1
	}

	for _, dir := range []string{cfg.Logging.RunDir, cfg.Augmecon.ExportDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, optimization.WrapErrorf(err, "creating %s", dir).WithComponent("config")
		}
	}

	return cfg, nil
}

// RunConfig returns the frontier run defaults. Logger, Observer and Exporter
// are left for the caller.
func (c *Config) RunConfig() augmecon.Config {
	rc := augmecon.DefaultConfig()
	rc.GridPoints = c.Augmecon.GridPoints
	rc.EarlyExit = c.Augmecon.EarlyExit
	rc.BypassCoefficient = c.Augmecon.BypassCoefficient
	rc.Precision = c.Augmecon.Precision
	rc.PenaltyWeight = c.Augmecon.PenaltyWeight
	rc.Solver = optimization.SolverOptions{
		Name: c.Augmecon.SolverName,
		IO:   c.Augmecon.SolverIO,
	}
	return rc
}

// GetEnv returns the value of the environment variable or the default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt returns the value of the environment variable as int or the default value
func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := GetEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// GetEnvAsBool returns the value of the environment variable as bool or the default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	valueStr := GetEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
