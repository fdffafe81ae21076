package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"ligandscreen/internal/errors"
)

// Bounds applied by callers before invoking the engine
const (
	MinTopN        = 1
	MaxTopN        = 100
	MinAffinityLow = 0.0
	MinAffinityHi  = 15.0
)

// Config represents the complete application configuration
type Config struct {
	Database  DatabaseConfig
	Oracle    OracleConfig
	AI        AIConfig
	Screening ScreeningConfig
	Server    ServerConfig
	Profiling ProfilingConfig
	Data      DataConfig
}

// DatabaseConfig holds database connection settings. An empty URL selects the
// in-memory run repository.
type DatabaseConfig struct {
	URL string
}

// OracleConfig holds the affinity predictor endpoint. An empty URL selects the
// deterministic heuristic scorer.
type OracleConfig struct {
	URL         string
	APIKey      string
	CallTimeout time.Duration
	MinValid    float64
	MaxValid    float64
	MaxInFlight int
}

// AIConfig holds AI/LLM related settings for the rationale step
type AIConfig struct {
	OpenAIKey        string
	OpenAIModel      string
	BaseURL          string
	MaxTokens        int
	Temperature      float64
	RationaleTimeout time.Duration
}

// ScreeningConfig holds defaults for screening runs
type ScreeningConfig struct {
	TopN          int
	MinAffinity   float64
	Concurrency   int
	Timeout       time.Duration
	ProgressEvery int
	MaxCandidates int
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// ProfilingConfig holds the ops/pprof listener settings
type ProfilingConfig struct {
	Port    string
	Enabled bool
}

// DataConfig holds data source settings
type DataConfig struct {
	CandidateFile  string
	CandidateLimit int
	ReportDir      string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database:  DatabaseConfig{URL: getEnvOrDefault("DATABASE_URL", "")},
		Oracle:    loadOracleConfig(),
		AI:        loadAIConfig(),
		Screening: loadScreeningConfig(),
		Server:    loadServerConfig(),
		Profiling: loadProfilingConfig(),
		Data:      loadDataConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadDataConfig() DataConfig {
	return DataConfig{
		CandidateFile:  getEnvOrDefault("CANDIDATE_FILE", ""),
		CandidateLimit: getEnvIntOrDefault("CANDIDATE_LIMIT", 0),
		ReportDir:      getEnvOrDefault("REPORT_DIR", ""),
	}
}

func loadOracleConfig() OracleConfig {
	return OracleConfig{
		URL:         strings.TrimSpace(getEnvOrDefault("ORACLE_URL", "")),
		APIKey:      getEnvOrDefault("ORACLE_API_KEY", ""),
		CallTimeout: getEnvDurationOrDefault("ORACLE_CALL_TIMEOUT", 30*time.Second),
		MinValid:    getEnvFloatOrDefault("ORACLE_MIN_VALID", 0),
		MaxValid:    getEnvFloatOrDefault("ORACLE_MAX_VALID", 20),
		MaxInFlight: getEnvIntOrDefault("ORACLE_MAX_IN_FLIGHT", 0),
	}
}

func loadAIConfig() AIConfig {
	return AIConfig{
		OpenAIKey:        getEnvOrDefault("OPENAI_API_KEY", ""),
		OpenAIModel:      getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
		BaseURL:          getEnvOrDefault("OPENAI_BASE_URL", ""),
		MaxTokens:        getEnvIntOrDefault("MAX_TOKENS", 600),
		Temperature:      getEnvFloatOrDefault("TEMPERATURE", 0.3),
		RationaleTimeout: getEnvDurationOrDefault("RATIONALE_TIMEOUT", 45*time.Second),
	}
}

func loadScreeningConfig() ScreeningConfig {
	return ScreeningConfig{
		TopN:          getEnvIntOrDefault("SCREEN_TOP_N", 10),
		MinAffinity:   getEnvFloatOrDefault("SCREEN_MIN_AFFINITY", 6.0),
		Concurrency:   getEnvIntOrDefault("SCREEN_CONCURRENCY", 8),
		Timeout:       getEnvDurationOrDefault("SCREEN_TIMEOUT", 10*time.Minute),
		ProgressEvery: getEnvIntOrDefault("SCREEN_PROGRESS_EVERY", 50),
		MaxCandidates: getEnvIntOrDefault("SCREEN_MAX_CANDIDATES", 0),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func loadProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Port:    getEnvOrDefault("PPROF_PORT", "6060"),
		Enabled: getEnvBoolOrDefault("PPROF_ENABLED", false),
	}
}

func validateConfig(config *Config) error {
	if config.Screening.Concurrency < 1 {
		return errors.ConfigInvalid("SCREEN_CONCURRENCY must be >= 1")
	}
	if config.Screening.Timeout <= 0 {
		return errors.ConfigInvalid("SCREEN_TIMEOUT must be positive")
	}
	if config.Oracle.CallTimeout <= 0 {
		return errors.ConfigInvalid("ORACLE_CALL_TIMEOUT must be positive")
	}
	if config.Oracle.CallTimeout >= config.Screening.Timeout {
		return errors.ConfigInvalid("ORACLE_CALL_TIMEOUT must be shorter than SCREEN_TIMEOUT")
	}
	if config.Oracle.MaxValid <= config.Oracle.MinValid {
		return errors.ConfigInvalid("ORACLE_MAX_VALID must be greater than ORACLE_MIN_VALID")
	}
	if config.Data.CandidateLimit < 0 {
		return errors.ConfigInvalid("CANDIDATE_LIMIT must be >= 0")
	}
	if config.Screening.MaxCandidates < 0 {
		return errors.ConfigInvalid("SCREEN_MAX_CANDIDATES must be >= 0")
	}
	return nil
}

// ClampTopN bounds topN to [MinTopN, MaxTopN]
func ClampTopN(topN int) int {
	if topN < MinTopN {
		return MinTopN
	}
	if topN > MaxTopN {
		return MaxTopN
	}
	return topN
}

// ClampMinAffinity bounds the threshold to [MinAffinityLow, MinAffinityHi]
func ClampMinAffinity(v float64) float64 {
	if v < MinAffinityLow {
		return MinAffinityLow
	}
	if v > MinAffinityHi {
		return MinAffinityHi
	}
	return v
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
