package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/tfmm/internal/guardrail"
	"github.com/elys-network/tfmm/internal/types"
)

// Process configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// AdminAddress manages the allow-list and the oracle registry.
	AdminAddress types.Address

	// StalenessThreshold is the maximum age in seconds of a usable oracle reading.
	StalenessThreshold int64
	// GuardRailMode selects how the epsilon stage limits a step ("scalar" or "per_asset").
	GuardRailMode guardrail.Mode

	// StoreBackend is "memory" or "postgres".
	StoreBackend string
	// RegistryFile is the YAML file declaring oracles and pools.
	RegistryFile string

	LogLevel  string
	LogFormat string

	// LogFile, when set, receives a JSON copy of every log line.
	LogFile string
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Only TFMM_ADMIN_ADDRESS is required; everything else has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	adminStr, err := getEnv("TFMM_ADMIN_ADDRESS")
	if err != nil {
		return err
	}
	AdminAddress, err = types.ParseAddress(adminStr)
	if err != nil {
		return err
	}

	StalenessThreshold, err = getEnvAsInt64OrDefault("ORACLE_STALENESS_SECONDS", DefaultStalenessSeconds)
	if err != nil {
		return err
	}
	if StalenessThreshold <= 0 {
		return errors.New("environment variable ORACLE_STALENESS_SECONDS must be positive")
	}

	GuardRailMode, err = guardrail.ParseMode(getEnvOrDefault("GUARD_RAIL_MODE", "scalar"))
	if err != nil {
		return err
	}

	StoreBackend = getEnvOrDefault("STORE_BACKEND", StoreMemory)
	if StoreBackend != StoreMemory && StoreBackend != StorePostgres {
		return errors.New("environment variable STORE_BACKEND must be memory or postgres, got: " + StoreBackend)
	}
	RegistryFile = getEnvOrDefault("REGISTRY_FILE", "registry.yaml")
	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFormat = getEnvOrDefault("LOG_FORMAT", "console")
	LogFile = getEnvOrDefault("LOG_FILE", "")

	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("Admin", AdminAddress.String()).
		Int64("StalenessThreshold", StalenessThreshold).
		Str("GuardRailMode", GuardRailMode.String()).
		Str("StoreBackend", StoreBackend).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt64OrDefault retrieves an environment variable as an int64. Returns error if set but invalid.
func getEnvAsInt64OrDefault(key string, fallback int64) (int64, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFloat64OrDefault retrieves an environment variable as a float64. Returns error if set but invalid.
func getEnvAsFloat64OrDefault(key string, fallback float64) (float64, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}
