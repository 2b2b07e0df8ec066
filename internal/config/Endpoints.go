package config

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/tfmm/internal/oracle"
	"github.com/elys-network/tfmm/internal/state"
)

// Endpoint and schedule configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// WebPort is the port of the read and trigger API.
	WebPort string
	// APIRateLimitRPS bounds the permissionless update endpoint.
	APIRateLimitRPS float64

	// KeeperSchedule is a six-field cron expression. Empty disables the keeper.
	KeeperSchedule string
	// KeeperTimeout bounds the update of one pool.
	KeeperTimeout time.Duration

	// CryptoCompareURL and CryptoCompareAPIKey configure cryptocompare oracles.
	CryptoCompareURL    string
	CryptoCompareAPIKey string

	// Database is used when StoreBackend is postgres.
	Database state.DBConfig
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	APIRateLimitRPS, err = getEnvAsFloat64OrDefault("API_RATE_LIMIT_RPS", DefaultUpdateRPS)
	if err != nil {
		return err
	}

	KeeperSchedule = getEnvOrDefault("KEEPER_SCHEDULE", DefaultKeeperSchedule)
	timeoutSeconds, err := getEnvAsInt64OrDefault("KEEPER_TIMEOUT_SECONDS", DefaultKeeperTimeoutSeconds)
	if err != nil {
		return err
	}
	KeeperTimeout = time.Duration(timeoutSeconds) * time.Second

	CryptoCompareURL = getEnvOrDefault("CRYPTOCOMPARE_URL", oracle.DefaultCryptoCompareURL)
	CryptoCompareAPIKey = getEnvOrDefault("CRYPTOCOMPARE_API_KEY", "")

	port, err := getEnvAsInt64OrDefault("DB_PORT", 5432)
	if err != nil {
		return err
	}
	Database = state.DBConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     int(port),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: getEnvOrDefault("DB_PASSWORD", ""),
		DBName:   getEnvOrDefault("DB_NAME", "tfmm"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}

	log.Debug().
		Str("WebPort", WebPort).
		Str("KeeperSchedule", KeeperSchedule).
		Str("CryptoCompareURL", CryptoCompareURL).
		Str("DBHost", Database.Host).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
