// Package config handles application configuration via environment variables.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configurable values for the server.
type Config struct {
	Env              string
	Addr             string
	DispenserBaseURL string
	DispenserTimeout time.Duration
	CodeTTL          time.Duration
	BcryptCost       int
	SessionTTL       time.Duration
	SweepSchedule    string
}

// Load reads environment variables and populates a Config struct.
// A .env file in the working directory is honoured when present.
func Load() *Config {
	_ = godotenv.Load()

	ttl, err := time.ParseDuration(getEnv("CODE_TTL", "60s"))
	if err != nil {
		log.Panicf("Invalid CODE_TTL: %v", err)
	}

	dispenserTimeout, err := time.ParseDuration(getEnv("DISPENSER_TIMEOUT", "10s"))
	if err != nil {
		log.Panicf("Invalid DISPENSER_TIMEOUT: %v", err)
	}

	sessionTTL, err := time.ParseDuration(getEnv("SESSION_TTL", "720h"))
	if err != nil {
		log.Panicf("Invalid SESSION_TTL: %v", err)
	}

	cost, err := strconv.Atoi(getEnv("BCRYPT_COST", "10"))
	if err != nil {
		log.Panicf("Invalid BCRYPT_COST: %v", err)
	}

	return &Config{
		Env:              getEnv("ENV", "development"),
		Addr:             ":" + getEnv("PORT", "8080"),
		DispenserBaseURL: getEnv("DISPENSER_URL", "http://localhost:9000"),
		DispenserTimeout: dispenserTimeout,
		CodeTTL:          ttl,
		BcryptCost:       cost,
		SessionTTL:       sessionTTL,
		SweepSchedule:    getEnv("SWEEP_SCHEDULE", "@hourly"),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
