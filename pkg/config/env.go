package config

import (
	"os"
	"strings"
)

// Deployment environments
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// GetEnv returns the value of an environment variable, or the default
// when unset or empty.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// RequireEnv returns the value of an environment variable and panics
// when it is missing. Only for configuration the service cannot start
// without.
func RequireEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic("required environment variable not set: " + key)
	}
	return value
}

// GetEnvironment returns the current deployment environment,
// defaulting to development.
func GetEnvironment() string {
	return strings.ToLower(GetEnv("BATCHFLOW_SERVER_ENVIRONMENT", EnvDevelopment))
}

// IsDevelopment reports whether the service runs in development.
func IsDevelopment() bool {
	return GetEnvironment() == EnvDevelopment
}

// IsStaging reports whether the service runs in staging.
func IsStaging() bool {
	return GetEnvironment() == EnvStaging
}

// IsProduction reports whether the service runs in production.
func IsProduction() bool {
	return GetEnvironment() == EnvProduction
}

// IsProductionLike reports whether production-grade configuration
// requirements apply, i.e. staging or production.
func IsProductionLike() bool {
	return IsStaging() || IsProduction()
}
