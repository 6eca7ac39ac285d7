package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Availability service configuration
	Availability AvailabilityConfig

	// Booking service configuration
	Booking BookingConfig

	// Closure calendar configuration
	Closures ClosuresConfig

	// Catalog service configuration
	Catalog CatalogConfig

	// Draft session configuration
	Session SessionConfig

	// Deposit policy configuration
	Deposit DepositConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// AvailabilityConfig holds availability service configuration
type AvailabilityConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	QuietPeriod time.Duration // debounce before a mutation triggers a check
}

// BookingConfig holds booking write-API configuration
type BookingConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ClosuresConfig holds closure calendar configuration
type ClosuresConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CatalogConfig holds catalog service configuration
type CatalogConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SessionConfig holds draft session configuration
type SessionConfig struct {
	TTL time.Duration // how long an untouched draft survives
}

// DepositConfig holds the deposit policy knobs
type DepositConfig struct {
	GarmentRate    float64 // fraction of garment subtotal
	GarmentCapEach float64 // deposit ceiling per garment line
	PackageFeeEach float64 // flat deposit per package
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 28800)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Availability: AvailabilityConfig{
			BaseURL:     getEnv("AVAILABILITY_BASE_URL", ""),
			APIKey:      getEnv("AVAILABILITY_API_KEY", ""),
			Timeout:     time.Duration(getEnvAsInt("AVAILABILITY_TIMEOUT_SECONDS", 30)) * time.Second,
			QuietPeriod: time.Duration(getEnvAsInt("AVAILABILITY_QUIET_PERIOD_MS", 500)) * time.Millisecond,
		},
		Booking: BookingConfig{
			BaseURL: getEnv("BOOKING_BASE_URL", ""),
			APIKey:  getEnv("BOOKING_API_KEY", ""),
			Timeout: time.Duration(getEnvAsInt("BOOKING_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Closures: ClosuresConfig{
			BaseURL: getEnv("CLOSURES_BASE_URL", ""),
			Timeout: time.Duration(getEnvAsInt("CLOSURES_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Catalog: CatalogConfig{
			BaseURL: getEnv("CATALOG_BASE_URL", ""),
			Timeout: time.Duration(getEnvAsInt("CATALOG_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Session: SessionConfig{
			TTL: time.Duration(getEnvAsInt("SESSION_TTL_MINUTES", 120)) * time.Minute,
		},
		Deposit: DepositConfig{
			GarmentRate:    getEnvAsFloat("DEPOSIT_GARMENT_RATE", 0.20),
			GarmentCapEach: getEnvAsFloat("DEPOSIT_GARMENT_CAP_EACH", 1500),
			PackageFeeEach: getEnvAsFloat("DEPOSIT_PACKAGE_FEE_EACH", 150),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Availability.BaseURL == "" {
		return fmt.Errorf("AVAILABILITY_BASE_URL is required")
	}

	if c.Booking.BaseURL == "" {
		return fmt.Errorf("BOOKING_BASE_URL is required")
	}

	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("CATALOG_BASE_URL is required")
	}

	if c.Deposit.GarmentRate < 0 || c.Deposit.GarmentRate > 1 {
		return fmt.Errorf("DEPOSIT_GARMENT_RATE must be between 0 and 1")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid float value for %s, using default: %g", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
