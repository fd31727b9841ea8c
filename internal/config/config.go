package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database     DatabaseConfig
	Redis        RedisConfig
	Server       ServerConfig
	Auth         AuthConfig
	Session      SessionConfig
	SecondFactor SecondFactorConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// RedisConfig configures the counter store backing the attempt throttle.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
}

// AuthConfig holds the credential-authentication knobs. ThrottleThreshold
// failures within ThrottleWindow lock a source address or username out.
type AuthConfig struct {
	ThrottleThreshold int
	ThrottleWindow    time.Duration
	TimingFloor       time.Duration
	TimingJitter      time.Duration
}

// SessionConfig controls session tokens and their lifetimes. A session is
// terminal once idle longer than IdleLifetime or older than MaxLifetime.
type SessionConfig struct {
	CookieName      string
	CookieDomain    string
	CookieSecure    bool
	CookieSameSite  string
	IdleLifetime    time.Duration
	MaxLifetime     time.Duration
	TouchInterval   time.Duration
	CleanupInterval time.Duration
}

// SecondFactorConfig holds the second-factor feature toggle and material.
// Enforce is read once at startup and injected; nothing reads it per
// request from the environment.
type SecondFactorConfig struct {
	Enforce           bool
	Issuer            string
	EncryptionKey     []byte
	RecoveryCodeCount int
	VerifyPath        string
	ExemptPaths       []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	encryptionKey := getEnv("SECOND_FACTOR_ENCRYPTION_KEY", "")
	if encryptionKey == "" {
		return nil, fmt.Errorf("SECOND_FACTOR_ENCRYPTION_KEY is required")
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatehouse"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES", nil),
		},
		Auth: AuthConfig{
			ThrottleThreshold: getEnvAsInt("THROTTLE_THRESHOLD", 5),
			ThrottleWindow:    getEnvAsDuration("THROTTLE_WINDOW", 15*time.Minute),
			TimingFloor:       getEnvAsDuration("LOGIN_TIMING_FLOOR", 200*time.Millisecond),
			TimingJitter:      getEnvAsDuration("LOGIN_TIMING_JITTER", 100*time.Millisecond),
		},
		Session: SessionConfig{
			CookieName:      getEnv("SESSION_COOKIE_NAME", "gatehouse_session"),
			CookieDomain:    getEnv("SESSION_COOKIE_DOMAIN", ""),
			CookieSecure:    getEnvAsBool("SESSION_COOKIE_SECURE", env == "production"),
			CookieSameSite:  getEnv("SESSION_COOKIE_SAMESITE", "lax"),
			IdleLifetime:    getEnvAsDuration("SESSION_IDLE_LIFETIME", 14*24*time.Hour),
			MaxLifetime:     getEnvAsDuration("SESSION_MAX_LIFETIME", 30*24*time.Hour),
			TouchInterval:   getEnvAsDuration("SESSION_TOUCH_INTERVAL", 1*time.Minute),
			CleanupInterval: getEnvAsDuration("SESSION_CLEANUP_INTERVAL", 1*time.Hour),
		},
		SecondFactor: SecondFactorConfig{
			Enforce:           getEnvAsBool("SECOND_FACTOR_ENFORCE", true),
			Issuer:            getEnv("SECOND_FACTOR_ISSUER", "InvoiceFlow"),
			EncryptionKey:     []byte(encryptionKey),
			RecoveryCodeCount: getEnvAsInt("SECOND_FACTOR_RECOVERY_CODES", 10),
			VerifyPath:        getEnv("SECOND_FACTOR_VERIFY_PATH", "/auth/2fa/verify"),
			ExemptPaths: getEnvAsList("SECOND_FACTOR_EXEMPT_PATHS", []string{
				"/auth/login",
				"/auth/logout",
				"/auth/2fa/verify",
				"/healthz",
				"/static/",
				"/public/",
			}),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateEncryptionKey(cfg.SecondFactor.EncryptionKey); err != nil {
		return nil, err
	}

	if cfg.Auth.ThrottleThreshold < 1 {
		return nil, fmt.Errorf("THROTTLE_THRESHOLD must be at least 1 (got %d)", cfg.Auth.ThrottleThreshold)
	}

	return cfg, nil
}

// validateEncryptionKey enforces the AES-256 key length and rejects
// obviously weak values.
func validateEncryptionKey(key []byte) error {
	if len(key) != 32 {
		return fmt.Errorf("SECOND_FACTOR_ENCRYPTION_KEY must be exactly 32 bytes (got %d)", len(key))
	}

	weakKeys := []string{
		strings.Repeat("0", 32),
		strings.Repeat("x", 32),
		"0123456789abcdef0123456789abcdef",
	}

	keyLower := strings.ToLower(string(key))
	for _, weak := range weakKeys {
		if keyLower == weak {
			return fmt.Errorf("SECOND_FACTOR_ENCRYPTION_KEY cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
