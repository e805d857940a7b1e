package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
)

const (
	minJWTSecretLength = 32
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
)

type Config struct {
	HTTPHost     string
	HTTPPort     string
	GRPCHost     string
	GRPCPort     string
	MySQLDSN     string
	Log          LogConfig
	JWT          JWTConfig
	Password     PasswordConfig
	Reset        ResetConfig
	Notification NotificationConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type JWTConfig struct {
	Secret          string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Leeway          time.Duration
}

type PasswordConfig struct {
	Policy     PasswordPolicy
	BcryptCost int
}

type ResetConfig struct {
	TokenTTL time.Duration
	URLBase  string
}

const (
	NotificationTransportSMTP = "smtp"
	NotificationTransportLog  = "log"
)

type NotificationConfig struct {
	Transport    string
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	From         string
}

type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("password must be at least %d characters long", p.MinLength)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("password must be at most %d bytes long", maxPasswordBytes)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasNumber = true
		case unicode.IsPunct(ch) || unicode.IsSymbol(ch):
			hasSpecial = true
		}
	}

	var missing []string
	if p.RequireUppercase && !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if p.RequireLowercase && !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if p.RequireNumber && !hasNumber {
		missing = append(missing, "number")
	}
	if p.RequireSpecial && !hasSpecial {
		missing = append(missing, "special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("password must contain at least one: %s", strings.Join(missing, ", "))
	}

	return nil
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < minJWTSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d characters long", minJWTSecretLength)
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	notification, err := loadNotificationConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		HTTPHost: getEnv("HTTP_HOST", ""),
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		GRPCHost: getEnv("GRPC_HOST", ""),
		GRPCPort: getEnv("GRPC_PORT", "9090"),
		MySQLDSN: mysqlDSN,
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		JWT: JWTConfig{
			Secret:          jwtSecret,
			Issuer:          getEnv("JWT_ISSUER", ""),
			AccessTokenTTL:  getDurationEnv("JWT_ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL: getDurationEnv("JWT_REFRESH_TOKEN_TTL", 7*24*time.Hour),
			Leeway:          time.Duration(getIntEnv("JWT_LEEWAY_SECONDS", 0)) * time.Second,
		},
		Password: PasswordConfig{
			Policy:     loadPasswordPolicy(),
			BcryptCost: getIntEnv("BCRYPT_COST", 0),
		},
		Reset: ResetConfig{
			TokenTTL: getDurationEnv("RESET_TOKEN_TTL", 1*time.Hour),
			URLBase:  getEnv("RESET_URL_BASE", "http://localhost:3000/reset-password"),
		},
		Notification: notification,
	}, nil
}

func (c *Config) DSN() string {
	return c.MySQLDSN
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil && minutes > 0 {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func loadPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        getIntEnv("PASSWORD_MIN_LENGTH", 8),
		RequireUppercase: getBoolEnv("PASSWORD_REQUIRE_UPPERCASE", true),
		RequireLowercase: getBoolEnv("PASSWORD_REQUIRE_LOWERCASE", true),
		RequireNumber:    getBoolEnv("PASSWORD_REQUIRE_NUMBER", true),
		RequireSpecial:   getBoolEnv("PASSWORD_REQUIRE_SPECIAL", true),
	}
}

func loadNotificationConfig() (NotificationConfig, error) {
	cfg := NotificationConfig{
		Transport:    strings.ToLower(getEnv("NOTIFICATION_TRANSPORT", NotificationTransportLog)),
		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		From:         os.Getenv("SMTP_FROM"),
	}

	switch cfg.Transport {
	case NotificationTransportLog:
	case NotificationTransportSMTP:
		if cfg.SMTPHost == "" || cfg.From == "" {
			return cfg, errors.New("SMTP_HOST and SMTP_FROM are required when NOTIFICATION_TRANSPORT=smtp")
		}
	default:
		return cfg, fmt.Errorf("unsupported NOTIFICATION_TRANSPORT %q", cfg.Transport)
	}

	return cfg, nil
}
