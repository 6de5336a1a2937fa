package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from environment variables and config files
func Load() (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigType("yaml")

	// Environment variables: CASLINKS_SERVER_PORT etc.
	v.SetEnvPrefix("CASLINKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for _, path := range []string{".", "/etc/caslinks"} {
		v.AddConfigPath(path)
	}
	v.SetConfigName("config")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Generate secret key if not set
	if v.GetString("security.secret_key") == "" {
		key, err := generateSecretKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate secret key: %w", err)
		}
		v.Set("security.secret_key", key)
	}

	return v, nil
}

func setDefaults(v *viper.Viper) {
	// Application defaults
	v.SetDefault("app.name", "caslinks")
	v.SetDefault("debug", false)

	// Platform defaults
	v.SetDefault("platform.domain", "caslinks.local")
	v.SetDefault("platform.server_ip", "")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// Database defaults
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "caslinks.db")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_time", 300)

	// Security defaults
	v.SetDefault("security.secret_key", "")
	v.SetDefault("security.jwt.access_token_ttl", "2h")
	v.SetDefault("security.jwt.refresh_token_ttl", "72h")

	// Domain lifecycle defaults
	v.SetDefault("domains.verify_timeout", "5s")
	v.SetDefault("domains.check_interval", "30s")
	v.SetDefault("domains.check_batch", 50)
	v.SetDefault("domains.max_failures", 20)
	v.SetDefault("domains.max_backoff", "15m")
	v.SetDefault("domains.max_verify_window", "48h")
	v.SetDefault("domains.auto_activate", false)
	v.SetDefault("domains.classifier_cache_ttl", "30s")

	// Rate limiting defaults
	v.SetDefault("ratelimit.domain_claims", 10)
	v.SetDefault("ratelimit.domain_verifies", 30)

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.key_prefix", "caslinks:")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Email defaults
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.username", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.from.address", "")
	v.SetDefault("email.from.name", "CasLinks")
}

// ValidateConfig validates the configuration
func ValidateConfig(v *viper.Viper) error {
	dbType := v.GetString("database.type")
	switch dbType {
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		return fmt.Errorf("unsupported database type: %s", dbType)
	}
	if v.GetString("database.dsn") == "" {
		return fmt.Errorf("database.dsn is required")
	}

	port := v.GetInt("server.port")
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid server port: %d", port)
	}

	if v.GetString("platform.domain") == "" {
		return fmt.Errorf("platform.domain is required")
	}
	if ip := v.GetString("platform.server_ip"); ip != "" && net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid platform.server_ip: %s", ip)
	}

	if v.GetBool("email.enabled") {
		if v.GetString("email.smtp.host") == "" {
			return fmt.Errorf("email.smtp.host is required when email is enabled")
		}
		if v.GetString("email.from.address") == "" {
			return fmt.Errorf("email.from.address is required when email is enabled")
		}
	}

	return nil
}

func generateSecretKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
