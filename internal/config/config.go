package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// 不安全的默认值列表 (生产环境不应使用)
var insecureDefaults = map[string]bool{
	"your-secret-key-change-in-production": true,
	"internal-secret":                      true,
	"internal-service-secret":              true,
	"":                                     true,
}

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	JWT            JWTConfig
	IntaSend       IntaSendConfig
	Reconcile      ReconcileConfig
	InternalSecret string
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Schema   string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey   string
	ExpiryHours int
}

type IntaSendConfig struct {
	BaseURL     string
	PublicKey   string
	PrivateKey  string
	CallbackURL string
	Timeout     time.Duration
}

// ReconcileConfig controls the pending-transaction sweep
type ReconcileConfig struct {
	Interval    time.Duration
	PendingAge  time.Duration
	MaxAttempts int
	BatchSize   int
}

func Load() *Config {
	// .env 仅用于本地开发，缺失时忽略
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8006"),
			Mode: getEnv("GIN_MODE", "release"), // 默认为 release 模式
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "saas_user"),
			Password: getEnv("DB_PASSWORD", "saas_pass"),
			DBName:   getEnv("DB_NAME", "saas_db"),
			Schema:   getEnv("DB_SCHEMA", "billing"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey:   getEnv("JWT_SECRET_KEY", ""),
			ExpiryHours: getEnvInt("JWT_EXPIRY_HOURS", 24),
		},
		IntaSend: IntaSendConfig{
			BaseURL:     getEnv("INTASEND_BASE_URL", "https://sandbox.intasend.com/api/v1"),
			PublicKey:   getEnv("INTASEND_PUBLIC_KEY", ""),
			PrivateKey:  getEnv("INTASEND_PRIVATE_KEY", ""),
			CallbackURL: getEnv("INTASEND_CALLBACK_URL", ""),
			Timeout:     time.Duration(getEnvInt("INTASEND_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Reconcile: ReconcileConfig{
			Interval:    time.Duration(getEnvInt("RECONCILE_INTERVAL_SECONDS", 300)) * time.Second,
			PendingAge:  time.Duration(getEnvInt("RECONCILE_PENDING_AGE_SECONDS", 600)) * time.Second,
			MaxAttempts: getEnvInt("RECONCILE_MAX_ATTEMPTS", 3),
			BatchSize:   getEnvInt("RECONCILE_BATCH_SIZE", 50),
		},
		InternalSecret: getEnv("INTERNAL_SECRET", ""),
	}

	// 日志脱敏: 不记录敏感配置
	log.Printf("[config] Wi-Fi Billing Service loaded: port=%s db=%s/%s.%s gateway=%s",
		cfg.Server.Port, cfg.Database.Host, cfg.Database.DBName, cfg.Database.Schema, cfg.IntaSend.BaseURL)

	return cfg
}

// Validate 验证配置有效性，生产环境必须设置安全的密钥
func (c *Config) Validate() error {
	// 检查 JWT 密钥
	if insecureDefaults[c.JWT.SecretKey] {
		return fmt.Errorf("JWT_SECRET_KEY must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters long")
	}

	// 检查内部服务密钥
	if insecureDefaults[c.InternalSecret] {
		return fmt.Errorf("INTERNAL_SECRET must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.InternalSecret) < 32 {
		return fmt.Errorf("INTERNAL_SECRET must be at least 32 characters long")
	}

	// 支付网关密钥必须配置
	if c.IntaSend.PublicKey == "" || c.IntaSend.PrivateKey == "" {
		return fmt.Errorf("INTASEND_PUBLIC_KEY and INTASEND_PRIVATE_KEY must be set")
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
