package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	APIPort       string `env:"API_PORT" envDefault:"8080"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret          string `env:"JWT_SECRET" envDefault:"defaultsecret"`
	JWTExpirationHours int    `env:"JWT_EXPIRATION_HOURS" envDefault:"72"`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"user"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"password"`
	DBName     string `env:"DB_NAME" envDefault:"step_league_db"`
	DBSslMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	VerificationQueueName      string `env:"VERIFICATION_QUEUE_NAME" envDefault:"verification_jobs_queue"`
	VerificationDelayedSet     string `env:"VERIFICATION_DELAYED_SET" envDefault:"verification_jobs_delayed"`
	VerificationLockTTLSeconds int    `env:"VERIFICATION_LOCK_TTL_SECONDS" envDefault:"120"`
	VerificationMaxAttempts    int    `env:"VERIFICATION_MAX_ATTEMPTS" envDefault:"5"`

	VerifyRateLimit         int `env:"VERIFY_RATE_LIMIT" envDefault:"10"`
	VerifyRateWindowSeconds int `env:"VERIFY_RATE_WINDOW_SECONDS" envDefault:"60"`

	AIVerifyURL       string `env:"AI_VERIFY_URL"`
	AIVerifyAPIKey    string `env:"AI_VERIFY_API_KEY"`
	AIVerifyTolerance int    `env:"AI_VERIFY_TOLERANCE" envDefault:"250"`

	UploadDir             string `env:"UPLOAD_DIR" envDefault:"data/uploads"`
	UploadTokenTTLMinutes int    `env:"UPLOAD_TOKEN_TTL_MINUTES" envDefault:"15"`
	MaxUploadBytes        int64  `env:"MAX_UPLOAD_BYTES" envDefault:"20971520"`

	CloudinaryCloudName string `env:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `env:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `env:"CLOUDINARY_API_SECRET"`
	CloudinaryFolder    string `env:"CLOUDINARY_FOLDER" envDefault:"step-league/proofs"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c *Config) DBConnStr() string {
	return "host=" + c.DBHost +
		" port=" + c.DBPort +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" sslmode=" + c.DBSslMode
}

func (c *Config) JWTExp() time.Duration {
	return time.Duration(c.JWTExpirationHours) * time.Hour
}

func (c *Config) VerificationLockTTL() time.Duration {
	return time.Duration(c.VerificationLockTTLSeconds) * time.Second
}

func (c *Config) VerifyRateWindow() time.Duration {
	return time.Duration(c.VerifyRateWindowSeconds) * time.Second
}

func (c *Config) UploadTokenTTL() time.Duration {
	return time.Duration(c.UploadTokenTTLMinutes) * time.Minute
}

func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}
