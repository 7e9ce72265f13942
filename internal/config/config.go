package config

import (
	"crypto/rand"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/shopit/backend/internal/models"
)

type Config struct {
	HTTP_ADDR     string
	LOG_LEVEL     string
	DB_HOST       string
	DB_PORT       string
	DB_USER       string
	DB_PASSWORD   string
	DB_NAME       string
	ES_URL        string
	ES_USER       string
	ES_PASSWORD   string
	KAFKA_ADDRESS string

	// JWTSecret signs access tokens. RefreshHashSecret keys the HMAC for
	// refresh tokens at rest; the two are independent. When an env var is
	// missing the secret is generated for this process only, which
	// invalidates every outstanding token of that kind on restart.
	JWTSecret         []byte
	RefreshHashSecret []byte

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		HTTP_ADDR:         envDefault("HTTP_ADDR", ":8080"),
		LOG_LEVEL:         envDefault("LOG_LEVEL", "info"),
		DB_HOST:           os.Getenv("DB_HOST"),
		DB_PORT:           os.Getenv("DB_PORT"),
		DB_USER:           os.Getenv("DB_USER"),
		DB_PASSWORD:       os.Getenv("DB_PASSWORD"),
		DB_NAME:           os.Getenv("DB_NAME"),
		ES_URL:            os.Getenv("ES_URL"),
		ES_USER:           os.Getenv("ES_USER"),
		ES_PASSWORD:       os.Getenv("ES_PASSWORD"),
		KAFKA_ADDRESS:     os.Getenv("KAFKA_ADDRESS"),
		JWTSecret:         secretFromEnv("JWT_SECRET"),
		RefreshHashSecret: secretFromEnv("REFRESH_HASH_SECRET"),
		AccessTokenTTL:    durationDefault("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:   durationDefault("REFRESH_TOKEN_TTL", 7*24*time.Hour),
	}

	return config, nil
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Notice: invalid %s=%q, using default %s", key, v, def)
		return def
	}
	return d
}

// secretFromEnv prefers the configured value so tokens survive restarts;
// the random fallback is for development.
func secretFromEnv(key string) []byte {
	if v := os.Getenv(key); v != "" {
		return []byte(v)
	}
	log.Printf("Notice: %s is not set, generating a process-lifetime secret; existing tokens will not survive a restart", key)
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		log.Fatalf("cannot generate %s: %v", key, err)
	}
	return secret
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DB_USER, cfg.DB_PASSWORD, cfg.DB_HOST, cfg.DB_PORT, cfg.DB_NAME,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Category{},
		&models.Product{},
		&models.Cart{},
		&models.CartItem{},
		&models.Address{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
	); err != nil {
		return fmt.Errorf("cannot run migrations: %w", err)
	}
	return nil
}
