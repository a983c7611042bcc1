package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/u-wave/u-wave-core-sub000/pkg/database"
)

type Config struct {
	Env  string
	Port string

	RedisAddr     string
	RedisPassword string

	DBDriver string
	DBDSN    string

	EventsTransport string // "redis" or "kafka"
	KafkaBrokers    []string
	KafkaTopic      string
	KafkaGroupID    string

	JWTSecret   string
	FrontendURL string
	CORSOrigins []string
}

// Load reads a .env file when present, then the environment.
func Load(logger zerolog.Logger) *Config {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment only")
	}

	cfg := &Config{
		Env:             getenv("ENV", "development"),
		Port:            getenv("PORT", "6042"),
		RedisAddr:       getenv("REDIS_HOST", "localhost") + ":" + getenv("REDIS_PORT", "6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		DBDriver:        getenv("DB_DRIVER", "sqlite"),
		EventsTransport: getenv("EVENTS_TRANSPORT", "redis"),
		KafkaBrokers:    splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      getenv("KAFKA_TOPIC", "uwave-events"),
		KafkaGroupID:    os.Getenv("KAFKA_GROUP_ID"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		FrontendURL:     getenv("FRONTEND_URL", "/"),
		CORSOrigins:     splitList(getenv("CORS_ORIGINS", "http://localhost:6041")),
	}

	cfg.DBDSN = os.Getenv("DB_DSN")
	if cfg.DBDSN == "" {
		switch cfg.DBDriver {
		case "mysql":
			cfg.DBDSN = database.MySQLDSN(
				os.Getenv("MYSQL_HOST"),
				getenv("MYSQL_PORT", "3306"),
				os.Getenv("MYSQL_USER"),
				os.Getenv("MYSQL_PASSWORD"),
				os.Getenv("MYSQL_DATABASE"),
			)
		default:
			cfg.DBDSN = getenv("SQLITE_PATH", "uwave.db")
		}
	}

	return cfg
}

func (c *Config) Production() bool {
	return c.Env == "production"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
