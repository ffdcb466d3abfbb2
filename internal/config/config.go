package config

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the runtime settings of the chat server and the admin CLI.
type Config struct {
	Env        string
	HTTPAddr   string
	DBDriver   string
	DBDSN      string
	RedisAddr  string
	RedisPass  string
	JWTSecret  string
	JWTIssuer  string
	LocalesDir string

	Notifier         string
	KafkaBrokers     []string
	KafkaTopic       string
	TelegramBotToken string

	RollbarToken string
	OTELEndpoint string
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: no .env file found, relying on environment variables")
	}

	v := viper.New()
	v.SetDefault("env", "dev")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("db_driver", "postgres")
	v.SetDefault("db_dsn", "host=localhost user=user password=password dbname=schoolchat port=5432 sslmode=disable")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "schoolchat")
	v.SetDefault("locales_dir", "internal/localization/locales")
	v.SetDefault("notifier", "log")
	v.SetDefault("kafka_brokers", "localhost:9092")
	v.SetDefault("kafka_topic", "chat.notifications")
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("rollbar_token", "")
	v.SetDefault("otel_endpoint", "")
	v.AutomaticEnv()

	return &Config{
		Env:              v.GetString("env"),
		HTTPAddr:         v.GetString("http_addr"),
		DBDriver:         strings.ToLower(v.GetString("db_driver")),
		DBDSN:            v.GetString("db_dsn"),
		RedisAddr:        v.GetString("redis_addr"),
		RedisPass:        v.GetString("redis_password"),
		JWTSecret:        v.GetString("jwt_secret"),
		JWTIssuer:        v.GetString("jwt_issuer"),
		LocalesDir:       v.GetString("locales_dir"),
		Notifier:         strings.ToLower(v.GetString("notifier")),
		KafkaBrokers:     splitList(v.GetString("kafka_brokers")),
		KafkaTopic:       v.GetString("kafka_topic"),
		TelegramBotToken: v.GetString("telegram_bot_token"),
		RollbarToken:     v.GetString("rollbar_token"),
		OTELEndpoint:     v.GetString("otel_endpoint"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
