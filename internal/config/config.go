package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the peer-support service.
type Config struct {
	AppName        string
	AppEnv         string
	AppPort        string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	JWTSecret      string
	ClientOrigin   string
	ChannelBase    string
	LastMessageTTL time.Duration
	ChatRateMax    int
	ChatRateWindow time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CAMPUSCARE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "CampusCare API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("client.origin", "http://localhost:3000")
	v.SetDefault("chat.channel_base", "campuscare")
	v.SetDefault("chat.last_message_ttl", "30m")
	v.SetDefault("chat.rate_max", 30)
	v.SetDefault("chat.rate_window", "10s")

	ttl, err := time.ParseDuration(v.GetString("chat.last_message_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid chat last message ttl: %w", err)
	}

	window, err := time.ParseDuration(v.GetString("chat.rate_window"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid chat rate window: %w", err)
	}

	cfg := Config{
		AppName:        v.GetString("app.name"),
		AppEnv:         v.GetString("app.env"),
		AppPort:        v.GetString("app.port"),
		DatabaseURL:    v.GetString("database.url"),
		RedisURL:       v.GetString("redis.url"),
		NATSURL:        v.GetString("nats.url"),
		JWTSecret:      v.GetString("jwt.secret"),
		ClientOrigin:   v.GetString("client.origin"),
		ChannelBase:    v.GetString("chat.channel_base"),
		LastMessageTTL: ttl,
		ChatRateMax:    v.GetInt("chat.rate_max"),
		ChatRateWindow: window,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.ChatRateMax <= 0 {
		cfg.ChatRateMax = 30
	}

	return cfg, nil
}
