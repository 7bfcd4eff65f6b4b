package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode        string        `mapstructure:"mode"`
	ServerURL   string        `mapstructure:"server_url"`
	PushURL     string        `mapstructure:"push_url"`
	PlayerName  string        `mapstructure:"player_name"`
	GameID      string        `mapstructure:"game_id"`
	MaxPlayers  int           `mapstructure:"max_players"`
	ControlPort int           `mapstructure:"control_port"`
	STUNURLs    []string      `mapstructure:"stun_urls"`
	AckTimeout  time.Duration `mapstructure:"ack_timeout"`
	LogLevel    string        `mapstructure:"log_level"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("server_url", "http://localhost:4000")
	v.SetDefault("push_url", "ws://localhost:4000/ws")
	v.SetDefault("max_players", 6)
	v.SetDefault("control_port", 8080)
	v.SetDefault("stun_urls", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("ack_timeout", "10s")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.PlayerName == "" {
		return nil, fmt.Errorf("player_name must be set")
	}
	fmt.Printf("🧩 Mode: %s | Server: %s | Player: %s\n", cfg.Mode, cfg.ServerURL, cfg.PlayerName)
	return &cfg, nil
}
