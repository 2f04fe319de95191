package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// IceServer configures one relay handed out to peers. Either a static
// username/password pair or a secret with a ttl; the secret stays on
// the server.
type IceServer struct {
	URI            string `mapstructure:"uri"`
	Secret         string `mapstructure:"secret"`
	TTLSeconds     int    `mapstructure:"ttl_seconds"`
	RefreshSeconds int    `mapstructure:"refresh_seconds"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
}

type Config struct {
	Mode         string      `mapstructure:"mode"`
	Port         int         `mapstructure:"port"`
	ReadLimit    int64       `mapstructure:"read_limit"`
	Secret       string      `mapstructure:"secret"`
	StatusAPIKey string      `mapstructure:"status_api_key"`
	IceServers   []IceServer `mapstructure:"ice_servers"`
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
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("secret", "dev-secret-change")
	v.SetDefault("status_api_key", "")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | ICE servers: %d\n", cfg.Mode, cfg.Port, len(cfg.IceServers))
	return &cfg, nil
}
