package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Gateway is the server-side configuration, environment-driven (a .env file
// is honored when present, loaded by the gateway main).
type Gateway struct {
	Port          string
	EngineURL     string
	JWTSecret     string
	AdminUser     string
	AdminPassword string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
}

// LoadGateway reads the gateway configuration from the environment.
func LoadGateway() Gateway {
	return Gateway{
		Port:          envOr("PORT", "8080"),
		EngineURL:     envOr("OLLAMA_BASE_URL", "http://localhost:11434"),
		JWTSecret:     envOr("JWT_SECRET", "default-secret-please-change-in-production"),
		AdminUser:     os.Getenv("ADMIN_USER"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		DBHost:        envOr("DB_HOST", "localhost"),
		DBPort:        envOr("DB_PORT", "5432"),
		DBUser:        envOr("DB_USER", "postgres"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        envOr("DB_NAME", "llamagate"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Client is the chat client configuration, resolved by viper from flags,
// environment (LLAMAGATE_*) and an optional config file.
type Client struct {
	GatewayURL string
	APIKey     string
	Model      string
	PaceDelay  time.Duration
	LogPath    string
	Dev        bool
}

// LoadClient resolves the client configuration. cfgFile may be empty, in
// which case $HOME/.llamagate.yaml is tried.
func LoadClient(cfgFile string) (Client, error) {
	v := viper.New()

	v.SetDefault("gateway_url", "http://localhost:8080")
	v.SetDefault("model", "llama2")
	v.SetDefault("pace_delay", "30ms")
	v.SetDefault("log_path", "")
	v.SetDefault("dev", false)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
			v.SetConfigName(".llamagate")
			v.SetConfigType("yaml")
		}
	}

	v.SetEnvPrefix("LLAMAGATE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// the config file is optional; only a malformed one is fatal
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return Client{}, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	}

	delay, err := time.ParseDuration(v.GetString("pace_delay"))
	if err != nil {
		return Client{}, fmt.Errorf("invalid pace_delay: %w", err)
	}

	return Client{
		GatewayURL: v.GetString("gateway_url"),
		APIKey:     v.GetString("api_key"),
		Model:      v.GetString("model"),
		PaceDelay:  delay,
		LogPath:    v.GetString("log_path"),
		Dev:        v.GetBool("dev"),
	}, nil
}
