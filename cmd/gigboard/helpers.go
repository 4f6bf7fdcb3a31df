package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	gigboard "github.com/gigboard/gigboard-go"
	"github.com/joho/godotenv"
)

// loadEnv reads a .env file from the working directory, if any. Variables
// already set in the environment win.
func loadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cannot load .env: %w", err)
	}
	return nil
}

// applyEnv overrides config values with GIGBOARD_* environment variables.
func applyEnv(cfg *Config) {
	overrides := []struct {
		name string
		dst  *string
	}{
		{"GIGBOARD_BASE_URL", &cfg.Default.BaseURL},
		{"GIGBOARD_SOCKET_URL", &cfg.Default.SocketURL},
		{"GIGBOARD_TOKEN", &cfg.Auth.Token},
		{"GIGBOARD_USER_ID", &cfg.Auth.UserID},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.name); v != "" {
			*o.dst = v
		}
	}
}

// resolveConfig loads the config file and applies environment overrides.
func resolveConfig() (*Config, error) {
	if err := loadEnv(); err != nil {
		return nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyEnv(cfg)
	return cfg, nil
}

// getClient creates an API client authenticated with the stored token.
func getClient() (*gigboard.Client, *Config, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Auth.Token == "" {
		return nil, nil, errors.New("no token configured; run 'gigboard init <user-id> <token>' first")
	}
	client := gigboard.NewClient(cfg.Default.BaseURL,
		gigboard.WithToken(cfg.Auth.Token),
		gigboard.WithLogger(logger.Named("api")),
	)
	return client, cfg, nil
}

// getLive creates a Live session for the configured user. It is not started.
func getLive(opts gigboard.LiveOptions) (*gigboard.Live, error) {
	client, cfg, err := getClient()
	if err != nil {
		return nil, err
	}
	if cfg.Auth.UserID == "" {
		return nil, errors.New("no user id configured; run 'gigboard init <user-id> <token>' first")
	}
	transport := client.Realtime(&gigboard.RealtimeConfig{
		URL:                  cfg.Default.SocketURL,
		AutoReconnect:        true,
		MaxReconnectAttempts: -1,
		Logger:               logger.Named("realtime"),
	})
	session := gigboard.Session{UserID: cfg.Auth.UserID, Token: cfg.Auth.Token}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return gigboard.NewLive(client, transport, session, &opts), nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

// maskKey shows the first and last 4 characters of a secret.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
