// Package syncconfig holds the client-side sync configuration: server URL,
// credentials, and the device identity. Stored under the user config dir
// and read through viper so values can also come from environment
// variables (LISTLING_SERVER_URL etc).
package syncconfig

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultServerURL = "http://localhost:8080"
	configName       = "config"
	configType       = "yaml"
	envPrefix        = "LISTLING"
)

// Config is the persisted sync configuration.
type Config struct {
	ServerURL string `mapstructure:"server_url"`
	APIKey    string `mapstructure:"api_key"`
	UserID    string `mapstructure:"user_id"`
	Email     string `mapstructure:"email"`
	DeviceID  string `mapstructure:"device_id"`
	LogFile   string `mapstructure:"log_file"`
}

// IsAuthenticated reports whether credentials are present.
func (c *Config) IsAuthenticated() bool {
	return c.APIKey != "" && c.UserID != ""
}

// Dir returns the config directory, creating it if necessary.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get config dir: %w", err)
	}
	dir := filepath.Join(base, "listling")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

func newViper(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(dir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("server_url", defaultServerURL)
	return v
}

// Load reads the config, applying defaults and environment overrides.
// A missing config file is not an error; defaults apply.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	v := newViper(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config back to disk.
func Save(cfg *Config) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	v := newViper(dir)
	v.Set("server_url", cfg.ServerURL)
	v.Set("api_key", cfg.APIKey)
	v.Set("user_id", cfg.UserID)
	v.Set("email", cfg.Email)
	v.Set("device_id", cfg.DeviceID)
	v.Set("log_file", cfg.LogFile)
	path := filepath.Join(dir, configName+"."+configType)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// EnsureDeviceID returns the stable device identity, generating and
// persisting one on first use.
func EnsureDeviceID(cfg *Config) (string, error) {
	if cfg.DeviceID != "" {
		return cfg.DeviceID, nil
	}
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate device id: %w", err)
	}
	cfg.DeviceID = "dev-" + hex.EncodeToString(bytes)
	if err := Save(cfg); err != nil {
		return "", err
	}
	return cfg.DeviceID, nil
}

// SignIn stores credentials after authentication completes.
func SignIn(cfg *Config, userID, email, apiKey string) error {
	cfg.UserID = userID
	cfg.Email = email
	cfg.APIKey = apiKey
	return Save(cfg)
}

// SignOut clears credentials. Local list data is untouched; retention on
// sign-out is the caller's policy.
func SignOut(cfg *Config) error {
	cfg.UserID = ""
	cfg.Email = ""
	cfg.APIKey = ""
	return Save(cfg)
}
