package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// DefaultCatalogURL is the demo catalog used when none is configured.
const DefaultCatalogURL = "https://storage.googleapis.com/automotive-media/music.json"

// Config holds application configuration
type Config struct {
	// Where the catalog lives: an http(s) URL or a local file path
	CatalogURL string

	// Directory for the history database and cached artwork icons
	DataDir string

	// Path of the control socket
	SocketPath string

	// How long a paused session may sit idle before resources are
	// reclaimed (in seconds)
	IdleTimeout int

	// Exit the daemon entirely when the idle timeout fires
	ExitWhenIdle bool

	// Desktop integration toggles
	MPRIS         bool
	Notifications bool

	// Playback history
	History bool

	// Path of the mpv binary
	MPVPath string
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	v.SetDefault("catalog_url", DefaultCatalogURL)
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("socket_path", DefaultSocketPath())
	v.SetDefault("idle_timeout", 30)
	v.SetDefault("exit_when_idle", false)
	v.SetDefault("mpris", true)
	v.SetDefault("notifications", true)
	v.SetDefault("history", true)
	v.SetDefault("mpv_path", "mpv")

	// Config file is optional
	_ = v.ReadInConfig()

	v.SetEnvPrefix("TONEARM")
	v.AutomaticEnv()

	cfg := &Config{
		CatalogURL:    v.GetString("catalog_url"),
		DataDir:       v.GetString("data_dir"),
		SocketPath:    v.GetString("socket_path"),
		IdleTimeout:   v.GetInt("idle_timeout"),
		ExitWhenIdle:  v.GetBool("exit_when_idle"),
		MPRIS:         v.GetBool("mpris"),
		Notifications: v.GetBool("notifications"),
		History:       v.GetBool("history"),
		MPVPath:       v.GetString("mpv_path"),
	}

	return cfg, nil
}

// IdleTimeoutDuration returns the idle timeout as a duration.
func (c *Config) IdleTimeoutDuration() time.Duration {
	return time.Duration(c.IdleTimeout) * time.Second
}

// DefaultSocketPath returns the control socket path for this user.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "tonearm.sock")
	}
	return filepath.Join(os.TempDir(), "tonearm.sock")
}

func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".local", "share", "tonearm")
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "tonearm")
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// Save writes configuration to file
func (c *Config) Save() error {
	v := viper.New()

	configDir := getConfigDir()
	configFile := filepath.Join(configDir, "config.yaml")

	v.Set("catalog_url", c.CatalogURL)
	v.Set("data_dir", c.DataDir)
	v.Set("socket_path", c.SocketPath)
	v.Set("idle_timeout", c.IdleTimeout)
	v.Set("exit_when_idle", c.ExitWhenIdle)
	v.Set("mpris", c.MPRIS)
	v.Set("notifications", c.Notifications)
	v.Set("history", c.History)
	v.Set("mpv_path", c.MPVPath)

	return v.WriteConfigAs(configFile)
}
