package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RELAYCTL_LOG_LEVEL.
const EnvPrefix = "RELAYCTL"

// Config holds relayctl's own configuration
type Config struct {
	Settings   SettingsConfig   `mapstructure:"settings"`
	DataDir    string           `mapstructure:"data_dir"`
	Server     ServerConfig     `mapstructure:"server"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Log        LogConfig        `mapstructure:"log"`
	Journal    JournalConfig    `mapstructure:"journal"`
}

// SettingsConfig locates the relay settings document
type SettingsConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig describes how to launch the relay
type ServerConfig struct {
	Command string `mapstructure:"command"`  // e.g. "python3 main.py"
	Workdir string `mapstructure:"workdir"`  // working directory for the relay
	LogFile string `mapstructure:"log_file"` // relay stdout/stderr; empty discards
}

// SupervisorConfig holds process supervision timings
type SupervisorConfig struct {
	GracePeriod  time.Duration `mapstructure:"grace_period"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Format string `mapstructure:"format"` // "json" or "text"
	Level  string `mapstructure:"level"`  // "debug", "info", "warn", "error"
}

// JournalConfig controls the event journal
type JournalConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Options selects where configuration is read from. Zero values use the
// default search paths.
type Options struct {
	ConfigFile string // explicit relayctl.yaml
	EnvFile    string // dotenv file, default ".env"
}

// Load reads configuration from defaults, an optional relayctl.yaml, a
// .env file and RELAYCTL_* environment variables, in increasing priority.
// Variables already set in the environment win over the .env file.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading %s: %w", envFile, err)
	}

	v := viper.New()

	dataDir, err := DefaultDataDir()
	if err != nil {
		dataDir = ".relayctl"
	}

	v.SetDefault("settings.path", "relay_config.ini")
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("server.command", "python3 main.py")
	v.SetDefault("server.workdir", "")
	v.SetDefault("server.log_file", "")
	v.SetDefault("supervisor.grace_period", 2*time.Second)
	v.SetDefault("supervisor.stop_timeout", 5*time.Second)
	v.SetDefault("supervisor.poll_interval", 5*time.Second)
	v.SetDefault("log.format", "text")
	v.SetDefault("log.level", "warn")
	v.SetDefault("journal.enabled", true)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("relayctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "relayctl"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, using defaults
	}

	// Environment variables override
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Supervisor.GracePeriod <= 0 {
		return fmt.Errorf("supervisor.grace_period must be positive, got %s", c.Supervisor.GracePeriod)
	}
	if c.Supervisor.StopTimeout <= 0 {
		return fmt.Errorf("supervisor.stop_timeout must be positive, got %s", c.Supervisor.StopTimeout)
	}
	if c.Supervisor.PollInterval <= 0 {
		return fmt.Errorf("supervisor.poll_interval must be positive, got %s", c.Supervisor.PollInterval)
	}
	return nil
}

// DefaultDataDir returns ~/.local/share/relayctl/ on Linux, platform
// equivalent elsewhere. RELAYCTL_DATA_DIR takes precedence.
func DefaultDataDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "_DATA_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "relayctl"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "relayctl"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "relayctl"), nil
	default:
		return filepath.Join(home, ".local", "share", "relayctl"), nil
	}
}
