package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the client and the relay.
//
// Values come from (lowest to highest precedence): built-in defaults,
// $BOARDSYNC_CONFIG_DIR/config.yaml, BOARDSYNC_* environment variables, and
// command-line flags (applied by the CLI after Load).
type Config struct {
	DataDir string `mapstructure:"data_dir"`
	DBPath  string `mapstructure:"db_path"`

	// Remote is a relay base URL (http://host:port). Empty means the local SQLite store.
	Remote    string        `mapstructure:"remote"`
	Addr      string        `mapstructure:"addr"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	Format string `mapstructure:"format"`
	Pretty bool   `mapstructure:"pretty"`

	AutosaveDebounce time.Duration `mapstructure:"autosave_debounce"`
	PrefsDebounce    time.Duration `mapstructure:"prefs_debounce"`
	NoteDebounce     time.Duration `mapstructure:"note_debounce"`
	WatchInterval    time.Duration `mapstructure:"watch_interval"`

	ResubscribeBase time.Duration `mapstructure:"resubscribe_base"`
	ResubscribeMax  time.Duration `mapstructure:"resubscribe_max"`

	OpenPollAttempts int           `mapstructure:"open_poll_attempts"`
	OpenPollInterval time.Duration `mapstructure:"open_poll_interval"`

	MaxAttachmentBytes int64 `mapstructure:"max_attachment_bytes"`
}

// MaxAttachmentBytes is the per-file cap for inline attachments (1.5 MiB).
const MaxAttachmentBytes = 1536 * 1024

func Defaults(dir string) map[string]any {
	return map[string]any{
		"data_dir":             dir,
		"db_path":              "",
		"remote":               "",
		"addr":                 "127.0.0.1:8787",
		"jwt_secret":           "",
		"token_ttl":            "720h",
		"log_level":            "warn",
		"log_file":             "",
		"format":               "json",
		"pretty":               false,
		"autosave_debounce":    "1200ms",
		"prefs_debounce":       "600ms",
		"note_debounce":        "800ms",
		"watch_interval":       "1s",
		"resubscribe_base":     "500ms",
		"resubscribe_max":      "30s",
		"open_poll_attempts":   10,
		"open_poll_interval":   "150ms",
		"max_attachment_bytes": MaxAttachmentBytes,
	}
}

// ConfigDir returns the directory for config, session state and the default database.
func ConfigDir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.boardsync).
	if v := strings.TrimSpace(os.Getenv("BOARDSYNC_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".boardsync"), nil
}

// Load reads configuration from dir (empty means ConfigDir()).
// A missing config file is not an error.
func Load(dir string) (Config, error) {
	if strings.TrimSpace(dir) == "" {
		d, err := ConfigDir()
		if err != nil {
			return Config{}, err
		}
		dir = d
	}

	v := viper.New()
	for k, val := range Defaults(dir) {
		v.SetDefault(k, val)
	}
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BOARDSYNC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = dir
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "boardsync.sqlite")
	}
	if cfg.MaxAttachmentBytes <= 0 {
		cfg.MaxAttachmentBytes = MaxAttachmentBytes
	}
	return cfg, nil
}
