package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted in Config.Backends.
const (
	BackendDocument = "document"
	BackendCache    = "cache"
	BackendLegacy   = "legacy"
)

type Config struct {
	DataDir          string        `mapstructure:"data_dir"`
	DocumentDBPath   string        `mapstructure:"document_db"`
	CacheDir         string        `mapstructure:"cache_dir"`
	LegacyPath       string        `mapstructure:"legacy_path"`
	AuditLogPath     string        `mapstructure:"audit_log"`
	LedgerDBPath     string        `mapstructure:"ledger_db"`
	CatalogPath      string        `mapstructure:"catalog_path"`
	AggregatorURL    string        `mapstructure:"aggregator_url"`
	ListenAddr       string        `mapstructure:"listen_addr"`
	LockTimeout      time.Duration `mapstructure:"lock_timeout"`
	Backends         []string      `mapstructure:"backends"`
	AutosaveInterval time.Duration `mapstructure:"autosave_interval"`
	RepairInterval   time.Duration `mapstructure:"repair_interval"`
	LogLevel         string        `mapstructure:"log_level"`
	LogJSON          bool          `mapstructure:"log_json"`
}

// New returns the default configuration rooted at dataDir.
func New(dataDir string) (Config, error) {
	if dataDir == "" {
		return Config{}, fmt.Errorf("data dir is required")
	}
	base := filepath.Join(dataDir, ".studyrun")
	return Config{
		DataDir:          dataDir,
		DocumentDBPath:   filepath.Join(base, "sessions.db"),
		CacheDir:         filepath.Join(base, "cache"),
		LegacyPath:       filepath.Join(base, "legacy-sessions.yaml"),
		AuditLogPath:     filepath.Join(base, "audit.jsonl"),
		LedgerDBPath:     filepath.Join(base, "ledger.db"),
		ListenAddr:       "127.0.0.1:8787",
		LockTimeout:      30 * time.Second,
		Backends:         []string{BackendDocument, BackendLegacy, BackendCache},
		AutosaveInterval: 30 * time.Second,
		RepairInterval:   5 * time.Minute,
		LogLevel:         "info",
	}, nil
}

// Load layers an optional config file and STUDYRUN_* environment variables on
// top of the defaults from New.
func Load(dataDir, file string) (Config, error) {
	cfg, err := New(dataDir)
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("studyrun")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	// Derived paths follow a data_dir set by the file or environment unless
	// they are set explicitly as well.
	if dir := v.GetString("data_dir"); dir != "" && dir != dataDir {
		rebased, err := New(dir)
		if err != nil {
			return Config{}, err
		}
		setDefaults(v, rebased)
	}

	// Decode into a zero value; mapstructure merges slices into existing
	// elements instead of replacing them.
	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := out.Validate(); err != nil {
		return Config{}, err
	}
	return out, nil
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one session backend is required")
	}
	seen := map[string]bool{}
	for _, name := range c.Backends {
		switch name {
		case BackendDocument, BackendCache, BackendLegacy:
		default:
			return fmt.Errorf("unknown session backend %q", name)
		}
		if seen[name] {
			return fmt.Errorf("session backend %q listed twice", name)
		}
		seen[name] = true
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive")
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("document_db", cfg.DocumentDBPath)
	v.SetDefault("cache_dir", cfg.CacheDir)
	v.SetDefault("legacy_path", cfg.LegacyPath)
	v.SetDefault("audit_log", cfg.AuditLogPath)
	v.SetDefault("ledger_db", cfg.LedgerDBPath)
	v.SetDefault("catalog_path", cfg.CatalogPath)
	v.SetDefault("aggregator_url", cfg.AggregatorURL)
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("lock_timeout", cfg.LockTimeout)
	v.SetDefault("backends", cfg.Backends)
	v.SetDefault("autosave_interval", cfg.AutosaveInterval)
	v.SetDefault("repair_interval", cfg.RepairInterval)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_json", cfg.LogJSON)
}
