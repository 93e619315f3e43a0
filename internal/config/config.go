// Package config owns the process-wide configuration: a viper instance fed
// from defaults, the project config.yaml, a .env file and RL_* environment
// variables, in increasing order of precedence. Command-line flags override
// all of them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Dir is the per-project directory holding the database and config files.
const Dir = ".revledger"

// EnvPrefix prefixes every environment override, e.g. RL_DB, RL_LOG_LEVEL.
const EnvPrefix = "RL"

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()

	v.SetConfigType("yaml")
	if path, ok := findProjectConfig(); ok {
		v.SetConfigFile(path)
	} else if configDir, err := os.UserConfigDir(); err == nil {
		v.SetConfigFile(filepath.Join(configDir, "revledger", "config.yaml"))
	}

	// A .env next to the working directory seeds the environment without
	// overriding variables that are already set.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error loading .env: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db", filepath.Join(Dir, "revledger.db"))
	v.SetDefault("backend", "sqlite")
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("actor", "")
	v.SetDefault("json", false)
	v.SetDefault("identity.file", filepath.Join(Dir, "actors.yaml"))
	v.SetDefault("modules.catalog", filepath.Join(Dir, "modules.toml"))
	v.SetDefault("audit.mirror", "")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("serve.addr", "127.0.0.1:7420")
	v.SetDefault("serve.token", "")
	v.SetDefault("lock-timeout", 30*time.Second)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp-endpoint", "")
}

// findProjectConfig walks up from the working directory looking for
// .revledger/config.yaml.
func findProjectConfig() (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		path := filepath.Join(dir, Dir, "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
		if dir == filepath.Dir(dir) {
			return "", false
		}
	}
}

// ConfigFileUsed returns the config file that was loaded, or "".
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err != nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set sets a configuration value for the rest of the process.
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// ResetForTesting drops the singleton so tests start from a clean slate.
func ResetForTesting() {
	v = nil
}

// Settings is a typed snapshot of the configuration.
type Settings struct {
	DB             string
	Backend        string
	MySQLDSN       string
	Actor          string
	JSON           bool
	IdentityFile   string
	ModulesCatalog string
	AuditMirror    string
	LogLevel       string
	LogFormat      string
	ServeAddr      string
	ServeToken     string
	LockTimeout    time.Duration
	Telemetry      bool
	OTLPEndpoint   string
}

// Load returns the current settings.
func Load() Settings {
	return Settings{
		DB:             GetString("db"),
		Backend:        GetString("backend"),
		MySQLDSN:       GetString("mysql.dsn"),
		Actor:          GetString("actor"),
		JSON:           GetBool("json"),
		IdentityFile:   GetString("identity.file"),
		ModulesCatalog: GetString("modules.catalog"),
		AuditMirror:    GetString("audit.mirror"),
		LogLevel:       GetString("log.level"),
		LogFormat:      GetString("log.format"),
		ServeAddr:      GetString("serve.addr"),
		ServeToken:     GetString("serve.token"),
		LockTimeout:    GetDuration("lock-timeout"),
		Telemetry:      GetBool("telemetry.enabled"),
		OTLPEndpoint:   GetString("telemetry.otlp-endpoint"),
	}
}
