package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	tests := []struct {
		key      string
		expected interface{}
		getter   func(string) interface{}
	}{
		{"json", false, func(k string) interface{} { return GetBool(k) }},
		{"db", filepath.Join(".revledger", "revledger.db"), func(k string) interface{} { return GetString(k) }},
		{"backend", "sqlite", func(k string) interface{} { return GetString(k) }},
		{"actor", "", func(k string) interface{} { return GetString(k) }},
		{"log.level", "warn", func(k string) interface{} { return GetString(k) }},
		{"log.format", "text", func(k string) interface{} { return GetString(k) }},
		{"serve.addr", "127.0.0.1:7420", func(k string) interface{} { return GetString(k) }},
		{"lock-timeout", 30 * time.Second, func(k string) interface{} { return GetDuration(k) }},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := tt.getter(tt.key); got != tt.expected {
				t.Errorf("GetXXX(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestEnvironmentBinding(t *testing.T) {
	tests := []struct {
		envVar   string
		key      string
		value    string
		expected interface{}
		getter   func(string) interface{}
	}{
		{"RL_JSON", "json", "true", true, func(k string) interface{} { return GetBool(k) }},
		{"RL_ACTOR", "actor", "ann", "ann", func(k string) interface{} { return GetString(k) }},
		{"RL_DB", "db", "/tmp/test.db", "/tmp/test.db", func(k string) interface{} { return GetString(k) }},
		{"RL_LOG_LEVEL", "log.level", "debug", "debug", func(k string) interface{} { return GetString(k) }},
		{"RL_MYSQL_DSN", "mysql.dsn", "u:p@tcp(db:3306)/rl", "u:p@tcp(db:3306)/rl", func(k string) interface{} { return GetString(k) }},
		{"RL_LOCK_TIMEOUT", "lock-timeout", "5s", 5 * time.Second, func(k string) interface{} { return GetDuration(k) }},
	}
	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)
			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() returned error: %v", err)
			}
			if got := tt.getter(tt.key); got != tt.expected {
				t.Errorf("GetXXX(%q) with %s=%s = %v, want %v", tt.key, tt.envVar, tt.value, got, tt.expected)
			}
		})
	}
}

func TestConfigFilePrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, Dir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("failed to create %s: %v", Dir, err)
	}
	content := "json: false\nactor: configuser\nlock-timeout: 15s\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	sub := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatal(err)
	}
	// Discovery walks up from a nested directory.
	t.Chdir(sub)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetString("actor"); got != "configuser" {
		t.Errorf("GetString(actor) = %q, want \"configuser\"", got)
	}
	if got := GetDuration("lock-timeout"); got != 15*time.Second {
		t.Errorf("GetDuration(lock-timeout) = %v, want 15s", got)
	}
	if ConfigFileUsed() == "" {
		t.Error("ConfigFileUsed() is empty")
	}

	t.Setenv("RL_JSON", "true")
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if !GetBool("json") {
		t.Error("environment should override config file")
	}
}

func TestDotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	if err := os.WriteFile(".env", []byte("RL_SERVE_TOKEN=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("RL_SERVE_TOKEN") })

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetString("serve.token"); got != "from-dotenv" {
		t.Errorf("GetString(serve.token) = %q, want from-dotenv", got)
	}
}

func TestSetAndLoad(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	Set("actor", "ed")
	Set("backend", "mysql")
	s := Load()
	if s.Actor != "ed" || s.Backend != "mysql" {
		t.Errorf("Load() = %+v", s)
	}
	if s.LockTimeout != 30*time.Second {
		t.Errorf("LockTimeout = %v", s.LockTimeout)
	}
}

func TestNilSingleton(t *testing.T) {
	ResetForTesting()
	defer func() { _ = Initialize() }()
	if GetString("db") != "" || GetBool("json") || GetDuration("lock-timeout") != 0 {
		t.Error("getters must return zero values before Initialize")
	}
	Set("db", "x") // must not panic
}
