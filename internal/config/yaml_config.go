package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Keys lists every configuration key `rl config set` accepts.
var Keys = map[string]bool{
	"db":                      true,
	"backend":                 true,
	"mysql.dsn":               true,
	"actor":                   true,
	"json":                    true,
	"identity.file":           true,
	"modules.catalog":         true,
	"audit.mirror":            true,
	"log.level":               true,
	"log.format":              true,
	"serve.addr":              true,
	"serve.token":             true,
	"lock-timeout":            true,
	"telemetry.enabled":       true,
	"telemetry.otlp-endpoint": true,
}

// KnownKeys returns Keys sorted.
func KnownKeys() []string {
	out := make([]string, 0, len(Keys))
	for k := range Keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// defaultConfig is written by WriteDefaultConfig. Every key is present but
// commented so the file documents itself.
const defaultConfig = `# revledger configuration. Environment variables RL_<KEY> override these
# values (dots and dashes become underscores, e.g. RL_LOG_LEVEL).

# backend: sqlite
# db: .revledger/revledger.db
# mysql.dsn: "user:pass@tcp(127.0.0.1:3306)/revledger"
# actor: ""
# identity.file: .revledger/actors.yaml
# modules.catalog: .revledger/modules.toml
# audit.mirror: .revledger/audit.jsonl
# log.level: warn
# log.format: text
# serve.addr: 127.0.0.1:7420
# lock-timeout: 30s
`

// WriteDefaultConfig creates dir/config.yaml unless it exists and returns
// its path.
func WriteDefaultConfig(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0o600); err != nil {
		return "", fmt.Errorf("failed to write config.yaml: %w", err)
	}
	return path, nil
}

// SetYamlConfig sets a configuration value in the project's config.yaml file.
// It handles both adding new keys and updating existing (possibly commented) keys.
func SetYamlConfig(key, value string) error {
	if !Keys[key] {
		return fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(KnownKeys(), ", "))
	}
	configPath, ok := findProjectConfig()
	if !ok {
		return fmt.Errorf("no %s/config.yaml found (run 'rl init' first)", Dir)
	}

	content, err := os.ReadFile(configPath) //nolint:gosec // configPath is from findProjectConfig
	if err != nil {
		return fmt.Errorf("failed to read config.yaml: %w", err)
	}
	newContent := updateYamlKey(string(content), key, value)
	if err := os.WriteFile(configPath, []byte(newContent), 0o600); err != nil {
		return fmt.Errorf("failed to write config.yaml: %w", err)
	}
	return nil
}

// updateYamlKey updates a key in yaml content, handling commented-out keys.
// If the key exists (commented or not), it updates it in place.
// If the key doesn't exist, it appends it at the end.
func updateYamlKey(content, key, value string) string {
	newLine := fmt.Sprintf("%s: %s", key, formatYamlValue(value))
	keyPattern := regexp.MustCompile(`^(\s*)(#\s*)?` + regexp.QuoteMeta(key) + `\s*:`)

	found := false
	var result []string
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if !found && keyPattern.MatchString(line) {
			indent := keyPattern.FindStringSubmatch(line)[1]
			result = append(result, indent+newLine)
			found = true
			continue
		}
		result = append(result, line)
	}

	if !found {
		if len(result) > 0 && result[len(result)-1] != "" {
			result = append(result, "")
		}
		result = append(result, newLine)
	}
	return strings.Join(result, "\n") + "\n"
}

// formatYamlValue quotes value when YAML would otherwise misread it.
func formatYamlValue(value string) string {
	lower := strings.ToLower(value)
	if lower == "true" || lower == "false" {
		return lower
	}
	if strings.TrimSpace(value) != value || value == "" || strings.ContainsAny(value, ":#[]{},&*!|>'\"%@`") {
		return fmt.Sprintf("%q", value)
	}
	return value
}
