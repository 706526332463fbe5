package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/skillmeat/skillmeat/internal/debug"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Explicitly locate config.yaml and use SetConfigFile so stray files
	// with other extensions are never picked up.
	// Precedence: project .skillmeat/config.yaml > ~/.skillmeat/config.yaml
	configFileSet := false

	// 1. Walk up from CWD to find a project-local .skillmeat/config.yaml,
	//    so commands work from subdirectories.
	cwd, err := os.Getwd()
	if err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".skillmeat", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// 2. User state directory (~/.skillmeat/config.yaml)
	if !configFileSet {
		if homeDir, err := os.UserHomeDir(); err == nil {
			configPath := filepath.Join(homeDir, ".skillmeat", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Environment variables take precedence over the config file.
	// E.g., SKILLMEAT_STATE_DIR, SKILLMEAT_COLLECTION_ROOT, SKILLMEAT_JSON.
	v.SetEnvPrefix("SKILLMEAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Global flags
	v.SetDefault("json", false)
	v.SetDefault("db", "")
	v.SetDefault("collection", "")
	v.SetDefault("identity", "")

	// State layout. Everything lives under state_dir unless overridden.
	v.SetDefault("state_dir", "")
	v.SetDefault("collection.root", "")

	// Deploy behavior
	v.SetDefault("deploy.overwrite", false)
	v.SetDefault("deploy.profile", "claude")

	// Sync behavior. Values: merge | theirs | ours | manual.
	v.SetDefault("sync.strategy", "merge")

	// Snapshot retention: keep this many per scope, drop older than age.
	v.SetDefault("snapshot.retention.count", 20)
	v.SetDefault("snapshot.retention.age", "720h")

	// Memory extraction
	v.SetDefault("memory.llm.enabled", false)
	v.SetDefault("memory.llm.model", "claude-3-5-haiku-latest")
	v.SetDefault("memory.dedup_threshold", 0.85)

	// Context packing
	v.SetDefault("pack.default_budget", 8000)

	// Operations log rotation
	v.SetDefault("log.max_size_mb", 5)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 30)

	// Watch loop
	v.SetDefault("watch.debounce", "500ms")
	v.SetDefault("watch.poll_interval", "5s")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("loaded config from %s", v.ConfigFileUsed())
	} else {
		debug.Logf("no config.yaml found; using defaults and environment variables")
	}

	return nil
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetFloat64 retrieves a float configuration value.
func GetFloat64(key string) float64 {
	if v == nil {
		return 0
	}
	return v.GetFloat64(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice retrieves a string slice configuration value.
func GetStringSlice(key string) []string {
	if v == nil {
		return []string{}
	}
	return v.GetStringSlice(key)
}

// Set sets a configuration value. Used by flag binding and tests.
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns all configuration settings as a map.
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// StateDir resolves the skillmeat state directory: the state_dir key
// (SKILLMEAT_STATE_DIR) when set, else ~/.skillmeat.
func StateDir() string {
	if dir := GetString("state_dir"); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".skillmeat"
	}
	return filepath.Join(homeDir, ".skillmeat")
}

// DatabasePath resolves the sqlite database path: the db key when set, else
// <state_dir>/skillmeat.db.
func DatabasePath() string {
	if db := GetString("db"); db != "" {
		return db
	}
	return filepath.Join(StateDir(), "skillmeat.db")
}

// CollectionRoot resolves where the default collection's files live:
// collection.root when set, else <state_dir>/collection.
func CollectionRoot() string {
	if root := GetString("collection.root"); root != "" {
		return root
	}
	return filepath.Join(StateDir(), "collection")
}

// LocksDir is where per-aggregate lock files live.
func LocksDir() string {
	return filepath.Join(StateDir(), "locks")
}

// SnapshotsDir is the content-addressed snapshot blob store root.
func SnapshotsDir() string {
	return filepath.Join(StateDir(), "snapshots")
}

// OpsLogPath is the rotated operations log file.
func OpsLogPath() string {
	return filepath.Join(StateDir(), "ops.log")
}

// GetIdentity resolves who mutations are attributed to.
// Priority chain:
//  1. flagValue (if non-empty, from --identity)
//  2. SKILLMEAT_IDENTITY env var / config.yaml identity field (via viper)
//  3. git config user.name
//  4. hostname
func GetIdentity(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if identity := GetString("identity"); identity != "" {
		return identity
	}
	cmd := exec.Command("git", "config", "user.name")
	if output, err := cmd.Output(); err == nil {
		if gitUser := strings.TrimSpace(string(output)); gitUser != "" {
			return gitUser
		}
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "local"
}
