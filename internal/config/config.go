// Package config loads the daemon's on-disk configuration (spec.md §6's
// ambient stack): the Unix socket/PID file locations, the log and state
// directories, the history sink DSN, the global environment, and the set
// of processes to start at boot. Grounded on the teacher's
// internal/config (viper-backed, mapstructure decode, env-file merge),
// trimmed to the fields SPEC_FULL.md's daemon actually needs -- the
// teacher's groups/detectors/server/metrics sections have no home here
// since those components are explicit Non-goals.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/velos-sh/velos/internal/proc"
)

// Config is the daemon's fully-resolved configuration.
type Config struct {
	SocketPath string `mapstructure:"socket_path"`
	PIDPath    string `mapstructure:"pid_path"`
	LogDir     string `mapstructure:"log_dir"`
	StatePath  string `mapstructure:"state_path"`

	HistoryDSN   string `mapstructure:"history_dsn"`
	HistoryTable string `mapstructure:"history_table"`

	UseOSEnv bool     `mapstructure:"use_os_env"`
	EnvFiles []string `mapstructure:"env_files"`
	Env      []string `mapstructure:"env"`

	// Processes to start at daemon boot, in the same shape a Start
	// request decodes into (see internal/proc.Spec / wire.StartPayload).
	Processes []proc.Spec `mapstructure:"processes"`

	// GlobalEnv is computed from UseOSEnv/EnvFiles/Env by Load.
	GlobalEnv []string

	configPath string
}

// defaultVelosDir returns ~/.velos, falling back to the current directory
// if the home directory cannot be determined (matches the teacher's
// cmd/provisr session-dir fallback).
func defaultVelosDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".velos")
}

// WithDefaults fills in the spec.md §6 default paths for any field the
// config file left unset.
func (c Config) WithDefaults() Config {
	dir := defaultVelosDir()
	if c.SocketPath == "" {
		c.SocketPath = filepath.Join(dir, "velos.sock")
	}
	if c.PIDPath == "" {
		c.PIDPath = filepath.Join(dir, "velos.pid")
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(dir, "logs")
	}
	if c.StatePath == "" {
		c.StatePath = filepath.Join(dir, "dump.bin")
	}
	return c
}

// Load reads configPath (toml/yaml/json, anything viper supports) and
// returns a fully-resolved Config: defaulted paths, computed GlobalEnv,
// and every process Spec defaulted (proc.Spec.WithDefaults).
func Load(configPath string) (*Config, error) {
	cfg := &Config{configPath: configPath}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", configPath, err)
	}

	*cfg = cfg.WithDefaults()

	for i := range cfg.Processes {
		cfg.Processes[i] = cfg.Processes[i].WithDefaults()
		if strings.TrimSpace(cfg.Processes[i].Name) == "" {
			return nil, fmt.Errorf("%s: processes[%d] requires a name", configPath, i)
		}
		if strings.TrimSpace(cfg.Processes[i].Script) == "" {
			return nil, fmt.Errorf("%s: process %q requires a script", configPath, cfg.Processes[i].Name)
		}
		if err := cfg.Processes[i].Hooks.Validate(); err != nil {
			return nil, fmt.Errorf("%s: process %q hooks: %w", configPath, cfg.Processes[i].Name, err)
		}
	}

	globalEnv, err := computeGlobalEnv(cfg.UseOSEnv, cfg.EnvFiles, cfg.Env, configPath)
	if err != nil {
		return nil, fmt.Errorf("compute global env: %w", err)
	}
	cfg.GlobalEnv = globalEnv

	return cfg, nil
}

// computeGlobalEnv merges, in increasing priority, the daemon's own OS
// environment (if use_os_env), each env_files entry in order, then the
// inline env list -- matching the teacher's internal/config.computeGlobalEnv.
// Relative env_files paths resolve against the config file's directory.
func computeGlobalEnv(useOSEnv bool, envFiles, env []string, configPath string) ([]string, error) {
	merged := make(map[string]string)

	if useOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				merged[kv[:i]] = kv[i+1:]
			}
		}
	}

	baseDir := filepath.Dir(configPath)
	for _, f := range envFiles {
		path := f
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		fileEnv, err := loadEnvFile(path)
		if err != nil {
			return nil, err
		}
		for k, v := range fileEnv {
			merged[k] = v
		}
	}

	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			merged[kv[:i]] = kv[i+1:]
		}
	}

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out, nil
}

// loadEnvFile parses a simple KEY=VALUE file (dotenv-ish: blank lines and
// '#' comments skipped, optional quoting), matching the teacher's
// internal/config.loadEnvFile.
func loadEnvFile(path string) (map[string]string, error) {
	// #nosec G304 -- path comes from the daemon's own config file.
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}

	out := make(map[string]string)
	for i, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, fmt.Errorf("%s:%d: invalid env line %q", path, i+1, line)
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if n := len(val); n >= 2 {
			if (val[0] == '"' && val[n-1] == '"') || (val[0] == '\'' && val[n-1] == '\'') {
				val = val[1 : n-1]
			}
		}
		out[key] = val
	}
	return out, nil
}
