package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMinimal(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "velos.toml")
	data := `
[[processes]]
name = "demo"
script = "sleep 1"
`
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Processes) != 1 {
		t.Fatalf("expected 1 process, got %d", len(cfg.Processes))
	}
	p := cfg.Processes[0]
	if p.Name != "demo" || p.Script != "sleep 1" {
		t.Fatalf("unexpected process: %+v", p)
	}
	if p.KillTimeoutMs != 5000 || p.Instances != 1 {
		t.Fatalf("expected Spec.WithDefaults applied, got %+v", p)
	}
}

func TestLoadDefaultsVelosPaths(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "velos.toml")
	if err := os.WriteFile(file, []byte("use_os_env = false\n"), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SocketPath == "" || cfg.PIDPath == "" || cfg.LogDir == "" || cfg.StatePath == "" {
		t.Fatalf("expected default paths to be filled in, got %+v", cfg)
	}
	if filepath.Base(cfg.SocketPath) != "velos.sock" {
		t.Fatalf("unexpected socket path %q", cfg.SocketPath)
	}
}

func TestLoadFullProcess(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "velos.toml")
	data := `
[[processes]]
name = "web"
script = "sleep 2"
cwd = "/tmp"
env = ["A=1", "B=2"]
auto_restart = true
max_restarts = 5
restart_delay_ms = 500
exp_backoff = true
watch = true
watch_paths = ["/tmp/web"]
watch_delay_ms = 100
cron_restart = "0 3 * * *"
instances = 3

  [[processes.hooks.pre_start]]
  name = "migrate"
  command = "echo migrating"
  timeout = "10s"
`
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p := cfg.Processes[0]
	if p.Name != "web" || p.Cwd != "/tmp" || len(p.Env) != 2 {
		t.Fatalf("unexpected base fields: %+v", p)
	}
	if !p.AutoRestart || p.MaxRestarts != 5 || p.RestartDelayMs != 500 || !p.ExpBackoff {
		t.Fatalf("unexpected restart-policy fields: %+v", p)
	}
	if !p.Watch || len(p.WatchPaths) != 1 || p.WatchDelayMs != 100 || p.CronRestart == "" {
		t.Fatalf("unexpected watch/cron fields: %+v", p)
	}
	if len(p.Hooks.PreStart) != 1 || p.Hooks.PreStart[0].Name != "migrate" {
		t.Fatalf("unexpected hooks: %+v", p.Hooks)
	}
}

func TestLoadRejectsMissingName(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "velos.toml")
	if err := os.WriteFile(file, []byte("[[processes]]\nscript = \"true\"\n"), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatal("expected error for process with no name")
	}
}

func TestLoadRejectsMissingScript(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "velos.toml")
	if err := os.WriteFile(file, []byte("[[processes]]\nname = \"demo\"\n"), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatal("expected error for process with no script")
	}
}

func TestLoadEnvFilesAndInlineEnvMerge(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("FOO=bar\n# comment\nBAZ=\"qux\"\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	file := filepath.Join(dir, "velos.toml")
	data := `
use_os_env = false
env_files = [".env"]
env = ["FOO=override"]
`
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := make(map[string]string, len(cfg.GlobalEnv))
	for _, kv := range cfg.GlobalEnv {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				got[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	if got["FOO"] != "override" {
		t.Fatalf("expected inline env to win over env_files, got %q", got["FOO"])
	}
	if got["BAZ"] != "qux" {
		t.Fatalf("expected quoted env file value to be unquoted, got %q", got["BAZ"])
	}
}

func TestLoadRejectsInvalidEnvFileLine(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("not-a-valid-line\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	file := filepath.Join(dir, "velos.toml")
	data := "env_files = [\".env\"]\n"
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatal("expected error for malformed env file line")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
