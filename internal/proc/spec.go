// Package proc holds the Process record (spec.md §3) and the Process
// Table (§4.2): the authoritative, in-process registry of every managed
// process, keyed by a daemon-assigned monotonic id.
package proc

import (
	"os/exec"
	"strings"
	"time"
)

// Spec describes a process to be managed. Immutable post-start except via
// a Restart intent, which re-applies the same Spec. Mapstructure tags let
// internal/config decode a Spec directly out of the daemon's own config
// file, the same field set the wire Start command carries.
type Spec struct {
	Name        string   `mapstructure:"name"`
	Script      string   `mapstructure:"script"`
	Cwd         string   `mapstructure:"cwd"`
	Interpreter string   `mapstructure:"interpreter"`
	Args        []string `mapstructure:"args"`
	Env         []string `mapstructure:"env"`
	PIDFile     string   `mapstructure:"pid_file"`

	KillTimeoutMs    uint32 `mapstructure:"kill_timeout_ms"`
	AutoRestart      bool   `mapstructure:"auto_restart"`
	MaxRestarts      int32  `mapstructure:"max_restarts"` // -1 = unlimited
	MinUptimeMs      uint32 `mapstructure:"min_uptime_ms"`
	RestartDelayMs   uint32 `mapstructure:"restart_delay_ms"`
	ExpBackoff       bool   `mapstructure:"exp_backoff"`
	MaxMemoryRestart uint64 `mapstructure:"max_memory_restart"` // 0 = disabled

	Watch        bool     `mapstructure:"watch"`
	WatchDelayMs uint32   `mapstructure:"watch_delay_ms"`
	WatchPaths   []string `mapstructure:"watch_paths"`
	WatchIgnore  []string `mapstructure:"watch_ignore"`

	CronRestart string `mapstructure:"cron_restart"`

	WaitReady       bool   `mapstructure:"wait_ready"`
	ListenTimeoutMs uint32 `mapstructure:"listen_timeout_ms"`

	ShutdownWithMessage bool `mapstructure:"shutdown_with_message"`

	Instances       int    `mapstructure:"instances"`
	ClusterBaseName string `mapstructure:"cluster_base_name"`

	Priority int `mapstructure:"priority"`

	Hooks LifecycleHooks `mapstructure:"hooks"`
}

// WithDefaults returns a copy of s with zero-valued tunables replaced by
// their documented defaults (spec.md §3).
func (s Spec) WithDefaults() Spec {
	if s.KillTimeoutMs == 0 {
		s.KillTimeoutMs = 5000
	}
	if s.RestartDelayMs == 0 {
		s.RestartDelayMs = 1000
	}
	if s.Instances == 0 {
		s.Instances = 1
	}
	return s
}

// BuildCommand constructs an *exec.Cmd for s.Script, avoiding an
// unnecessary shell layer. Grounded on the teacher's process.Spec.BuildCommand.
func (s Spec) BuildCommand() *exec.Cmd {
	if s.Interpreter != "" {
		argv := append([]string{s.Script}, s.Args...)
		// #nosec G204 -- script/interpreter are operator-supplied configuration.
		return exec.Command(s.Interpreter, argv...)
	}
	cmdStr := strings.TrimSpace(s.Script)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if shell, after, ok := parseExplicitShell(cmdStr); ok {
		_ = shell
		// #nosec G204
		return exec.Command("/bin/sh", "-c", after)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	args := append(append([]string(nil), parts[1:]...), s.Args...)
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects an already-shell-wrapped command ("sh -c ...")
// so BuildCommand doesn't double-wrap it.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}

// RestartDelay computes the next restart delay per spec.md §4.5/§8.
func (s Spec) RestartDelay(consecutiveCrashes int) time.Duration {
	base := time.Duration(s.RestartDelayMs) * time.Millisecond
	if base <= 0 {
		base = time.Second
	}
	if !s.ExpBackoff {
		return base
	}
	d := base << consecutiveCrashes // base * 2^crashes
	const cap = 60 * time.Second
	if d <= 0 || d > cap {
		return cap
	}
	return d
}
