package proc

import (
	"fmt"
	"strings"
	"time"
)

// LifecycleHooks holds optional pre/post start/stop command hooks (a
// supplemented feature, see SPEC_FULL.md). Grounded near-verbatim on the
// teacher's internal/process/lifecycle.go.
type LifecycleHooks struct {
	PreStart  []Hook `mapstructure:"pre_start"`
	PostStart []Hook `mapstructure:"post_start"`
	PreStop   []Hook `mapstructure:"pre_stop"`
	PostStop  []Hook `mapstructure:"post_stop"`
}

// Hook is a single lifecycle hook command.
type Hook struct {
	Name        string        `mapstructure:"name"`
	Command     string        `mapstructure:"command"`
	WorkDir     string        `mapstructure:"work_dir"`
	Env         []string      `mapstructure:"env"`
	Timeout     time.Duration `mapstructure:"timeout"`
	FailureMode FailureMode   `mapstructure:"failure_mode"`
}

type FailureMode string

const (
	FailureModeIgnore FailureMode = "ignore"
	FailureModeFail   FailureMode = "fail"
)

func (lh LifecycleHooks) HasAny() bool {
	return len(lh.PreStart) > 0 || len(lh.PostStart) > 0 || len(lh.PreStop) > 0 || len(lh.PostStop) > 0
}

// Validate checks hook configuration, matching the teacher's rules for
// names, command length, and failure mode.
func (lh LifecycleHooks) Validate() error {
	names := make(map[string]string)
	phases := map[string][]Hook{
		"pre_start": lh.PreStart, "post_start": lh.PostStart,
		"pre_stop": lh.PreStop, "post_stop": lh.PostStop,
	}
	for phase, hooks := range phases {
		for i, h := range hooks {
			if err := h.validate(); err != nil {
				return fmt.Errorf("%s hook %d: %w", phase, i, err)
			}
			if existing, ok := names[h.Name]; ok {
				return fmt.Errorf("duplicate hook name %q in %s and %s", h.Name, existing, phase)
			}
			names[h.Name] = phase
		}
	}
	return nil
}

func (h Hook) validate() error {
	name := strings.TrimSpace(h.Name)
	if name == "" {
		return fmt.Errorf("hook name is required")
	}
	if strings.TrimSpace(h.Command) == "" {
		return fmt.Errorf("hook %q requires a command", name)
	}
	switch h.FailureMode {
	case "", FailureModeIgnore, FailureModeFail:
	default:
		return fmt.Errorf("hook %q: invalid failure_mode %q", name, h.FailureMode)
	}
	return nil
}

// WithDefaults returns a copy of h with zero-valued tunables filled in.
func (h Hook) WithDefaults() Hook {
	if h.FailureMode == "" {
		h.FailureMode = FailureModeFail
	}
	if h.Timeout == 0 {
		h.Timeout = 30 * time.Second
	}
	return h
}
