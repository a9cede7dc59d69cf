package supervisor

import (
	"os"

	"github.com/velos-sh/velos/internal/proc"
)

// defaultMergeEnv appends a process's own Env over the daemon's inherited
// environment. Replaced by internal/env's global-variable expander once
// wired in by the daemon entrypoint.
func defaultMergeEnv(spec proc.Spec) []string {
	if len(spec.Env) == 0 {
		return nil
	}
	merged := append([]string(nil), os.Environ()...)
	return append(merged, spec.Env...)
}
