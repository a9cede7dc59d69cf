package proc

import "github.com/velos-sh/velos/internal/wire"

// ToStartPayload projects a Spec onto its wire representation, shared by
// the IPC Start handler and the State Store's dump format so both speak
// the same framing (spec.md §4.1, §4.7).
func (s Spec) ToStartPayload() wire.StartPayload {
	return wire.StartPayload{
		Name: s.Name, Script: s.Script, Cwd: s.Cwd, Interpreter: s.Interpreter,
		Args: s.Args, Env: s.Env,
		KillTimeoutMs: s.KillTimeoutMs, AutoRestart: s.AutoRestart, MaxRestarts: s.MaxRestarts,
		MinUptimeMs: s.MinUptimeMs, RestartDelayMs: s.RestartDelayMs, ExpBackoff: s.ExpBackoff,
		MaxMemoryRestart: s.MaxMemoryRestart,
		Watch:            s.Watch, WatchDelayMs: s.WatchDelayMs, WatchPaths: s.WatchPaths, WatchIgnore: s.WatchIgnore,
		CronRestart:     s.CronRestart,
		WaitReady:       s.WaitReady, ListenTimeoutMs: s.ListenTimeoutMs, ShutdownWithMsg: s.ShutdownWithMessage,
		Instances:       uint32(s.Instances), ClusterBaseName: s.ClusterBaseName,
		PIDFile:  s.PIDFile,
		Priority: int32(s.Priority),
	}
}

// SpecFromStartPayload is the inverse of ToStartPayload. Lifecycle hooks
// are not part of the wire Start command (spec.md §9): they are attached
// from the daemon's own config, never from an IPC client, so a Spec
// decoded this way always has a zero LifecycleHooks.
func SpecFromStartPayload(p wire.StartPayload) Spec {
	return Spec{
		Name: p.Name, Script: p.Script, Cwd: p.Cwd, Interpreter: p.Interpreter,
		Args: p.Args, Env: p.Env, PIDFile: p.PIDFile,
		KillTimeoutMs: p.KillTimeoutMs, AutoRestart: p.AutoRestart, MaxRestarts: p.MaxRestarts,
		MinUptimeMs: p.MinUptimeMs, RestartDelayMs: p.RestartDelayMs, ExpBackoff: p.ExpBackoff,
		MaxMemoryRestart: p.MaxMemoryRestart,
		Watch:            p.Watch, WatchDelayMs: p.WatchDelayMs, WatchPaths: p.WatchPaths, WatchIgnore: p.WatchIgnore,
		CronRestart:     p.CronRestart,
		WaitReady:       p.WaitReady, ListenTimeoutMs: p.ListenTimeoutMs, ShutdownWithMessage: p.ShutdownWithMsg,
		Instances:       int(p.Instances), ClusterBaseName: p.ClusterBaseName,
		Priority: int(p.Priority),
	}
}
