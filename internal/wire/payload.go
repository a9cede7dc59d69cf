package wire

import "time"

// StartPayload mirrors proc.Spec (spec.md §3) on the wire. Per the Open
// Question on the two historical StartPayload variants, decode tolerates a
// payload truncated after any field: once the reader runs out of bytes the
// remaining fields keep their Go zero value. Callers apply
// proc.Spec.WithDefaults after decode, which fills kill_timeout_ms,
// restart_delay_ms and instances; every other unread field (for example
// autorestart=false, max_restarts=0) stays zero.
type StartPayload struct {
	Name            string
	Script          string
	Cwd             string
	Interpreter     string
	Args            []string
	Env             []string
	KillTimeoutMs   uint32
	AutoRestart     bool
	MaxRestarts     int32
	MinUptimeMs     uint32
	RestartDelayMs  uint32
	ExpBackoff      bool
	MaxMemoryRestart uint64
	Watch           bool
	WatchDelayMs    uint32
	WatchPaths      []string
	WatchIgnore     []string
	CronRestart     string
	WaitReady       bool
	ListenTimeoutMs uint32
	ShutdownWithMsg bool
	Instances       uint32
	ClusterBaseName string
	PIDFile         string
	Priority        int32
}

func (p StartPayload) Encode() []byte {
	w := NewWriter()
	w.Str(p.Name).Str(p.Script).Str(p.Cwd).Str(p.Interpreter)
	w.StrSlice(p.Args).StrSlice(p.Env)
	w.U32(p.KillTimeoutMs).Bool(p.AutoRestart).I32(p.MaxRestarts)
	w.U32(p.MinUptimeMs).U32(p.RestartDelayMs).Bool(p.ExpBackoff)
	w.U64(p.MaxMemoryRestart)
	w.Bool(p.Watch).U32(p.WatchDelayMs).StrSlice(p.WatchPaths).StrSlice(p.WatchIgnore)
	w.Str(p.CronRestart)
	w.Bool(p.WaitReady).U32(p.ListenTimeoutMs).Bool(p.ShutdownWithMsg)
	w.U32(p.Instances).Str(p.ClusterBaseName).Str(p.PIDFile).I32(p.Priority)
	return w.Bytes()
}

// DecodeStartPayload decodes a StartPayload, tolerating a body that ends
// early (older/shorter client). Fields not reached keep their zero value.
func DecodeStartPayload(body []byte) (StartPayload, error) {
	r := NewReader(body)
	var p StartPayload
	var truncated bool
	read := func(f func() error) {
		if truncated {
			return
		}
		if err := f(); err != nil {
			// A field cut short by a truncated/older payload is not an
			// error: remaining fields keep their documented defaults
			// (spec.md §9 Open Question 2).
			truncated = true
		}
	}
	read(func() (e error) { p.Name, e = r.Str(); return })
	read(func() (e error) { p.Script, e = r.Str(); return })
	read(func() (e error) { p.Cwd, e = r.Str(); return })
	read(func() (e error) { p.Interpreter, e = r.Str(); return })
	read(func() (e error) { p.Args, e = r.StrSlice(); return })
	read(func() (e error) { p.Env, e = r.StrSlice(); return })
	read(func() (e error) { p.KillTimeoutMs, e = r.U32(); return })
	read(func() (e error) { p.AutoRestart, e = r.Bool(); return })
	read(func() (e error) { p.MaxRestarts, e = r.I32(); return })
	read(func() (e error) { p.MinUptimeMs, e = r.U32(); return })
	read(func() (e error) { p.RestartDelayMs, e = r.U32(); return })
	read(func() (e error) { p.ExpBackoff, e = r.Bool(); return })
	read(func() (e error) { p.MaxMemoryRestart, e = r.U64(); return })
	read(func() (e error) { p.Watch, e = r.Bool(); return })
	read(func() (e error) { p.WatchDelayMs, e = r.U32(); return })
	read(func() (e error) { p.WatchPaths, e = r.StrSlice(); return })
	read(func() (e error) { p.WatchIgnore, e = r.StrSlice(); return })
	read(func() (e error) { p.CronRestart, e = r.Str(); return })
	read(func() (e error) { p.WaitReady, e = r.Bool(); return })
	read(func() (e error) { p.ListenTimeoutMs, e = r.U32(); return })
	read(func() (e error) { p.ShutdownWithMsg, e = r.Bool(); return })
	read(func() (e error) { p.Instances, e = r.U32(); return })
	read(func() (e error) { p.ClusterBaseName, e = r.Str(); return })
	read(func() (e error) { p.PIDFile, e = r.Str(); return })
	read(func() (e error) { p.Priority, e = r.I32(); return })
	return p, nil
}

// LogEntryWire is the wire encoding of one tagged log line (spec.md §4.4).
type LogEntryWire struct {
	TimestampMs int64
	Stream      uint8 // 0=out, 1=err
	Level       uint8 // 0=Info
	Line        string
}

func (e LogEntryWire) Encode(w *Writer) {
	w.I64(e.TimestampMs).U8(e.Stream).U8(e.Level).Str(e.Line)
}

func DecodeLogEntryWire(r *Reader) (LogEntryWire, error) {
	var e LogEntryWire
	var err error
	if e.TimestampMs, err = r.I64(); err != nil {
		return e, err
	}
	if e.Stream, err = r.U8(); err != nil {
		return e, err
	}
	if e.Level, err = r.U8(); err != nil {
		return e, err
	}
	if e.Line, err = r.Str(); err != nil {
		return e, err
	}
	return e, nil
}

// StartedAtUnixMs is a convenience for encoding time.Time fields as i64 ms.
func StartedAtUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
