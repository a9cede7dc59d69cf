package client

import (
	"time"

	"github.com/velos-sh/velos/internal/logsink"
	"github.com/velos-sh/velos/internal/proc"
	"github.com/velos-sh/velos/internal/wire"
)

func timeFromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// StartRequest is the process spec sent with a Start call; it is the wire
// shape itself rather than a client-local DTO, since this package and the
// daemon live in the same module and agree on one definition of a process.
type StartRequest = wire.StartPayload

// ProcessSummary and ProcessDetail mirror the daemon's own proc.Table
// views (spec.md §3): a client sees exactly what the daemon sees, decoded
// straight off the wire rather than reshaped into a parallel DTO.
type ProcessSummary = proc.Summary
type ProcessDetail = proc.Detail

// LogEntry is one tagged log line (spec.md §4.4).
type LogEntry = logsink.Entry

// ScaleResult reports the outcome of a Scale call: the ids started/stopped
// to reach the target instance count, and any per-instance errors (spec.md
// §4.6) that did not abort the whole operation.
type ScaleResult struct {
	Started []uint32
	Stopped []uint32
	Errors  []string
}

// Metrics is the decoded CmdMetricsGet payload (spec.md §4.5).
type Metrics struct {
	MemoryBytes        uint64
	UptimeMs           int64
	RestartCount       int32
	ConsecutiveCrashes int32
}

func decodeSummary(r *wire.Reader) (proc.Summary, error) {
	var s proc.Summary
	id, err := r.U32()
	if err != nil {
		return s, err
	}
	name, err := r.Str()
	if err != nil {
		return s, err
	}
	status, err := r.U8()
	if err != nil {
		return s, err
	}
	pid, err := r.I32()
	if err != nil {
		return s, err
	}
	restarts, err := r.I32()
	if err != nil {
		return s, err
	}
	uptime, err := r.I64()
	if err != nil {
		return s, err
	}
	s.ID = id
	s.Name = name
	s.Status = proc.Status(status)
	s.PID = int(pid)
	s.RestartCount = int(restarts)
	s.UptimeMs = uptime
	return s, nil
}

func decodeDetail(r *wire.Reader) (proc.Detail, error) {
	var d proc.Detail
	sum, err := decodeSummary(r)
	if err != nil {
		return d, err
	}
	startedAt, err := r.I64()
	if err != nil {
		return d, err
	}
	lastRestartAt, err := r.I64()
	if err != nil {
		return d, err
	}
	crashes, err := r.I32()
	if err != nil {
		return d, err
	}
	mem, err := r.U64()
	if err != nil {
		return d, err
	}
	bodyLen, err := r.U32()
	if err != nil {
		return d, err
	}
	body, err := r.Take(int(bodyLen))
	if err != nil {
		return d, err
	}
	payload, err := wire.DecodeStartPayload(body)
	if err != nil {
		return d, err
	}

	d.Summary = sum
	d.StartedAt = timeFromUnixMs(startedAt)
	d.LastRestartAt = timeFromUnixMs(lastRestartAt)
	d.ConsecutiveCrashes = int(crashes)
	d.MemoryBytes = mem
	d.Spec = proc.SpecFromStartPayload(payload)
	return d, nil
}

func decodeLogEntry(r *wire.Reader) (logsink.Entry, error) {
	w, err := wire.DecodeLogEntryWire(r)
	if err != nil {
		return logsink.Entry{}, err
	}
	return logsink.Entry{
		TimestampMs: w.TimestampMs,
		Stream:      logsink.Stream(w.Stream),
		Level:       logsink.Level(w.Level),
		Line:        w.Line,
	}, nil
}
