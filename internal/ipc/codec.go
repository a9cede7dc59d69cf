package ipc

import (
	"github.com/velos-sh/velos/internal/logsink"
	"github.com/velos-sh/velos/internal/proc"
	"github.com/velos-sh/velos/internal/wire"
)

func encodeSummary(w *wire.Writer, sum proc.Summary) {
	w.U32(sum.ID).Str(sum.Name).U8(uint8(sum.Status)).I32(int32(sum.PID)).
		I32(int32(sum.RestartCount)).I64(sum.UptimeMs)
}

func encodeDetail(w *wire.Writer, d proc.Detail) {
	encodeSummary(w, d.Summary)
	w.I64(wire.StartedAtUnixMs(d.StartedAt)).I64(wire.StartedAtUnixMs(d.LastRestartAt)).
		I32(int32(d.ConsecutiveCrashes)).U64(d.MemoryBytes)
	body := d.Spec.ToStartPayload().Encode()
	w.U32(uint32(len(body))).Raw(body)
}

func encodeLogEntry(w *wire.Writer, e logsink.Entry) {
	wire.LogEntryWire{
		TimestampMs: e.TimestampMs, Stream: uint8(e.Stream), Level: uint8(e.Level), Line: e.Line,
	}.Encode(w)
}

func encodeErrors(w *wire.Writer, errs []error) {
	w.U32(uint32(len(errs)))
	for _, err := range errs {
		w.Str(err.Error())
	}
}
