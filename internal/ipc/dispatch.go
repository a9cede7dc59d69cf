package ipc

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/velos-sh/velos/internal/proc"
	"github.com/velos-sh/velos/internal/wire"
)

func notFoundErr(id uint32) error {
	return &wire.ProcessNotFoundError{Ref: strconv.FormatUint(uint64(id), 10)}
}

// dispatch routes one decoded Request to its handler. Per spec.md §9 this
// is an ordinary switch over CommandCode, not a registry of interfaces --
// every branch is a ordinary function the reader can jump straight to.
// The bool return reports whether the handler already wrote its own
// frames (LogStream, Shutdown), in which case resp is nil and handleConn
// must not write a terminal response.
func (s *Server) dispatch(ctx context.Context, conn net.Conn, req wire.Request) (wire.Response, bool) {
	switch req.Command {
	case wire.CmdProcessStart:
		return s.handleStart(req), false
	case wire.CmdStop:
		return s.handleStop(req), false
	case wire.CmdRestart:
		return s.handleRestart(req), false
	case wire.CmdDelete:
		return s.handleDelete(req), false
	case wire.CmdList:
		return s.handleList(req), false
	case wire.CmdInfo:
		return s.handleInfo(req), false
	case wire.CmdScale:
		return s.handleScale(req), false
	case wire.CmdLogRead:
		return s.handleLogRead(req), false
	case wire.CmdLogStream:
		s.handleLogStream(ctx, conn, req)
		return wire.Response{}, true
	case wire.CmdLogFlush:
		return s.handleLogFlush(req), false
	case wire.CmdMetricsGet:
		return s.handleMetrics(req), false
	case wire.CmdStateSave:
		return s.handleStateSave(req), false
	case wire.CmdStateLoad:
		return s.handleStateLoad(req), false
	case wire.CmdPing:
		return wire.Response{ReqID: req.ReqID, Status: wire.StatusOk}, false
	case wire.CmdShutdown:
		_ = wire.EncodeResponse(conn, wire.Response{ReqID: req.ReqID, Status: wire.StatusOk})
		if s.OnShutdown != nil {
			go s.OnShutdown()
		}
		return wire.Response{}, true
	default:
		return errResponse(req.ReqID, errors.New("unknown command")), false
	}
}

func errResponse(reqID uint32, err error) wire.Response {
	return wire.Response{ReqID: reqID, Status: wire.StatusError, Payload: wire.ErrorPayload(err.Error())}
}

func (s *Server) handleStart(req wire.Request) wire.Response {
	payload, err := wire.DecodeStartPayload(req.Payload)
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	spec := proc.SpecFromStartPayload(payload).WithDefaults()
	sum, err := s.Super.Start(spec, payload.Name)
	if err != nil && sum.Status != proc.Errored {
		return errResponse(req.ReqID, err)
	}
	w := wire.NewWriter()
	encodeSummary(w, sum)
	status := wire.StatusOk
	if sum.Status == proc.Errored {
		// The daemon still committed the record; report it as an error
		// response so the client learns the child failed to come up.
		status = wire.StatusError
	}
	return wire.Response{ReqID: req.ReqID, Status: status, Payload: w.Bytes()}
}

func decodeID(body []byte) (uint32, error) {
	r := wire.NewReader(body)
	return r.U32()
}

func (s *Server) handleStop(req wire.Request) wire.Response {
	id, err := decodeID(req.Payload)
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	if err := s.Super.Stop(id); err != nil {
		return errResponse(req.ReqID, err)
	}
	return wire.Response{ReqID: req.ReqID, Status: wire.StatusOk}
}

func (s *Server) handleRestart(req wire.Request) wire.Response {
	id, err := decodeID(req.Payload)
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	sum, err := s.Super.Restart(id)
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	w := wire.NewWriter()
	encodeSummary(w, sum)
	return wire.Response{ReqID: req.ReqID, Status: wire.StatusOk, Payload: w.Bytes()}
}

func (s *Server) handleDelete(req wire.Request) wire.Response {
	id, err := decodeID(req.Payload)
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	if err := s.Super.Delete(id); err != nil {
		return errResponse(req.ReqID, err)
	}
	return wire.Response{ReqID: req.ReqID, Status: wire.StatusOk}
}

func (s *Server) handleList(req wire.Request) wire.Response {
	summaries := s.Table.List()
	w := wire.NewWriter()
	w.U32(uint32(len(summaries)))
	for _, sum := range summaries {
		encodeSummary(w, sum)
	}
	return wire.Response{ReqID: req.ReqID, Status: wire.StatusOk, Payload: w.Bytes()}
}

func (s *Server) handleInfo(req wire.Request) wire.Response {
	id, err := decodeID(req.Payload)
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	rec, ok := s.Table.Get(id)
	if !ok {
		return errResponse(req.ReqID, notFoundErr(id))
	}
	w := wire.NewWriter()
	encodeDetail(w, rec.Detail())
	return wire.Response{ReqID: req.ReqID, Status: wire.StatusOk, Payload: w.Bytes()}
}

func (s *Server) handleScale(req wire.Request) wire.Response {
	r := wire.NewReader(req.Payload)
	base, err := r.Str()
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	target, err := r.Str()
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	bodyLen, err := r.U32()
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	body, err := r.Take(int(bodyLen))
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	payload, err := wire.DecodeStartPayload(body)
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	spec := proc.SpecFromStartPayload(payload).WithDefaults()

	res, err := s.Cluster.Scale(base, spec, target)
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	w := wire.NewWriter()
	w.U32(uint32(len(res.Started)))
	for _, id := range res.Started {
		w.U32(id)
	}
	w.U32(uint32(len(res.Stopped)))
	for _, id := range res.Stopped {
		w.U32(id)
	}
	encodeErrors(w, res.Errors)
	return wire.Response{ReqID: req.ReqID, Status: wire.StatusOk, Payload: w.Bytes()}
}

func (s *Server) handleLogRead(req wire.Request) wire.Response {
	r := wire.NewReader(req.Payload)
	id, err := r.U32()
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	n, err := r.U32()
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	sink, ok := s.Logs.Get(id)
	if !ok {
		return errResponse(req.ReqID, notFoundErr(id))
	}
	lines := sink.LastLines(int(n))
	w := wire.NewWriter()
	w.U32(uint32(len(lines)))
	for _, e := range lines {
		encodeLogEntry(w, e)
	}
	return wire.Response{ReqID: req.ReqID, Status: wire.StatusOk, Payload: w.Bytes()}
}

// handleLogFlush implements the "flush" command (spec.md §4.4): truncate
// id's on-disk log files while leaving the in-memory ring untouched.
func (s *Server) handleLogFlush(req wire.Request) wire.Response {
	id, err := decodeID(req.Payload)
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	sink, ok := s.Logs.Get(id)
	if !ok {
		return errResponse(req.ReqID, notFoundErr(id))
	}
	if err := sink.Flush(); err != nil {
		return errResponse(req.ReqID, err)
	}
	return wire.Response{ReqID: req.ReqID, Status: wire.StatusOk}
}

func (s *Server) handleMetrics(req wire.Request) wire.Response {
	id, err := decodeID(req.Payload)
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	rec, ok := s.Table.Get(id)
	if !ok {
		return errResponse(req.ReqID, notFoundErr(id))
	}
	d := rec.Detail()
	w := wire.NewWriter()
	w.U64(d.MemoryBytes).I64(d.UptimeMs).I32(int32(d.RestartCount)).I32(int32(d.ConsecutiveCrashes))
	return wire.Response{ReqID: req.ReqID, Status: wire.StatusOk, Payload: w.Bytes()}
}

func (s *Server) handleStateSave(req wire.Request) wire.Response {
	if err := s.Store.Save(s.Table); err != nil {
		return errResponse(req.ReqID, err)
	}
	return wire.Response{ReqID: req.ReqID, Status: wire.StatusOk}
}

func (s *Server) handleStateLoad(req wire.Request) wire.Response {
	n, err := s.Store.Resurrect(s.Super)
	if err != nil {
		return errResponse(req.ReqID, err)
	}
	w := wire.NewWriter()
	w.U32(uint32(n))
	return wire.Response{ReqID: req.ReqID, Status: wire.StatusOk, Payload: w.Bytes()}
}
