package ipc

import (
	"context"
	"log/slog"
	"net"

	"github.com/velos-sh/velos/internal/wire"
)

// handleLogStream subscribes to a process's log sink and pushes each new
// entry to conn as its own framed response until the client disconnects,
// the process's sink closes, or ctx is cancelled. It never returns a
// terminal response frame -- dispatch's streamed=true return tells
// handleConn not to write one on top of these.
func (s *Server) handleLogStream(ctx context.Context, conn net.Conn, req wire.Request) {
	id, err := decodeID(req.Payload)
	if err != nil {
		_ = wire.EncodeResponse(conn, errResponse(req.ReqID, err))
		return
	}
	sink, ok := s.Logs.Get(id)
	if !ok {
		_ = wire.EncodeResponse(conn, errResponse(req.ReqID, notFoundErr(id)))
		return
	}

	ch := sink.Subscribe()
	defer sink.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e, open := <-ch:
			if !open {
				return
			}
			w := wire.NewWriter()
			encodeLogEntry(w, e)
			resp := wire.Response{ReqID: req.ReqID, Status: wire.StatusOk, Payload: w.Bytes()}
			if err := wire.EncodeResponse(conn, resp); err != nil {
				slog.Debug("ipc: log stream write", "error", err)
				return
			}
		}
	}
}
