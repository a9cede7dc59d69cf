// Package ipc implements the IPC Listener (spec.md §4.8): a Unix domain
// socket server that frames requests with internal/wire and dispatches
// each to an ordinary handler function keyed by CommandCode. No direct
// teacher analogue (the teacher exposes HTTP via internal/server); this
// package is grounded on original_source/crates/velos-client's
// request/response cycle, mirrored server-side, and on the teacher's
// internal/server/router.go for the style of per-command handler
// dispatch (a plain switch, not dynamic dispatch, per spec.md §9).
package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/velos-sh/velos/internal/cluster"
	"github.com/velos-sh/velos/internal/logsink"
	"github.com/velos-sh/velos/internal/proc"
	"github.com/velos-sh/velos/internal/statestore"
	"github.com/velos-sh/velos/internal/supervisor"
	"github.com/velos-sh/velos/internal/wire"
)

// Server listens on a Unix domain socket and serves framed requests
// sequentially per connection, while distinct connections are served
// concurrently (spec.md §4.8).
type Server struct {
	SocketPath string
	PIDPath    string

	Table   *proc.Table
	Super   *supervisor.Supervisor
	Cluster *cluster.Manager
	Logs    *logsink.Manager
	Store   *statestore.Store

	// OnShutdown is invoked when a client sends CmdShutdown, after the
	// response has been flushed. Typically cancels the daemon's root context.
	OnShutdown func()

	listener net.Listener
}

func New(socketPath, pidPath string, table *proc.Table, super *supervisor.Supervisor,
	clusterMgr *cluster.Manager, logs *logsink.Manager, store *statestore.Store) *Server {
	return &Server{
		SocketPath: socketPath, PIDPath: pidPath,
		Table: table, Super: super, Cluster: clusterMgr, Logs: logs, Store: store,
	}
}

// ListenAndServe binds the socket (owner-only permissions), writes the
// pid file, and serves connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.SocketPath), 0o750); err != nil {
		return fmt.Errorf("ipc: mkdir socket dir: %w", err)
	}
	_ = os.Remove(s.SocketPath) // stale socket from an unclean shutdown

	l, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return fmt.Errorf("ipc: listen %s: %w", s.SocketPath, err)
	}
	if err := os.Chmod(s.SocketPath, 0o600); err != nil {
		_ = l.Close()
		return fmt.Errorf("ipc: chmod socket: %w", err)
	}
	s.listener = l

	if err := s.writePIDFile(); err != nil {
		_ = l.Close()
		return err
	}
	defer s.cleanup()

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("ipc: accept: %w", err)
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) writePIDFile() error {
	if err := os.MkdirAll(filepath.Dir(s.PIDPath), 0o750); err != nil {
		return fmt.Errorf("ipc: mkdir pid dir: %w", err)
	}
	return os.WriteFile(s.PIDPath, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func (s *Server) cleanup() {
	_ = os.Remove(s.SocketPath)
	_ = os.Remove(s.PIDPath)
}

// handleConn processes requests from one connection sequentially; distinct
// connections run as distinct goroutines, so the daemon serves many
// clients concurrently while each client's own requests stay ordered.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()
	for {
		frame, err := wire.Decode(conn)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				slog.Debug("ipc: connection closed", "error", err)
			}
			return
		}
		req, err := wire.DecodeRequestBody(frame.Body)
		if err != nil {
			slog.Debug("ipc: malformed request", "error", err)
			return
		}

		resp, streamed := s.dispatch(ctx, conn, req)
		if streamed {
			continue // the streaming handler already wrote its own frames
		}
		if err := wire.EncodeResponse(conn, resp); err != nil {
			slog.Debug("ipc: write response", "error", err)
			return
		}
	}
}
