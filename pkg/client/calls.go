package client

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/velos-sh/velos/internal/wire"
)

// Start asks the daemon to spawn a new process record from req and returns
// the resulting summary. A process that fails to start (spawn or pre_start
// hook failure) is still reported: the daemon commits the record and
// answers with Status Error, so Start here returns both a populated
// ProcessSummary (Status Errored) and a non-nil error.
func (c *Client) Start(ctx context.Context, req StartRequest) (ProcessSummary, error) {
	payload := req.Encode()
	resp, err := c.request(ctx, wire.CmdProcessStart, payload)
	if err != nil {
		return ProcessSummary{}, err
	}
	sum, decErr := decodeSummary(wire.NewReader(resp.Payload))
	if decErr != nil {
		return ProcessSummary{}, decErr
	}
	if resp.Status == wire.StatusError {
		return sum, fmt.Errorf("velos: process %q failed to start", req.Name)
	}
	return sum, nil
}

func idPayload(id uint32) []byte {
	return wire.NewWriter().U32(id).Bytes()
}

// Stop stops the process identified by id (spec.md §4.2: SIGTERM then
// SIGKILL escalation after kill_timeout_ms).
func (c *Client) Stop(ctx context.Context, id uint32) error {
	_, err := c.unary(ctx, wire.CmdStop, idPayload(id))
	return err
}

// Restart stops then starts the process identified by id, returning its
// refreshed summary.
func (c *Client) Restart(ctx context.Context, id uint32) (ProcessSummary, error) {
	payload, err := c.unary(ctx, wire.CmdRestart, idPayload(id))
	if err != nil {
		return ProcessSummary{}, err
	}
	return decodeSummary(wire.NewReader(payload))
}

// Delete stops the process identified by id if it is running, then removes
// its record from the table.
func (c *Client) Delete(ctx context.Context, id uint32) error {
	_, err := c.unary(ctx, wire.CmdDelete, idPayload(id))
	return err
}

// List returns a summary of every process the daemon currently tracks.
func (c *Client) List(ctx context.Context) ([]ProcessSummary, error) {
	payload, err := c.unary(ctx, wire.CmdList, nil)
	if err != nil {
		return nil, err
	}
	r := wire.NewReader(payload)
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make([]ProcessSummary, 0, n)
	for i := uint32(0); i < n; i++ {
		sum, err := decodeSummary(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// Info returns the full detail record for one process.
func (c *Client) Info(ctx context.Context, id uint32) (ProcessDetail, error) {
	payload, err := c.unary(ctx, wire.CmdInfo, idPayload(id))
	if err != nil {
		return ProcessDetail{}, err
	}
	return decodeDetail(wire.NewReader(payload))
}

// Scale adjusts the instance count of a cluster named base to targetExpr
// (spec.md §4.6: an absolute count, "+N"/"-N" relative to the current
// count, or "max" for runtime.NumCPU()), using tmpl as the spec for any
// newly started instance.
func (c *Client) Scale(ctx context.Context, base, targetExpr string, tmpl StartRequest) (ScaleResult, error) {
	body := tmpl.Encode()
	w := wire.NewWriter()
	w.Str(base).Str(targetExpr).U32(uint32(len(body))).Raw(body)

	payload, err := c.unary(ctx, wire.CmdScale, w.Bytes())
	if err != nil {
		return ScaleResult{}, err
	}
	r := wire.NewReader(payload)
	res, err := decodeIDList(r)
	if err != nil {
		return ScaleResult{}, err
	}
	stopped, err := decodeIDList(r)
	if err != nil {
		return ScaleResult{}, err
	}
	errs, err := decodeErrorList(r)
	if err != nil {
		return ScaleResult{}, err
	}
	return ScaleResult{Started: res, Stopped: stopped, Errors: errs}, nil
}

func decodeIDList(r *wire.Reader) ([]uint32, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, n)
	for i := uint32(0); i < n; i++ {
		id, err := r.U32()
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func decodeErrorList(r *wire.Reader) ([]string, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.Str()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// LogRead returns the last n buffered log lines for a process.
func (c *Client) LogRead(ctx context.Context, id uint32, n int) ([]LogEntry, error) {
	w := wire.NewWriter().U32(id).U32(uint32(n))
	payload, err := c.unary(ctx, wire.CmdLogRead, w.Bytes())
	if err != nil {
		return nil, err
	}
	r := wire.NewReader(payload)
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make([]LogEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		e, err := decodeLogEntry(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// LogStream subscribes to new log lines for a process and pushes each one
// to the returned channel until ctx is cancelled, the connection is
// closed, or the daemon's sink closes the stream. The channel is closed
// when streaming ends; a caller should drain it to release the goroutine.
//
// CmdLogStream is the one command whose handler writes more than one
// response frame per request (spec.md §9): this method owns the
// connection for the stream's lifetime, so a Client must not be used
// for any other call while a stream is in flight.
func (c *Client) LogStream(ctx context.Context, id uint32) (<-chan LogEntry, <-chan error) {
	entries := make(chan LogEntry)
	errs := make(chan error, 1)

	go func() {
		defer close(entries)

		c.mu.Lock()
		defer c.mu.Unlock()

		reqID := atomic.AddUint32(&c.nextID, 1)
		req := wire.Request{ReqID: reqID, Command: wire.CmdLogStream, Payload: idPayload(id)}
		if deadline, ok := ctx.Deadline(); ok {
			_ = c.conn.SetDeadline(deadline)
		} else {
			_ = c.conn.SetDeadline(time.Time{})
		}
		if err := wire.EncodeRequest(c.conn, req); err != nil {
			errs <- err
			return
		}
		for {
			if ctx.Err() != nil {
				errs <- ctx.Err()
				return
			}
			frame, err := wire.Decode(c.conn)
			if err != nil {
				errs <- err
				return
			}
			resp, err := wire.DecodeResponseBody(frame.Body)
			if err != nil {
				errs <- err
				return
			}
			if resp.Status == wire.StatusError {
				errs <- fmt.Errorf("velos: %s", string(resp.Payload))
				return
			}
			e, err := decodeLogEntry(wire.NewReader(resp.Payload))
			if err != nil {
				errs <- err
				return
			}
			select {
			case entries <- e:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return entries, errs
}

// LogFlush truncates a process's on-disk log files, leaving the
// in-memory ring untouched (spec.md §4.4, the "flush" command).
func (c *Client) LogFlush(ctx context.Context, id uint32) error {
	_, err := c.unary(ctx, wire.CmdLogFlush, idPayload(id))
	return err
}

// MetricsGet returns the live resource metrics for a process.
func (c *Client) MetricsGet(ctx context.Context, id uint32) (Metrics, error) {
	payload, err := c.unary(ctx, wire.CmdMetricsGet, idPayload(id))
	if err != nil {
		return Metrics{}, err
	}
	r := wire.NewReader(payload)
	mem, err := r.U64()
	if err != nil {
		return Metrics{}, err
	}
	uptime, err := r.I64()
	if err != nil {
		return Metrics{}, err
	}
	restarts, err := r.I32()
	if err != nil {
		return Metrics{}, err
	}
	crashes, err := r.I32()
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{MemoryBytes: mem, UptimeMs: uptime, RestartCount: restarts, ConsecutiveCrashes: crashes}, nil
}

// StateSave asks the daemon to persist its current table to the state dump.
func (c *Client) StateSave(ctx context.Context) error {
	_, err := c.unary(ctx, wire.CmdStateSave, nil)
	return err
}

// StateLoad asks the daemon to resurrect any processes from its state
// dump, returning how many it started.
func (c *Client) StateLoad(ctx context.Context) (int, error) {
	payload, err := c.unary(ctx, wire.CmdStateLoad, nil)
	if err != nil {
		return 0, err
	}
	n, err := wire.NewReader(payload).U32()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Ping checks that the daemon is alive and responding.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.unary(ctx, wire.CmdPing, nil)
	return err
}

// Shutdown asks the daemon to begin a graceful shutdown.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.unary(ctx, wire.CmdShutdown, nil)
	return err
}
