package client_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/velos-sh/velos/internal/cluster"
	"github.com/velos-sh/velos/internal/ipc"
	"github.com/velos-sh/velos/internal/logsink"
	"github.com/velos-sh/velos/internal/proc"
	"github.com/velos-sh/velos/internal/runner"
	"github.com/velos-sh/velos/internal/statestore"
	"github.com/velos-sh/velos/internal/supervisor"
	"github.com/velos-sh/velos/internal/wire"
	"github.com/velos-sh/velos/pkg/client"
)

// newTestDaemon boots a full supervisor+IPC stack against a socket under a
// temp dir and returns a connected Client, cleaning both up on test end.
func newTestDaemon(t *testing.T) *client.Client {
	t.Helper()
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "velos.sock")

	table := proc.NewTable()
	logs := logsink.NewManager(dir)
	run := runner.New(logs)
	super := supervisor.New(table, run, logs)
	clusterMgr := cluster.New(table, super, logs)
	store := statestore.New(filepath.Join(dir, "dump.bin"))

	server := ipc.New(socketPath, filepath.Join(dir, "velos.pid"), table, super, clusterMgr, logs, store)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe(ctx) }()

	var c *client.Client
	var err error
	for i := 0; i < 50; i++ {
		c, err = client.DialTimeout(socketPath, 200*time.Millisecond)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial daemon: %v", err)
	}

	t.Cleanup(func() {
		_ = c.Close()
		cancel()
		super.Close()
		<-errCh
	})
	return c
}

func TestPing(t *testing.T) {
	c := newTestDaemon(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestStartListInfoStop(t *testing.T) {
	c := newTestDaemon(t)
	ctx := context.Background()

	req := client.StartRequest{Name: "echoer", Script: "sleep 5"}
	sum, err := c.Start(ctx, req)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sum.Name != "echoer" {
		t.Fatalf("expected name echoer, got %q", sum.Name)
	}

	list, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	found := false
	for _, s := range list {
		if s.ID == sum.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %d in list, got %+v", sum.ID, list)
	}

	detail, err := c.Info(ctx, sum.ID)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if detail.Spec.Script != "sleep 5" {
		t.Fatalf("expected decoded spec script %q, got %q", "sleep 5", detail.Spec.Script)
	}

	if err := c.Stop(ctx, sum.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestInfoUnknownIDReturnsError(t *testing.T) {
	c := newTestDaemon(t)
	if _, err := c.Info(context.Background(), 999); err == nil {
		t.Fatal("expected an error for an unknown process id")
	}
}

func TestStateSaveAndLoad(t *testing.T) {
	c := newTestDaemon(t)
	ctx := context.Background()

	if _, err := c.Start(ctx, client.StartRequest{Name: "saved", Script: "sleep 5"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.StateSave(ctx); err != nil {
		t.Fatalf("StateSave: %v", err)
	}
	if _, err := c.StateLoad(ctx); err != nil {
		t.Fatalf("StateLoad: %v", err)
	}
}

func TestScaleGrowsCluster(t *testing.T) {
	c := newTestDaemon(t)
	ctx := context.Background()

	tmpl := client.StartRequest{Name: "worker", Script: "sleep 5"}
	res, err := c.Scale(ctx, "worker", "3", tmpl)
	if err != nil {
		t.Fatalf("Scale: %v", err)
	}
	if len(res.Started) != 3 {
		t.Fatalf("expected 3 started instances, got %+v", res)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", res.Errors)
	}
}

func TestLogFlush(t *testing.T) {
	c := newTestDaemon(t)
	ctx := context.Background()

	sum, err := c.Start(ctx, client.StartRequest{Name: "flusher", Script: "sleep 5"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.LogFlush(ctx, sum.ID); err != nil {
		t.Fatalf("LogFlush: %v", err)
	}
}

func TestLogReadEmpty(t *testing.T) {
	c := newTestDaemon(t)
	ctx := context.Background()

	sum, err := c.Start(ctx, client.StartRequest{Name: "logger", Script: "sleep 5"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	entries, err := c.LogRead(ctx, sum.ID, 10)
	if err != nil {
		t.Fatalf("LogRead: %v", err)
	}
	if entries == nil {
		t.Fatal("expected a non-nil (possibly empty) entry slice")
	}
}

func TestDialUnreachableSocketReportsDaemonNotRunning(t *testing.T) {
	dir := t.TempDir()
	_, err := client.DialTimeout(filepath.Join(dir, "nope.sock"), 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected an error dialing a socket nothing listens on")
	}
	if !errors.Is(err, wire.ErrDaemonNotRunning) {
		t.Fatalf("expected wire.ErrDaemonNotRunning, got %v", err)
	}
}
