package sqlite

import (
	"context"
	"testing"

	"github.com/velos-sh/velos/internal/history"
)

func TestSinkInMemoryRoundTrip(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	err = sink.Send(ctx, history.Event{
		Type: history.EventStart, OccurredAtMs: 1000,
		ProcessID: 1, Name: "api", PID: 4242, Status: "Online",
	})
	if err != nil {
		t.Fatalf("send start: %v", err)
	}

	err = sink.Send(ctx, history.Event{
		Type: history.EventCrash, OccurredAtMs: 2000,
		ProcessID: 1, Name: "api", PID: 4242, Status: "Errored",
		ExitCode: 1, Reason: "nonzero exit",
	})
	if err != nil {
		t.Fatalf("send crash: %v", err)
	}
}

func TestSinkRejectsEmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected an error for an empty DSN")
	}
}

func TestSinkSendOnCancelledContext(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sink.Send(ctx, history.Event{Type: history.EventStart, Name: "x"}); err == nil {
		t.Fatal("expected an error sending on a cancelled context")
	}
}
