// Package clickhouse is a history backend using the official ClickHouse
// Go client, grounded near-verbatim on the teacher's
// internal/history/clickhouse.
package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/velos-sh/velos/internal/history"
)

// Sink sends events to ClickHouse.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse: connect: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse: ping: %w", err)
	}
	return &Sink{conn: conn, table: table}, nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s
		(event_type, occurred_at_ms, process_id, name, pid, status, exit_code, signal, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	err := s.conn.Exec(ctx, query,
		string(e.Type), e.OccurredAtMs, e.ProcessID, e.Name, e.PID, e.Status, e.ExitCode, e.Signal, e.Reason,
	)
	if err != nil {
		return fmt.Errorf("clickhouse: insert: %w", err)
	}
	return nil
}
