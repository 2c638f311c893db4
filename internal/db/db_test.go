package db

import (
	"context"
	"errors"
	"testing"
)

func TestRebindPostgres(t *testing.T) {
	got := Postgres.Rebind(`SELECT * FROM tasks WHERE id=? AND title<>'what?' AND status=?`)
	want := `SELECT * FROM tasks WHERE id=$1 AND title<>'what?' AND status=$2`
	if got != want {
		t.Fatalf("rebind: got %q want %q", got, want)
	}
	if SQLite.Rebind("a=?") != "a=?" {
		t.Fatalf("sqlite must keep ? placeholders")
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	conn, err := Open(Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()
	if _, err := conn.ExecContext(ctx, `CREATE TABLE items(id TEXT PRIMARY KEY)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	boom := errors.New("boom")
	err = conn.WithinTx(ctx, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO items(id) VALUES (?)`, "a"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	var n int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(1) FROM items`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected rollback, found %d rows", n)
	}
	if err := conn.WithinTx(ctx, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO items(id) VALUES (?)`, "b")
		return err
	}); err != nil {
		t.Fatalf("commit path: %v", err)
	}
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(1) FROM items`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}
