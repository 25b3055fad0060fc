package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/juju/errors"
	_ "github.com/lib/pq"
)

const stateWriterLockID int64 = 824173921

// postgresBackend stores the snapshot as a single JSONB row. It holds a
// session advisory lock for its lifetime so that two bot processes never
// write the same row.
type postgresBackend struct {
	db   *sql.DB
	lock *sql.Conn
}

func openPostgresBackend(ctx context.Context, dsn string) (*postgresBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Annotate(err, "opening postgres")
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Annotate(err, "connecting to postgres")
	}
	if err := ensureStateSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	conn, acquired, err := acquireWriterLock(ctx, db)
	if err != nil {
		db.Close()
		return nil, errors.Annotate(err, "acquiring state writer lock")
	}
	if !acquired {
		db.Close()
		return nil, errors.New("another process holds the state writer lock")
	}
	return &postgresBackend{db: db, lock: conn}, nil
}

func ensureStateSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bot_state (
			id SMALLINT PRIMARY KEY,
			snapshot JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS bot_state_quarantine (
			id BIGSERIAL PRIMARY KEY,
			snapshot TEXT NOT NULL,
			quarantined_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return errors.Annotate(err, "ensuring state schema")
}

func acquireWriterLock(ctx context.Context, db *sql.DB) (*sql.Conn, bool, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, stateWriterLockID).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, false, err
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}
	return conn, true, nil
}

func (b *postgresBackend) Load(ctx context.Context) ([]byte, error) {
	var snapshot []byte
	err := b.db.QueryRowContext(ctx, `
		SELECT snapshot::text
		FROM bot_state
		WHERE id = 1
	`).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundf("state row")
	}
	if err != nil {
		return nil, errors.Annotate(err, "reading state row")
	}
	return snapshot, nil
}

func (b *postgresBackend) Save(ctx context.Context, data []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO bot_state (id, snapshot, updated_at)
		VALUES (1, $1::jsonb, NOW())
		ON CONFLICT (id) DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = NOW()
	`, string(data))
	return errors.Annotate(err, "writing state row")
}

// Quarantine copies the unreadable row into bot_state_quarantine and removes
// it. A row that Postgres accepted as JSONB can still fail to decode as a
// snapshot, so it is kept as text for inspection.
func (b *postgresBackend) Quarantine(ctx context.Context) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Trace(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bot_state_quarantine (snapshot)
		SELECT snapshot::text FROM bot_state WHERE id = 1
	`); err != nil {
		return errors.Annotate(err, "copying state row")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bot_state WHERE id = 1`); err != nil {
		return errors.Annotate(err, "deleting state row")
	}
	return errors.Trace(tx.Commit())
}

func (b *postgresBackend) Close() error {
	if b.lock != nil {
		_, _ = b.lock.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, stateWriterLockID)
		_ = b.lock.Close()
	}
	return b.db.Close()
}
