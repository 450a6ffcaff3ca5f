// Package dbx holds the database/sql helpers shared by the SQL store.
package dbx

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SerializableAttempts bounds how often WithSerializableTx reruns fn after a
// serialization failure.
const SerializableAttempts = 3

// serializationFailure is the SQLSTATE Postgres raises when a serializable
// transaction loses a read/write race.
const serializationFailure = "40001"

// DBTX is implemented by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction. It commits when fn succeeds and rolls
// back when fn fails or panics; panics are re-raised after the rollback.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//		_, err := tx.ExecContext(ctx, "UPDATE templates SET ...")
//		return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

// WithSerializableTx runs fn under serializable isolation. While Postgres
// reports a serialization failure, fn is rerun from scratch up to
// SerializableAttempts times.
func WithSerializableTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx DBTX) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
	var err error
	for attempt := 0; attempt < SerializableAttempts; attempt++ {
		if err = WithTx(ctx, db, opts, fn); !IsSerializationFailure(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

// IsSerializationFailure reports whether err carries SQLSTATE 40001.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}
