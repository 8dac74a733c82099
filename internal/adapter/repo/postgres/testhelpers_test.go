package postgres_test

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// rowStub implements pgx.Row
type rowStub struct{ scan func(dest ...any) error }
func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

// poolStub implements postgres.PgxPool for tests
// It stubs Exec and QueryRow behavior
// Define in a shared helper so multiple *_test.go files can reuse it without redefs

type poolStub struct{
	execErr error
	row    rowStub
	queryErr error
	tx     *txStub
	beginErr error
}

func (p *poolStub) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, p.execErr
}

func (p *poolStub) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	if p.row.scan == nil { return rowStub{scan: func(_ ...any) error { return errors.New("no row configured") }} }
	return p.row
}

func (p *poolStub) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, p.queryErr
}

func (p *poolStub) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	if p.tx == nil {
		return nil, errors.New("no tx configured")
	}
	return p.tx, nil
}

// txStub implements pgx.Tx for tests exercising withSession-style code paths.
type txStub struct {
	row        rowStub
	execErr    error
	commitErr  error
	rollbackErr error
}

func (t *txStub) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *txStub) Commit(context.Context) error           { return t.commitErr }
func (t *txStub) Rollback(context.Context) error         { return t.rollbackErr }
func (t *txStub) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *txStub) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *txStub) LargeObjects() pgx.LargeObjects                        { return pgx.LargeObjects{} }
func (t *txStub) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *txStub) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, t.execErr
}
func (t *txStub) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *txStub) QueryRow(context.Context, string, ...any) pgx.Row        { return t.row }
func (t *txStub) Conn() *pgx.Conn { return nil }
