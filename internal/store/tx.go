package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the open transaction if there is one, otherwise the handle.
// Statements on the handle auto-commit individually.
func (sess *Session) conn() execer {
	if sess.tx != nil {
		return sess.tx
	}
	return sess.db
}

// InTransaction reports whether an explicit transaction is open.
func (sess *Session) InTransaction() bool {
	return sess.depth > 0
}

// Begin opens an explicit transaction. While it is open, repository
// operations on this session join it instead of auto-committing.
//
// Begin inside an open transaction does not create a savepoint: the inner
// scope is absorbed into the outer one and commits only when it commits.
func (sess *Session) Begin(ctx context.Context) error {
	if sess.depth > 0 {
		sess.depth++
		return nil
	}

	start := time.Now()
	tx, err := sess.db.BeginTx(ctx, nil)
	if err != nil {
		err = classify("begin transaction", sess.worker, err)
		sess.store.cfg.metrics.record(ctx, "begin", start, err)
		return err
	}

	sess.tx = tx
	sess.depth = 1
	sess.rollbackOnly = false
	sess.txStart = start
	return nil
}

// Commit closes the innermost scope. The outermost Commit commits the
// transaction, unless a nested scope rolled back, in which case the whole
// transaction is rolled back and ErrAborted is returned.
func (sess *Session) Commit() error {
	if sess.depth == 0 {
		return newError(CodeInvalid, "commit", sess.worker, errors.New("no transaction open"))
	}
	if sess.depth > 1 {
		sess.depth--
		return nil
	}

	tx := sess.tx
	aborted := sess.rollbackOnly
	start := sess.txStart
	sess.reset()

	ctx := context.Background()
	if aborted {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return classify("commit", sess.worker, err)
		}
		err := newError(CodeAborted, "commit", sess.worker, errors.New("nested scope rolled back"))
		sess.store.cfg.metrics.record(ctx, "commit", start, err)
		return err
	}

	if err := tx.Commit(); err != nil {
		err = classify("commit", sess.worker, err)
		sess.store.cfg.metrics.record(ctx, "commit", start, err)
		return err
	}
	sess.store.cfg.metrics.record(ctx, "commit", start, nil)
	return nil
}

// Rollback closes the innermost scope. The outermost Rollback discards every
// write since Begin; a nested Rollback marks the transaction so that the
// outermost Commit rolls back instead.
func (sess *Session) Rollback() error {
	if sess.depth == 0 {
		return nil
	}
	if sess.depth > 1 {
		sess.depth--
		sess.rollbackOnly = true
		return nil
	}

	tx := sess.tx
	start := sess.txStart
	sess.reset()
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return classify("rollback", sess.worker, err)
	}
	sess.store.cfg.metrics.record(context.Background(), "rollback", start, nil)
	return nil
}

// Transaction runs fn inside an explicit transaction scope.
//
// A nil return commits; an error or panic rolls back every write made since
// the scope began. The error from fn is returned unchanged and a panic is
// re-raised after rollback.
func (sess *Session) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := sess.store.cfg.tracer.Start(ctx, "store.transaction")
	span.SetAttributes(
		attribute.String("worker", sess.worker),
		attribute.Int("depth", sess.depth+1),
	)
	defer span.End()

	if err := sess.Begin(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := sess.Rollback(); rbErr != nil {
				sess.store.cfg.logger.Error("rollback after panic failed", "worker", sess.worker, "error", rbErr)
			}
			span.SetStatus(codes.Error, fmt.Sprint(p))
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		if rbErr := sess.Rollback(); rbErr != nil {
			sess.store.cfg.logger.Error("rollback failed", "worker", sess.worker, "error", rbErr)
		}
		sess.store.cfg.logger.Debug("transaction rolled back", "worker", sess.worker, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := sess.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// withWriteLock runs fn while the session holds the database write lock, so
// timestamps read inside fn are ordered like the commits. Outside a
// transaction it opens one for fn alone. Inside one, the lock is already
// held and fn simply joins it; a failure from fn does not mark the open
// transaction for rollback.
func (sess *Session) withWriteLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if sess.depth > 0 {
		return fn(ctx)
	}
	return sess.Transaction(ctx, fn)
}

func (sess *Session) reset() {
	sess.tx = nil
	sess.depth = 0
	sess.rollbackOnly = false
	sess.txStart = time.Time{}
}

