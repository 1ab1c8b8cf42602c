package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Session is one worker's private database handle.
//
// A Session must only be used by the goroutine that acquired it (or by one
// goroutine at a time under the caller's own coordination). The store never
// hands a session to a different worker.
type Session struct {
	store  *Store
	worker string
	db     *sql.DB

	// Transaction state. Only the owning goroutine touches these.
	tx           *sql.Tx
	depth        int
	rollbackOnly bool
	txStart      time.Time
}

// Acquire returns the worker's session, opening it on first use.
//
// The first call for a worker creates the database's parent directories,
// opens a dedicated handle, applies pragmas and ensures the schema. Later
// calls for the same worker return the same *Session.
//
// The registry lock is held only to look up or insert; opening the handle
// happens outside it. If two goroutines race on the same worker, one handle
// wins and the other is closed.
func (s *Store) Acquire(ctx context.Context, worker string) (*Session, error) {
	if worker == "" {
		return nil, newError(CodeInvalid, "acquire session", worker, errors.New("empty worker name"))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, newError(CodeClosed, "acquire session", worker, nil)
	}
	if sess, ok := s.sessions[worker]; ok {
		s.mu.Unlock()
		return sess, nil
	}
	s.mu.Unlock()

	db, err := openHandle(ctx, s.cfg)
	if err != nil {
		return nil, classify("acquire session", worker, err)
	}

	sess := &Session{store: s, worker: worker, db: db}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = db.Close()
		return nil, newError(CodeClosed, "acquire session", worker, nil)
	}
	if existing, ok := s.sessions[worker]; ok {
		s.mu.Unlock()
		_ = db.Close()
		return existing, nil
	}
	s.sessions[worker] = sess
	s.mu.Unlock()

	s.cfg.metrics.sessions.Add(ctx, 1)
	s.cfg.logger.Debug("session opened", "worker", worker, "path", s.cfg.path)
	return sess, nil
}

// Release closes and unregisters the worker's session.
// An open transaction is rolled back. Releasing an unknown worker is a no-op.
func (s *Store) Release(worker string) error {
	s.mu.Lock()
	sess, ok := s.sessions[worker]
	if ok {
		delete(s.sessions, worker)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return sess.close()
}

// Worker returns the name the session was acquired under.
func (sess *Session) Worker() string {
	return sess.worker
}

// close rolls back any open transaction and closes the handle.
func (sess *Session) close() error {
	var errs []error
	if sess.tx != nil {
		sess.store.cfg.logger.Warn("releasing session with open transaction; rolling back",
			"worker", sess.worker, "depth", sess.depth)
		if err := sess.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, err)
		}
		sess.tx = nil
		sess.depth = 0
		sess.rollbackOnly = false
	}
	if err := sess.db.Close(); err != nil {
		errs = append(errs, err)
	}

	sess.store.cfg.metrics.sessions.Add(context.Background(), -1)
	sess.store.cfg.logger.Debug("session released", "worker", sess.worker)

	if err := errors.Join(errs...); err != nil {
		return classify("release session", sess.worker, err)
	}
	return nil
}

// openHandle opens a single-connection *sql.DB configured for durability.
func openHandle(ctx context.Context, cfg config) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection per handle: the handle is the worker's connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := applyPragmas(ctx, db, cfg.busyTimeout); err != nil {
		db.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// dsn builds the go-sqlite3 connection string. Pragmas are repeated in
// applyPragmas; the DSN guarantees them if the driver ever reconnects.
// _txlock=immediate makes BEGIN take the write lock up front, so a
// transaction waits under the busy timeout instead of failing on upgrade.
func dsn(cfg config) string {
	q := url.Values{}
	q.Set("_busy_timeout", fmt.Sprint(cfg.busyTimeout.Milliseconds()))
	q.Set("_foreign_keys", "on")
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "FULL")
	q.Set("_txlock", "immediate")
	return cfg.path + "?" + q.Encode()
}

// applyPragmas sets required SQLite configuration on the handle.
func applyPragmas(ctx context.Context, db *sql.DB, busyTimeout time.Duration) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}
