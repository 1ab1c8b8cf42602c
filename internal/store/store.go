package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultBusyTimeout bounds every lock wait unless overridden.
const DefaultBusyTimeout = 5 * time.Second

// Store is the auditable state store over one SQLite file.
//
// A Store holds immutable configuration and a registry of per-worker
// sessions. It never executes SQL itself; all reads and writes go through
// a *Session obtained with Acquire.
type Store struct {
	cfg config

	mu       sync.Mutex // guards sessions and closed; never held during SQL
	sessions map[string]*Session
	closed   bool
}

// config is fixed at Open and shared read-only by all sessions.
type config struct {
	path        string
	busyTimeout time.Duration
	clock       Clock
	logger      *slog.Logger
	meter       metric.Meter
	tracer      trace.Tracer
	metrics     *metrics
}

// Option configures a Store.
type Option func(*config)

// WithBusyTimeout sets how long a session waits for the write lock before
// failing with ErrBusy.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) { c.busyTimeout = d }
}

// WithClock overrides the write timestamp source.
func WithClock(clock Clock) Option {
	return func(c *config) { c.clock = clock }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithMeter sets the OpenTelemetry meter for store metrics.
func WithMeter(meter metric.Meter) Option {
	return func(c *config) { c.meter = meter }
}

// WithTracer sets the OpenTelemetry tracer for transaction spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) { c.tracer = tracer }
}

// Open creates a store for the SQLite database at path.
//
// Open only validates configuration. The file and its parent directories
// are created by the first Acquire, which also applies pragmas and schema.
//
// Every session is configured with:
//   - WAL mode for concurrent reads during writes
//   - FULL synchronous mode for durable commits
//   - busy timeout (default 5s) for lock contention
//   - foreign key enforcement
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("open store: empty database path")
	}

	cfg := config{
		path:        path,
		busyTimeout: DefaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.busyTimeout <= 0 {
		return nil, fmt.Errorf("open store: busy timeout must be positive, got %s", cfg.busyTimeout)
	}
	if cfg.clock == nil {
		cfg.clock = NewMonotonicClock()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.meter == nil {
		cfg.meter = metricnoop.NewMeterProvider().Meter(MeterName)
	}
	if cfg.tracer == nil {
		cfg.tracer = tracenoop.NewTracerProvider().Tracer(MeterName)
	}

	m, err := newMetrics(cfg.meter)
	if err != nil {
		return nil, fmt.Errorf("open store: create metrics: %w", err)
	}
	cfg.metrics = m

	return &Store{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.cfg.path
}

// Workers returns the names of workers holding a session, sorted.
func (s *Store) Workers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.sessions))
	for name := range s.sessions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close releases every session. Acquire fails with ErrClosed afterwards.
// Close is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	var errs []error
	for _, sess := range sessions {
		if err := sess.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Do runs fn with the worker's session, acquiring it if needed.
// The session stays registered after fn returns.
func (s *Store) Do(ctx context.Context, worker string, fn func(*Session) error) error {
	sess, err := s.Acquire(ctx, worker)
	if err != nil {
		return err
	}
	return fn(sess)
}
