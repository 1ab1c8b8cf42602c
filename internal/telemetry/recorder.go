// Package telemetry collects named run metrics in memory and renders them
// as the payload stored with a run.
package telemetry

import (
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/roach88/intelstore/internal/ir"
)

// MaxMetrics bounds a Recorder created with New.
const MaxMetrics = 10000

// Metric is one recorded value and when it was last set.
type Metric struct {
	Value     ir.Value
	Timestamp time.Time
}

// Recorder holds at most a fixed number of metrics, ordered from least to
// most recently recorded. Recording a new name at capacity evicts the
// least recently recorded one. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	max     int
	now     func() time.Time
	metrics *orderedmap.OrderedMap[string, Metric]
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithCapacity overrides MaxMetrics. Values below one are ignored.
func WithCapacity(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.max = n
		}
	}
}

// WithNow overrides the timestamp source.
func WithNow(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// New creates an empty recorder.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		max:     MaxMetrics,
		now:     time.Now,
		metrics: orderedmap.New[string, Metric](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record sets the metric and marks it most recent.
func (r *Recorder) Record(name string, value ir.Value) {
	if value == nil {
		value = ir.Null{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.set(name, value)
}

// Add increments an integer metric by delta, starting from zero. A metric
// currently holding a non-integer value is replaced.
func (r *Recorder) Add(name string, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, _ := r.metrics.Get(name)
	base, _ := current.Value.(ir.Int)
	r.set(name, base+ir.Int(delta))
}

// set requires r.mu.
func (r *Recorder) set(name string, value ir.Value) {
	if _, present := r.metrics.Get(name); present {
		_ = r.metrics.MoveToBack(name)
	} else if r.metrics.Len() >= r.max {
		if oldest := r.metrics.Oldest(); oldest != nil {
			r.metrics.Delete(oldest.Key)
		}
	}
	r.metrics.Set(name, Metric{Value: value, Timestamp: r.now().UTC()})
}

// Get returns the metric recorded under name.
func (r *Recorder) Get(name string) (Metric, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics.Get(name)
}

// Names returns metric names from least to most recently recorded.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, r.metrics.Len())
	for pair := r.metrics.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Metrics returns a copy of every metric.
func (r *Recorder) Metrics() map[string]Metric {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Metric, r.metrics.Len())
	for pair := r.metrics.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = pair.Value
	}
	return out
}

// Len returns the number of metrics held.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics.Len()
}

// Clear removes every metric.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = orderedmap.New[string, Metric]()
}

// Snapshot renders the metrics as {name: {"value": v, "timestamp": t}},
// with t in fractional Unix seconds.
func (r *Recorder) Snapshot() ir.Object {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(ir.Object, r.metrics.Len())
	for pair := r.metrics.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = ir.NewObject(
			ir.O("value", pair.Value.Value),
			ir.O("timestamp", ir.Float(float64(pair.Value.Timestamp.UnixNano())/1e9)),
		)
	}
	return out
}
