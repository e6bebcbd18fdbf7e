package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Checkpoint is the time spent between the previous checkpoint and this one.
type Checkpoint struct {
	Name    string
	Elapsed time.Duration
	Count   int
}

// Timer accumulates named checkpoints. Each TimeCheck charges the time since the
// previous call (or since creation) to the given name.
//
// A Timer is an explicit object; components that record checkpoints take one as
// a parameter.
type Timer struct {
	mu       sync.Mutex
	now      func() time.Time
	last     time.Time
	order    []string
	totals   map[string]*Checkpoint
	observed *prometheus.HistogramVec
}

// NewTimer creates a timer whose checkpoints are also observed into a histogram
// registered on reg. A nil reg gets a private registry.
func NewTimer(reg prometheus.Registerer) (*Timer, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timer_checkpoint_duration_ms",
		Help:    "Time charged to each named checkpoint in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 24),
	}, []string{"checkpoint"})
	if err := reg.Register(hist); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		hist = existing
	}
	t := &Timer{
		now:      time.Now,
		totals:   make(map[string]*Checkpoint),
		observed: hist,
	}
	t.last = t.now()
	return t, nil
}

// Reset restarts the clock without discarding accumulated checkpoints.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = t.now()
}

// TimeCheck charges the time elapsed since the last checkpoint to name.
func (t *Timer) TimeCheck(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	elapsed := now.Sub(t.last)
	t.last = now

	cp, ok := t.totals[name]
	if !ok {
		cp = &Checkpoint{Name: name}
		t.totals[name] = cp
		t.order = append(t.order, name)
	}
	cp.Elapsed += elapsed
	cp.Count++
	t.observed.WithLabelValues(name).Observe(float64(elapsed.Microseconds()) / 1000)
}

// Checkpoints returns accumulated checkpoints in first-seen order.
func (t *Timer) Checkpoints() []Checkpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Checkpoint, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, *t.totals[name])
	}
	return out
}

// Dump logs every checkpoint and the total.
func (t *Timer) Dump(log *zap.Logger) {
	var total time.Duration
	for _, cp := range t.Checkpoints() {
		total += cp.Elapsed
		log.Info("timer checkpoint",
			zap.String("name", cp.Name),
			zap.Duration("elapsed", cp.Elapsed),
			zap.Int("count", cp.Count),
		)
	}
	log.Info("timer total", zap.Duration("elapsed", total))
}
