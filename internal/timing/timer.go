package timing

import (
	"context"
	"runtime/pprof"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/san-kum/fembench"

// Timer accumulates wall-clock seconds per named region. Every region is
// also an otel span and carries the pprof label region=<name>.
type Timer struct {
	mu     sync.Mutex
	names  []string
	totals map[string]float64
	counts map[string]int
	tracer trace.Tracer
}

type Option func(*Timer)

// WithTracer replaces the tracer taken from the global provider.
func WithTracer(tr trace.Tracer) Option {
	return func(t *Timer) { t.tracer = tr }
}

func New(opts ...Option) *Timer {
	t := &Timer{
		totals: make(map[string]float64),
		counts: make(map[string]int),
	}
	for _, o := range opts {
		o(t)
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(tracerName)
	}
	return t
}

// Region starts timing name and returns the function that stops it.
// Goroutine pprof labels are restored to those of ctx on stop.
func (t *Timer) Region(ctx context.Context, name string) func() {
	ctx, span := t.tracer.Start(ctx, name)
	pprof.SetGoroutineLabels(pprof.WithLabels(ctx, pprof.Labels("region", name)))
	start := time.Now()
	return func() {
		t.Add(name, time.Since(start).Seconds())
		span.End()
		pprof.SetGoroutineLabels(ctx)
	}
}

// Time runs fn inside region name. The context handed to fn carries the
// span and the pprof label, so nested regions nest in traces too.
func (t *Timer) Time(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := t.tracer.Start(ctx, name)
	defer span.End()
	start := time.Now()
	var err error
	pprof.Do(ctx, pprof.Labels("region", name), func(ctx context.Context) {
		err = fn(ctx)
	})
	elapsed := time.Since(start).Seconds()
	t.Add(name, elapsed)
	span.SetAttributes(attribute.Float64("elapsed_s", elapsed))
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Add accumulates seconds into region name.
func (t *Timer) Add(name string, seconds float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.totals[name]; !ok {
		t.names = append(t.names, name)
	}
	t.totals[name] += seconds
	t.counts[name]++
}

// Set overwrites region name, e.g. with a measured whole-run total.
func (t *Timer) Set(name string, seconds float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.totals[name]; !ok {
		t.names = append(t.names, name)
	}
	t.totals[name] = seconds
	t.counts[name] = 1
}

func (t *Timer) Seconds(name string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals[name]
}

// Count is how often region name was entered.
func (t *Timer) Count(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[name]
}

// Names lists regions in first-seen order.
func (t *Timer) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.names...)
}

// Values lists accumulated seconds in Names order.
func (t *Timer) Values() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]float64, len(t.names))
	for i, n := range t.names {
		out[i] = t.totals[n]
	}
	return out
}

// Total sums every region.
func (t *Timer) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := 0.0
	for _, v := range t.totals {
		s += v
	}
	return s
}

func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names = t.names[:0]
	clear(t.totals)
	clear(t.counts)
}
