package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Clock is the time source used by the limiter. Tests swap in a simulated clock.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Window is a ceiling of Max consumptions in any trailing Period.
type Window struct {
	Name   string        `json:"name"`
	Max    int           `json:"max"`
	Period time.Duration `json:"period"`
}

func PerSecond(n int) Window { return Window{Name: "per_second", Max: n, Period: time.Second} }
func PerMinute(n int) Window { return Window{Name: "per_minute", Max: n, Period: time.Minute} }
func PerHour(n int) Window   { return Window{Name: "per_hour", Max: n, Period: time.Hour} }

// PerMonth uses a 30 day trailing window.
func PerMonth(n int) Window { return Window{Name: "per_month", Max: n, Period: 30 * 24 * time.Hour} }

// Services maps a service name to the windows that apply to it.
type Services map[string][]Window

type Option func(*Limiter)

func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// Disabled turns Acquire into a no-op.
func Disabled() Option {
	return func(l *Limiter) { l.enabled = false }
}

// Limiter is a sliding-window throttle keyed by external service name.
type Limiter struct {
	clock   Clock
	logger  *zap.Logger
	enabled bool

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	// gate admits one permit negotiation at a time, including its wait.
	gate *semaphore.Weighted

	// mu guards the fields below and is never held across a wait.
	mu      sync.Mutex
	windows []Window
	longest time.Duration
	stamps  []time.Time
}

func New(services Services, opts ...Option) *Limiter {
	l := &Limiter{
		clock:   realClock{},
		logger:  zap.NewNop(),
		enabled: true,
		buckets: make(map[string]*bucket, len(services)),
	}
	for _, opt := range opts {
		opt(l)
	}
	for name, windows := range services {
		l.Configure(name, windows...)
	}
	return l
}

// Configure replaces the windows for a service. Recorded consumptions are kept.
func (l *Limiter) Configure(service string, windows ...Window) {
	valid := make([]Window, 0, len(windows))
	var longest time.Duration
	for _, w := range windows {
		if w.Max <= 0 || w.Period <= 0 {
			continue
		}
		valid = append(valid, w)
		if w.Period > longest {
			longest = w.Period
		}
	}

	l.mu.Lock()
	b, ok := l.buckets[service]
	if !ok {
		b = &bucket{gate: semaphore.NewWeighted(1)}
		l.buckets[service] = b
	}
	l.mu.Unlock()

	b.mu.Lock()
	b.windows = valid
	b.longest = longest
	b.mu.Unlock()
}

func (l *Limiter) Enabled() bool {
	return l.enabled
}

func (l *Limiter) bucket(service string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buckets[service]
}

// Acquire blocks until one more call to service fits every configured window,
// then records it. Services without windows are not limited. If ctx ends while
// waiting, nothing is recorded and ctx.Err() is returned.
func (l *Limiter) Acquire(ctx context.Context, service string) error {
	if !l.enabled {
		return nil
	}
	b := l.bucket(service)
	if b == nil {
		return nil
	}

	if err := b.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer b.gate.Release(1)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait, done := b.tryRecord(l.clock.Now())
		if done {
			return nil
		}

		l.logger.Info("rate limit reached, waiting",
			zap.String("service", service),
			zap.Duration("wait", wait))

		select {
		case <-l.clock.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// tryRecord records a stamp at now when every window has room. Otherwise it
// returns how long to wait before trying again.
func (b *bucket) tryRecord(now time.Time) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.windows) == 0 {
		return 0, true
	}
	b.purge(now)
	wait := b.wait(now)
	if wait > 0 {
		return wait, false
	}
	b.stamps = append(b.stamps, now)
	return 0, true
}

// Remaining reports the unused budget per window. It never consumes budget and
// does not wait behind callers blocked in Acquire.
func (l *Limiter) Remaining(service string) map[string]int {
	out := make(map[string]int)
	b := l.bucket(service)
	if b == nil {
		return out
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.clock.Now()
	for _, w := range b.windows {
		left := w.Max - b.count(now, w.Period)
		if left < 0 {
			left = 0
		}
		out[w.Name] = left
	}
	return out
}

// ServiceNames lists every configured service.
func (l *Limiter) ServiceNames() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.buckets))
	for name := range l.buckets {
		names = append(names, name)
	}
	return names
}

// purge drops stamps outside the longest window. Stamps are in time order.
func (b *bucket) purge(now time.Time) {
	cutoff := now.Add(-b.longest)
	i := 0
	for i < len(b.stamps) && !b.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.stamps = append(b.stamps[:0], b.stamps[i:]...)
	}
}

// count returns how many stamps fall inside the trailing period ending at now.
func (b *bucket) count(now time.Time, period time.Duration) int {
	cutoff := now.Add(-period)
	n := 0
	for i := len(b.stamps) - 1; i >= 0; i-- {
		if !b.stamps[i].After(cutoff) {
			break
		}
		n++
	}
	return n
}

// wait returns how long until every window has room for one more stamp.
// The longest wait over all windows governs.
func (b *bucket) wait(now time.Time) time.Duration {
	var longest time.Duration
	for _, w := range b.windows {
		n := b.count(now, w.Period)
		if n < w.Max {
			continue
		}
		// The oldest stamp that must expire before the window has room.
		first := len(b.stamps) - n
		expiring := b.stamps[first+n-w.Max]
		if d := expiring.Add(w.Period).Sub(now); d > longest {
			longest = d
		}
	}
	return longest
}
