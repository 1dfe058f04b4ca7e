// Package resilience guards calls to external services (the AI advisor and
// the census API) with circuit breakers and bounded retries.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State is the position of a circuit breaker.
type State int

const (
	// Closed passes calls through.
	Closed State = iota
	// Open rejects calls until the cooldown elapses.
	Open
	// HalfOpen lets trial calls through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when a call is rejected by an open breaker.
var ErrOpen = eris.New("resilience: circuit open")

// BreakerConfig controls when a breaker opens and how it recovers.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Default: 5.
	FailureThreshold int

	// Cooldown is how long the breaker stays open before letting a trial call
	// through. Default: 30s.
	Cooldown time.Duration

	// HalfOpenSuccesses is the number of successful half-open calls required
	// to close again. Default: 1.
	HalfOpenSuccesses int

	// Trips decides whether an error counts as a failure. Nil counts every
	// non-nil error except context cancellation by the caller.
	Trips func(err error) bool

	// OnTransition observes state changes.
	OnTransition func(name string, from, to State)
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:  5,
		Cooldown:          30 * time.Second,
		HalfOpenSuccesses: 1,
	}
}

// Breaker is a circuit breaker for one named service.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	trialsOK int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker creates a closed breaker. Zero config fields take defaults.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = def.HalfOpenSuccesses
	}
	if cfg.Trips == nil {
		cfg.Trips = countsAsFailure
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

func countsAsFailure(err error) bool {
	return err != nil && !eris.Is(err, context.Canceled)
}

// Name returns the guarded service name.
func (b *Breaker) Name() string { return b.name }

// Run calls fn unless the breaker is open.
func (b *Breaker) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := RunVal(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RunVal is Run for calls that return a value.
func RunVal[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !b.admit() {
		return zero, eris.Wrapf(ErrOpen, "resilience: %s", b.name)
	}
	v, err := fn(ctx)
	b.record(err)
	return v, err
}

// State reports the current state. An open breaker whose cooldown has
// elapsed reports HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.trialsOK = 0
	b.moveTo(Closed)
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return true
	}
	if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
		return false
	}
	b.moveTo(HalfOpen)
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.cfg.Trips(err) {
		if b.state == HalfOpen {
			b.trialsOK++
			if b.trialsOK < b.cfg.HalfOpenSuccesses {
				return
			}
			b.trialsOK = 0
			b.moveTo(Closed)
		}
		b.failures = 0
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.trialsOK = 0
		b.openedAt = b.now()
		b.moveTo(Open)
	}
}

// moveTo must be called with mu held.
func (b *Breaker) moveTo(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	zap.L().Warn("resilience: circuit state change",
		zap.String("service", b.name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	if b.cfg.OnTransition != nil {
		b.cfg.OnTransition(b.name, from, to)
	}
}

// Breakers is a registry of per-service breakers sharing one config.
type Breakers struct {
	cfg BreakerConfig

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewBreakers creates an empty registry.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for service, creating it on first use.
func (r *Breakers) Get(service string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[service]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[service]; ok {
		return b
	}
	b = NewBreaker(service, r.cfg)
	r.breakers[service] = b
	return b
}

// Snapshot returns the state of every registered breaker.
func (r *Breakers) Snapshot() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}
