package weather

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Publisher sends one keyed record. Both the Kafka producer and the REST
// proxy client satisfy it.
type Publisher interface {
	Publish(ctx context.Context, key, value any) error
}

// Simulator produces a random walk of temperatures around a seasonal baseline
// and publishes an observation on every tick.
type Simulator struct {
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time

	mu          sync.Mutex
	rng         *rand.Rand
	temperature float64
	status      Status
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRand sets the random source.
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) { s.rng = r }
}

// WithClock sets the clock used for record keys and the season.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// NewSimulator starts from the baseline of month: 40°F in winter, 85°F in
// summer, 70°F otherwise.
func NewSimulator(month time.Month, publisher Publisher, logger *zap.Logger, opts ...Option) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Simulator{
		publisher:   publisher,
		logger:      logger.Named("weather"),
		now:         time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		temperature: 70.0,
		status:      Sunny,
	}
	switch {
	case isWinter(month):
		s.temperature = 40.0
	case isSummer(month):
		s.temperature = 85.0
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the last simulated observation.
func (s *Simulator) Current() (float64, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temperature, s.status
}

// advance moves the walk one step. The step leans colder in winter and
// warmer in summer.
func (s *Simulator) advance(month time.Month) Value {
	mode := 0.0
	switch {
	case isWinter(month):
		mode = -1.0
	case isSummer(month):
		mode = 1.0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	step := triangular(s.rng, -10.0, 10.0, mode)
	s.temperature += math.Min(math.Max(-20.0, step), 100.0)
	s.status = Statuses[s.rng.Intn(len(Statuses))]
	return Value{Temperature: float32(s.temperature), Status: string(s.status)}
}

// Tick advances the simulation and publishes the new observation.
func (s *Simulator) Tick(ctx context.Context) error {
	now := s.now()
	value := s.advance(now.Month())
	if err := s.publisher.Publish(ctx, NewKey(now), value); err != nil {
		return err
	}
	s.logger.Debug("sent weather data",
		zap.Float32("temperature", value.Temperature),
		zap.String("status", value.Status))
	return nil
}

// Run ticks every interval until ctx is done. Publish failures are logged and
// the simulation carries on.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("failed to publish weather", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// triangular samples the triangular distribution on [low, high] with the
// given mode.
func triangular(r *rand.Rand, low, high, mode float64) float64 {
	u := r.Float64()
	c := (mode - low) / (high - low)
	if u > c {
		u, c = 1.0-u, 1.0-c
		low, high = high, low
	}
	return low + (high-low)*math.Sqrt(u*c)
}
