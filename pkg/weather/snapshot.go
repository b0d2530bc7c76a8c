package weather

import (
	"context"
	"errors"
	"sync"

	"github.com/edgeflare/ctastream/pkg/kafka"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

var errMissingField = errors.New("weather: record misses temperature or status")

// Snapshot is the consumer-side weather model. The latest record wins.
type Snapshot struct {
	logger *zap.Logger

	mu          sync.RWMutex
	temperature float64
	status      string
}

// NewSnapshot returns a Snapshot at 70°F and sunny.
func NewSnapshot(logger *zap.Logger) *Snapshot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshot{
		logger:      logger.Named("weather"),
		temperature: 70.0,
		status:      string(Sunny),
	}
}

// Current returns the latest temperature and status.
func (s *Snapshot) Current() (float64, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.temperature, s.status
}

// Handle applies a decoded weather record. Records without a temperature or
// status leave the snapshot untouched and are not an error for the consumer.
func (s *Snapshot) Handle(_ context.Context, msg *kafka.Message) error {
	s.logger.Info("handling incoming weather data")

	var v struct {
		Temperature *float64 `mapstructure:"temperature"`
		Status      *string  `mapstructure:"status"`
	}
	if err := mapstructure.WeakDecode(msg.Value, &v); err != nil {
		s.logger.Error("invalid weather record", zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}
	if v.Temperature == nil || v.Status == nil {
		s.logger.Error("invalid weather record", zap.Int64("offset", msg.Offset), zap.Error(errMissingField))
		return nil
	}

	s.mu.Lock()
	s.temperature, s.status = *v.Temperature, *v.Status
	s.mu.Unlock()

	s.logger.Debug("weather updated",
		zap.String("status", *v.Status),
		zap.Float64("temperature", *v.Temperature))
	return nil
}

var _ kafka.Handler = (*Snapshot)(nil)
