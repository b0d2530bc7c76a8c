package stations

import (
	"context"
	"errors"
	"sync"

	"github.com/edgeflare/ctastream/pkg/kafka"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

var errMissingKey = errors.New("record has neither key nor value")

// Directory is the consumer-side view of TableTopic: the latest record per
// station. A record without a value removes its station.
type Directory struct {
	logger *zap.Logger

	mu       sync.RWMutex
	stations map[int]TransformedStation
}

// NewDirectory returns an empty directory.
func NewDirectory(logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		logger:   logger.Named("directory"),
		stations: make(map[int]TransformedStation),
	}
}

func (d *Directory) Handle(_ context.Context, msg *kafka.Message) error {
	if msg.Value == nil {
		id, err := cast.ToIntE(msg.Key)
		if err == nil && msg.Key == nil {
			err = errMissingKey
		}
		if err != nil {
			d.logger.Error("tombstone without station id", zap.Int64("offset", msg.Offset), zap.Error(err))
			return nil
		}
		d.mu.Lock()
		delete(d.stations, id)
		d.mu.Unlock()
		return nil
	}

	var ts TransformedStation
	if err := decodeJSON(msg.Value, &ts); err != nil {
		d.logger.Error("skipping table record", zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}
	d.mu.Lock()
	d.stations[ts.StationID] = ts
	d.mu.Unlock()
	return nil
}

// Line returns the line of a station.
func (d *Directory) Line(stationID int) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ts, ok := d.stations[stationID]
	return ts.Line, ok
}

// Len returns the number of known stations.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.stations)
}

// Stations returns every known station ordered by id.
func (d *Directory) Stations() []TransformedStation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedRows(d.stations)
}

var _ kafka.Handler = (*Directory)(nil)
