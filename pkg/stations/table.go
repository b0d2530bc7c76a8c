package stations

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/edgeflare/ctastream/pkg/metrics"
	"go.uber.org/zap"
)

// Publisher sends one keyed record.
type Publisher interface {
	Publish(ctx context.Context, key, value any) error
}

// Table is a keyed in-memory table of transformed stations. Every upsert is
// written to the changelog publisher, keyed by station id.
type Table struct {
	changelog Publisher
	logger    *zap.Logger

	mu   sync.RWMutex
	rows map[int]TransformedStation
}

// NewTable returns an empty table writing its changelog to changelog.
func NewTable(changelog Publisher, logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Table{
		changelog: changelog,
		logger:    logger.Named("table"),
		rows:      make(map[int]TransformedStation),
	}
}

// Upsert overwrites the row of ts.StationID and publishes it.
func (t *Table) Upsert(ctx context.Context, ts TransformedStation) error {
	t.mu.Lock()
	t.rows[ts.StationID] = ts
	t.mu.Unlock()

	metrics.TableUpserts.WithLabelValues(TableTopic).Inc()
	if err := t.changelog.Publish(ctx, ts.StationID, ts); err != nil {
		return fmt.Errorf("publish station %d: %w", ts.StationID, err)
	}
	t.logger.Debug("station upserted",
		zap.Int("stationID", ts.StationID),
		zap.String("line", ts.Line))
	return nil
}

// Get returns the row of a station.
func (t *Table) Get(stationID int) (TransformedStation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ts, ok := t.rows[stationID]
	return ts, ok
}

// Len returns the number of stations in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Rows returns all rows ordered by station id.
func (t *Table) Rows() []TransformedStation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedRows(t.rows)
}

func sortedRows(rows map[int]TransformedStation) []TransformedStation {
	out := make([]TransformedStation, 0, len(rows))
	for _, ts := range rows {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out
}
