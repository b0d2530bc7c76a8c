package stations

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/edgeflare/ctastream/pkg/metrics"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// SourceConfig configures a Source.
type SourceConfig struct {
	// Table may be schema qualified ("public.stations").
	Table        string        `mapstructure:"table"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
	BatchMaxRows int           `mapstructure:"batchMaxRows"`
}

func (c *SourceConfig) applyDefaults() {
	if c.Table == "" {
		c.Table = "stations"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 12 * time.Hour
	}
	if c.BatchMaxRows <= 0 {
		c.BatchMaxRows = 500
	}
}

// Source copies new rows of the stations table to a publisher. Rows are read
// in increasing stop_id order and only rows past the highest stop_id already
// published are read again, like a JDBC source in incrementing mode.
type Source struct {
	db        Querier
	publisher Publisher
	cfg       SourceConfig
	query     string
	logger    *zap.Logger

	mu     sync.Mutex
	lastID int
}

// NewSource returns a source reading from db.
func NewSource(db Querier, publisher Publisher, cfg SourceConfig, logger *zap.Logger) *Source {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	table := pgx.Identifier(strings.Split(cfg.Table, ".")).Sanitize()
	return &Source{
		db:        db,
		publisher: publisher,
		cfg:       cfg,
		query: fmt.Sprintf(`SELECT stop_id, direction_id, stop_name, station_name, station_descriptive_name,
	station_id, "order", red, blue, green
FROM %s
WHERE stop_id > $1
ORDER BY stop_id
LIMIT $2`, table),
		logger: logger.Named("source").With(zap.String("table", cfg.Table)),
		lastID: -1,
	}
}

// LastID returns the highest stop_id published so far, or -1.
func (s *Source) LastID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID
}

// Poll publishes every row added since the previous poll and returns how many
// rows were published.
func (s *Source) Poll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for {
		rows, err := s.db.Query(ctx, s.query, s.lastID, s.cfg.BatchMaxRows)
		if err != nil {
			return total, fmt.Errorf("query %s: %w", s.cfg.Table, err)
		}
		batch, err := pgx.CollectRows(rows, pgx.RowToStructByName[Station])
		if err != nil {
			return total, fmt.Errorf("scan %s: %w", s.cfg.Table, err)
		}

		for _, st := range batch {
			if err := s.publisher.Publish(ctx, nil, st); err != nil {
				return total, fmt.Errorf("publish stop %d: %w", st.StopID, err)
			}
			s.lastID = st.StopID
			total++
		}
		metrics.BridgedRows.WithLabelValues(s.cfg.Table).Add(float64(len(batch)))

		if len(batch) < s.cfg.BatchMaxRows {
			break
		}
	}

	if total > 0 {
		s.logger.Info("published stations", zap.Int("rows", total), zap.Int("lastStopID", s.lastID))
	}
	return total, nil
}

// Run polls immediately and then every poll interval until ctx is done.
// Failed polls are logged and retried at the next interval.
func (s *Source) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := s.Poll(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("failed to poll stations", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
