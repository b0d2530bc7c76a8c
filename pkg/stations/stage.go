package stations

import (
	"context"

	"github.com/edgeflare/ctastream/pkg/kafka"
	"go.uber.org/zap"
)

// Stage consumes Topic and feeds the table with the transformed stations.
// Records that do not decode as a Station produce no output.
type Stage struct {
	table  *Table
	logger *zap.Logger
}

// NewStage returns a stage writing into table.
func NewStage(table *Table, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{table: table, logger: logger.Named("stage")}
}

func (s *Stage) Handle(ctx context.Context, msg *kafka.Message) error {
	var st Station
	if err := decodeJSON(msg.Value, &st); err != nil {
		s.logger.Error("skipping station record",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}
	s.logger.Debug("processing station", zap.Int("stopID", st.StopID), zap.String("stationName", st.StationName))
	return s.table.Upsert(ctx, *Transform(st))
}

var _ kafka.Handler = (*Stage)(nil)
