// Package stations maintains the CTA station data: the relational bridge that
// publishes stations rows, the stream stage that turns them into per-station
// line records, and the consumer-side directory of those records.
package stations

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

const (
	// Topic receives one record per row of the stations table.
	Topic = "org.chicago.cta.stations"
	// TableTopic is the changelog of the transformed station table.
	TableTopic = "org.chicago.cta.stations.table.v1"
)

// Line colors.
const (
	Red   = "red"
	Blue  = "blue"
	Green = "green"
)

// Station is a row of the stations table as published on Topic.
type Station struct {
	DirectionID            string `json:"direction_id" db:"direction_id"`
	StopName               string `json:"stop_name" db:"stop_name"`
	StationName            string `json:"station_name" db:"station_name"`
	StationDescriptiveName string `json:"station_descriptive_name" db:"station_descriptive_name"`
	StopID                 int    `json:"stop_id" db:"stop_id"`
	StationID              int    `json:"station_id" db:"station_id"`
	Order                  int    `json:"order" db:"order"`
	Red                    bool   `json:"red" db:"red"`
	Blue                   bool   `json:"blue" db:"blue"`
	Green                  bool   `json:"green" db:"green"`
}

// TransformedStation is the per-station record of the table topic.
type TransformedStation struct {
	StationName string `json:"station_name"`
	Line        string `json:"line"`
	StationID   int    `json:"station_id"`
	Order       int    `json:"order"`
}

// Transform derives the table record of s. A station flagged for several
// lines is attributed to the first of red, blue, green; one with no flag at all
// is green.
func Transform(s Station) *TransformedStation {
	line := Green
	switch {
	case s.Red:
		line = Red
	case s.Blue:
		line = Blue
	}
	return &TransformedStation{
		StationID:   s.StationID,
		StationName: s.StationName,
		Order:       s.Order,
		Line:        line,
	}
}

// decodeJSON converts a generic JSON value into out, following json tags.
// Numbers arrive as float64 and are narrowed to the tagged field's type.
func decodeJSON(value any, out any) error {
	if value == nil {
		return fmt.Errorf("empty record")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(value)
}
