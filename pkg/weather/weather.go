// Package weather simulates the weather at the CTA and keeps the latest
// observation on the consumer side.
package weather

import (
	_ "embed"
	"time"
)

// Topic carries one event per simulated hour.
const Topic = "org.chicago.cta.weather.v1"

var (
	//go:embed schemas/weather_key.json
	KeySchema string
	//go:embed schemas/weather_value.json
	ValueSchema string
)

// Status is the weather condition. Values match the symbols of the Avro enum.
type Status string

const (
	Sunny         Status = "sunny"
	PartlyCloudy  Status = "partly_cloudy"
	Cloudy        Status = "cloudy"
	Windy         Status = "windy"
	Precipitation Status = "precipitation"
)

// Statuses lists every Status in schema order.
var Statuses = []Status{Sunny, PartlyCloudy, Cloudy, Windy, Precipitation}

// Key is the record key: the observation time in milliseconds.
type Key struct {
	Timestamp int64 `avro:"timestamp" json:"timestamp"`
}

// Value is the record value. Status holds a Status symbol.
type Value struct {
	Status      string  `avro:"status" json:"status"`
	Temperature float32 `avro:"temperature" json:"temperature"`
}

// NewKey returns the key for an observation made at t.
func NewKey(t time.Time) Key {
	return Key{Timestamp: t.UnixMilli()}
}

func isWinter(m time.Month) bool {
	switch m {
	case time.January, time.February, time.March, time.April, time.November, time.December:
		return true
	}
	return false
}

func isSummer(m time.Month) bool {
	return m >= time.July && m <= time.September
}
