// Package codec serializes message keys and values for the broker.
//
// Two formats are supported:
//   - Avro in the Confluent wire format (magic byte 0, 4-byte big-endian schema
//     id, Avro binary body), with schemas held by a schema registry
//   - plain JSON, as written by Kafka Connect's JsonConverter with schemas
//     disabled and by most stream processors
//
// Decoded values are generic: records come back as map[string]any.
package codec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownMagicByte = errors.New("codec: unknown magic byte")
	ErrShortPayload     = errors.New("codec: payload shorter than wire header")
)

// Encoder serializes v for the broker.
type Encoder interface {
	Encode(ctx context.Context, v any) ([]byte, error)
}

// Decoder deserializes a payload fetched from the broker.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (any, error)
}

// Codec is an Encoder and a Decoder for the same format.
type Codec interface {
	Encoder
	Decoder
}

// Raw passes bytes through untouched. Strings are converted to bytes.
type Raw struct{}

func (Raw) Encode(_ context.Context, v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, fmt.Errorf("codec: raw cannot encode %T", v)
	}
}

func (Raw) Decode(_ context.Context, data []byte) (any, error) {
	return data, nil
}

// JSON encodes with encoding/json and decodes into generic values.
type JSON struct{}

func (JSON) Encode(_ context.Context, v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: json encode: %w", err)
	}
	return data, nil
}

// Decode returns nil for an empty payload (tombstones, keyless records).
func (JSON) Decode(_ context.Context, data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("codec: json decode: %w", err)
	}
	return v, nil
}

var (
	_ Codec = Raw{}
	_ Codec = JSON{}
)
