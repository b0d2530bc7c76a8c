package codec

import (
	"context"
	"encoding/binary"
	"fmt"
	"reflect"
	"sync"

	"github.com/linkedin/goavro/v2"
	"github.com/mitchellh/mapstructure"
)

const (
	magicByte  byte = 0
	headerSize      = 5
)

// Subject returns the registry subject for a topic's key or value schema
// under the default TopicNameStrategy.
func Subject(topic string, isKey bool) string {
	if isKey {
		return topic + "-key"
	}
	return topic + "-value"
}

// AvroEncoder writes Confluent-framed Avro for a single schema. The schema is
// registered with the registry on first use.
type AvroEncoder struct {
	registry Registry
	subject  string
	schema   string
	codec    *goavro.Codec

	mu sync.Mutex
	id int
}

// NewAvroEncoder compiles schema and returns an encoder for subject.
func NewAvroEncoder(registry Registry, subject, schema string) (*AvroEncoder, error) {
	c, err := goavro.NewCodec(schema)
	if err != nil {
		return nil, fmt.Errorf("codec: compile avro schema for %s: %w", subject, err)
	}
	return &AvroEncoder{
		registry: registry,
		subject:  subject,
		schema:   c.Schema(),
		codec:    c,
	}, nil
}

func (e *AvroEncoder) schemaID(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.id != 0 {
		return e.id, nil
	}
	id, err := e.registry.Register(ctx, e.subject, e.schema)
	if err != nil {
		return 0, err
	}
	e.id = id
	return id, nil
}

// Encode accepts anything goavro understands natively, or a struct whose
// fields carry `avro` tags.
func (e *AvroEncoder) Encode(ctx context.Context, v any) ([]byte, error) {
	native, err := toNative(v)
	if err != nil {
		return nil, err
	}
	id, err := e.schemaID(ctx)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, headerSize, 64)
	buf[0] = magicByte
	binary.BigEndian.PutUint32(buf[1:headerSize], uint32(id))
	buf, err = e.codec.BinaryFromNative(buf, native)
	if err != nil {
		return nil, fmt.Errorf("codec: avro encode %s: %w", e.subject, err)
	}
	return buf, nil
}

func toNative(v any) (any, error) {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if !rv.IsValid() || rv.Kind() != reflect.Struct {
		return v, nil
	}
	out := map[string]any{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "avro", Result: &out})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(v); err != nil {
		return nil, fmt.Errorf("codec: convert %T to avro record: %w", v, err)
	}
	return out, nil
}

// AvroDecoder reads Confluent-framed Avro, resolving writer schemas by id.
type AvroDecoder struct {
	registry Registry

	mu     sync.Mutex
	codecs map[int]*goavro.Codec
}

// NewAvroDecoder returns a decoder that looks schemas up in registry.
func NewAvroDecoder(registry Registry) *AvroDecoder {
	return &AvroDecoder{
		registry: registry,
		codecs:   make(map[int]*goavro.Codec),
	}
}

func (d *AvroDecoder) codecFor(ctx context.Context, id int) (*goavro.Codec, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.codecs[id]; ok {
		return c, nil
	}
	s, err := d.registry.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := goavro.NewCodec(s.Schema)
	if err != nil {
		return nil, fmt.Errorf("codec: compile schema %d: %w", id, err)
	}
	d.codecs[id] = c
	return c, nil
}

// Decode returns nil for an empty payload; records decode to map[string]any.
func (d *AvroDecoder) Decode(ctx context.Context, data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < headerSize {
		return nil, ErrShortPayload
	}
	if data[0] != magicByte {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMagicByte, data[0])
	}
	id := int(binary.BigEndian.Uint32(data[1:headerSize]))

	c, err := d.codecFor(ctx, id)
	if err != nil {
		return nil, err
	}
	native, _, err := c.NativeFromBinary(data[headerSize:])
	if err != nil {
		return nil, fmt.Errorf("codec: avro decode with schema %d: %w", id, err)
	}
	return native, nil
}

var (
	_ Encoder = (*AvroEncoder)(nil)
	_ Decoder = (*AvroDecoder)(nil)
)
