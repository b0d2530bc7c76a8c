package codec

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testValueSchema = `{
	"type": "record",
	"name": "weather.value",
	"namespace": "com.udacity",
	"fields": [
		{"name": "temperature", "type": "float"},
		{"name": "status", "type": {"type": "enum", "name": "weather_status", "symbols": ["sunny", "windy"]}}
	]
}`

type memRegistry struct {
	mu        sync.Mutex
	schemas   map[int]string
	ids       map[string]int
	registers int
	lookups   int
	err       error
}

func newMemRegistry() *memRegistry {
	return &memRegistry{schemas: map[int]string{}, ids: map[string]int{}}
}

func (r *memRegistry) Register(_ context.Context, subject, schema string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registers++
	if r.err != nil {
		return 0, r.err
	}
	if id, ok := r.ids[subject]; ok {
		return id, nil
	}
	id := len(r.schemas) + 1
	r.schemas[id] = schema
	r.ids[subject] = id
	return id, nil
}

func (r *memRegistry) GetByID(_ context.Context, id int) (*Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	s, ok := r.schemas[id]
	if !ok {
		return nil, errors.New("schema not found")
	}
	return &Schema{ID: id, Schema: s}, nil
}

type weatherValue struct {
	Temperature float32 `avro:"temperature"`
	Status      string  `avro:"status"`
}

func TestAvroRoundTrip(t *testing.T) {
	ctx := context.Background()
	reg := newMemRegistry()
	enc, err := NewAvroEncoder(reg, Subject("org.chicago.cta.weather.v1", false), testValueSchema)
	require.NoError(t, err)

	data, err := enc.Encode(ctx, weatherValue{Temperature: 71.5, Status: "windy"})
	require.NoError(t, err)
	require.Greater(t, len(data), headerSize)
	assert.Equal(t, byte(0), data[0])
	assert.Equal(t, []byte{0, 0, 0, 1}, data[1:5])

	dec := NewAvroDecoder(reg)
	v, err := dec.Decode(ctx, data)
	require.NoError(t, err)
	rec, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float32(71.5), rec["temperature"])
	assert.Equal(t, "windy", rec["status"])

	// schema id and writer schema are cached
	_, err = enc.Encode(ctx, map[string]any{"temperature": float32(60), "status": "sunny"})
	require.NoError(t, err)
	_, err = dec.Decode(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.registers)
	assert.Equal(t, 1, reg.lookups)
}

func TestAvroEncodeErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewAvroEncoder(newMemRegistry(), "bad-value", `{"type": "nope"}`)
	assert.Error(t, err)

	reg := newMemRegistry()
	enc, err := NewAvroEncoder(reg, "weather-value", testValueSchema)
	require.NoError(t, err)
	_, err = enc.Encode(ctx, weatherValue{Temperature: 1, Status: "hail"})
	assert.ErrorContains(t, err, "avro encode")

	reg.err = errors.New("registry down")
	enc, err = NewAvroEncoder(reg, "other-value", testValueSchema)
	require.NoError(t, err)
	_, err = enc.Encode(ctx, weatherValue{Temperature: 1, Status: "sunny"})
	assert.ErrorContains(t, err, "registry down")
}

func TestAvroDecodeErrors(t *testing.T) {
	ctx := context.Background()
	dec := NewAvroDecoder(newMemRegistry())

	v, err := dec.Decode(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = dec.Decode(ctx, []byte{0, 0, 1})
	assert.ErrorIs(t, err, ErrShortPayload)

	_, err = dec.Decode(ctx, []byte{7, 0, 0, 0, 1, 2})
	assert.ErrorIs(t, err, ErrUnknownMagicByte)

	_, err = dec.Decode(ctx, []byte{0, 0, 0, 0, 9, 2})
	assert.ErrorContains(t, err, "schema not found")
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "org.chicago.cta.weather.v1-key", Subject("org.chicago.cta.weather.v1", true))
	assert.Equal(t, "org.chicago.cta.weather.v1-value", Subject("org.chicago.cta.weather.v1", false))
}
