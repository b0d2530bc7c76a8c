package restproxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/topics/org.chicago.cta.weather.v1", r.URL.Path)
		assert.Equal(t, avroContentType, r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"key_schema_id":1,"value_schema_id":2,"offsets":[{"partition":0,"offset":12}]}`))
	}))
	defer srv.Close()

	pub := NewClient(srv.URL+"/", nil, nil).Topic("org.chicago.cta.weather.v1", `{"type":"long"}`, `{"type":"string"}`)
	require.NoError(t, pub.Publish(context.Background(),
		map[string]int64{"timestamp": 1700000000000},
		map[string]any{"temperature": 70.5, "status": "sunny"}))

	assert.Equal(t, `{"type":"long"}`, got["key_schema"])
	assert.Equal(t, `{"type":"string"}`, got["value_schema"])
	records := got["records"].([]any)
	require.Len(t, records, 1)
	rec := records[0].(map[string]any)
	assert.Equal(t, map[string]any{"timestamp": float64(1700000000000)}, rec["key"])
	assert.Equal(t, map[string]any{"temperature": 70.5, "status": "sunny"}, rec["value"])
}

func TestProduceOffsets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"offsets":[{"partition":1,"offset":5},{"partition":1,"offset":6}]}`))
	}))
	defer srv.Close()

	offsets, err := NewClient(srv.URL, nil, nil).Produce(context.Background(), "t", "", `"string"`,
		Record{Value: "a"}, Record{Value: "b"})
	require.NoError(t, err)
	assert.Equal(t, []Offset{{Partition: 1, Offset: 5}, {Partition: 1, Offset: 6}}, offsets)
}

func TestProduceRecordError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"offsets":[{"partition":null,"offset":null,"error_code":50002,"error":"Kafka error"}]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil, nil).Produce(context.Background(), "t", "", `"string"`, Record{Value: "a"})
	assert.ErrorContains(t, err, "50002")
}

func TestProduceClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error_code":42201,"message":"Invalid schema"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, nil, nil).Topic("t", "", "bad").Publish(context.Background(), nil, "v")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
