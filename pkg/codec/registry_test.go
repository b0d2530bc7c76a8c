package codec

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

func TestConfluentRegistry(t *testing.T) {
	var posts, gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, registryContentType, r.Header.Get("Accept"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/org.chicago.cta.weather.v1-value/versions":
			posts.Add(1)
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, testValueSchema, body["schema"])
			w.Header().Set("Content-Type", registryContentType)
			w.Write([]byte(`{"id": 11}`))
		case r.Method == http.MethodGet && r.URL.Path == "/schemas/ids/12":
			gets.Add(1)
			json.NewEncoder(w).Encode(map[string]string{"schema": testValueSchema})
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error_code":40403,"message":"Schema not found"}`))
		}
	}))
	defer srv.Close()

	reg, err := NewConfluentRegistry(srv.URL + "/")
	require.NoError(t, err)
	ctx := context.Background()

	id, err := reg.Register(ctx, "org.chicago.cta.weather.v1-value", testValueSchema)
	require.NoError(t, err)
	assert.Equal(t, 11, id)
	id, err = reg.Register(ctx, "org.chicago.cta.weather.v1-value", testValueSchema)
	require.NoError(t, err)
	assert.Equal(t, 11, id)
	assert.Equal(t, int32(1), posts.Load())

	// registered schemas resolve without a round trip
	s, err := reg.GetByID(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, testValueSchema, s.Schema)

	s, err = reg.GetByID(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, s.ID)
	_, err = reg.GetByID(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, int32(1), gets.Load())

	_, err = reg.GetByID(ctx, 99)
	assert.ErrorContains(t, err, "404")
}

func TestNewConfluentRegistryRequiresURL(t *testing.T) {
	_, err := NewConfluentRegistry("")
	assert.Error(t, err)
}
