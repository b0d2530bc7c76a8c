package connect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeWorker is a minimal Connect worker keeping connectors in memory.
type fakeWorker struct {
	mu         sync.Mutex
	connectors map[string]Connector
	posts      int
	postStatus int
}

func (f *fakeWorker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.Method == http.MethodGet && len(r.URL.Path) > len("/connectors/"):
		name := r.URL.Path[len("/connectors/"):]
		conn, ok := f.connectors[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error_code":404,"message":"Connector not found"}`))
			return
		}
		json.NewEncoder(w).Encode(conn)
	case r.Method == http.MethodPost && r.URL.Path == "/connectors":
		f.posts++
		if f.postStatus != 0 {
			w.WriteHeader(f.postStatus)
			w.Write([]byte(`{"message":"rejected"}`))
			return
		}
		var conn Connector
		if err := json.NewDecoder(r.Body).Decode(&conn); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.connectors[conn.Name] = conn
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(conn)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeWorker() (*fakeWorker, *httptest.Server) {
	f := &fakeWorker{connectors: map[string]Connector{}}
	return f, httptest.NewServer(f)
}

func TestStationsConnectorConfig(t *testing.T) {
	conn := DefaultStationsSource().Connector()

	assert.Equal(t, "org.chicago.cta.stations", conn.Name)
	want := map[string]string{
		"connector.class":                "io.confluent.connect.jdbc.JdbcSourceConnector",
		"key.converter":                  "org.apache.kafka.connect.json.JsonConverter",
		"key.converter.schemas.enable":   "false",
		"value.converter":                "org.apache.kafka.connect.json.JsonConverter",
		"value.converter.schemas.enable": "false",
		"batch.max.rows":                 "500",
		"connection.url":                 "jdbc:postgresql://postgres:5432/cta",
		"connection.user":                "cta_admin",
		"connection.password":            "chicago",
		"table.whitelist":                "stations",
		"mode":                           "incrementing",
		"incrementing.column.name":       "stop_id",
		"topic.prefix":                   "org.chicago.cta.",
		"poll.interval.ms":               "43200000",
	}
	assert.Equal(t, want, conn.Config)
}

func TestEnsureCreatesOnce(t *testing.T) {
	worker, srv := newFakeWorker()
	defer srv.Close()
	c := NewClient(srv.URL, nil, nil)
	conn := DefaultStationsSource().Connector()

	created, err := c.Ensure(context.Background(), conn)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Ensure(context.Background(), conn)
	require.NoError(t, err)
	assert.False(t, created, "an existing connector is left alone")
	assert.Equal(t, 1, worker.posts)
	assert.Equal(t, conn, worker.connectors[conn.Name])
}

func TestEnsureConflictIsSuccess(t *testing.T) {
	worker, srv := newFakeWorker()
	defer srv.Close()
	worker.postStatus = http.StatusConflict

	created, err := NewClient(srv.URL, nil, nil).Ensure(context.Background(), DefaultStationsSource().Connector())
	require.NoError(t, err)
	assert.False(t, created)
}

func TestConfigureLogsFailures(t *testing.T) {
	worker, srv := newFakeWorker()
	defer srv.Close()
	worker.postStatus = http.StatusBadRequest

	core, logs := observer.New(zap.InfoLevel)
	NewClient(srv.URL, nil, zap.New(core)).Configure(context.Background(), DefaultStationsSource().Connector())

	failed := logs.FilterMessage("an error occurred during creation of connector").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "org.chicago.cta.stations", failed[0].ContextMap()["connector"])
	assert.Equal(t, 1, worker.posts, "client errors are not retried")
}

func TestExistsUnreachableWorker(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, nil, nil)
	_, err := c.Exists(context.Background(), "gone")
	assert.Error(t, err)
}
