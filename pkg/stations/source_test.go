package stations

import (
	"context"
	"testing"

	"github.com/edgeflare/ctastream/internal/testutil"
	"github.com/edgeflare/ctastream/internal/testutil/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourcePoll(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Pool(ctx, t)

	pgtest.Exec(ctx, t, pool, `
		DROP TABLE IF EXISTS test_stations;
		CREATE TABLE test_stations (
			stop_id INTEGER PRIMARY KEY,
			direction_id CHAR(1),
			stop_name TEXT,
			station_name TEXT,
			station_descriptive_name TEXT,
			station_id INTEGER,
			"order" INTEGER,
			red BOOLEAN,
			blue BOOLEAN,
			green BOOLEAN
		);
	`)
	t.Cleanup(func() {
		pgtest.Exec(context.Background(), t, pool, `DROP TABLE IF EXISTS test_stations`)
	})

	var fixture []Station
	_, err := testutil.LoadRecords("stations.json", &fixture)
	require.NoError(t, err)
	insert := func(s Station) {
		pgtest.Exec(ctx, t, pool, `INSERT INTO test_stations VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			s.StopID, s.DirectionID, s.StopName, s.StationName, s.StationDescriptiveName,
			s.StationID, s.Order, s.Red, s.Blue, s.Green)
	}
	for _, s := range fixture[:3] {
		insert(s)
	}

	pub := &recordingPublisher{}
	src := NewSource(pool, pub, SourceConfig{Table: "public.test_stations", BatchMaxRows: 2}, nil)

	n, err := src.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 30173, src.LastID())

	var stopIDs []int
	for _, r := range pub.records {
		assert.Nil(t, r.key)
		stopIDs = append(stopIDs, r.value.(Station).StopID)
	}
	assert.Equal(t, []int{30001, 30074, 30173}, stopIDs, "rows are published in stop_id order")

	n, err = src.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "already published rows are not read again")

	insert(fixture[3]) // stop_id 30004 is below the high-water mark
	insert(Station{StopID: 30200, DirectionID: "N", StopName: "Cermak", StationName: "Cermak-Chinatown",
		StationDescriptiveName: "Cermak-Chinatown (Red Line)", StationID: 41000, Order: 20, Red: true})
	n, err = src.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 30200, src.LastID())
	assert.Equal(t, "Cermak-Chinatown", pub.records[3].value.(Station).StationName)
}

func TestNewSourceQuotesTable(t *testing.T) {
	src := NewSource(nil, nil, SourceConfig{Table: `public.stations"; DROP TABLE x; --`}, nil)
	assert.Contains(t, src.query, `FROM "public"."stations""; DROP TABLE x; --"`)
	assert.Equal(t, -1, src.LastID())
	assert.Equal(t, 500, src.cfg.BatchMaxRows)
}
