package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadtrace/internal/enrich"
)

func TestReadEvents(t *testing.T) {
	csv := `ip,email,lat,lon
203.0.113.7,jan@acme.nl,52.37,4.90
203.0.113.8
203.0.113.9,,,
not-an-ip,x@y.nl
198.51.100.1,info@other.nl,oops,4.90
`
	events, err := readEvents(strings.NewReader(csv))
	require.NoError(t, err)

	require.Len(t, events, 4, "header and invalid rows are skipped")

	assert.Equal(t, "203.0.113.7", events[0].IP)
	assert.Equal(t, "jan@acme.nl", events[0].Email)
	assert.True(t, events[0].HasLocation)
	assert.Equal(t, 52.37, events[0].Lat)

	assert.Equal(t, "203.0.113.8", events[1].IP)
	assert.False(t, events[1].HasLocation)

	assert.False(t, events[2].HasLocation, "blank coordinates are not a location")

	assert.Equal(t, "198.51.100.1", events[3].IP)
	assert.False(t, events[3].HasLocation, "unparseable coordinates are dropped")
}

func TestReadEventsEmpty(t *testing.T) {
	events, err := readEvents(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestProcessBatch(t *testing.T) {
	env := newTestEnv(t)

	events := []enrich.Event{
		{IP: "203.0.113.1"},
		{IP: "203.0.113.2"},
		{IP: "203.0.113.3"},
	}

	require.NoError(t, processBatch(context.Background(), env.Orchestrator, events, 2, 2))

	ctx := context.Background()
	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		rec, err := env.Store.GetRecord(ctx, ip)
		require.NoError(t, err)
		require.NotNil(t, rec, ip)
		assert.Equal(t, 1, rec.Attempts)
	}

	rec, err := env.Store.GetRecord(ctx, "203.0.113.3")
	require.NoError(t, err)
	assert.Nil(t, rec, "the limit cuts the batch")
}

func TestProcessBatchEmpty(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, processBatch(context.Background(), env.Orchestrator, nil, 0, 2))
}
