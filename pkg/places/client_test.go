package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadtrace/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		JitterFraction: 0,
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/textsearch/"):
			_, _ = w.Write([]byte(`{
				"status": "OK",
				"results": [
					{"place_id": "p1", "name": "Acme BV"},
					{"place_id": "p2", "name": "Acme Store"},
					{"place_id": "p3", "name": "A1"},
					{"place_id": "p4", "name": "A2"},
					{"place_id": "p5", "name": "A3"},
					{"place_id": "p6", "name": "over the detail budget"}
				]
			}`))
		case strings.HasPrefix(r.URL.Path, "/details/"):
			placeID := r.URL.Query().Get("place_id")
			if placeID == "p2" {
				// One flaky candidate; the search must carry on.
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(`{
				"status": "OK",
				"result": {
					"name": "Acme BV",
					"formatted_address": "Herengracht 100, 1015 BS Amsterdam, Netherlands",
					"international_phone_number": "+31 20 123 4567",
					"website": "https://www.acme.nl/",
					"types": ["accounting"],
					"geometry": {"location": {"lat": 52.37, "lng": 4.89}}
				}
			}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestSearch_ResolvesDetails(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000, 1000), WithRetry(fastRetry()))
	places, err := c.Search(context.Background(), "acme.nl")
	require.NoError(t, err)
	// 5 candidates max, one failed detail fetch skipped.
	assert.Len(t, places, 4)

	p := places[0]
	assert.Equal(t, "Acme BV", p.Name)
	assert.Equal(t, "https://www.acme.nl/", p.Website)
	assert.Equal(t, "accounting", p.Category)
	assert.Equal(t, "Herengracht 100", p.Street)
	assert.Equal(t, "1015 BS", p.Postal)
	assert.Equal(t, "Amsterdam", p.City)
	assert.Equal(t, "Netherlands", p.Country)
	assert.InDelta(t, 52.37, p.Lat, 0.001)
}

func TestSearch_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000, 1000))
	places, err := c.Search(context.Background(), "nothing here")
	require.NoError(t, err)
	assert.Empty(t, places)
}

func TestSearch_EmptyQuery(t *testing.T) {
	c := NewClient("test-key")
	_, err := c.Search(context.Background(), "  ")
	assert.Error(t, err)
}

func TestSearch_RecoversFromTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS", "results": []}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000, 1000), WithRetry(fastRetry()))
	places, err := c.Search(context.Background(), "acme.nl")
	require.NoError(t, err)
	assert.Empty(t, places)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestSearch_NoRetryOnPermanentStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient("bad-key", WithBaseURL(srv.URL), WithRateLimit(1000, 1000), WithRetry(fastRetry()))
	_, err := c.Search(context.Background(), "acme.nl")
	assert.ErrorContains(t, err, "403")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "a rejected key never earns a second request")
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		addr    string
		street  string
		postal  string
		city    string
		country string
		ok      bool
	}{
		{"Herengracht 100, 1015 BS Amsterdam, Netherlands", "Herengracht 100", "1015 BS", "Amsterdam", "Netherlands", true},
		{"Main St 5, 10115 Berlin, Germany", "Main St 5", "10115", "Berlin", "Germany", true},
		{"just a name", "", "", "", "", false},
		{"", "", "", "", "", false},
	}
	for _, tt := range tests {
		street, postal, city, country, ok := ParseAddress(tt.addr)
		assert.Equal(t, tt.ok, ok, tt.addr)
		assert.Equal(t, tt.street, street)
		assert.Equal(t, tt.postal, postal)
		assert.Equal(t, tt.city, city)
		assert.Equal(t, tt.country, country)
	}
}
