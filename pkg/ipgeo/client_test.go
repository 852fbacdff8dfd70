package ipgeo

import (
	"context"
	"net/http"
	"net/http/httptest"
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

func TestLookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "83.84.85.86")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "success",
			"country": "Netherlands",
			"countryCode": "NL",
			"regionName": "North Holland",
			"city": "Amsterdam",
			"zip": "1012",
			"lat": 52.3702,
			"lon": 4.8952,
			"isp": "Acme Hosting BV",
			"org": "Acme BV",
			"as": "AS12345 Acme",
			"query": "83.84.85.86"
		}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000, 1000))
	res, err := c.Lookup(context.Background(), "83.84.85.86")
	require.NoError(t, err)
	assert.Equal(t, "Amsterdam", res.City)
	assert.Equal(t, "Acme Hosting BV", res.ISP)
	assert.InDelta(t, 52.3702, res.Lat, 0.0001)
	assert.True(t, res.Located())
}

func TestLookup_FailStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","message":"private range","query":"10.0.0.1"}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000, 1000))
	_, err := c.Lookup(context.Background(), "10.0.0.1")
	assert.ErrorContains(t, err, "private range")
}

func TestLookup_HTTPError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000, 1000), WithRetry(fastRetry()))
	_, err := c.Lookup(context.Background(), "1.2.3.4")
	assert.ErrorContains(t, err, "429")
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls), "a rate-limited endpoint is retried to exhaustion")
}

func TestLookup_RecoversFromTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","city":"Amsterdam","lat":52.37,"lon":4.89,"query":"1.2.3.4"}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000, 1000), WithRetry(fastRetry()))
	res, err := c.Lookup(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Located())
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestLookup_NoRetryOnPermanentStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000, 1000), WithRetry(fastRetry()))
	_, err := c.Lookup(context.Background(), "1.2.3.4")
	assert.ErrorContains(t, err, "404")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "client errors are not worth a second request")
}

func TestLookup_EmptyIP(t *testing.T) {
	c := NewClient()
	_, err := c.Lookup(context.Background(), "")
	assert.Error(t, err)
}

func TestLocated(t *testing.T) {
	var nilRes *Result
	assert.False(t, nilRes.Located())
	assert.False(t, (&Result{Status: "success"}).Located())
	assert.True(t, (&Result{Status: "success", Lat: 1}).Located())
}
