package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadtrace/internal/model"
)

// serverIP strips the scheme off an httptest URL so the probe can dial
// the listener as if it were a bare visitor IP.
func serverIP(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestHostHeaderFirstAnsweringCandidateWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Host != "acme.nl" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "<html><title>Welkom bij Acme</title></html>")
	}))
	defer srv.Close()

	c := NewHostHeader(time.Second, true)
	signals, err := c.Collect(context.Background(), Target{
		IP:         serverIP(srv),
		Candidates: []string{"other.nl", "acme.nl"},
	})
	require.NoError(t, err)

	require.Len(t, signals, 1)
	assert.Equal(t, "acme.nl", signals[0].Domain)
	assert.Equal(t, model.SourceHostHeader, signals[0].Source)
	assert.InDelta(t, 0.85, signals[0].Confidence, 1e-9)
	assert.Equal(t, "virtual host answered with branded content", signals[0].Reason)

	trials := c.Trials()
	require.Len(t, trials, 2)
	assert.Equal(t, "other.nl", trials[0].Domain)
	assert.Equal(t, http.StatusNotFound, trials[0].StatusCode)
	assert.True(t, trials[1].Branded)
}

func TestHostHeaderBrandRequirementRejectsGenericPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><title>Default parking page</title></html>")
	}))
	defer srv.Close()

	c := NewHostHeader(time.Second, true)
	signals, err := c.Collect(context.Background(), Target{
		IP:         serverIP(srv),
		Candidates: []string{"acme.nl"},
	})
	require.NoError(t, err)
	assert.Empty(t, signals)

	trials := c.Trials()
	require.Len(t, trials, 1)
	assert.Equal(t, http.StatusOK, trials[0].StatusCode)
	assert.False(t, trials[0].Branded)
}

func TestHostHeaderWithoutBrandRequirement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><title>Default parking page</title></html>")
	}))
	defer srv.Close()

	c := NewHostHeader(time.Second, false)
	signals, err := c.Collect(context.Background(), Target{
		IP:         serverIP(srv),
		Candidates: []string{"acme.nl"},
	})
	require.NoError(t, err)

	require.Len(t, signals, 1)
	assert.Equal(t, "virtual host answered for domain", signals[0].Reason)
}

func TestHostHeaderNoCandidates(t *testing.T) {
	c := NewHostHeader(time.Second, false)
	signals, err := c.Collect(context.Background(), Target{IP: "203.0.113.7"})
	require.NoError(t, err)
	assert.Empty(t, signals)
	assert.Empty(t, c.Trials())
}

func TestDomainLabel(t *testing.T) {
	assert.Equal(t, "acme", domainLabel("www.acme.nl"))
	assert.Equal(t, "acme", domainLabel("acme.nl"))
	assert.Equal(t, "localhost", domainLabel("localhost"))
}
