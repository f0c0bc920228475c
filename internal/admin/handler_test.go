package admin

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localforge/ollamabridge/internal/metrics"
	"github.com/localforge/ollamabridge/internal/store"
)

func newTestHandler(t *testing.T, token string) (*Handler, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := log.New(io.Discard, "", 0)
	h := NewHandler(func() string { return "running" }, "127.0.0.1:8080", st, metrics.New(), token, logger)
	return h, st
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t, "")
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "running", body["state"])
	assert.Equal(t, "127.0.0.1:8080", body["upstream"])
}

func TestStatsAndRequests(t *testing.T) {
	h, st := newTestHandler(t, "")
	require.NoError(t, st.Record(&store.RequestRecord{
		ID: "a", ReceivedAt: time.Now(), Endpoint: "chat", Status: 200,
	}))

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var sum store.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sum))
	assert.Equal(t, int64(1), sum.TotalRequests)

	resp2, err := http.Get(srv.URL + "/requests?limit=10")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var recs map[string][]store.RequestRecord
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&recs))
	require.Len(t, recs["requests"], 1)
	assert.Equal(t, "a", recs["requests"][0].ID)
}

func TestRequestsInvalidLimit(t *testing.T) {
	h, _ := newTestHandler(t, "")
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/requests?limit=bogus")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTokenGuard(t *testing.T) {
	h, _ := newTestHandler(t, "olb_secret")
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	// No token.
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong token.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("X-Admin-Token", "nope")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Bearer form.
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("Authorization", "Bearer olb_secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Header form.
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/metrics", nil)
	req.Header.Set("X-Admin-Token", "olb_secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
