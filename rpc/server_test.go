package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	f := newFixture(t)
	srv := httptest.NewServer(NewServer(":0", f.handler, opts).Router())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, token, body string) (*http.Response, Response) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

const heightCall = `{"jsonrpc":"2.0","id":1,"method":"getBlockHeight"}`

func TestServeRPC(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp, out := post(t, srv, "", heightCall)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.Nil(t, out.Error)
	require.Equal(t, float64(0), out.Result)

	_, out = post(t, srv, "", `{"jsonrpc":"1.0","id":1,"method":"getBlockHeight"}`)
	require.NotNil(t, out.Error)
	require.Equal(t, CodeInvalidRequest, out.Error.Code)

	_, out = post(t, srv, "", `{not json`)
	require.NotNil(t, out.Error)
	require.Equal(t, CodeParseError, out.Error.Code)
}

func TestAuthToken(t *testing.T) {
	srv := newTestServer(t, Options{AuthToken: "s3cret"})

	resp, out := post(t, srv, "", heightCall)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, CodeUnauthorized, out.Error.Code)

	resp, _ = post(t, srv, "wrong", heightCall)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, out = post(t, srv, "s3cret", heightCall)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, out.Error)
}

func TestRateLimit(t *testing.T) {
	// A negligible refill rate makes the burst the whole allowance.
	srv := newTestServer(t, Options{RatePerSecond: 0.001, Burst: 2})

	for i := 0; i < 2; i++ {
		resp, _ := post(t, srv, "", heightCall)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, out := post(t, srv, "", heightCall)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, CodeRateLimited, out.Error.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, Options{AuthToken: "s3cret"})
	post(t, srv, "s3cret", heightCall)

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	require.Equal(t, "ok", health["status"])

	resp, err = srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "tolbook_rpc_requests_total")
}
