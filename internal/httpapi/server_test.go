package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"

	"lan-lht/internal/discovery"
)

const (
	hashA = "F60AE72E07713D4F14878A5B24ADB34992401AC9"
	hashB = "F60AE72E07713D4F14878A5B24ADB34992401AC8"
)

type fakeTable map[string][]string

func (t fakeTable) PeersFor(infoHash string) []string {
	if p, ok := t[infoHash]; ok {
		return p
	}
	return []string{}
}

func (t fakeTable) AllEntries() []discovery.Entry {
	out := []discovery.Entry{}
	for _, ih := range []string{hashA, hashB} {
		if p, ok := t[ih]; ok {
			out = append(out, discovery.Entry{InfoHash: ih, Peers: p})
		}
	}
	return out
}

func do(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestListPeers(t *testing.T) {
	s := New(fakeTable{
		hashA: {"10.0.0.5:51413"},
		hashB: {"10.0.0.6:1", "10.0.0.7:2"},
	}, Config{})

	rec := do(t, s, "/v1/peers")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []discovery.Entry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []discovery.Entry{
		{InfoHash: hashA, Peers: []string{"10.0.0.5:51413"}},
		{InfoHash: hashB, Peers: []string{"10.0.0.6:1", "10.0.0.7:2"}},
	}, body)
}

func TestListPeersEmpty(t *testing.T) {
	rec := do(t, New(fakeTable{}, Config{}), "/v1/peers")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetPeers(t *testing.T) {
	s := New(fakeTable{hashA: {"10.0.0.5:51413"}}, Config{})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "known",
			path:       "/v1/peers/" + hashA,
			wantStatus: http.StatusOK,
			wantBody:   `{"infohash":"` + hashA + `","peers":["10.0.0.5:51413"]}`,
		},
		{
			name:       "unknown",
			path:       "/v1/peers/" + hashB,
			wantStatus: http.StatusOK,
			wantBody:   `{"infohash":"` + hashB + `","peers":[]}`,
		},
		{
			name:       "malformed",
			path:       "/v1/peers/xyz",
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":{"code":"bad_parameter","message":"infohash \"xyz\" must be 40 hex characters"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.path)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestGetMagnet(t *testing.T) {
	s := New(fakeTable{hashA: {"10.0.0.5:51413", "10.0.0.6:6881"}}, Config{})

	rec := do(t, s, "/v1/peers/"+hashA+"/magnet")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"magnet":"magnet:?xt=urn:btih:`+hashA+`&x.pe=10.0.0.5:51413&x.pe=10.0.0.6:6881"}`,
		rec.Body.String())

	rec = do(t, s, "/v1/peers/"+hashB+"/magnet")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"magnet":"magnet:?xt=urn:btih:`+hashB+`"}`, rec.Body.String())

	rec = do(t, s, "/v1/peers/"+hashA[:10]+"/magnet")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	rec := do(t, New(fakeTable{}, Config{}), "/v2/nothing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body ErrResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrNotFound, body.Error.Code)
}

func TestPingAndMetrics(t *testing.T) {
	s := New(fakeTable{}, Config{})

	rec := do(t, s, "/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServe(t *testing.T) {
	s := New(fakeTable{hashA: {"10.0.0.5:51413"}}, Config{Host: "127.0.0.1", Port: 0})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	require.Eventually(t, func() bool { return s.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + s.Addr().String() + "/v1/peers/" + hashA)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, suture.ErrDoNotRestart)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServeListenFailureIsFatal(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	port := l.Addr().(*net.TCPAddr).Port
	s := New(fakeTable{}, Config{Host: "127.0.0.1", Port: port})

	err = s.Serve(context.Background())
	assert.ErrorIs(t, err, suture.ErrTerminateSupervisorTree)
}
