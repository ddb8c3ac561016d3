package wakemeski

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ski-report-service/internal/domain"
	"github.com/couchcryptid/ski-report-service/internal/observability"
)

const testDeviceID = "device-42"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient() *Client {
	return NewClient(5*time.Second, 1000, 1000, testLogger())
}

func testServer(candidates ...string) *Server {
	return NewServer(testClient(), ServerOptions{Candidates: candidates, DeviceID: testDeviceID}, observability.NewMetricsForTesting(), testLogger())
}

// reportServer serves server_info.php with version plus any extra documents.
func reportServer(t *testing.T, version string, docs map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var infoCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == serverInfoPath {
			infoCalls.Add(1)
			if version == "" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprintf(w, "server.version = %s\nap.min.supported.version = 1\nap.latest.version = 9\n", version)
			fmt.Fprintln(w, `alert.regex.0 = snow accumulation of (\d+) to (\d+)`)
			return
		}
		body, ok := docs[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &infoCalls
}

func closedServerURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func TestClient_FetchLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "a = 1\r\nb = 2\n\nc = 3")
	}))
	defer srv.Close()

	lines, err := testClient().FetchLines(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"a = 1", "b = 2", "", "c = 3"}, lines)
}

func TestClient_FetchLines_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "boom")
	}))
	defer srv.Close()

	_, err := testClient().FetchLines(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestClient_FetchLines_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(50*time.Millisecond, 1000, 1000, testLogger())
	_, err := c.FetchLines(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestClient_FetchLines_CancelledWhileThrottled(t *testing.T) {
	c := NewClient(time.Second, 0.001, 1, testLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := c.FetchLines(context.Background(), srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.FetchLines(ctx, srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestErrorMessage_NoConnection(t *testing.T) {
	_, err := testClient().FetchLines(context.Background(), closedServerURL(t))
	require.Error(t, err)
	assert.Equal(t, domain.ErrNoConnection, errorMessage(err))
}

func TestErrorMessage_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(20*time.Millisecond, 1000, 1000, testLogger())
	_, err := c.FetchLines(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, domain.ErrNoConnection, errorMessage(err))
}

func TestErrorMessage_PassesThroughOtherFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient().FetchLines(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, err.Error(), errorMessage(err))
	assert.NotEqual(t, domain.ErrNoConnection, errorMessage(err))
}

func TestServer_SelectsHighestVersion(t *testing.T) {
	a, _ := reportServer(t, "3", nil)
	b, _ := reportServer(t, "5", nil)

	s := testServer(a.URL, b.URL)
	assert.Equal(t, b.URL, s.URL(context.Background()))

	info := s.Info(context.Background())
	assert.Equal(t, 5, info.ServerVersion)
	assert.Equal(t, 1, info.MinSupportedVersion)
	assert.Equal(t, 9, info.LatestVersion)
	require.Len(t, info.AlertExpressions, 1)
}

func TestServer_SelectionPolicy(t *testing.T) {
	v3a, _ := reportServer(t, "3", nil)
	v3b, _ := reportServer(t, "3", nil)
	v7, _ := reportServer(t, "7", nil)
	bad, _ := reportServer(t, "seven", nil)
	missing, _ := reportServer(t, "", nil)
	down := closedServerURL(t)

	tests := []struct {
		name        string
		candidates  []string
		want        string
		wantVersion int
	}{
		{"tie keeps earliest", []string{v3a.URL, v3b.URL}, v3a.URL, 3},
		{"later higher wins", []string{v3a.URL, v7.URL}, v7.URL, 7},
		{"earlier higher wins", []string{v7.URL, v3a.URL}, v7.URL, 7},
		{"unreachable first", []string{down, v3b.URL}, v3b.URL, 3},
		{"only second reports", []string{missing.URL, v3a.URL}, v3a.URL, 3},
		{"none reachable", []string{down, missing.URL}, down, domain.UnknownVersion},
		{"unparsable version", []string{bad.URL, missing.URL}, bad.URL, domain.UnknownVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testServer(tt.candidates...)
			assert.Equal(t, tt.want, s.URL(context.Background()))
			assert.Equal(t, tt.wantVersion, s.Info(context.Background()).ServerVersion)
		})
	}
}

func TestServer_CachesSelection(t *testing.T) {
	a, calls := reportServer(t, "3", nil)
	s := testServer(a.URL)

	s.URL(context.Background())
	s.Info(context.Background())
	s.FetchURL(context.Background(), "/x")
	assert.Equal(t, int32(1), calls.Load())

	s.Reset()
	s.URL(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}

func TestServer_SelectionTTL(t *testing.T) {
	a, calls := reportServer(t, "3", nil)
	clk := clockwork.NewFakeClock()
	s := NewServer(testClient(), ServerOptions{
		Candidates: []string{a.URL},
		TTL:        time.Minute,
		Clock:      clk,
	}, observability.NewMetricsForTesting(), testLogger())

	s.URL(context.Background())
	clk.Advance(30 * time.Second)
	s.URL(context.Background())
	assert.Equal(t, int32(1), calls.Load())

	clk.Advance(31 * time.Second)
	s.URL(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}

func TestServer_FetchWithID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == serverInfoPath {
			_, _ = io.WriteString(w, "server.version = 1\n")
			return
		}
		assert.Equal(t, testDeviceID, r.URL.Query().Get("id"))
		assert.Equal(t, "X", r.URL.Query().Get("location"))
		_, _ = io.WriteString(w, "ok = 1\n")
	}))
	defer srv.Close()

	s := testServer(srv.URL + "/")
	lines, err := s.FetchWithID(context.Background(), "/r.php?location=X")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok = 1"}, lines)
	assert.True(t, strings.HasPrefix(s.FetchURL(context.Background(), "/p"), srv.URL+"/p"))
}
