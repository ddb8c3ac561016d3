package wakemeski

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ski-report-service/internal/domain"
	"github.com/couchcryptid/ski-report-service/internal/observability"
)

const hoodReport = `location = MHM
snow.fresh = 6
snow.units = inches
lifts.open = 4
lifts.total = 11
weather.forecast.when.0 = Tonight
weather.forecast.desc.0 = Snow. New snow accumulation of 4 to 8 inches.
weather.forecast.exact.0 = 1291687200
`

func hoodResort() domain.Resort {
	return domain.NewResort(domain.Location{Label: "Mt Hood Meadows", Path: "oregon.php?location=MHM"})
}

func TestReportLoader_LoadReport(t *testing.T) {
	srv, _ := reportServer(t, "5", map[string]string{"/oregon.php": hoodReport})
	l := NewReportLoader(testServer(srv.URL), observability.NewMetricsForTesting(), testLogger())

	r := l.LoadReport(context.Background(), hoodResort())

	assert.False(t, r.HasErrors())
	assert.Equal(t, "MHM", r.Location)
	assert.Equal(t, 6, r.FreshSnowTotal())
	assert.Equal(t, "4/11", r.LiftsString())
	assert.Equal(t, 5, r.ServerInfo.ServerVersion)
	assert.Equal(t, srv.URL+"/oregon.php?location=MHM", r.RequestURL)
	require.Len(t, r.Weather, 1)
	assert.Equal(t, hoodResort(), r.Resort)
}

func TestReportLoader_LoadReportNoCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == serverInfoPath {
			_, _ = io.WriteString(w, "server.version = 2\n")
			return
		}
		assert.Equal(t, "1", r.URL.Query().Get("nocache"))
		assert.Equal(t, testDeviceID, r.URL.Query().Get("id"))
		_, _ = io.WriteString(w, hoodReport)
	}))
	defer srv.Close()

	l := NewReportLoader(testServer(srv.URL), observability.NewMetricsForTesting(), testLogger())
	r := l.LoadReportNoCache(context.Background(), hoodResort())

	assert.False(t, r.HasErrors())
}

func TestReportLoader_ServerError(t *testing.T) {
	srv, _ := reportServer(t, "5", map[string]string{"/oregon.php": "err.msg = unknown location\nsnow.fresh = 4\n"})
	l := NewReportLoader(testServer(srv.URL), observability.NewMetricsForTesting(), testLogger())

	r := l.LoadReport(context.Background(), hoodResort())

	assert.True(t, r.HasServerError())
	assert.Equal(t, -1, r.FreshSnowTotal())
}

func TestReportLoader_HTTPFailure(t *testing.T) {
	srv, _ := reportServer(t, "5", nil)
	l := NewReportLoader(testServer(srv.URL), observability.NewMetricsForTesting(), testLogger())

	r := l.LoadReport(context.Background(), hoodResort())

	assert.True(t, r.HasErrors())
	assert.False(t, r.HasServerError())
	assert.Contains(t, r.LocalizedError, "404")
	assert.Empty(t, r.Weather)
}

func TestReportLoader_NoConnection(t *testing.T) {
	l := NewReportLoader(testServer(closedServerURL(t)), observability.NewMetricsForTesting(), testLogger())

	r := l.LoadReport(context.Background(), hoodResort())

	assert.True(t, r.HasErrors())
	assert.Equal(t, domain.ErrNoConnection, r.LocalizedError)
	assert.Equal(t, domain.UnknownVersion, r.ServerInfo.ServerVersion)
}
