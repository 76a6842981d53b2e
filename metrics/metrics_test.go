package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalPath(t *testing.T) {
	assert.Equal(t, "/", CanonicalPath(""))
	assert.Equal(t, "/", CanonicalPath("/"))
	assert.Equal(t, "/api/applications", CanonicalPath("/api/applications/"))
	assert.Equal(t, "/api/admin/applications/:id/status",
		CanonicalPath("/api/admin/applications/5b1f6a3e-0c4e-4c53-9f0e-8b8f5b6c2d11/status"))
	assert.Equal(t, "/api/admin/applications/:id/notes", CanonicalPath("/api/admin/applications/not-a-uuid/notes"))
	assert.Equal(t, "/healthz", CanonicalPath("/healthz"))
}

func TestCanonicalPathBoundsUnknownPaths(t *testing.T) {
	for _, raw := range []string{"/a1", "/zz/yy/xx", "/admin/assets/app.js", "/admin/login", "/index.html"} {
		assert.Equal(t, "/static", CanonicalPath(raw), raw)
	}
	for _, raw := range []string{"/api/zz", "/api/admin/applications/x/y/z", "/api/admin/applications/x/delete"} {
		assert.Equal(t, "/api/other", CanonicalPath(raw), raw)
	}
}

func TestInstrumentHandlerCountsStatus(t *testing.T) {
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/static", "418"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/static", "418"))
	assert.Equal(t, before+1, after)
}

func TestDomainCounters(t *testing.T) {
	submitted := testutil.ToFloat64(applicationsSubmitted)
	RecordSubmission()
	assert.Equal(t, submitted+1, testutil.ToFloat64(applicationsSubmitted))

	approved := testutil.ToFloat64(applicationsReviewed.WithLabelValues("approved"))
	RecordReview("approved")
	assert.Equal(t, approved+1, testutil.ToFloat64(applicationsReviewed.WithLabelValues("approved")))

	failed := testutil.ToFloat64(eventsRelayed.WithLabelValues("insert", "failed"))
	RecordRelay("insert", errors.New("discord down"))
	assert.Equal(t, failed+1, testutil.ToFloat64(eventsRelayed.WithLabelValues("insert", "failed")))
}
