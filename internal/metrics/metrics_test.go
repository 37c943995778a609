package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareIncrementsCounters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := InitMetrics()

	r := gin.New()
	r.Use(Middleware())
	r.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	before := testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "/test", "200"))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	after := testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "/test", "200"))
	assert.Equal(t, before+1, after)
}

func TestRegisterExposesMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	BillingTransition("renewal")

	r := gin.New()
	Register(r, "/metrics")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "kpcloud_billing_transitions_total")
}

func TestObserveStoreOpCountsErrors(t *testing.T) {
	m := InitMetrics()
	before := testutil.ToFloat64(m.StoreOpErrors.WithLabelValues("copy"))

	ObserveStoreOp("copy", 10*time.Millisecond, nil)
	ObserveStoreOp("copy", 10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, before+1, testutil.ToFloat64(m.StoreOpErrors.WithLabelValues("copy")))
}
