package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r.Group(""))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestReadiness(t *testing.T) {
	up := Check{Name: "postgres", Ping: func(ctx context.Context) error { return nil }}
	down := Check{Name: "redis", Ping: func(ctx context.Context) error { return errors.New("connection refused") }}

	w := serve(NewHandler(prometheus.NewRegistry(), up), "/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(NewHandler(prometheus.NewRegistry(), up, down), "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"connection refused"`)
	assert.NotContains(t, w.Body.String(), "postgres")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "clinic_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	w := serve(NewHandler(reg), "/health/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "clinic_test_total 1")
}
