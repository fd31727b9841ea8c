package handlers_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/invoiceflow/gatehouse/internal/handlers"
)

func healthy(ctx context.Context) error   { return nil }
func unhealthy(ctx context.Context) error { return errors.New("connection refused") }

func TestHealthCheck_AllHealthy(t *testing.T) {
	handler := handlers.NewHealthHandler(handlers.PingFunc(healthy), handlers.PingFunc(healthy), testLogger())

	req := handlers.NewTestRequest(t, "GET", "/healthz", nil)
	w := httptest.NewRecorder()
	handler.Check(w, req)

	var resp handlers.HealthResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Database)
	assert.Equal(t, "ok", resp.Cache)
}

func TestHealthCheck_DatabaseDown(t *testing.T) {
	handler := handlers.NewHealthHandler(handlers.PingFunc(unhealthy), handlers.PingFunc(healthy), testLogger())

	req := handlers.NewTestRequest(t, "GET", "/healthz", nil)
	w := httptest.NewRecorder()
	handler.Check(w, req)

	var resp handlers.HealthResponse
	handlers.AssertJSONResponse(t, w, 503, &resp)
	assert.Equal(t, "unavailable", resp.Status)
	assert.Equal(t, "unavailable", resp.Database)
}

func TestHealthCheck_CacheDownIsDegradedNotFatal(t *testing.T) {
	handler := handlers.NewHealthHandler(handlers.PingFunc(healthy), handlers.PingFunc(unhealthy), testLogger())

	req := handlers.NewTestRequest(t, "GET", "/healthz", nil)
	w := httptest.NewRecorder()
	handler.Check(w, req)

	// Login still works while the throttle fails open, so the service
	// stays up from a load balancer's point of view
	var resp handlers.HealthResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "ok", resp.Database)
	assert.Equal(t, "unavailable", resp.Cache)
}
