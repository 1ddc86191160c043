package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHealthAllHealthy(t *testing.T) {
	c := NewChecker("1.0.0")
	c.RegisterComponent("scheduler", true, "")
	c.RegisterComponent("registry", true, "")

	h := c.GetHealth()
	assert.Equal(t, "healthy", h.Status)
	assert.Len(t, h.Components, 2)
	assert.Equal(t, "1.0.0", h.Version)
}

func TestGetHealthOneUnhealthy(t *testing.T) {
	c := NewChecker("")
	c.RegisterComponent("scheduler", true, "")
	c.RegisterComponent("registry", false, "not connected")

	h := c.GetHealth()
	assert.Equal(t, "unhealthy", h.Status)
	assert.Equal(t, "unhealthy: not connected", h.Components["registry"])
}

func TestGetReadinessAllReady(t *testing.T) {
	c := NewChecker("", "event_bus", "registry")
	c.RegisterComponent("event_bus", true, "")
	c.RegisterComponent("registry", true, "")

	assert.Equal(t, "ready", c.GetReadiness().Status)
}

func TestGetReadinessMissingCriticalComponent(t *testing.T) {
	c := NewChecker("", "event_bus", "registry")
	c.RegisterComponent("event_bus", true, "")

	ready := c.GetReadiness()
	assert.Equal(t, "not_ready", ready.Status)
	assert.NotEmpty(t, ready.Message)
}

func TestGetReadinessCriticalComponentUnhealthy(t *testing.T) {
	c := NewChecker("", "event_bus")
	c.RegisterComponent("event_bus", false, "queue full")

	assert.Equal(t, "not_ready", c.GetReadiness().Status)
}

func TestHealthHandler(t *testing.T) {
	c := NewChecker("test")
	c.RegisterComponent("scheduler", true, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	c.HealthHandler()(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "healthy", got.Status)
	assert.Equal(t, "test", got.Version)
}

func TestHealthHandlerUnhealthy(t *testing.T) {
	c := NewChecker("")
	c.RegisterComponent("scheduler", false, "broken")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	c.HealthHandler()(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker("", "event_bus")
	c.RegisterComponent("event_bus", true, "")

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	c.ReadyHandler()(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyHandlerNotReady(t *testing.T) {
	c := NewChecker("", "event_bus")

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	c.ReadyHandler()(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLivenessHandler(t *testing.T) {
	c := NewChecker("")

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	w := httptest.NewRecorder()
	c.LivenessHandler()(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "alive", resp["status"])
}

func TestUpdateComponent(t *testing.T) {
	c := NewChecker("")
	c.RegisterComponent("registry", true, "ok")
	c.UpdateComponent("registry", false, "error")

	h := c.GetHealth()
	assert.Equal(t, "unhealthy: error", h.Components["registry"])
}
