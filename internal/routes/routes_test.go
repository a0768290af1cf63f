package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alexconrey/webmux/internal/config"
	"github.com/alexconrey/webmux/internal/connection"
	"github.com/alexconrey/webmux/internal/connection/connectiontest"
	"github.com/alexconrey/webmux/internal/handler"
	"github.com/alexconrey/webmux/internal/metrics"
	"github.com/alexconrey/webmux/internal/middleware"
	"github.com/alexconrey/webmux/internal/protocol"
	"github.com/alexconrey/webmux/internal/registry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T, staticDir string) *gin.Engine {
	t.Helper()
	logger := zap.NewNop()

	reg := registry.New(func(*config.SerialConnectionConfig) (connection.Port, error) {
		return connectiontest.NewPort(), nil
	}, connection.Options{}, logger)
	require.NoError(t, reg.OpenAll(context.Background(), []config.SerialConnectionConfig{{
		Name: "plc", Port: "/dev/ttyS0", BaudRate: 19200, DataBits: 8, StopBits: 1,
		Parity: config.ParityNone, FlowControl: config.FlowControlNone, Enabled: true,
	}}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = reg.CloseAll(ctx)
	})

	bus := handler.NewEventBus(logger)
	go bus.Start()
	t.Cleanup(bus.Stop)

	cfg := &config.Config{
		Server:  config.ServerConfig{StaticDir: staticDir},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		App:     config.AppConfig{Name: "webmux", Version: "test", Environment: "test"},
	}

	r := NewRouter(cfg, logger, nil, reg, nil, bus, metrics.NewRegistry(reg))
	r.portLister = func() ([]protocol.PortInfo, error) { return nil, nil }
	return r.SetupRouter()
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRouter_Routes(t *testing.T) {
	router := setupRouter(t, "")

	for _, path := range []string{"/health", "/live", "/ready", "/api/connections", "/api/connections/plc", "/api/connections/plc/stats", "/api/ports"} {
		w := get(router, path)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader), path)
	}

	assert.Equal(t, http.StatusNotFound, get(router, "/api/connections/ghost").Code)
	assert.Equal(t, http.StatusMovedPermanently, get(router, "/docs").Code)
}

func TestRouter_Metrics(t *testing.T) {
	router := setupRouter(t, "")

	w := get(router, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `webmux_connection_up{connection="plc"} 1`)
	assert.Contains(t, w.Body.String(), "webmux_open_failures 0")
}

func TestRouter_Static(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>terminal</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log('x')"), 0o644))

	router := setupRouter(t, dir)

	w := get(router, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "terminal")

	assert.Equal(t, http.StatusOK, get(router, "/static/app.js").Code)
}

func TestRouter_NoStaticDir(t *testing.T) {
	router := setupRouter(t, filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, http.StatusNotFound, get(router, "/").Code)
}
