// File: control/config_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 5*time.Second, cfg.ForceCloseDelay)
}

func TestLoadConfigFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"LOOFAH_FORCE_CLOSE_DELAY=250\nLOOFAH_DEFAULT_MAX_PKG_SIZE=4096\nLOOFAH_LOG_LEVEL=DEBUG\n"), 0o600))
	t.Setenv(EnvMaxPackageSize, "8192")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.ForceCloseDelay)
	assert.Equal(t, 8192, cfg.MaxPackageSize, "environment wins over the file")
	assert.Equal(t, "debug", cfg.LogLevel)

	log, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv(EnvBacklog, "many")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, EnvBacklog)

	t.Setenv(EnvBacklog, "16")
	t.Setenv(EnvForceCloseDelay, "-1")
	_, err = LoadConfig()
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.LogLevel = "loud"
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}

func TestMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err, "collectors are registered once per registry")

	m.ChannelOpened()
	m.ChannelOpened()
	m.ChannelClosed()
	m.BytesRead(10)
	m.BytesRead(-1)
	m.Poll("reactor")
	assert.Equal(t, 1.0, gathered(t, reg, "loofah_open_channels"))
	assert.Equal(t, 10.0, gathered(t, reg, "loofah_bytes_read_total"))
	assert.Equal(t, 1.0, gathered(t, reg, "loofah_polls_total"))

	var none *Metrics
	assert.NotPanics(t, func() {
		none.Poll("x")
		none.ChannelError("reset")
		none.PackageSent()
	})
}

// gathered returns the value of the first sample of the named family.
func gathered(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		require.NotEmpty(t, mf.GetMetric())
		m := mf.GetMetric()[0]
		if g := m.GetGauge(); g != nil {
			return g.GetValue()
		}
		return m.GetCounter().GetValue()
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestDebugProbesServeJSON(t *testing.T) {
	dp := NewDebugProbes()
	RegisterPlatformProbes(dp)
	dp.RegisterProbe("engine.pending_tasks", func() any { return 3 })

	rec := httptest.NewRecorder()
	dp.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/probes", nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3.0, got["engine.pending_tasks"])
	assert.Equal(t, runtime.GOOS, got["platform.os"])
}
