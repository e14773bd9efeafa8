package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-inundation/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 28992, cfg.DefaultEPSG)
	assert.Equal(t, 0.5, cfg.ExtrapolationFactor)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, cfg.DataDir)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, "inundation-runs", cfg.KafkaSummaryTopic)
	assert.Empty(t, cfg.LedgerPath)
	assert.Empty(t, cfg.PushgatewayURL)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("DEFAULT_EPSG", "32631")
	t.Setenv("EXTRAPOLATION_FACTOR", "0.75")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092,")
	t.Setenv("KAFKA_SUMMARY_TOPIC", "flood-runs")
	t.Setenv("LEDGER_PATH", "/var/lib/inundation/runs.db")
	t.Setenv("PUSHGATEWAY_URL", "http://pushgateway:9091")
	t.Setenv("DATA_DIR", "/srv/flood/../flood")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 32631, cfg.DefaultEPSG)
	assert.Equal(t, 0.75, cfg.ExtrapolationFactor)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "flood-runs", cfg.KafkaSummaryTopic)
	assert.Equal(t, "/var/lib/inundation/runs.db", cfg.LedgerPath)
	assert.Equal(t, "http://pushgateway:9091", cfg.PushgatewayURL)
	assert.Equal(t, "/srv/flood", cfg.DataDir)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"DEFAULT_EPSG", "rd-new"},
		{"DEFAULT_EPSG", "0"},
		{"EXTRAPOLATION_FACTOR", "half"},
		{"EXTRAPOLATION_FACTOR", "-0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func writeJob(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadJob(t *testing.T) {
	path := writeJob(t, `
results: model/FlowFM_map.nc
dtm: terrain/dtm.tif
output: out/inundation.tif
quantity: level
domain: 2d
start: 2021/07/14
end: 2021-07-16 12:00:00
filter: true
extrapolate: true
extrapolation_factor: 0.25
areas: catchments.shp
`)
	job, err := LoadJob(path)
	require.NoError(t, err)

	cfg := &Config{DefaultEPSG: 28992, ExtrapolationFactor: 0.5}
	req, err := job.Request(cfg)
	require.NoError(t, err)

	assert.Equal(t, "model/FlowFM_map.nc", req.ResultPath)
	assert.Equal(t, "terrain/dtm.tif", req.TerrainPath)
	assert.Equal(t, "out/inundation.tif", req.OutputPath)
	assert.Equal(t, domain.QuantityLevel, req.Quantity)
	assert.Equal(t, domain.Domain2D, req.Domain)
	assert.Equal(t, time.Date(2021, 7, 14, 0, 0, 0, 0, time.UTC), req.Window.Start)
	assert.Equal(t, time.Date(2021, 7, 16, 12, 0, 0, 0, time.UTC), req.Window.End)
	assert.True(t, req.Filter)
	assert.True(t, req.Extrapolate)
	assert.Equal(t, 0.25, req.ExtrapolationFactor)
	assert.Equal(t, "catchments.shp", req.BoundingAreaPath)
	assert.Equal(t, 28992, req.DefaultEPSG)
}

func TestJobRequestDefaultsFactor(t *testing.T) {
	job := Job{Results: "r.nc", Output: "o.tif", DTM: "d.tif"}
	req, err := job.Request(&Config{ExtrapolationFactor: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.5, req.ExtrapolationFactor)
	assert.True(t, req.Extrapolate)
	assert.Equal(t, domain.DomainBoth, req.Domain)

	off := false
	job.Extrapolate = &off
	req, err = job.Request(&Config{ExtrapolationFactor: 0.5})
	require.NoError(t, err)
	assert.False(t, req.Extrapolate)

	req, err = Job{Results: "r.nc", Output: "o.tif", DTM: "d.tif"}.Request(&Config{})
	require.NoError(t, err)
	assert.False(t, req.Extrapolate)
}

func TestJobRequestErrors(t *testing.T) {
	base := Job{Results: "r.nc", Output: "o.tif", DTM: "d.tif"}
	cfg := &Config{ExtrapolationFactor: 0.5}

	tests := []struct {
		name   string
		mutate func(*Job)
		want   error
	}{
		{"quantity", func(j *Job) { j.Quantity = "velocity" }, domain.ErrUnknownQuantity},
		{"domain", func(j *Job) { j.Domain = "3D" }, domain.ErrInvalidDomain},
		{"start", func(j *Job) { j.Start = "yesterday" }, domain.ErrInvalidTimeWindow},
		{"reversed window", func(j *Job) { j.Start, j.End = "2021/07/16", "2021/07/14" }, domain.ErrInvalidTimeWindow},
		{"missing output", func(j *Job) { j.Output = "" }, domain.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := base
			tt.mutate(&j)
			_, err := j.Request(cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadJobErrors(t *testing.T) {
	_, err := LoadJob(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = LoadJob(writeJob(t, "results: [unterminated"))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestJobWithin(t *testing.T) {
	root := t.TempDir()
	j := Job{Results: "model/map.nc", DTM: filepath.Join(root, "dtm.tif"), Output: "out/./inundation.tif"}

	got, err := j.Within(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "model", "map.nc"), got.Results)
	assert.Equal(t, filepath.Join(root, "dtm.tif"), got.DTM)
	assert.Equal(t, filepath.Join(root, "out", "inundation.tif"), got.Output)
	assert.Empty(t, got.Areas, "unset paths stay unset")

	for _, escape := range []string{"..", "../x.tif", "a/../../x.tif", filepath.Dir(root)} {
		j := Job{Results: "map.nc", DTM: "dtm.tif", Output: escape}
		_, err := j.Within(root)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest, escape)
	}
}
