package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/simcal/pkg/simdate"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 52, cfg.Calendar.HorizonWeeks)
	assert.Equal(t, 1, cfg.Calendar.GetSearchStep())
	assert.Equal(t, "file", cfg.Store.Type)
	assert.Equal(t, "calendar", cfg.Store.Key)
	assert.Equal(t, 100, cfg.Commands.MaxPerTick)
	assert.Equal(t, 50*time.Millisecond, cfg.Commands.GetBudget())
	assert.Equal(t, time.Second, cfg.Simulation.GetTickInterval())
	assert.Equal(t, simdate.MustNew(1, 1, 1, 1), cfg.Simulation.GetStart())
	assert.Equal(t, time.Duration(0), cfg.Store.GetTTL())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "simcal.yaml", `
calendar:
  horizon_weeks: 8
  search_step_ticks: 4
simulation:
  start: Y3-W10-D2@09:00
  tick_interval: 250ms
  ticks_per_step: 4
store:
  type: redis
  key: league
  redis:
    addr: localhost:6379
    db: 2
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Calendar.HorizonWeeks)
	assert.Equal(t, 4, cfg.Calendar.GetSearchStep())
	assert.Equal(t, simdate.MustNew(3, 10, 2, 37), cfg.Simulation.GetStart())
	assert.Equal(t, 250*time.Millisecond, cfg.Simulation.GetTickInterval())
	assert.Equal(t, "redis", cfg.Store.Type)
	assert.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 2, cfg.Store.Redis.DB)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "./data", cfg.Store.Dir, "defaults fill missing keys")
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "simcal.toml", `
[calendar]
horizon_weeks = 26

[store]
format = "yaml"
dir = "/tmp/simcal"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 26, cfg.Calendar.HorizonWeeks)
	assert.Equal(t, "yaml", cfg.Store.Format)
	assert.Equal(t, "/tmp/simcal", cfg.Store.Dir)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SIMCAL_CALENDAR_HORIZON_WEEKS", "12")
	t.Setenv("SIMCAL_STORE_KEY", "from-env")

	cfg, err := Load(writeFile(t, "simcal.yaml", "calendar:\n  horizon_weeks: 8\n"))
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Calendar.HorizonWeeks)
	assert.Equal(t, "from-env", cfg.Store.Key)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"horizon too small", "calendar:\n  horizon_weeks: 0\n"},
		{"unknown store", "store:\n  type: s3\n"},
		{"redis without addr", "store:\n  type: redis\n"},
		{"fallback without addr", "store:\n  type: fallback\n"},
		{"bad start", "simulation:\n  start: tomorrow\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"step too large", "calendar:\n  search_step_ticks: 200\n"},
		{"bad cron", "store:\n  snapshot_cron: every tuesday\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "simcal.yaml", tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "explicit path must exist")
}

func TestDurationFallbacks(t *testing.T) {
	sim := SimulationConfig{TickInterval: "soon"}
	assert.Equal(t, time.Second, sim.GetTickInterval())

	cmds := CommandsConfig{Budget: "-5ms"}
	assert.Equal(t, 50*time.Millisecond, cmds.GetBudget())

	st := StoreConfig{TTL: "2h"}
	assert.Equal(t, 2*time.Hour, st.GetTTL())

	bad := SimulationConfig{Start: "nope"}
	assert.Equal(t, simdate.MustNew(1, 1, 1, 1), bad.GetStart())
}
