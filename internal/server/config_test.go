package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, "demo", cfg.GPS.Type)
	assert.Equal(t, "metric", cfg.Display.Units)
	assert.Equal(t, "topdown", cfg.Display.Perspective)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.False(t, cfg.Display.Imperial())
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
gps:
  type: nmea
  port_path: /dev/ttyUSB0
  baud_rate: 115200
display:
  units: imperial
  perspective: follow
server:
  listen_addr: ":9000"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg := LoadConfig(path)
	assert.Equal(t, "nmea", cfg.GPS.Type)
	assert.Equal(t, "/dev/ttyUSB0", cfg.GPS.PortPath)
	assert.Equal(t, 115200, cfg.GPS.BaudRate)
	assert.True(t, cfg.Display.Imperial())
	assert.Equal(t, "follow", cfg.Display.Perspective)
	assert.Equal(t, ":9000", cfg.Server.ListenAddr)

	// Unspecified sections keep their defaults.
	assert.Equal(t, "/var/log/speedo", cfg.Logging.Path)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("GPS_TYPE", "nmea")
	t.Setenv("GPS_PORT", "/dev/serial0")
	t.Setenv("GPS_BAUD", "38400")
	t.Setenv("UNITS", "imperial")
	t.Setenv("PERSPECTIVE", "follow")
	t.Setenv("LISTEN_ADDR", ":7777")

	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, "nmea", cfg.GPS.Type)
	assert.Equal(t, "/dev/serial0", cfg.GPS.PortPath)
	assert.Equal(t, 38400, cfg.GPS.BaudRate)
	assert.Equal(t, "imperial", cfg.Display.Units)
	assert.Equal(t, "follow", cfg.Display.Perspective)
	assert.Equal(t, ":7777", cfg.Server.ListenAddr)
}

func TestUpdateFromJSONDeepMerge(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.GPS.PortPath = "/dev/ttyGPS0"

	err := cfg.UpdateFromJSON([]byte(`{"display":{"units":"imperial"}}`))
	require.NoError(t, err)

	// Patched field applied, siblings and other sections preserved.
	assert.Equal(t, "imperial", cfg.Display.Units)
	assert.Equal(t, "topdown", cfg.Display.Perspective)
	assert.Equal(t, "/dev/ttyGPS0", cfg.GPS.PortPath)
}

func TestDisplayPrefs(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.UpdateFromJSON([]byte(`{"display":{"units":"imperial"}}`)))

	d := cfg.DisplayPrefs()
	assert.Equal(t, "imperial", d.Units)
	assert.Equal(t, "topdown", d.Perspective)

	// The returned value is a copy, not a view into the config.
	d.Units = "metric"
	assert.Equal(t, "imperial", cfg.DisplayPrefs().Units)
}

func TestDisplayPrefsConcurrentWithUpdates(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			units := `{"display":{"units":"imperial"}}`
			if i%2 == 0 {
				units = `{"display":{"units":"metric"}}`
			}
			_ = cfg.UpdateFromJSON([]byte(units))
		}
	}()

	for i := 0; i < 200; i++ {
		d := cfg.DisplayPrefs()
		assert.Contains(t, []string{"metric", "imperial"}, d.Units)
	}
	<-done
}

func TestUpdateFromJSONRejectsGarbage(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Error(t, cfg.UpdateFromJSON([]byte(`not json`)))
}

func TestConfigSaveRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.path = path
	cfg.Display.Units = "imperial"
	require.NoError(t, cfg.Save())

	loaded := LoadConfig(path)
	assert.Equal(t, "imperial", loaded.Display.Units)
}
