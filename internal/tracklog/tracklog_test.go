package tracklog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlammers/speedo/internal/gps"
	"github.com/dlammers/speedo/internal/motion"
)

func TestRecordWritesRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := New(Config{Enabled: true, Path: dir, Interval: 100})
	defer l.Close()

	reading := &gps.Reading{
		Fix: motion.Fix{
			Latitude:  43.6532,
			Longitude: -79.3832,
			SpeedMPS:  12.5,
			AccuracyM: 4.0,
		},
		Valid:      true,
		Satellites: 9,
		HDOP:       0.8,
	}
	snap := motion.Snapshot{
		SpeedMPS:       12.5,
		SpeedValid:     true,
		TotalDistanceM: 250.0,
		HeadingDeg:     90.0,
		HeadingSet:     true,
	}
	l.Record(reading, snap)
	l.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "trip_")

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2) // header + one record
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "1", rows[1][1])      // gps_valid
	assert.Equal(t, "12.50", rows[1][8])  // speed_mps
	assert.Equal(t, "250.0", rows[1][10]) // distance_m
	assert.Equal(t, "90.0", rows[1][11])  // heading_deg
}

func TestRecordIntervalGate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := New(Config{Enabled: true, Path: dir, Interval: 60_000})
	defer l.Close()

	snap := motion.Snapshot{}
	l.Record(nil, snap)
	l.Record(nil, snap) // inside the interval, dropped
	l.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 2) // header + one record only
}

func TestDisabledLoggerWritesNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := New(Config{Enabled: false, Path: dir})
	l.Record(nil, motion.Snapshot{})
	l.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
