package tracklog

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dlammers/speedo/internal/gps"
	"github.com/dlammers/speedo/internal/motion"
)

// Logger records timestamped raw fixes plus filtered motion snapshots to CSV
// files with automatic rotation. One session id per process run keeps files
// from different trips apart.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool
	session  string

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
}

// Config holds trip logger configuration.
type Config struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Path     string `yaml:"path" json:"path"`
	Interval int    `yaml:"interval_ms" json:"intervalMs"` // ms between log entries
}

const (
	maxRowsPerFile = 100_000 // Rotate after 100k rows (~2.7 hrs at 10 Hz)
)

var csvHeader = []string{
	"timestamp", "gps_valid", "lat", "lon",
	"raw_speed_mps", "accuracy_m", "sats", "hdop",
	"speed_mps", "speed_valid", "distance_m", "heading_deg", "heading_set",
}

// New creates a new Logger.
func New(cfg Config) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/speedo"
	}
	interval := time.Duration(cfg.Interval) * time.Millisecond
	if interval < 50*time.Millisecond {
		interval = 100 * time.Millisecond // Default 10 Hz
	}
	return &Logger{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
		session:  uuid.NewString()[:8],
	}
}

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Record writes a fix + snapshot row if the minimum interval has elapsed.
func (l *Logger) Record(r *gps.Reading, snap motion.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	now := time.Now()
	if now.Sub(l.lastTs) < l.interval {
		return
	}
	l.lastTs = now

	// Open/rotate file if needed
	if l.writer == nil || l.rows >= maxRowsPerFile {
		if err := l.rotateFile(now); err != nil {
			log.Printf("[tracklog] rotate failed: %v", err)
			return
		}
	}

	row := buildRow(now, r, snap)
	if err := l.writer.Write(row); err != nil {
		log.Printf("[tracklog] write failed: %v", err)
		return
	}
	l.writer.Flush()
	l.rows++
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("trip_%s_%s.csv", now.Format("2006-01-02_150405"), l.session)
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	// Write header
	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	log.Printf("[tracklog] opened %s", path)
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func buildRow(ts time.Time, r *gps.Reading, snap motion.Snapshot) []string {
	row := make([]string, len(csvHeader))

	row[0] = ts.Format(time.RFC3339Nano)

	if r != nil {
		row[1] = boolStr(r.Valid)
		row[2] = fmt.Sprintf("%.6f", r.Fix.Latitude)
		row[3] = fmt.Sprintf("%.6f", r.Fix.Longitude)
		row[4] = fmt.Sprintf("%.2f", r.Fix.SpeedMPS)
		row[5] = fmt.Sprintf("%.1f", r.Fix.AccuracyM)
		row[6] = fmt.Sprintf("%d", r.Satellites)
		row[7] = fmt.Sprintf("%.1f", r.HDOP)
	}

	row[8] = fmt.Sprintf("%.2f", snap.SpeedMPS)
	row[9] = boolStr(snap.SpeedValid)
	row[10] = fmt.Sprintf("%.1f", snap.TotalDistanceM)
	row[11] = fmt.Sprintf("%.1f", snap.HeadingDeg)
	row[12] = boolStr(snap.HeadingSet)

	return row
}

func boolStr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
