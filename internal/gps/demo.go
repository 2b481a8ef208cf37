package gps

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Demo generates simulated GPS readings for testing the dashboard without a
// receiver.
type Demo struct {
	mu sync.Mutex
	t  float64
}

// NewDemo creates a simulated GPS driving in a circle.
func NewDemo() *Demo { return &Demo{} }

func (d *Demo) Name() string   { return "Demo GPS (Simulated)" }
func (d *Demo) Connect() error { return nil }
func (d *Demo) Close() error   { return nil }

func (d *Demo) Read() (*Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.t += 0.1

	// Simulate driving in a circle around a point
	centerLat := 43.6532 // Toronto
	centerLon := -79.3832
	radius := 0.005 // ~500m

	fix := sentinelFix()
	fix.Latitude = centerLat + radius*math.Sin(d.t*0.1)
	fix.Longitude = centerLon + radius*math.Cos(d.t*0.1)
	fix.SpeedMPS = 14 + 8*math.Sin(d.t*0.3) + rand.Float64()*1.5
	fix.AccuracyM = 3 + rand.Float64()*2
	fix.Timestamp = time.Now().UTC()

	return &Reading{
		Fix:        fix,
		Valid:      true,
		CompassAcc: -1, // movement-derived heading only
		Satellites: 12,
		HDOP:       0.8,
	}, nil
}
