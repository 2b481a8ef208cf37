package motion

import (
	"math"
	"sync"
	"time"
)

// Fix is one raw GPS position sample. The sign conventions follow the
// receiver: SpeedMPS < 0 means the receiver could not determine speed,
// AccuracyM < 0 means the fix position itself is untrustworthy.
type Fix struct {
	Latitude  float64   `json:"latitude"`  // Decimal degrees
	Longitude float64   `json:"longitude"` // Decimal degrees
	Timestamp time.Time `json:"timestamp"`
	SpeedMPS  float64   `json:"speedMps"`  // Meters/second, < 0 = unknown
	AccuracyM float64   `json:"accuracyM"` // Horizontal accuracy in meters, < 0 = invalid
}

const (
	// Accrual band: deltas at or below the floor are GPS jitter, deltas at
	// or above the ceiling are teleport artifacts (stale/cold fixes).
	// Neither counts as real movement.
	minAccrualM = 5.0
	maxAccrualM = 100.0

	// Bearing is numerically unstable on legs shorter than this.
	minHeadingLegM = 10.0

	// The course must swing past this before it replaces the current
	// heading. Keeps the readout from flickering on lateral GPS noise.
	headingSnapDeg = 45.0
)

// Filter turns a stream of noisy GPS fixes into a stable speed reading, a
// monotonically accumulating trip distance, and a smoothed heading.
//
// Accept expects serialized delivery: one producer, one fix at a time, in
// arrival order. Reset and compass updates may arrive from other goroutines
// (HTTP handlers), hence the mutex.
type Filter struct {
	mu         sync.Mutex
	last       *Fix
	distanceM  float64
	headingDeg float64
	headingSet bool
	speedMPS   float64
	speedValid bool
}

// Snapshot is a value copy of the filter outputs, safe to hand to the
// broadcast and logging paths.
type Snapshot struct {
	SpeedMPS       float64 `json:"speedMps"`
	SpeedValid     bool    `json:"speedValid"`
	TotalDistanceM float64 `json:"totalDistanceM"`
	HeadingDeg     float64 `json:"headingDeg"`
	HeadingSet     bool    `json:"headingSet"`
}

// New creates an empty filter: no previous fix, zero distance, no heading,
// no speed reading.
func New() *Filter {
	return &Filter{}
}

// Accept folds one fix into the filter state.
//
// A fix with negative accuracy only clears the current speed; it is not
// stored as the comparison point for the next leg, since its position is as
// untrustworthy as its metadata. Every other fix becomes the new comparison
// point even when the accrual or heading rules reject it.
func (f *Filter) Accept(fix Fix) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if fix.AccuracyM < 0 {
		f.speedValid = false
		return
	}

	if f.last != nil {
		d := HaversineMeters(f.last.Latitude, f.last.Longitude, fix.Latitude, fix.Longitude)

		if d > minAccrualM && d < maxAccrualM {
			f.distanceM += d
		}

		if d > minHeadingLegM {
			course := BearingDeg(f.last.Latitude, f.last.Longitude, fix.Latitude, fix.Longitude)
			if !f.headingSet || angularDiff(course, f.headingDeg) > headingSnapDeg {
				f.headingDeg = course
				f.headingSet = true
			}
		}
	}

	if fix.SpeedMPS >= 0 {
		f.speedMPS = fix.SpeedMPS
		f.speedValid = true
	} else {
		f.speedValid = false
	}

	cp := fix
	f.last = &cp
}

// SetCompassHeading overrides the movement-derived heading with a compass
// reading. Ignored when the reported accuracy is negative (no reliable
// compass); movement-derived bearing stays the fallback.
func (f *Filter) SetCompassHeading(deg, accuracy float64) {
	if accuracy < 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headingDeg = normalizeDeg(deg)
	f.headingSet = true
}

// MarkSpeedUnavailable clears the current speed reading without touching
// distance or heading. Used when the fix stream reports an error.
func (f *Filter) MarkSpeedUnavailable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speedValid = false
}

// ResetDistance zeroes the trip accumulator. Heading, speed and the stored
// comparison fix keep their values.
func (f *Filter) ResetDistance() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.distanceM = 0
}

// SetTotalDistance seeds the accumulator, e.g. when restoring a persisted
// odometer at startup. Negative values are clamped to zero.
func (f *Filter) SetTotalDistance(m float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.distanceM = math.Max(0, m)
}

// Speed returns the current speed in m/s. ok is false when there is no
// valid reading; a stationary 0 is a valid reading.
func (f *Filter) Speed() (mps float64, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.speedValid {
		return 0, false
	}
	return f.speedMPS, true
}

// TotalDistance returns the accumulated trip distance in meters.
func (f *Filter) TotalDistance() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.distanceM
}

// Heading returns the smoothed heading in [0, 360). ok is false until any
// movement or compass reading has established one.
func (f *Filter) Heading() (deg float64, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headingDeg, f.headingSet
}

// Snapshot returns a value copy of the filter outputs.
func (f *Filter) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{
		SpeedMPS:       f.speedMPS,
		SpeedValid:     f.speedValid,
		TotalDistanceM: f.distanceM,
		HeadingDeg:     f.headingDeg,
		HeadingSet:     f.headingSet,
	}
}

// angularDiff returns the minimal angular difference between two headings,
// in [0, 180].
func angularDiff(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// normalizeDeg wraps a heading into [0, 360).
func normalizeDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}
