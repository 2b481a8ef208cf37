package gps

import "github.com/dlammers/speedo/internal/motion"

// Provider is the interface for GPS data sources.
type Provider interface {
	Name() string
	Connect() error
	Close() error
	// Read returns the latest reading. May block briefly.
	Read() (*Reading, error)
}

// Reading is the latest state reported by a receiver: the raw fix the motion
// filter consumes, plus receiver metadata and an optional compass heading.
type Reading struct {
	Fix        motion.Fix `json:"fix"`
	Valid      bool       `json:"valid"`      // Receiver reports an active fix
	CompassDeg float64    `json:"compassDeg"` // True heading from HDT
	CompassAcc float64    `json:"compassAcc"` // Degrees, < 0 = no compass heading
	Satellites int        `json:"satellites"` // Sats in use
	HDOP       float64    `json:"hdop"`       // Horizontal dilution
}

// sentinelFix is a fix carrying only the "unknown/invalid" sign conventions.
func sentinelFix() motion.Fix {
	return motion.Fix{SpeedMPS: -1, AccuracyM: -1}
}
