package motion

// Display unit conversions. The metric/imperial choice is a display
// preference owned by the settings layer, never filter state.

const (
	kphPerMPS     = 3.6
	mphPerMPS     = 2.237
	metersPerKM   = 1000.0
	metersPerMile = 1609.34
)

// KPH converts meters/second to kilometers/hour.
func KPH(mps float64) float64 { return mps * kphPerMPS }

// MPH converts meters/second to miles/hour.
func MPH(mps float64) float64 { return mps * mphPerMPS }

// Kilometers converts meters to kilometers.
func Kilometers(m float64) float64 { return m / metersPerKM }

// Miles converts meters to statute miles.
func Miles(m float64) float64 { return m / metersPerMile }
