package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitConversions(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 36.0, KPH(10), 1e-9)
	assert.InDelta(t, 22.37, MPH(10), 0.001)
	assert.InDelta(t, 1.5, Kilometers(1500), 1e-9)
	assert.InDelta(t, 1.0, Miles(1609.34), 1e-9)
}
