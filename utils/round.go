package utils

import "math"

// Round2 rounds monetary values to 2 decimal places for display.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round5 rounds share quantities to 5 decimal places for display.
func Round5(v float64) float64 {
	return math.Round(v*100000) / 100000
}
