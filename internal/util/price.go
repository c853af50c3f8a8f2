// Package util provides common utility functions for price calculations.
package util

import "math"

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.01, 1.2345 becomes 1.23.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// RoundPrice rounds a dollar price to 2 decimal places, the precision at
// which every resolved price is reported.
func RoundPrice(x float64) float64 {
	return RoundToTick(x, 0.01)
}
