package gex

import (
	"math"
	"time"
)

const daysPerYear = 365 // Actual/365 year fraction

// Gamma computes Black-Scholes gamma for one contract, continuous
// compounding, no dividend yield:
//
//	d1    = (ln(spot/strike) + (r + sigma^2/2)*T) / (sigma*sqrt(T))
//	gamma = phi(d1) / (spot * sigma * sqrt(T))
//
// ok is false when any input makes the result undefined (non-positive spot,
// strike, time, or volatility, or NaN inputs) or when the arithmetic
// overflows to a non-finite value. Never panics.
func Gamma(spot, strike, yearsToExpiry, riskFreeRate, volatility float64) (gamma float64, ok bool) {
	if !(spot > 0) || !(strike > 0) || !(yearsToExpiry > 0) || !(volatility > 0) {
		return 0, false
	}
	if math.IsNaN(riskFreeRate) || math.IsInf(riskFreeRate, 0) {
		return 0, false
	}

	sqrtT := math.Sqrt(yearsToExpiry)
	d1 := (math.Log(spot/strike) + (riskFreeRate+0.5*volatility*volatility)*yearsToExpiry) / (volatility * sqrtT)
	phi := math.Exp(-d1*d1/2) / math.Sqrt(2*math.Pi)

	gamma = phi / (spot * volatility * sqrtT)
	if math.IsNaN(gamma) || math.IsInf(gamma, 0) {
		return 0, false
	}
	return gamma, true
}

// YearsToExpiry returns the Actual/365 year fraction from now to expiry.
// Non-positive for already-expired instruments.
func YearsToExpiry(now, expiry time.Time) float64 {
	return expiry.Sub(now).Hours() / 24 / daysPerYear
}
