package gex

import (
	"time"

	"github.com/optionflow/gexd/internal/deribit"
)

// Record is the derived per-instrument exposure figure. Created once per
// computation run; never mutated after the fold begins.
type Record struct {
	Instrument   string
	Strike       float64
	Expiry       time.Time
	Class        deribit.OptionType
	Gamma        float64
	OpenInterest float64
	MarkIV       float64
	MarkPrice    float64

	// Exposure magnitudes; classification by Class, not sign.
	Exposure    float64 // contract units: gamma * OI
	ExposureUSD float64 // dollar units, 1%-of-spot convention
}

// Signed returns the net signed dollar exposure: calls positive, puts
// negative. Only this figure feeds flip-level and max-strike detection;
// bucket totals use the unsigned magnitudes.
func (r Record) Signed() float64 {
	if r.Class == deribit.Put {
		return -r.ExposureUSD
	}
	return r.ExposureUSD
}

// DollarExposure converts a gamma value and open interest into the dollar
// GEX figure: OI, scaled by gamma, a 100-contract multiplier, spot, and a
// 1%-of-spot price move. Approximates dealer hedge flow per 1% move in the
// underlying.
func DollarExposure(gamma, spot, openInterest float64) float64 {
	return openInterest * gamma * 100 * spot * (0.01 * spot)
}

// ContractExposure is the exposure in units of underlying: one contract is
// one unit.
func ContractExposure(gamma, openInterest float64) float64 {
	return gamma * openInterest
}
