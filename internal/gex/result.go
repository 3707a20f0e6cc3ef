package gex

import (
	"math"
	"sort"
	"strconv"
)

// InstrumentRow is the externally visible per-instrument entry.
type InstrumentRow struct {
	InstrumentName   string  `json:"instrument_name"`
	Strike           float64 `json:"strike"`
	OptionType       string  `json:"option_type"`
	Gamma            float64 `json:"gamma"`
	OpenInterest     float64 `json:"open_interest"`
	GammaExposure    float64 `json:"gamma_exposure"`
	GammaExposureUSD float64 `json:"gamma_exposure_usd"`
	MarkIV           float64 `json:"mark_iv"`
	MarkPrice        float64 `json:"mark_price"`
}

// ExpirationSummary is one date's bucket in the result.
type ExpirationSummary struct {
	TotalGamma    float64                 `json:"total_gamma"`
	TotalGammaUSD float64                 `json:"total_gamma_usd"`
	CallGamma     float64                 `json:"call_gamma"`
	CallGammaUSD  float64                 `json:"call_gamma_usd"`
	PutGamma      float64                 `json:"put_gamma"`
	PutGammaUSD   float64                 `json:"put_gamma_usd"`
	Instruments   []InstrumentRow         `json:"instruments"`
	Strikes       map[string]StrikeTotals `json:"strikes"`
}

// Result is the complete output of one computation run.
type Result struct {
	IndexPrice        float64                      `json:"index_price"`
	GammaByExpiration map[string]ExpirationSummary `json:"gamma_by_expiration"`
	GEXFlipLevel      *float64                     `json:"gex_flip_level"`
	MaxGEXStrike      *float64                     `json:"max_gex_strike"`
	MaxGEXValue       float64                      `json:"max_gex_value"`
	Processed         int                          `json:"processed"`
	Skipped           int                          `json:"skipped"`
}

// Dates returns the bucket dates in ascending calendar order.
func (r *Result) Dates() []string {
	dates := make([]string, 0, len(r.GammaByExpiration))
	for d := range r.GammaByExpiration {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// Assemble projects the aggregate into the externally visible shape. Pure
// projection: gamma is rounded to 8 decimals for display stability without
// touching the aggregated values.
func Assemble(indexPrice float64, agg *Aggregate, topN, processed, skipped int) *Result {
	result := &Result{
		IndexPrice:        indexPrice,
		GammaByExpiration: make(map[string]ExpirationSummary, len(agg.Buckets)),
		GEXFlipLevel:      agg.FlipLevel,
		MaxGEXStrike:      agg.MaxExposureStrike,
		MaxGEXValue:       agg.MaxExposureValue,
		Processed:         processed,
		Skipped:           skipped,
	}

	for _, bucket := range agg.Buckets {
		top := bucket.TopRecords(topN)
		rows := make([]InstrumentRow, 0, len(top))
		for _, r := range top {
			rows = append(rows, InstrumentRow{
				InstrumentName:   r.Instrument,
				Strike:           r.Strike,
				OptionType:       string(r.Class),
				Gamma:            round8(r.Gamma),
				OpenInterest:     r.OpenInterest,
				GammaExposure:    r.Exposure,
				GammaExposureUSD: r.ExposureUSD,
				MarkIV:           r.MarkIV,
				MarkPrice:        r.MarkPrice,
			})
		}

		strikes := make(map[string]StrikeTotals, len(bucket.ByStrike))
		for strike, totals := range bucket.ByStrike {
			strikes[strconv.FormatFloat(strike, 'f', -1, 64)] = *totals
		}

		result.GammaByExpiration[bucket.Date] = ExpirationSummary{
			TotalGamma:    bucket.TotalGamma,
			TotalGammaUSD: bucket.TotalGammaUSD,
			CallGamma:     bucket.CallGamma,
			CallGammaUSD:  bucket.CallGammaUSD,
			PutGamma:      bucket.PutGamma,
			PutGammaUSD:   bucket.PutGammaUSD,
			Instruments:   rows,
			Strikes:       strikes,
		}
	}

	return result
}

func round8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
