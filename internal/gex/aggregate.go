package gex

import (
	"math"
	"sort"

	"github.com/optionflow/gexd/internal/deribit"
)

const dateLayout = "2006-01-02"

// StrikeTotals is the per-strike call/put view inside one expiration.
type StrikeTotals struct {
	CallExposure    float64 `json:"call_gamma"`
	PutExposure     float64 `json:"put_gamma"`
	CallExposureUSD float64 `json:"call_gamma_usd"`
	PutExposureUSD  float64 `json:"put_gamma_usd"`
	CallOI          float64 `json:"call_oi"`
	PutOI           float64 `json:"put_oi"`
}

// ExpirationBucket groups records sharing a day-truncated (UTC) expiry.
// Totals hold unsigned magnitudes classified by option class, so
// Total == Call + Put in both units once folding completes.
type ExpirationBucket struct {
	Date string

	TotalGamma float64
	CallGamma  float64
	PutGamma   float64

	TotalGammaUSD float64
	CallGammaUSD  float64
	PutGammaUSD   float64

	Records  []Record
	ByStrike map[float64]*StrikeTotals
}

func newExpirationBucket(date string) *ExpirationBucket {
	return &ExpirationBucket{
		Date:     date,
		ByStrike: make(map[float64]*StrikeTotals),
	}
}

func (b *ExpirationBucket) fold(r Record) {
	b.Records = append(b.Records, r)

	st, ok := b.ByStrike[r.Strike]
	if !ok {
		st = &StrikeTotals{}
		b.ByStrike[r.Strike] = st
	}

	if r.Class == deribit.Put {
		b.PutGamma += r.Exposure
		b.PutGammaUSD += r.ExposureUSD
		st.PutExposure += r.Exposure
		st.PutExposureUSD += r.ExposureUSD
		st.PutOI += r.OpenInterest
	} else {
		b.CallGamma += r.Exposure
		b.CallGammaUSD += r.ExposureUSD
		st.CallExposure += r.Exposure
		st.CallExposureUSD += r.ExposureUSD
		st.CallOI += r.OpenInterest
	}
	b.TotalGamma = b.CallGamma + b.PutGamma
	b.TotalGammaUSD = b.CallGammaUSD + b.PutGammaUSD
}

// TopRecords returns up to n records ranked by descending absolute dollar
// exposure; ties keep insertion order.
func (b *ExpirationBucket) TopRecords(n int) []Record {
	ranked := make([]Record, len(b.Records))
	copy(ranked, b.Records)
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].ExposureUSD) > math.Abs(ranked[j].ExposureUSD)
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Aggregate is the folded view of one computation run.
type Aggregate struct {
	Buckets []*ExpirationBucket // ascending date order

	// NetByStrike sums signed dollar exposure (calls +, puts -) across all
	// expirations at each strike.
	NetByStrike map[float64]float64

	FlipLevel         *float64
	MaxExposureStrike *float64
	MaxExposureValue  float64
}

// AggregateRecords folds records into expiration buckets and derives the
// flip level and max-exposure strike. The fold is commutative: record order
// never changes totals or derived levels.
func AggregateRecords(records []Record) *Aggregate {
	byDate := make(map[string]*ExpirationBucket)
	net := make(map[float64]float64)

	for _, r := range records {
		date := r.Expiry.UTC().Format(dateLayout)
		bucket, ok := byDate[date]
		if !ok {
			bucket = newExpirationBucket(date)
			byDate[date] = bucket
		}
		bucket.fold(r)
		net[r.Strike] += r.Signed()
	}

	agg := &Aggregate{
		Buckets:     make([]*ExpirationBucket, 0, len(byDate)),
		NetByStrike: net,
	}
	for _, bucket := range byDate {
		agg.Buckets = append(agg.Buckets, bucket)
	}
	// YYYY-MM-DD sorts lexicographically in calendar order.
	sort.Slice(agg.Buckets, func(i, j int) bool {
		return agg.Buckets[i].Date < agg.Buckets[j].Date
	})

	agg.FlipLevel = flipLevel(net)
	agg.MaxExposureStrike, agg.MaxExposureValue = maxExposure(net)

	return agg
}

func sortedStrikes(net map[float64]float64) []float64 {
	strikes := make([]float64, 0, len(net))
	for k := range net {
		strikes = append(strikes, k)
	}
	sort.Float64s(strikes)
	return strikes
}

// flipLevel scans strikes ascending for the first change of sign in net
// exposure and reports the lower bracketing strike. This is a discrete
// approximation, not a price-interpolated crossing. nil when the sign never
// changes across the observed range.
func flipLevel(net map[float64]float64) *float64 {
	strikes := sortedStrikes(net)

	prevSign := 0
	prevStrike := 0.0
	for _, strike := range strikes {
		sign := 0
		switch v := net[strike]; {
		case v > 0:
			sign = 1
		case v < 0:
			sign = -1
		}
		if sign == 0 {
			continue
		}
		if prevSign != 0 && sign != prevSign {
			flip := prevStrike
			return &flip
		}
		prevSign = sign
		prevStrike = strike
	}
	return nil
}

// maxExposure finds the strike with the largest absolute net signed
// exposure; ascending scan with a strict comparison keeps the lowest strike
// on ties. The returned value keeps its sign.
func maxExposure(net map[float64]float64) (*float64, float64) {
	var (
		maxStrike *float64
		maxValue  float64
	)
	for _, strike := range sortedStrikes(net) {
		v := net[strike]
		if maxStrike == nil || math.Abs(v) > math.Abs(maxValue) {
			s := strike
			maxStrike = &s
			maxValue = v
		}
	}
	return maxStrike, maxValue
}
