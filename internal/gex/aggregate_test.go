package gex

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/optionflow/gexd/internal/deribit"
)

func makeRecord(name string, strike float64, expiry time.Time, class deribit.OptionType, exposure, exposureUSD float64) Record {
	return Record{
		Instrument:   name,
		Strike:       strike,
		Expiry:       expiry,
		Class:        class,
		OpenInterest: 1,
		Exposure:     exposure,
		ExposureUSD:  exposureUSD,
	}
}

func TestAggregate_SumLaw(t *testing.T) {
	june := time.Date(2025, 6, 27, 8, 0, 0, 0, time.UTC)
	july := time.Date(2025, 7, 25, 8, 0, 0, 0, time.UTC)

	records := []Record{
		makeRecord("BTC-27JUN25-50000-C", 50000, june, deribit.Call, 0.001, 1000),
		makeRecord("BTC-27JUN25-50000-P", 50000, june, deribit.Put, 0.002, 2000),
		makeRecord("BTC-27JUN25-55000-C", 55000, june, deribit.Call, 0.003, 3000),
		makeRecord("BTC-25JUL25-60000-P", 60000, july, deribit.Put, 0.004, 4000),
	}

	agg := AggregateRecords(records)

	if len(agg.Buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(agg.Buckets))
	}

	for _, b := range agg.Buckets {
		if math.Abs(b.TotalGamma-(b.CallGamma+b.PutGamma)) > 0 {
			t.Errorf("bucket %s: total_gamma %v != call %v + put %v", b.Date, b.TotalGamma, b.CallGamma, b.PutGamma)
		}
		if math.Abs(b.TotalGammaUSD-(b.CallGammaUSD+b.PutGammaUSD)) > 0 {
			t.Errorf("bucket %s: total_gamma_usd %v != call %v + put %v", b.Date, b.TotalGammaUSD, b.CallGammaUSD, b.PutGammaUSD)
		}
	}

	// Buckets come out in ascending date order.
	if agg.Buckets[0].Date != "2025-06-27" || agg.Buckets[1].Date != "2025-07-25" {
		t.Errorf("unexpected bucket order: %s, %s", agg.Buckets[0].Date, agg.Buckets[1].Date)
	}
}

func TestAggregate_DayTruncation(t *testing.T) {
	// Same calendar day, different times of day: one bucket.
	morning := time.Date(2025, 6, 27, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2025, 6, 27, 20, 0, 0, 0, time.UTC)

	agg := AggregateRecords([]Record{
		makeRecord("a", 50000, morning, deribit.Call, 0.001, 1000),
		makeRecord("b", 50000, evening, deribit.Call, 0.001, 1000),
	})

	if len(agg.Buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(agg.Buckets))
	}
	if len(agg.Buckets[0].Records) != 2 {
		t.Errorf("expected 2 records in bucket, got %d", len(agg.Buckets[0].Records))
	}
}

func TestAggregate_FlipLevel(t *testing.T) {
	expiry := time.Date(2025, 6, 27, 8, 0, 0, 0, time.UTC)

	t.Run("positive then negative flips at lower strike", func(t *testing.T) {
		// 48000 call +X, 52000 put -Y, X < Y: flip at 48000.
		agg := AggregateRecords([]Record{
			makeRecord("c", 48000, expiry, deribit.Call, 0.001, 1000),
			makeRecord("p", 52000, expiry, deribit.Put, 0.003, 3000),
		})
		if agg.FlipLevel == nil {
			t.Fatal("expected a flip level")
		}
		if *agg.FlipLevel != 48000 {
			t.Errorf("expected flip at 48000, got %v", *agg.FlipLevel)
		}
	})

	t.Run("no sign change means no flip", func(t *testing.T) {
		agg := AggregateRecords([]Record{
			makeRecord("c1", 48000, expiry, deribit.Call, 0.001, 1000),
			makeRecord("c2", 52000, expiry, deribit.Call, 0.001, 1500),
		})
		if agg.FlipLevel != nil {
			t.Errorf("expected no flip level, got %v", *agg.FlipLevel)
		}
	})

	t.Run("zero net strikes are skipped", func(t *testing.T) {
		// 50000 nets to zero; the crossing is still 48000 -> 52000,
		// reported at the lower strike.
		agg := AggregateRecords([]Record{
			makeRecord("c1", 48000, expiry, deribit.Call, 0.001, 1000),
			makeRecord("c2", 50000, expiry, deribit.Call, 0.001, 2000),
			makeRecord("p2", 50000, expiry, deribit.Put, 0.001, 2000),
			makeRecord("p1", 52000, expiry, deribit.Put, 0.001, 3000),
		})
		if agg.FlipLevel == nil {
			t.Fatal("expected a flip level")
		}
		if *agg.FlipLevel != 48000 {
			t.Errorf("expected flip at 48000, got %v", *agg.FlipLevel)
		}
	})

	t.Run("net sums across expirations", func(t *testing.T) {
		later := expiry.AddDate(0, 1, 0)
		// Put at 48000 in a later expiration outweighs the call there.
		agg := AggregateRecords([]Record{
			makeRecord("c", 48000, expiry, deribit.Call, 0.001, 1000),
			makeRecord("p", 48000, later, deribit.Put, 0.003, 3000),
			makeRecord("c2", 52000, later, deribit.Call, 0.001, 500),
		})
		if agg.FlipLevel == nil {
			t.Fatal("expected a flip level")
		}
		if *agg.FlipLevel != 48000 {
			t.Errorf("expected flip at 48000, got %v", *agg.FlipLevel)
		}
	})
}

func TestAggregate_MaxExposure(t *testing.T) {
	expiry := time.Date(2025, 6, 27, 8, 0, 0, 0, time.UTC)

	agg := AggregateRecords([]Record{
		makeRecord("c", 48000, expiry, deribit.Call, 0.001, 1000),
		makeRecord("p", 52000, expiry, deribit.Put, 0.003, 3000),
		makeRecord("c2", 56000, expiry, deribit.Call, 0.002, 2000),
	})

	if agg.MaxExposureStrike == nil {
		t.Fatal("expected a max exposure strike")
	}
	if *agg.MaxExposureStrike != 52000 {
		t.Errorf("expected max strike 52000, got %v", *agg.MaxExposureStrike)
	}
	// The value keeps its sign.
	if agg.MaxExposureValue != -3000 {
		t.Errorf("expected max value -3000, got %v", agg.MaxExposureValue)
	}

	// |max| >= |net| at every strike.
	for strike, net := range agg.NetByStrike {
		if math.Abs(net) > math.Abs(agg.MaxExposureValue) {
			t.Errorf("strike %v net %v exceeds max %v", strike, net, agg.MaxExposureValue)
		}
	}
}

func TestAggregate_MaxExposureTieLowestStrike(t *testing.T) {
	expiry := time.Date(2025, 6, 27, 8, 0, 0, 0, time.UTC)

	agg := AggregateRecords([]Record{
		makeRecord("c", 48000, expiry, deribit.Call, 0.001, 2000),
		makeRecord("p", 52000, expiry, deribit.Put, 0.001, 2000),
	})

	if agg.MaxExposureStrike == nil {
		t.Fatal("expected a max exposure strike")
	}
	if *agg.MaxExposureStrike != 48000 {
		t.Errorf("tie must pick the lowest strike, got %v", *agg.MaxExposureStrike)
	}
	if agg.MaxExposureValue != 2000 {
		t.Errorf("expected max value 2000, got %v", agg.MaxExposureValue)
	}
}

func TestAggregate_OrderIndependence(t *testing.T) {
	expiry1 := time.Date(2025, 6, 27, 8, 0, 0, 0, time.UTC)
	expiry2 := time.Date(2025, 7, 25, 8, 0, 0, 0, time.UTC)

	var records []Record
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		class := deribit.Call
		if i%2 == 1 {
			class = deribit.Put
		}
		expiry := expiry1
		if i%3 == 0 {
			expiry = expiry2
		}
		strike := 40000 + float64(i%20)*1000
		usd := rng.Float64() * 10000
		records = append(records, makeRecord("r", strike, expiry, class, usd/1e6, usd))
	}

	first := AggregateRecords(records)

	shuffled := make([]Record, len(records))
	copy(shuffled, records)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	second := AggregateRecords(shuffled)

	if len(first.Buckets) != len(second.Buckets) {
		t.Fatalf("bucket counts differ: %d vs %d", len(first.Buckets), len(second.Buckets))
	}
	for i := range first.Buckets {
		a, b := first.Buckets[i], second.Buckets[i]
		if a.Date != b.Date {
			t.Errorf("bucket %d date differs: %s vs %s", i, a.Date, b.Date)
		}
		if math.Abs(a.TotalGammaUSD-b.TotalGammaUSD) > 1e-6 {
			t.Errorf("bucket %s total differs: %v vs %v", a.Date, a.TotalGammaUSD, b.TotalGammaUSD)
		}
	}

	if (first.FlipLevel == nil) != (second.FlipLevel == nil) {
		t.Fatal("flip level presence differs between orderings")
	}
	if first.FlipLevel != nil && *first.FlipLevel != *second.FlipLevel {
		t.Errorf("flip level differs: %v vs %v", *first.FlipLevel, *second.FlipLevel)
	}
	if *first.MaxExposureStrike != *second.MaxExposureStrike {
		t.Errorf("max strike differs: %v vs %v", *first.MaxExposureStrike, *second.MaxExposureStrike)
	}
}

func TestTopRecords(t *testing.T) {
	expiry := time.Date(2025, 6, 27, 8, 0, 0, 0, time.UTC)

	records := []Record{
		makeRecord("small", 48000, expiry, deribit.Call, 0.001, 100),
		makeRecord("big", 50000, expiry, deribit.Put, 0.001, 9000),
		makeRecord("tie-a", 52000, expiry, deribit.Call, 0.001, 500),
		makeRecord("tie-b", 54000, expiry, deribit.Call, 0.001, 500),
	}

	agg := AggregateRecords(records)
	bucket := agg.Buckets[0]

	top := bucket.TopRecords(3)
	if len(top) != 3 {
		t.Fatalf("expected 3 records, got %d", len(top))
	}
	if top[0].Instrument != "big" {
		t.Errorf("expected 'big' first, got %s", top[0].Instrument)
	}
	// Ties keep insertion order.
	if top[1].Instrument != "tie-a" || top[2].Instrument != "tie-b" {
		t.Errorf("tie order broken: %s, %s", top[1].Instrument, top[2].Instrument)
	}

	// n = 0 means unlimited.
	if got := len(bucket.TopRecords(0)); got != 4 {
		t.Errorf("expected all 4 records, got %d", got)
	}
}
