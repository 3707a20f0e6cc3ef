package gex

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/optionflow/gexd/internal/deribit"
)

// OrderBookSource fetches one instrument's order book. Implemented by the
// Deribit clients; mocked in tests.
type OrderBookSource interface {
	OrderBook(ctx context.Context, instrument string) (*deribit.OrderBook, error)
}

// Enricher substitutes the venue-reported gamma for the Black-Scholes
// estimate by fetching order books in bounded batches, so a full chain never
// floods the upstream.
type Enricher struct {
	source    OrderBookSource
	batchSize int
	logger    *zap.Logger
}

func NewEnricher(source OrderBookSource, batchSize int, logger *zap.Logger) *Enricher {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Enricher{
		source:    source,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Apply fetches order books for all records with at most batchSize requests
// in flight. Each worker writes only its own index, so batch boundaries
// cannot affect the outcome; a failed or absent order book leaves the
// estimate untouched.
func (e *Enricher) Apply(ctx context.Context, records []Record, gammaOK []bool) {
	jobs := make(chan int, len(records))

	var wg sync.WaitGroup
	for w := 0; w < e.batchSize; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				e.enrichOne(ctx, &records[i], &gammaOK[i])
			}
		}()
	}

	for i := range records {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func (e *Enricher) enrichOne(ctx context.Context, r *Record, ok *bool) {
	book, err := e.source.OrderBook(ctx, r.Instrument)
	if err != nil {
		e.logger.Debug("order book unavailable",
			zap.String("instrument", r.Instrument),
			zap.Error(err),
		)
		return
	}
	if book.Greeks == nil {
		return
	}

	gamma := book.Greeks.Gamma
	if math.IsNaN(gamma) || math.IsInf(gamma, 0) || gamma == 0 {
		return
	}
	r.Gamma = gamma
	*ok = true
}
