package gex

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/optionflow/gexd/internal/deribit"
)

// ErrEmptyResult means every instrument was skipped or unjoinable: zero
// expiration buckets survived. Distinct from a fetch failure.
var ErrEmptyResult = errors.New("no instruments survived processing")

// Source fetches one market snapshot. Implemented by both the HTTP and the
// WebSocket Deribit clients.
type Source interface {
	Fetch(ctx context.Context, currency string) (*deribit.Snapshot, error)
}

// Engine runs one snapshot-to-result computation. Stateless across calls:
// all accumulator state is local to a run, so concurrent runs (two
// currencies at once) never share anything.
type Engine struct {
	source   Source
	enricher *Enricher // optional
	riskFree float64
	topN     int
	now      func() time.Time
	logger   *zap.Logger
}

type Option func(*Engine)

// WithEnricher enables the order-book gamma enrichment pass.
func WithEnricher(e *Enricher) Option {
	return func(eng *Engine) { eng.enricher = e }
}

// WithRiskFreeRate overrides the default risk-free rate of zero.
func WithRiskFreeRate(r float64) Option {
	return func(eng *Engine) { eng.riskFree = r }
}

// WithTopN caps the per-expiration instrument list in the result. Zero
// means unlimited.
func WithTopN(n int) Option {
	return func(eng *Engine) { eng.topN = n }
}

// WithClock overrides the time source. Tests use this to freeze "now".
func WithClock(now func() time.Time) Option {
	return func(eng *Engine) { eng.now = now }
}

func NewEngine(source Source, logger *zap.Logger, opts ...Option) *Engine {
	eng := &Engine{
		source: source,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(eng)
	}
	return eng
}

// Compute fetches a snapshot and produces the aggregate exposure result.
// Fetch failures abort immediately; per-instrument failures are tallied as
// skips and never stop the run. Callers get either a complete result or an
// error, never a partial result.
func (e *Engine) Compute(ctx context.Context, currency string) (*Result, error) {
	runID := uuid.New().String()
	start := e.now()
	logger := e.logger.With(zap.String("runID", runID), zap.String("currency", currency))

	snap, err := e.source.Fetch(ctx, currency)
	if err != nil {
		return nil, err
	}
	logger.Info("snapshot fetched",
		zap.Float64("indexPrice", snap.IndexPrice),
		zap.Int("instruments", len(snap.Instruments)),
		zap.Int("quotes", len(snap.Quotes)),
	)

	records, skipped := e.buildRecords(ctx, snap)
	if err := ctx.Err(); err != nil {
		// Aborted mid-run; never return partial aggregation as complete.
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrEmptyResult
	}

	agg := AggregateRecords(records)
	result := Assemble(snap.IndexPrice, agg, e.topN, len(records), skipped)

	logger.Info("computation complete",
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("expirations", len(result.GammaByExpiration)),
		zap.Duration("duration", e.now().Sub(start)),
	)
	return result, nil
}

// buildRecords joins instruments with quotes, estimates gamma, optionally
// enriches it from venue order books, and converts to exposures. Returns the
// processed records and the skip count.
func (e *Engine) buildRecords(ctx context.Context, snap *deribit.Snapshot) ([]Record, int) {
	quotes := snap.QuotesByInstrument()
	now := e.now()

	type candidate struct {
		record  Record
		gammaOK bool
	}

	candidates := make([]candidate, 0, len(snap.Instruments))
	skipped := 0

	for _, inst := range snap.Instruments {
		quote, ok := quotes[inst.Name]
		if !ok {
			// Unjoinable: no book summary for this instrument.
			skipped++
			continue
		}

		t := YearsToExpiry(now, inst.Expiry)
		gamma, gammaOK := Gamma(snap.IndexPrice, inst.Strike, t, e.riskFree, quote.MarkIV)

		candidates = append(candidates, candidate{
			record: Record{
				Instrument:   inst.Name,
				Strike:       inst.Strike,
				Expiry:       inst.Expiry,
				Class:        inst.Type,
				Gamma:        gamma,
				OpenInterest: quote.OpenInterest,
				MarkIV:       quote.MarkIV,
				MarkPrice:    quote.MarkPrice,
			},
			gammaOK: gammaOK,
		})
	}

	if e.enricher != nil {
		// Venue-reported gamma replaces the estimate where available; the
		// batch layout cannot change which record gets which gamma.
		records := make([]Record, len(candidates))
		okFlags := make([]bool, len(candidates))
		for i, c := range candidates {
			records[i] = c.record
			okFlags[i] = c.gammaOK
		}
		e.enricher.Apply(ctx, records, okFlags)
		for i := range candidates {
			candidates[i].record = records[i]
			candidates[i].gammaOK = okFlags[i]
		}
	}

	out := make([]Record, 0, len(candidates))
	for _, c := range candidates {
		if !c.gammaOK || c.record.OpenInterest <= 0 {
			skipped++
			continue
		}
		r := c.record
		r.Exposure = ContractExposure(r.Gamma, r.OpenInterest)
		r.ExposureUSD = DollarExposure(r.Gamma, snap.IndexPrice, r.OpenInterest)
		out = append(out, r)
	}

	return out, skipped
}
