package deribit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Client fetches market snapshots over the venue's plain HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	retry      RetryPolicy
	logger     *zap.Logger
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *APIError       `json:"error"`
}

func NewClient(baseURL string, ratePerSec int, timeout time.Duration, retryCount int, logger *zap.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:       100,
		MaxConnsPerHost:    10,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		retry: RetryPolicy{
			MaxRetries:     retryCount,
			Backoff:        LinearBackoff(time.Second),
			AttemptTimeout: timeout,
		},
		logger: logger,
	}
}

// Fetch reads the index price, instrument list, and book summaries for a
// currency. The three reads are independent, so they run concurrently; any
// failure aborts the whole snapshot.
func (c *Client) Fetch(ctx context.Context, currency string) (*Snapshot, error) {
	snap := &Snapshot{Currency: currency, FetchedAt: time.Now().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		price, err := c.IndexPrice(gctx, currency)
		if err != nil {
			return err
		}
		snap.IndexPrice = price
		return nil
	})
	g.Go(func() error {
		instruments, err := c.Instruments(gctx, currency)
		if err != nil {
			return err
		}
		snap.Instruments = instruments
		return nil
	})
	g.Go(func() error {
		quotes, err := c.BookSummaries(gctx, currency)
		if err != nil {
			return err
		}
		snap.Quotes = quotes
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// IndexPrice returns the current index price for the currency's USD index.
func (c *Client) IndexPrice(ctx context.Context, currency string) (float64, error) {
	var out rawIndexPrice
	params := url.Values{"index_name": {IndexName(currency)}}
	if err := c.get(ctx, "public/get_index_price", params, &out); err != nil {
		return 0, &FetchError{Op: "index price", Err: err}
	}
	if out.IndexPrice <= 0 {
		return 0, &FetchError{Op: "index price", Err: fmt.Errorf("non-positive index price %v", out.IndexPrice)}
	}
	return out.IndexPrice, nil
}

// Instruments returns all active option instruments for the currency.
func (c *Client) Instruments(ctx context.Context, currency string) ([]Instrument, error) {
	var out []rawInstrument
	params := url.Values{
		"currency": {currency},
		"kind":     {"option"},
		"expired":  {"false"},
	}
	if err := c.get(ctx, "public/get_instruments", params, &out); err != nil {
		return nil, &FetchError{Op: "instruments", Err: err}
	}

	instruments := make([]Instrument, 0, len(out))
	for _, r := range out {
		instruments = append(instruments, r.normalize())
	}
	return instruments, nil
}

// BookSummaries returns normalized quotes for every option on the currency.
func (c *Client) BookSummaries(ctx context.Context, currency string) ([]Quote, error) {
	var out []rawBookSummary
	params := url.Values{
		"currency": {currency},
		"kind":     {"option"},
	}
	if err := c.get(ctx, "public/get_book_summary_by_currency", params, &out); err != nil {
		return nil, &FetchError{Op: "book summaries", Err: err}
	}

	quotes := make([]Quote, 0, len(out))
	for _, r := range out {
		quotes = append(quotes, r.normalize())
	}
	return quotes, nil
}

// OrderBook returns the order book for one instrument, including the
// venue-computed greeks when present. Used by the enrichment pass.
func (c *Client) OrderBook(ctx context.Context, instrument string) (*OrderBook, error) {
	var out OrderBook
	params := url.Values{"instrument_name": {instrument}}
	if err := c.get(ctx, "public/get_order_book", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, method string, params url.Values, out any) error {
	requestURL := fmt.Sprintf("%s/%s?%s", c.baseURL, method, params.Encode())
	c.logger.Debug("requesting", zap.String("url", requestURL))

	return c.retry.Do(ctx, c.logger, method, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return ErrRateLimited
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error: %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return Permanent(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body)))
		}

		var envelope rpcEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return Permanent(fmt.Errorf("decoding response: %w", err))
		}
		if envelope.Error != nil {
			return Permanent(envelope.Error)
		}

		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return Permanent(fmt.Errorf("decoding result: %w", err))
		}
		return nil
	})
}
