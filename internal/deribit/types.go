package deribit

import (
	"strings"
	"time"
)

// OptionType is the option class reported by the venue.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// Instrument is one active option contract. Immutable once fetched.
type Instrument struct {
	Name   string
	Strike float64
	Expiry time.Time
	Type   OptionType
}

// Quote holds the normalized book summary for one instrument.
// MarkIV is a decimal fraction (0.65 for 65%), not the percent the venue reports.
type Quote struct {
	Instrument   string
	MarkPrice    float64
	MarkIV       float64
	OpenInterest float64
	Volume       float64
	BidPrice     float64
	AskPrice     float64
}

// Snapshot is one point-in-time view of a currency's option chain.
type Snapshot struct {
	Currency    string       `json:"currency"`
	IndexPrice  float64      `json:"index_price"`
	Instruments []Instrument `json:"instruments"`
	Quotes      []Quote      `json:"quotes"`
	FetchedAt   time.Time    `json:"fetched_at"`
}

// QuotesByInstrument indexes the snapshot's quotes by instrument name.
func (s *Snapshot) QuotesByInstrument() map[string]Quote {
	m := make(map[string]Quote, len(s.Quotes))
	for _, q := range s.Quotes {
		m[q.Instrument] = q
	}
	return m
}

// OrderBook carries the venue-computed greeks for one instrument.
type OrderBook struct {
	InstrumentName string  `json:"instrument_name"`
	MarkPrice      float64 `json:"mark_price"`
	Greeks         *Greeks `json:"greeks"`
}

// Greeks as reported by the venue order book endpoint.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
}

// Raw upstream payload shapes. Normalization into Instrument/Quote happens
// here, once, so nothing downstream branches on payload shape.

type rawIndexPrice struct {
	IndexPrice float64 `json:"index_price"`
}

type rawInstrument struct {
	InstrumentName      string  `json:"instrument_name"`
	Strike              float64 `json:"strike"`
	ExpirationTimestamp int64   `json:"expiration_timestamp"` // milliseconds
	OptionType          string  `json:"option_type"`
}

func (r rawInstrument) normalize() Instrument {
	return Instrument{
		Name:   r.InstrumentName,
		Strike: r.Strike,
		Expiry: time.UnixMilli(r.ExpirationTimestamp).UTC(),
		Type:   OptionType(strings.ToLower(r.OptionType)),
	}
}

type rawBookSummary struct {
	InstrumentName string   `json:"instrument_name"`
	MarkPrice      *float64 `json:"mark_price"`
	MarkIV         *float64 `json:"mark_iv"` // percent, e.g. 65.0
	OpenInterest   *float64 `json:"open_interest"`
	Volume         *float64 `json:"volume"`
	Volume24h      *float64 `json:"volume_24h"`
	VolumeUSD      *float64 `json:"volume_usd"`
	BidPrice       *float64 `json:"bid_price"`
	AskPrice       *float64 `json:"ask_price"`
}

func (r rawBookSummary) normalize() Quote {
	return Quote{
		Instrument:   r.InstrumentName,
		MarkPrice:    deref(r.MarkPrice),
		MarkIV:       deref(r.MarkIV) / 100,
		OpenInterest: deref(r.OpenInterest),
		Volume:       firstOf(r.Volume, r.Volume24h, r.VolumeUSD),
		BidPrice:     deref(r.BidPrice),
		AskPrice:     deref(r.AskPrice),
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// firstOf returns the first non-nil value; venues move the volume field
// around between API revisions.
func firstOf(vs ...*float64) float64 {
	for _, v := range vs {
		if v != nil {
			return *v
		}
	}
	return 0
}

// IndexName maps a currency to the venue index name (BTC -> btc_usd).
func IndexName(currency string) string {
	return strings.ToLower(currency) + "_usd"
}
