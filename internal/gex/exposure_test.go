package gex

import (
	"math"
	"testing"

	"github.com/optionflow/gexd/internal/deribit"
)

func TestDollarExposure(t *testing.T) {
	// OI * gamma * 100 * spot * (0.01 * spot)
	got := DollarExposure(0.00002, 50000, 10)
	want := 10 * 0.00002 * 100 * 50000.0 * 500.0
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestContractExposure(t *testing.T) {
	if got := ContractExposure(0.00002, 10); got != 0.0002 {
		t.Errorf("expected 0.0002, got %v", got)
	}
}

func TestRecordSigned(t *testing.T) {
	call := Record{Class: deribit.Call, ExposureUSD: 1000}
	if call.Signed() != 1000 {
		t.Errorf("call exposure must be positive, got %v", call.Signed())
	}

	put := Record{Class: deribit.Put, ExposureUSD: 1000}
	if put.Signed() != -1000 {
		t.Errorf("put exposure must be negative, got %v", put.Signed())
	}
}
