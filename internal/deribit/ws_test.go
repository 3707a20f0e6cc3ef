package deribit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// newRPCServer runs a JSON-RPC websocket endpoint whose handler maps a
// method name to a result payload.
func newRPCServer(t *testing.T, results map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var writeMu sync.Mutex
		for {
			var req wsRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}

			resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
			if result, ok := results[req.Method]; ok {
				resp["result"] = result
			} else {
				resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
			}

			// Answer concurrently with a small delay so interleaved
			// responses exercise the correlation table.
			go func() {
				time.Sleep(5 * time.Millisecond)
				writeMu.Lock()
				defer writeMu.Unlock()
				if err := conn.WriteJSON(resp); err != nil {
					return
				}
			}()
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSClient_Fetch(t *testing.T) {
	server := newRPCServer(t, map[string]any{
		"public/get_index_price": map[string]any{"index_price": 61000.0},
		"public/get_instruments": []map[string]any{
			{
				"instrument_name":      "BTC-27JUN25-60000-C",
				"strike":               60000.0,
				"expiration_timestamp": 1751011200000,
				"option_type":          "call",
			},
		},
		"public/get_book_summary_by_currency": []map[string]any{
			{
				"instrument_name": "BTC-27JUN25-60000-C",
				"mark_price":      0.04,
				"mark_iv":         55.0,
				"open_interest":   80.0,
			},
		},
	})
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client, err := DialWS(context.Background(), wsURL(server), 5*time.Second, 0, logger)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	snap, err := client.Fetch(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snap.IndexPrice != 61000 {
		t.Errorf("expected index price 61000, got %v", snap.IndexPrice)
	}
	if len(snap.Instruments) != 1 || snap.Instruments[0].Strike != 60000 {
		t.Errorf("unexpected instruments: %+v", snap.Instruments)
	}
	if len(snap.Quotes) != 1 || snap.Quotes[0].MarkIV != 0.55 {
		t.Errorf("mark IV not normalized: %+v", snap.Quotes)
	}
}

func TestWSClient_CorrelatesConcurrentCalls(t *testing.T) {
	server := newRPCServer(t, map[string]any{
		"public/get_index_price": map[string]any{"index_price": 61000.0},
		"public/get_order_book": map[string]any{
			"instrument_name": "BTC-27JUN25-60000-C",
			"greeks":          map[string]any{"gamma": 0.00003},
		},
	})
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client, err := DialWS(context.Background(), wsURL(server), 5*time.Second, 0, logger)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			book, err := client.OrderBook(context.Background(), "BTC-27JUN25-60000-C")
			if err != nil {
				errs <- err
				return
			}
			if book.Greeks == nil || book.Greeks.Gamma != 0.00003 {
				errs <- &APIError{Message: "wrong payload routed to call"}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent call failed: %v", err)
	}
}

func TestWSClient_APIError(t *testing.T) {
	server := newRPCServer(t, map[string]any{})
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client, err := DialWS(context.Background(), wsURL(server), 5*time.Second, 3, logger)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	_, err = client.OrderBook(context.Background(), "whatever")
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
}

func TestWSClient_CloseFailsPendingCalls(t *testing.T) {
	// A server that never answers.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()
	client, err := DialWS(context.Background(), wsURL(server), 5*time.Second, 0, logger)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := client.OrderBook(context.Background(), "x")
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	_ = client.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected pending call to fail after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending call did not return after close")
	}
}
