package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/optionflow/gexd/internal/config"
	"github.com/optionflow/gexd/internal/deribit"
	"github.com/optionflow/gexd/internal/gex"
)

func (s *Server) handleGex(w http.ResponseWriter, r *http.Request) {
	currency := strings.ToUpper(chi.URLParam(r, "currency"))

	if !config.IsSupportedCurrency(currency) {
		writeError(w, http.StatusBadRequest, "unsupported currency: "+currency)
		return
	}

	ctx := r.Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	result, err := s.computer.Compute(ctx, currency)
	if err != nil {
		s.logger.Error("computation failed",
			zap.String("currency", currency),
			zap.Error(err),
		)

		var fetchErr *deribit.FetchError
		switch {
		case errors.As(err, &fetchErr):
			writeError(w, http.StatusBadGateway, fetchErr.Error())
		case errors.Is(err, gex.ErrEmptyResult):
			writeError(w, http.StatusNotFound, "no option instruments survived processing for "+currency)
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "computation timed out")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"currencies": config.SupportedCurrencies,
		"count":      len(config.SupportedCurrencies),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
