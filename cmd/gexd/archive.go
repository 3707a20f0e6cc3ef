package main

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/optionflow/gexd/internal/deribit"
	"github.com/optionflow/gexd/internal/gex"
	"github.com/optionflow/gexd/internal/snapshot"
)

// archivingSource wraps a market data source and persists every fetched
// snapshot. Archive failures are logged, never fatal: the computation is the
// product, the archive is a byproduct.
type archivingSource struct {
	inner  gex.Source
	store  *snapshot.Store
	logger *zap.Logger
}

func (a *archivingSource) Fetch(ctx context.Context, currency string) (*deribit.Snapshot, error) {
	snap, err := a.inner.Fetch(ctx, currency)
	if err != nil {
		return nil, err
	}

	path, err := a.store.Write(snap, uuid.New().String())
	if err != nil {
		a.logger.Warn("snapshot archive failed", zap.Error(err))
	} else {
		a.logger.Debug("snapshot archived", zap.String("path", path))
	}

	return snap, nil
}
