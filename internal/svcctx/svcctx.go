// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/stitch-works/stitch/internal/blob"
	"github.com/stitch-works/stitch/internal/config"
	"github.com/stitch-works/stitch/internal/connections"
	"github.com/stitch-works/stitch/internal/home"
	"github.com/stitch-works/stitch/internal/ingest"
	"github.com/stitch-works/stitch/internal/reconcile"
	"github.com/stitch-works/stitch/internal/store"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Store       *store.Store
	Blobs       blob.Store
	Reconciler  *reconcile.Service
	Connections *connections.Manager
	Ingester    *ingest.Service
	Weights     *connections.WeightCache
	Settings    config.Store
	Logger      *slog.Logger
	Home        *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the relational store from context.
func StoreFrom(ctx context.Context) *store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// BlobsFrom extracts the blob store from context.
func BlobsFrom(ctx context.Context) blob.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Blobs
	}
	return nil
}

// ReconcilerFrom extracts the reconciliation service from context.
func ReconcilerFrom(ctx context.Context) *reconcile.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.Reconciler
	}
	return nil
}

// ConnectionsFrom extracts the connection detection manager from context.
func ConnectionsFrom(ctx context.Context) *connections.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Connections
	}
	return nil
}

// IngesterFrom extracts the ingest service from context.
func IngesterFrom(ctx context.Context) *ingest.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.Ingester
	}
	return nil
}

// WeightsFrom extracts the engine weight cache from context.
func WeightsFrom(ctx context.Context) *connections.WeightCache {
	if s := ServicesFrom(ctx); s != nil {
		return s.Weights
	}
	return nil
}

// SettingsFrom extracts the settings store from context.
func SettingsFrom(ctx context.Context) config.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Settings
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
