package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/nexcred/backoffice/internal/batch"
	"github.com/nexcred/backoffice/internal/gateway"
	"github.com/nexcred/backoffice/internal/report"
	"github.com/nexcred/backoffice/internal/store"
	"github.com/nexcred/backoffice/internal/webhook"
	"github.com/nexcred/backoffice/pkg/c6bank"
	"github.com/nexcred/backoffice/pkg/facta"
	"github.com/nexcred/backoffice/pkg/v8"
)

// appEnv bundles the long-lived collaborators the commands share.
type appEnv struct {
	Store     store.Store
	Registry  *gateway.Registry
	Runner    *batch.Runner
	Receiver  *webhook.Receiver
	Assembler *report.Assembler
}

func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	registry := gateway.NewRegistry(
		gateway.NewV8(v8.NewClient(v8.WithBaseURL(cfg.V8.BaseURL))),
		gateway.NewFacta(facta.NewClient(facta.WithBaseURL(cfg.Facta.BaseURL))),
		gateway.NewC6(c6bank.NewClient(c6bank.WithBaseURL(cfg.C6.BaseURL))),
	)

	runner := batch.NewRunner(st, registry, batch.Options{
		RequestsPerSecond: cfg.Batch.RequestsPerSecond,
		MaxIdentifiers:    cfg.Batch.MaxIdentifiers,
	})

	return &appEnv{
		Store:     st,
		Registry:  registry,
		Runner:    runner,
		Receiver:  webhook.NewReceiver(st),
		Assembler: report.NewAssembler(st, report.WithSheetName(cfg.Report.SheetName)),
	}, nil
}

// Close drains in-flight batch runs before releasing the store.
func (e *appEnv) Close() {
	e.Runner.Wait()
	e.Store.Close() //nolint:errcheck
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "backoffice.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
