// Package app assembles the engine and its collaborators from config. Both
// binaries share it.
package app

import (
	"context"
	"fmt"
	"strings"

	"supplyrecon/internal/audit"
	"supplyrecon/internal/catalog"
	"supplyrecon/internal/config"
	"supplyrecon/internal/extract"
	"supplyrecon/internal/listener"
	"supplyrecon/internal/logx"
	"supplyrecon/internal/pos"
	"supplyrecon/internal/resolver"
	"supplyrecon/internal/session"
	"supplyrecon/internal/storage"
	"supplyrecon/internal/store"
	"supplyrecon/internal/store/redisstore"
	"supplyrecon/internal/totals"
)

type App struct {
	Cfg       config.Config
	DB        *storage.DB
	POS       *pos.Client
	Directory *catalog.Directory
	Extractor *extract.Extractor
	Engine    *session.Engine

	closers []func() error
}

// Open builds everything. The sqlite database is always opened since mail
// intake and the import audit live there regardless of the store backend.
func Open(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a := &App{Cfg: cfg, DB: db, closers: []func() error{db.Close}}

	synonyms, ledger, err := a.stores()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	sessions, err := a.sessions(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.POS, err = pos.NewClient(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Directory = catalog.NewDirectory(a.POS, cfg.DirectoryTTL)

	policy, err := totals.NewPolicy(cfg.RoundingMode, cfg.RoundingDigits, cfg.TolerancePercent, cfg.ToleranceAbsolute)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	auditDir := ""
	if cfg.WriteAuditJSON {
		auditDir = cfg.DataDir
	}

	a.Engine = session.NewEngine(session.Deps{
		Directory: a.Directory,
		Backend:   a.POS,
		Synonyms:  synonyms,
		Ledger:    ledger,
		Sessions:  sessions,
		Audit:     audit.NewSink(db, auditDir),
	}, session.Options{
		Resolver:        resolver.New(cfg.SupplierThreshold, cfg.ProductThreshold),
		Policy:          policy,
		SuggestionLimit: cfg.SuggestionLimit,
		SessionTTL:      cfg.SessionTTL,
	})
	a.Extractor = extract.New(extract.Options{
		DefaultCurrency: cfg.DefaultCurrency,
		UnitConversions: cfg.UnitConversions,
	})
	return a, nil
}

func (a *App) stores() (store.SynonymStore, store.Ledger, error) {
	switch backend := strings.ToLower(strings.TrimSpace(a.Cfg.StoreBackend)); backend {
	case "", "sqlite":
		return a.DB, a.DB, nil
	case "file":
		return store.OpenFileSynonyms(a.Cfg.SynonymsPath()), store.OpenFileLedger(a.Cfg.ProcessedPath()), nil
	case "memory":
		return store.NewMemorySynonyms(), store.NewMemoryLedger(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported STORE_BACKEND: %s", backend)
	}
}

func (a *App) sessions(ctx context.Context) (store.SessionStore, error) {
	switch backend := strings.ToLower(strings.TrimSpace(a.Cfg.SessionBackend)); backend {
	case "", "sqlite":
		return a.DB.Sessions(), nil
	case "redis":
		rdb, err := redisstore.Config{
			URL:          a.Cfg.RedisURL,
			ReadTimeout:  a.Cfg.RedisReadTimeout,
			WriteTimeout: a.Cfg.RedisWriteTimeout,
			DialTimeout:  a.Cfg.RedisDialTimeout,
		}.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		return redisstore.NewSessions(rdb), nil
	case "memory":
		return store.NewMemorySessions(), nil
	default:
		return nil, fmt.Errorf("unsupported SESSION_BACKEND: %s", backend)
	}
}

// Processor opens one resolution session per fetched invoice email.
func (a *App) Processor() *listener.Processor {
	return listener.NewProcessor(a.DB, a.Extractor, a.Engine)
}

func (a *App) Listener() *listener.Service {
	return listener.NewService(a.DB, a.Cfg, a.Processor())
}

func (a *App) CatalogSync() *catalog.SyncService {
	return catalog.NewSyncService(a.Directory, a.DB)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	if first != nil {
		logx.Warn().Err(first).Msg("close app")
	}
	return first
}
