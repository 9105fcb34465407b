package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/evidence-vault/internal/config"
	"github.com/kirillkom/evidence-vault/internal/core/ports"
	"github.com/kirillkom/evidence-vault/internal/core/usecase"
	"github.com/kirillkom/evidence-vault/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/evidence-vault/internal/infrastructure/extractor"
	"github.com/kirillkom/evidence-vault/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/evidence-vault/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/evidence-vault/internal/infrastructure/queue/nats"
	"github.com/kirillkom/evidence-vault/internal/infrastructure/repository/cache"
	"github.com/kirillkom/evidence-vault/internal/infrastructure/repository/jsonfile"
	"github.com/kirillkom/evidence-vault/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/evidence-vault/internal/infrastructure/repository/sqlite"
	"github.com/kirillkom/evidence-vault/internal/infrastructure/resilience"
	"github.com/kirillkom/evidence-vault/internal/infrastructure/vaultapi"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Repo  ports.EvidenceRepository
	Queue *nats.Queue

	UploadUC    *usecase.UploadUseCase
	ReconcileUC *usecase.ReconcileUseCase
	QueryUC     *usecase.QueryUseCase
	EvidenceUC  *usecase.EvidenceUseCase
	VaultUC     *usecase.VaultUseCase
	Exporter    *xlsx.Exporter

	closers []func()
}

type Options struct {
	// RequireQueue fails startup when NATS_URL is unset (worker).
	RequireQueue bool
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	snapshots, err := app.openSnapshotStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	repo, err := cache.NewCache(ctx, snapshots, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("load evidence cache: %w", err)
	}
	app.Repo = repo

	executor := resilience.NewExecutor(resilienceConfig(cfg))
	client := vaultapi.New(cfg.VaultAPIURL, vaultapi.Options{
		APIKeyEnv:     cfg.VaultAPIKeyEnv,
		Model:         cfg.ClassifyModel,
		Timeout:       cfg.VaultAPITimeout,
		UploadTimeout: cfg.VaultUploadTimeout,
		Executor:      executor,
	})
	objects := vaultapi.NewObjectStore(client)

	var events ports.EventPublisher
	if cfg.NATSURL != "" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			HandlerConcurrency: cfg.WorkerConcurrency,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closers = append(app.closers, queue.Close)
		events = queue
	} else if opts.RequireQueue {
		app.Close()
		return nil, fmt.Errorf("NATS_URL is required")
	}

	fallback := extractor.NewChain(
		pdftext.NewExtractor(cfg.PDFMaxBytes),
		plaintext.NewExtractor(),
	)
	reconcileUC := usecase.NewReconcileUseCase(
		repo,
		objects,
		vaultapi.NewOCR(client),
		vaultapi.NewClassifier(client),
		fallback,
		usecase.ReconcileConfig{
			OCRPoll:               resilience.PollPolicy{Interval: cfg.OCRPollInterval, MaxAttempts: cfg.OCRPollAttempts},
			SettlePoll:            resilience.PollPolicy{Interval: cfg.ClassifyRetryInterval, MaxAttempts: cfg.ClassifyRetryAttempts},
			ExtractedTextMaxChars: cfg.ExtractedTextMaxChars,
		},
		logger,
	)
	syncUC := usecase.NewSyncUseCase(repo, objects, logger)
	searchUC := usecase.NewSearchUseCase(repo, vaultapi.NewSearchIndex(client), logger)

	app.UploadUC = usecase.NewUploadUseCase(repo, objects, events, logger)
	app.ReconcileUC = reconcileUC
	app.QueryUC = usecase.NewQueryUseCase(repo, syncUC, searchUC, logger)
	app.EvidenceUC = usecase.NewEvidenceUseCase(repo, objects, reconcileUC, logger)
	app.VaultUC = usecase.NewVaultUseCase(objects)
	app.Exporter = xlsx.NewExporter()

	logger.Info("bootstrap_complete",
		"evidence_store", cfg.EvidenceStore,
		"vault_api_url", cfg.VaultAPIURL,
		"events_enabled", events != nil,
	)
	return app, nil
}

func (a *App) openSnapshotStore(ctx context.Context) (ports.SnapshotStore, error) {
	cfg := a.Config
	switch cfg.EvidenceStore {
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure sqlite schema: %w", err)
		}
		return store, nil
	case config.StorePostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		store := postgres.NewEvidenceStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, nil
	default:
		store, err := jsonfile.New(cfg.EvidenceCachePath)
		if err != nil {
			return nil, fmt.Errorf("init evidence file: %w", err)
		}
		return store, nil
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.RetryMaxAttempts,
		RetryInitialBackoff:     cfg.RetryInitialBackoff,
		RetryMaxBackoff:         cfg.RetryMaxBackoff,
		RetryMultiplier:         cfg.RetryMultiplier,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	}
}

// ReconcileTimeout bounds one worker event: the full settle budget plus slack
// for the final classification call.
func (a *App) ReconcileTimeout() time.Duration {
	budget := time.Duration(max(a.Config.ClassifyRetryAttempts, 1)) * a.Config.ClassifyRetryInterval
	return budget + 2*time.Minute
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
