package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"shrinktrack/internal/audit"
	"shrinktrack/internal/auth"
	"shrinktrack/internal/catalog"
	"shrinktrack/internal/directory"
	"shrinktrack/internal/ledger"
	"shrinktrack/internal/platform/config"
	"shrinktrack/internal/platform/httpserver"
	"shrinktrack/internal/platform/logger"
	"shrinktrack/internal/platform/metrics"
	"shrinktrack/internal/rollup"
	httptransport "shrinktrack/internal/transport/http"
	"shrinktrack/internal/vocab"
	"shrinktrack/pkg/platform/tx"
)

func main() {
	log := logger.New()
	cfg := config.FromEnv()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		runner          tx.Runner
		vocabStore      vocab.Store
		principalStore  directory.Store
		catalogStore    catalog.Store
		factStore       ledger.Store
		auditStore      audit.Store
		catalogLookup   ledger.CatalogLookup
		rollupPublisher rollup.Publisher
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("failed to reach database", "error", err)
			os.Exit(1)
		}

		runner = tx.NewSQLRunner(db)
		vocabStore = vocab.NewPostgres(db)
		principalStore = directory.NewPostgres(db)
		pgCatalog := catalog.NewPostgres(db)
		catalogStore = pgCatalog
		catalogLookup = pgCatalog
		factStore = ledger.NewPostgres(db)
		auditStore = audit.NewPostgres(db)
		rollupPublisher = rollup.NewPostgresPublisher(db)
		log.Info("using postgresql stores")
	} else {
		runner = tx.NewMemoryRunner()
		vocabStore = vocab.NewInMemory()
		principalStore = directory.NewInMemory()
		memCatalog := catalog.NewInMemory()
		catalogStore = memCatalog
		catalogLookup = memCatalog
		factStore = ledger.NewInMemory(memCatalog)
		auditStore = audit.NewInMemoryStore()
		log.Info("using in-memory stores (dev mode)")
	}

	if err := vocab.Seed(ctx, vocabStore); err != nil {
		log.Error("failed to seed vocabulary", "error", err)
		os.Exit(1)
	}

	recorder := audit.NewRecorder(auditStore, m)
	directorySvc := directory.NewService(principalStore, vocabStore, recorder, runner)
	catalogSvc := catalog.NewService(catalogStore, vocabStore, recorder, runner)
	ledgerSvc := ledger.NewService(factStore, catalogLookup, vocabStore, recorder, runner, m)
	vocabSvc := vocab.NewService(vocabStore, recorder, runner)
	rollupSvc := rollup.NewService(factStore, catalogLookup, rollupPublisher, m)
	auditSvc := audit.NewService(auditStore)

	authenticator := auth.NewAuthenticator(cfg.JWTSigningKey)
	handler := httptransport.NewHandler(log, authenticator, directorySvc, catalogSvc, ledgerSvc, vocabSvc, rollupSvc, auditSvc)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	if cfg.RollupRefreshInterval > 0 {
		go runScheduledRefresh(ctx, log, rollupSvc, cfg.RollupRefreshInterval)
	}

	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
}

// runScheduledRefresh recomputes all rollups on a fixed interval as the
// internal system principal.
func runScheduledRefresh(ctx context.Context, log *slog.Logger, svc *rollup.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := svc.RefreshAsSystem(ctx, nil)
			if err != nil {
				log.Error("scheduled rollup refresh failed", "error", err)
				continue
			}
			log.Info("scheduled rollup refresh complete",
				"store_days", result.StoreDays,
				"category_rows", result.CategoryRows,
			)
		}
	}
}
