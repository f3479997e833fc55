package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilaydakx/pos-system/internal/backup"
	"github.com/ilaydakx/pos-system/internal/cache"
	"github.com/ilaydakx/pos-system/internal/config"
	"github.com/ilaydakx/pos-system/internal/httpapi"
	"github.com/ilaydakx/pos-system/internal/service"
	"github.com/ilaydakx/pos-system/internal/store"
	"github.com/ilaydakx/pos-system/internal/store/memory"
	pgstore "github.com/ilaydakx/pos-system/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	// Disk snapshots only make sense for the in-memory store; Postgres
	// deployments back themselves up.
	if cfg.BackupDir != "" {
		if source, ok := repo.(backup.Source); ok {
			runner := backup.NewRunner(source, cfg.BackupDir, time.Duration(cfg.BackupIntervalMinutes)*time.Minute)
			if err := runner.Start(ctx); err != nil {
				log.Fatalf("backup runner: %v", err)
			}
			closers = append(closers, func() error {
				runner.Close()
				return nil
			})
			log.Printf("backup: %s every %dm", cfg.BackupDir, cfg.BackupIntervalMinutes)
		} else {
			log.Println("backup: skipped (repository manages its own durability)")
		}
	}

	reports := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			reports = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("report cache: redis")
		}
	} else {
		log.Println("report cache: noop")
	}

	svc := service.New(repo, reports, cfg.DefaultLocation, time.Duration(cfg.ReportCacheTTLSeconds)*time.Second)
	api := httpapi.New(svc, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}
