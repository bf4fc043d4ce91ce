package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gudangku/backend/internal/cache"
	"gudangku/backend/internal/clock"
	"gudangku/backend/internal/config"
	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/httpapi"
	"gudangku/backend/internal/report"
	"gudangku/backend/internal/service"
	"gudangku/backend/internal/store"
	csvstore "gudangku/backend/internal/store/csv"
	"gudangku/backend/internal/store/memory"
	pgstore "gudangku/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	case cfg.DataDir != "":
		fs, err := csvstore.Open(cfg.DataDir)
		if err != nil {
			log.Fatalf("cannot open data dir %s: %v", cfg.DataDir, err)
		}
		repo = fs
		log.Printf("repository: csv files in %s", cfg.DataDir)
	default:
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	ensureAdminUser(ctx, repo)

	cacheStore := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			cacheStore = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	clk := clock.New(repo, parseStartDate(cfg.SimStartDate))
	if reset, err := clk.ResetIfNewRun(ctx, time.Now()); err != nil {
		log.Fatalf("clock reset check failed: %v", err)
	} else if reset {
		log.Println("new run day detected, simulation reset to start date")
	}

	reporter := report.NewEngine(cacheStore, time.Duration(cfg.ReportTTLSeconds)*time.Second)
	svc := service.New(repo, clk, reporter)
	if _, err := svc.ReconcileInventory(ctx); err != nil {
		log.Fatalf("startup inventory reconcile failed: %v", err)
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("inventory backend listening on %s", cfg.Address())
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

// parseStartDate reads an optional YYYY-MM-DD override for the
// simulation start date; a zero time falls back to the clock default.
func parseStartDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	parsed, err := domain.ParseDate(raw)
	if err != nil {
		log.Printf("ignoring invalid SIM_START_DATE %q: %v", raw, err)
		return time.Time{}
	}
	return parsed
}

// ensureAdminUser provisions an admin account on stores that start out
// empty (csv, fresh postgres) so the API is reachable on first boot.
func ensureAdminUser(ctx context.Context, repo store.Repository) {
	users, err := repo.ListUsers(ctx)
	if err != nil {
		log.Printf("cannot list users: %v", err)
		return
	}
	if len(users) > 0 {
		return
	}

	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		password = "admin123"
		log.Println("WARNING: seeding admin with default credentials; set SEED_ADMIN_PASSWORD")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("cannot hash admin password: %v", err)
		return
	}
	if err := repo.CreateUser(ctx, domain.UserAccount{
		Username:  "admin",
		Password:  string(hash),
		Role:      domain.RoleAdmin,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		log.Printf("cannot seed admin user: %v", err)
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
