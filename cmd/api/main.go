package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vacenf.org/internal/cep"
	"vacenf.org/internal/config"
	"vacenf.org/internal/draft"
	"vacenf.org/internal/httpapi"
	"vacenf.org/internal/obs"
	"vacenf.org/internal/registry"
	"vacenf.org/internal/store/pg"
	"vacenf.org/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg := config.Load()
	if cfg.AuthSecret == "" {
		log.Fatal("VACENF_AUTH_SECRET must be set")
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Registry backend: Postgres when a DSN is configured, otherwise the
	// seeded in-memory store for local development.
	var (
		reg   registry.Service
		probe httpapi.ReadyProbe
	)
	if cfg.DatabaseDSN != "" {
		store, err := pg.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		reg = store
		probe = httpapi.ReadyProbe{DB: store.DB()}
	} else {
		mem := registry.NewInMemory()
		if err := registry.SeedDemo(context.Background(), mem); err != nil {
			log.Fatalf("seed demo data: %v", err)
		}
		reg = mem
		log.Printf("no VACENF_PG_DSN set, using in-memory registry with demo data")
	}

	drafts := draft.NewStore(30 * time.Minute)
	defer drafts.Close()

	api := httpapi.New(
		probe,
		reg,
		stream.New(),
		drafts,
		cep.NewClient(cfg.CEPBaseURL, cfg.RequestTimeout),
		httpapi.Config{
			Version:       version,
			TokenTTL:      cfg.TokenTTL,
			CookieMaxAge:  cfg.CookieMaxAge,
			RateBurst:     cfg.RateBurst,
			RatePerSecond: cfg.RatePerSecond,
		},
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// SSE subscribers hold the response open; no write deadline.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting vacenf-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
