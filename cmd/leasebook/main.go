package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leasebook/internal/attention"
	"leasebook/internal/auth"
	"leasebook/internal/blob"
	"leasebook/internal/cache"
	"leasebook/internal/config"
	"leasebook/internal/db"
	httpx "leasebook/internal/http"
	"leasebook/internal/jobs"
	"leasebook/internal/lease"
	"leasebook/internal/logger"
	"leasebook/internal/metrics"
	"leasebook/internal/payment"
	"leasebook/internal/review"
	"leasebook/internal/sweep"
	"leasebook/internal/tenantaccess"
	"leasebook/internal/thread"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "leasebook"}).Error(context.Background(), "config.load_failed", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		ServiceName: "leasebook",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gdb, err := db.Open(cfg.DB)
	if err != nil {
		fatal(ctx, log, "db.open_failed", err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		fatal(ctx, log, "db.migrate_failed", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	leases := &lease.Service{DB: gdb}
	payments := &payment.Log{DB: gdb, Rent: leases}
	attn := &attention.Service{
		Leases:        leases,
		Payments:      payments,
		Log:           log,
		VisibleMonths: cfg.Review.VisibleMonths,
	}
	if cfg.Redis.URL != "" {
		c, err := cache.New(ctx, cfg.Redis)
		if err != nil {
			// Counts are recomputed on every read without it.
			log.Error(ctx, "cache.connect_failed", err)
		} else {
			defer c.Close()
			attn.Cache = c
		}
	}
	engine := &thread.Engine{
		DB:       gdb,
		Payments: payments,
		Log:      log,
		Metrics:  metrics.NewThreadMetrics(reg),
		OnChange: attn.Invalidate,
	}
	attn.Threads = engine

	blobs := &blob.Store{Root: cfg.Storage.Dir, MaxBytes: cfg.Storage.MaxUploadBytes}
	jobsRepo := &jobs.Repo{DB: gdb}

	r := httpx.NewRouter(httpx.Deps{
		Config:    cfg,
		DB:        gdb,
		JWT:       auth.NewJWT(cfg.JWT.Secret, cfg.JWT.TTL),
		Log:       log,
		Leases:    leases,
		Payments:  payments,
		Threads:   engine,
		Tokens:    &tenantaccess.Service{DB: gdb},
		Attention: attn,
		Review:    &review.Service{Payments: payments, Threads: engine, Blobs: blobs, Log: log},
		Blobs:     blobs,
		Jobs:      jobsRepo,
		Metrics:   reg,
	})

	if cfg.Worker.Enabled {
		current, err := leases.ListCurrent(ctx)
		if err != nil {
			fatal(ctx, log, "worker.list_leases_failed", err)
		}
		ids := make([]string, 0, len(current))
		for _, l := range current {
			ids = append(ids, l.LeaseGroupID)
		}
		if err := jobsRepo.EnsureScheduled(ctx, ids); err != nil {
			fatal(ctx, log, "worker.schedule_failed", err)
		}

		worker := &jobs.Worker{
			ID:   "worker-" + uuid.NewString()[:8],
			Repo: jobsRepo,
			Sweeper: &sweep.Sweeper{
				Leases:            leases,
				Payments:          payments,
				Threads:           engine,
				Log:               log,
				LookbackMonths:    cfg.Worker.SweepLookbackMonths,
				RenewalNoticeDays: cfg.Review.RenewalNoticeDays,
			},
			Log:           log,
			Metrics:       metrics.NewJobMetrics(reg),
			PollInterval:  cfg.Worker.PollInterval,
			SweepInterval: cfg.Worker.SweepInterval,
		}
		go worker.Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info(log.WithField(ctx, "addr", cfg.App.HTTPAddr), "server.listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(ctx, log, "server.listen_failed", err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	log.Info(ctx, "server.shutting_down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server.shutdown_failed", err)
	}
}

func fatal(ctx context.Context, log *logger.Logger, msg string, err error) {
	log.Error(ctx, msg, err)
	os.Exit(1)
}
