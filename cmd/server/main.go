// main wires the document lifecycle service: storage, outbox publisher,
// scheduler loop and HTTP surface, supervised together so one failing part
// stops the process cleanly.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"charter/internal/document/handler"
	"charter/internal/document/store"
	"charter/internal/notify"
	"charter/internal/platform/config"
	"charter/internal/platform/httpserver"
	"charter/internal/platform/logger"
	"charter/internal/platform/metrics"
	"charter/internal/platform/middleware"
	"charter/internal/platform/postgres"
	"charter/internal/platform/redis"
	"charter/internal/scheduler"

	doc "charter/internal/document/service"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Storage: Postgres when configured, in-memory otherwise (dev mode).
	var (
		st     store.Store
		outbox notify.Outbox
	)
	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		st = store.NewPostgres(db)
		outbox = notify.NewPostgresOutbox(db)
		log.Info("using postgres store")
	} else {
		st = store.NewInMemory()
		outbox = notify.NewInMemoryOutbox()
		log.Warn("no postgres DSN configured, using in-memory store")
	}

	svc, err := doc.New(st, outbox, log, m, cfg.DefaultReviewFrequency)
	if err != nil {
		log.Error("build service", "error", err)
		os.Exit(1)
	}

	// Redis guards the scheduler tick across replicas; absent Redis the
	// single-node loop runs unguarded.
	var locker scheduler.Locker
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		locker = scheduler.NewRedisLocker(redisClient)
	}

	driver := scheduler.New(svc, st, locker, log, m, cfg.SchedulerInterval)

	h := handler.New(svc, log)
	validator := middleware.NewValidator(cfg.JWTSigningKey)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(30 * time.Second))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, log))
		r.Use(middleware.ContentTypeJSON)
		h.Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		log.Info("starting scheduler", "interval", cfg.SchedulerInterval.String())
		if err := driver.Run(gctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})

	// The outbox worker needs Kafka; without brokers intents stay queued.
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		worker := notify.NewWorker(outbox, publisher, log, m)
		g.Go(func() error {
			log.Info("starting notification worker", "topic", cfg.Kafka.Topic)
			if err := worker.Run(gctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})
	} else {
		log.Warn("no kafka brokers configured, notification intents stay in the outbox")
	}

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
