package main // Entry point of the floor API server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/casino-floor/internal/clock"
	"github.com/iliyamo/casino-floor/internal/config"
	"github.com/iliyamo/casino-floor/internal/database"
	"github.com/iliyamo/casino-floor/internal/floor"
	"github.com/iliyamo/casino-floor/internal/handler"
	"github.com/iliyamo/casino-floor/internal/middleware"
	"github.com/iliyamo/casino-floor/internal/queue"
	"github.com/iliyamo/casino-floor/internal/realtime"
	"github.com/iliyamo/casino-floor/internal/repository"
	"github.com/iliyamo/casino-floor/internal/router"
	queue_publisher "github.com/iliyamo/casino-floor/internal/service"
	"github.com/iliyamo/casino-floor/internal/session"
	"github.com/iliyamo/casino-floor/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialect, _ := cfg.Dialect()
	db, err := database.Open(ctx, dialect, cfg.DSN())
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()
	applied, err := database.Migrate(ctx, db, dialect)
	if err != nil {
		log.WithError(err).Fatal("database migration failed")
	}
	if len(applied) > 0 {
		log.WithField("migrations", applied).Info("schema migrated")
	}
	store := repository.NewStore(db, dialect)

	// Redis fans change events out across API processes; without it the
	// process only sees its own writes.
	redisCfg, err := config.LoadRedisConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid redis configuration")
	}
	rdb := config.NewRedisClient(redisCfg)
	var broker realtime.Broker
	if rdb != nil {
		defer rdb.Close()
		broker = realtime.NewRedisBroker(rdb, realtime.DefaultBuffer, log)
		log.WithField("addr", redisCfg.Address()).Info("change events via redis")
	} else {
		broker = realtime.NewHub(realtime.DefaultBuffer, log)
		log.Warn("redis unavailable: change events are process-local and rate limiting is off")
	}

	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid rate limit configuration")
	}

	clk := clock.New()
	manager := session.NewManager(session.Options{
		Store:          store,
		Events:         broker,
		Ledger:         queue_publisher.New(cfg.AMQP(), log),
		Clock:          clk,
		StoreTimeout:   cfg.StoreTimeout,
		PublishTimeout: cfg.PublishTimeout,
		Log:            log,
	})
	floors := floor.NewRegistry(ctx, floor.NewStoreSource(store, cfg.StoreTimeout), broker, clk,
		floor.Options{RetryInterval: cfg.FloorRetryInterval}, log)

	consumerDone := make(chan struct{})
	if cfg.RunConsumer {
		consumer := &queue.Consumer{URL: cfg.AMQP(), LogDir: cfg.LedgerDir, Log: log.WithField("component", "ledger")}
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("ledger consumer stopped")
			}
		}()
	} else {
		close(consumerDone)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLogger(log.WithField("component", "http")))
	router.RegisterRoutes(e, router.Handlers{
		Health:    handler.Health(store),
		Sessions:  handler.NewSessionHandler(manager, log),
		Visits:    handler.NewVisitHandler(manager, log),
		Floor:     handler.NewFloorHandler(store, floors, clk, cfg.LivePointsInterval, log),
		Directory: handler.NewDirectoryHandler(manager, log),
	}, cfg.JWTSecret, middleware.NewTokenBucket(rlCfg, rdb, log))

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "db": dialect}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	floors.Close()
	manager.Wait()
	<-consumerDone
}
