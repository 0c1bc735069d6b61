package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openshelf/lending-service/config"
	"github.com/openshelf/lending-service/internal/handler"
	"github.com/openshelf/lending-service/internal/notify"
	"github.com/openshelf/lending-service/internal/repository"
	"github.com/openshelf/lending-service/internal/server"
	"github.com/openshelf/lending-service/internal/service"
	"github.com/openshelf/lending-service/migrations"
	"github.com/openshelf/lending-service/pkg/auth"
	"github.com/openshelf/lending-service/pkg/kafka"
	"github.com/openshelf/lending-service/pkg/logger"
	"github.com/openshelf/lending-service/pkg/postgres"
)

func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, "lending")

	if err := auth.EnsureKey(); err != nil {
		log.Fatal("auth", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := postgres.NewPostgresDB(ctx, &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		log.Fatal("kafka.NewProducer", zap.Error(err))
	}
	svc := service.NewService(repo, notify.New(producer, log), cfg.Policy, log)
	if err := svc.EnsureAdmin(ctx, cfg.Admin); err != nil {
		log.Fatal("admin seed", zap.Error(err))
	}

	consumer, err := kafka.NewConsumer(cfg.Kafka, kafka.ReadingHoursConsumerGroup)
	if err != nil {
		log.Fatal("kafka.NewConsumer", zap.Error(err))
	}

	h := handler.New(svc, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run()
	})
	g.Go(func() error {
		kafka.Consume(gCtx, consumer, handler.NewConsumer(svc.AddReadingHours, log), kafka.ReadingHoursTopic, log)
		return nil
	})
	g.Go(func() error {
		return svc.RunOverdueSweep(gCtx)
	})
	g.Go(func() error {
		<-gCtx.Done()

		log.Debug("Graceful shutdown")
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		if err := srv.Stop(closeCtx); err != nil {
			log.Error("srv.Stop", zap.Error(err))
		}
		if err := consumer.Close(); err != nil {
			log.Error("consumer.Close", zap.Error(err))
		}
		if err := producer.Close(); err != nil {
			log.Error("producer.Close", zap.Error(err))
		}
		db.Close()
		return nil
	})

	if err := g.Wait(); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		log.Error("run", zap.Error(err))
	}
	log.Info("Graceful shutdown finished")
}
