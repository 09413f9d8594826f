package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/myarnwas/Library-Management-System-LMS/config"
	"github.com/myarnwas/Library-Management-System-LMS/internal/backup"
	"github.com/myarnwas/Library-Management-System-LMS/internal/handler"
	"github.com/myarnwas/Library-Management-System-LMS/internal/repository"
	"github.com/myarnwas/Library-Management-System-LMS/internal/server"
	"github.com/myarnwas/Library-Management-System-LMS/internal/service"
	"github.com/myarnwas/Library-Management-System-LMS/migrations"
	"github.com/myarnwas/Library-Management-System-LMS/pkg/kafka"
	"github.com/myarnwas/Library-Management-System-LMS/pkg/logger"
	"github.com/myarnwas/Library-Management-System-LMS/pkg/postgres"
)

func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, "library")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}

	var producer sarama.SyncProducer
	if cfg.Kafka.Enabled() {
		if producer, err = kafka.NewProducer(cfg.Kafka); err != nil {
			log.Fatal("kafka.NewProducer", zap.Error(err))
		}
	}

	exporter := backup.NewExporter(cfg.Backup, log)
	svc := service.NewService(repo, producer, exporter, log)

	h := handler.New(svc, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server run", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.DPanic("srv.Stop", zap.Error(err))
	}
	if producer != nil {
		if err = producer.Close(); err != nil {
			log.Error("producer close", zap.Error(err))
		}
	}
	db.Close()
	log.Info("Graceful shutdown finished")
}
