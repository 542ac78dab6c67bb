package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"ride-engagement/internal/common/config"
	"ride-engagement/internal/common/db"
	"ride-engagement/internal/common/logger"
	"ride-engagement/internal/common/rmq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logg, err := logger.New("engagement-service")
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	pg, err := db.NewPostgres(logg,
		cfg.Database.Host, cfg.Database.Port,
		cfg.Database.User, cfg.Database.Password, cfg.Database.Name,
	)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pg.Close()

	if err := pg.RunMigrations("migrations"); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	rabbit, err := rmq.NewRabbitMQ(logg,
		cfg.RabbitMQ.Host, cfg.RabbitMQ.Port,
		cfg.RabbitMQ.User, cfg.RabbitMQ.Password,
	)
	if err != nil {
		log.Fatalf("rabbitmq error: %v", err)
	}
	defer rabbit.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	Run(cfg, logg, pg, rabbit, quit)
}
