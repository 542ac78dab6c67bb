package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"ride-engagement/internal/attestation"
	"ride-engagement/internal/attestation/ledger"
	attrepo "ride-engagement/internal/attestation/repository"
	"ride-engagement/internal/common/auth"
	"ride-engagement/internal/common/config"
	"ride-engagement/internal/common/db"
	commonrmq "ride-engagement/internal/common/rmq"
	commonws "ride-engagement/internal/common/websocket"
	"ride-engagement/internal/engagement/handler"
	"ride-engagement/internal/engagement/model"
	engagementrmq "ride-engagement/internal/engagement/rmq"
	"ride-engagement/internal/engagement/service"
	"ride-engagement/internal/position"
	"ride-engagement/internal/prompt"
	"ride-engagement/internal/routing"

	"go.uber.org/zap"
)

// Run wires the domain and serves until a shutdown signal arrives.
func Run(cfg *config.Config, logg *zap.Logger, pg *db.Postgres, rabbit *commonrmq.RabbitMQ, quit chan os.Signal) {
	hub := commonws.NewHub()
	feed := position.NewFeed(cfg.Engagement.PositionMaxAge)
	verifier := auth.NewVerifier(cfg.Service.JWTSecret, time.Hour)
	resolver := prompt.NewResolver(hub, logg)

	signer := attestation.NewSigner(cfg.Ledger.SignerSecret, time.Hour)
	identity := attestation.NewStaticIdentity(cfg.Ledger.Account)
	ledgerClient := ledger.NewClient(cfg.Ledger.Endpoint, cfg.Ledger.WriteTimeout)
	journal := attrepo.NewAttestationRepository(pg.Conn)
	attestor := attestation.NewService(identity, signer, ledgerClient, journal, logg)

	publisher, err := engagementrmq.NewPublisher(rabbit, cfg.RabbitMQ.Exchange, logg)
	if err != nil {
		logg.Fatal("failed to create event publisher", zap.Error(err))
	}

	consumer := engagementrmq.NewConsumer(rabbit, logg)
	err = consumer.ConsumeLocationUpdates("engagement.location_updates", func(msg commonrmq.LocationUpdateMessage) {
		feed.Update(model.Position{
			Latitude:       msg.Location.Lat,
			Longitude:      msg.Location.Lng,
			HeadingDegrees: msg.Heading,
			SpeedKmh:       msg.SpeedKmh,
			AccuracyMeters: msg.Accuracy,
			Timestamp:      msg.Timestamp,
		})
	})
	if err != nil {
		logg.Warn("location update consumer unavailable", zap.Error(err))
	}

	engine := routing.NewEstimateEngine(cfg.Routing.AvgSpeedKmh)

	manager := service.NewManager(
		service.EngagementDefaults{
			PickupRadiusMeters:  cfg.Engagement.PickupRadiusMeters,
			DropoffRadiusMeters: cfg.Engagement.DropoffRadiusMeters,
			ConfirmationTimeout: cfg.Engagement.ConfirmationTimeout,
			GeofenceInterval:    cfg.Engagement.GeofenceInterval,
			EnableAttestations:  cfg.Engagement.EnableAttestations,
			WithPickupStage:     cfg.Engagement.WithPickupStage,
		},
		service.Deps{
			Source:    feed,
			Attestor:  attestor,
			Identity:  identity,
			Prompter:  resolver,
			Engine:    engine,
			Publisher: publisher,
			Watchdog: service.WatchdogConfig{
				SettleDelay:  cfg.Routing.SettleDelay,
				PollInterval: cfg.Routing.PollInterval,
				RetryAfter:   cfg.Routing.RetryAfter,
				StuckAfter:   cfg.Routing.StuckAfter,
			},
			Log: logg,
		},
	)

	mux := http.NewServeMux()
	engagementHandler := handler.NewEngagementHandler(manager, journal, resolver, verifier, logg)
	engagementHandler.SetupRoutes(mux)

	wsMux := http.NewServeMux()
	wsMux.Handle("/ws/driver/position", position.NewWSHandler(hub, feed, verifier, logg))

	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Service.Port),
		Handler: mux,
	}
	wsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebSocket.Port),
		Handler: wsMux,
	}

	go func() {
		logg.Info("engagement api listening", zap.Int("port", cfg.Service.Port))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Error("api server stopped", zap.Error(err))
			quit <- nil
		}
	}()
	go func() {
		logg.Info("position websocket listening", zap.Int("port", cfg.WebSocket.Port))
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Error("websocket server stopped", zap.Error(err))
			quit <- nil
		}
	}()

	<-quit
	logg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = wsServer.Shutdown(shutdownCtx)
}
