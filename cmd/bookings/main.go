package main

import (
	accountsrepo "slotbook/internal/accounts/repository"
	"slotbook/internal/bookings/handler"
	"slotbook/internal/bookings/repository"
	"slotbook/internal/bookings/service"
	"slotbook/internal/bookings/validator"
	"slotbook/internal/calendar"
	"slotbook/pkg/app"
	"slotbook/pkg/config"
	"slotbook/pkg/kafka"
	kafka_config "slotbook/pkg/kafka/config"
	"slotbook/pkg/session"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	if cfg.SessionKey == "" {
		cfg.Log.Fatal("SESSION_KEY is required to run the bookings API")
	}

	sealer, err := session.NewSealer(cfg.SessionKey)
	if err != nil {
		cfg.Log.Fatal("Invalid session key", "error", err)
	}

	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting bookings service")

	bookingService, connectHandler := initServices(cfg, sealer)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		sealer,
		handler.NewHealthHandler(cfg.Client.Mongo, cfg.Log),
		calendar.NewCallbackHandler(connectHandler),
		handler.NewBookingHandler(bookingService, cfg.Log),
		connectHandler,
	)
	serverApp.Run()
}

func initServices(cfg *config.Config, sealer *session.Sealer) (service.BookingService, *calendar.ConnectHandler) {
	bookingRepo := repository.NewMongoBookingRepository(cfg)
	lockRepo := repository.NewMongoSlotLockRepository(cfg)
	accountRepo := accountsrepo.NewMongoAccountRepository(cfg)

	oracle := calendar.NewGoogleOracle(cfg, accountRepo)
	policy := service.NewConflictPolicy(bookingRepo, oracle, cfg)

	var publisher service.EventPublisher
	if cfg.KafkaEnabled {
		kafkaCfg, err := kafka_config.Load()
		if err != nil {
			cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
		}
		producer, err := kafka.NewProducer(kafkaCfg, cfg.BookingsTopic)
		if err != nil {
			cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
		}
		publisher = producer
		cfg.Log.Info("Booking event publishing enabled", "topic", cfg.BookingsTopic)
	}

	bookingService := service.NewBookingService(
		bookingRepo,
		lockRepo,
		validator.NewBookingValidator(cfg.Log),
		policy,
		publisher,
		cfg,
	)

	connectHandler := calendar.NewConnectHandler(
		calendar.NewOAuthConfig(cfg),
		accountRepo,
		sealer,
		cfg.Log,
	)

	cfg.Log.Info("Booking service initialized",
		"database", cfg.MongoDatabaseName,
		"google_configured", cfg.GoogleConfigured(),
	)
	return bookingService, connectHandler
}
