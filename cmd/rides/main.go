package main

import (
	bookinghandler "carpool/internal/bookings/handler"
	bookingrepo "carpool/internal/bookings/repository"
	bookingservice "carpool/internal/bookings/service"
	chathandler "carpool/internal/chat/handler"
	chatrepo "carpool/internal/chat/repository"
	chatservice "carpool/internal/chat/service"
	"carpool/internal/notify"
	ridehandler "carpool/internal/rides/handler"
	riderepo "carpool/internal/rides/repository"
	rideservice "carpool/internal/rides/service"
	ridevalidator "carpool/internal/rides/validator"
	vehiclehandler "carpool/internal/vehicles/handler"
	vehiclerepo "carpool/internal/vehicles/repository"
	vehicleservice "carpool/internal/vehicles/service"
	vehiclevalidator "carpool/internal/vehicles/validator"
	"carpool/pkg/app"
	"carpool/pkg/config"
	"carpool/pkg/kafka"
	kafka_config "carpool/pkg/kafka/config"
)

const ServiceName = "rides"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Rides service")

	serverApp := app.NewApplication(cfg)
	notifier := initNotifier(cfg, serverApp)

	vehicleRepo := vehiclerepo.NewMongoVehicleRepository(cfg)
	rideRepo := riderepo.NewMongoRideRepository(cfg)
	bookingRepo := bookingrepo.NewMongoBookingRepository(cfg)
	messageRepo := chatrepo.NewMongoMessageRepository(cfg)

	vehicleService := vehicleservice.NewVehicleService(
		vehicleRepo,
		vehiclevalidator.NewVehicleValidator(cfg.Log),
		cfg,
	)
	rideService := rideservice.NewRideService(
		rideRepo,
		bookingRepo,
		vehicleRepo,
		notifier,
		ridevalidator.NewRideValidator(cfg.Log),
		cfg,
	)
	bookingService := bookingservice.NewBookingService(
		bookingRepo,
		rideRepo,
		notifier,
		cfg,
	)
	chatService := chatservice.NewChatService(
		messageRepo,
		rideRepo,
		bookingRepo,
		cfg,
	)

	cfg.Log.Info("Domain services initialized", "database", cfg.MongoDatabaseName)

	serverApp.SetApp(
		vehiclehandler.NewVehicleHandler(vehicleService, cfg.Log),
		ridehandler.NewRideHandler(rideService, cfg.Log),
		bookinghandler.NewBookingHandler(bookingService, cfg.Log),
		chathandler.NewChatHandler(chatService, cfg.Log),
	)
	serverApp.OnShutdown(func() {
		cfg.Client.GracefulShutdown(cfg.Log, cfg.ShutdownTimeout)
	})
	serverApp.Run()
}

// initNotifier wires the Kafka producer when brokers are configured and
// falls back to log-only delivery otherwise, so local development does not
// need a running broker.
func initNotifier(cfg *config.Config, serverApp *app.Application) notify.Notifier {
	kafkaCfg := kafka_config.Load()
	if len(kafkaCfg.Brokers) == 0 || kafkaCfg.Brokers[0] == "" {
		cfg.Log.Warn("No Kafka brokers configured, notifications will only be logged")
		return notify.NewLogNotifier(cfg.Log)
	}

	producer, err := kafka.NewProducer(kafkaCfg, cfg.NotificationTopic, cfg.NotificationDLQTopic)
	if err != nil {
		cfg.Log.Warn("Failed to initialize Kafka producer, notifications will only be logged", "error", err)
		return notify.NewLogNotifier(cfg.Log)
	}

	serverApp.OnShutdown(func() {
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka producer", "error", err)
		}
	})

	cfg.Log.Info("Kafka notifier initialized",
		"topic", cfg.NotificationTopic,
		"dlq_topic", cfg.NotificationDLQTopic,
	)
	return notify.NewKafkaNotifier(producer, ServiceName, cfg.Log)
}
