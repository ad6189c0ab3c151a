package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clinicbook/clinicbook/libs/config"
	"github.com/clinicbook/clinicbook/libs/db"
	"github.com/clinicbook/clinicbook/libs/httpx"
	"github.com/clinicbook/clinicbook/libs/kafkax"
	otelx "github.com/clinicbook/clinicbook/libs/otel"
	"github.com/clinicbook/clinicbook/libs/runtime"
	"github.com/clinicbook/clinicbook/services/notification-service/internal/appointments"
	"github.com/clinicbook/clinicbook/services/notification-service/internal/consumer"
	"github.com/clinicbook/clinicbook/services/notification-service/internal/delivery"
	"github.com/clinicbook/clinicbook/services/notification-service/internal/email"
	"github.com/clinicbook/clinicbook/services/notification-service/internal/handlers"
	"github.com/clinicbook/clinicbook/services/notification-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)

	var sender email.Sender
	smtpHost := config.String("SMTP_HOST", "")
	if smtpHost != "" {
		sender = email.NewSMTPSender(smtpHost, config.String("SMTP_PORT", "1025"), config.String("SMTP_FROM", ""))
	} else {
		logger.Warn("smtp not configured; emails will be dropped")
		sender = email.NewNoopSender()
	}

	infoClient := appointments.NewClient(config.String("APPOINTMENT_BASE_URL", "http://appointment-service:8081"))
	worker := delivery.NewWorker(repo, infoClient, sender, logger)

	eventConsumer := consumer.New(logger, worker, consumer.Config{
		Brokers:     config.String("KAFKA_BROKERS", ""),
		GroupID:     config.String("KAFKA_GROUP_ID", "notification-service"),
		Topic:       config.String("KAFKA_CONSUME_TOPIC", "appointment.notifications.v1"),
		DLQTopic:    config.String("KAFKA_DLQ_TOPIC", "appointment.notifications.dlq.v1"),
		MaxAttempts: config.Int("DELIVERY_MAX_ATTEMPTS", 3),
		Backoff:     time.Duration(config.Int("DELIVERY_BACKOFF_SECONDS", 5)) * time.Second,
	})
	go eventConsumer.Run(ctx)

	notificationHandler := handlers.NewNotificationHandler(repo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/notifications/", notificationHandler.Route)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
