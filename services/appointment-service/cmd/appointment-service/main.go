package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clinicbook/clinicbook/libs/auth"
	"github.com/clinicbook/clinicbook/libs/config"
	"github.com/clinicbook/clinicbook/libs/db"
	"github.com/clinicbook/clinicbook/libs/httpx"
	"github.com/clinicbook/clinicbook/libs/kafkax"
	otelx "github.com/clinicbook/clinicbook/libs/otel"
	"github.com/clinicbook/clinicbook/libs/runtime"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/booking"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/events"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/handlers"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/lifecycle"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/payment"
	"github.com/clinicbook/clinicbook/services/appointment-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "appointment-service")
	port, err := config.Port("PORT", "8081")
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

	schedules := storage.NewScheduleRepository(pool)
	dayOffs := storage.NewDayOffRepository(pool)
	appointments := storage.NewAppointmentRepository(pool)

	dir := newDirectoryProvider(logger)
	emitter := events.NewEmitter(config.String("KAFKA_BROKERS", ""), logger)
	defer func() { _ = emitter.Close() }()

	bookingSvc := booking.NewService(schedules, dayOffs, appointments, dir, emitter, logger)
	lifecycleCtrl := lifecycle.NewController(appointments, schedules, dir, emitter, logger)
	momo := payment.NewMoMoClient(payment.MoMoConfig{
		Endpoint:    config.String("MOMO_ENDPOINT", "https://test-payment.momo.vn/v2/gateway/api/create"),
		PartnerCode: config.String("MOMO_PARTNER_CODE", ""),
		AccessKey:   config.String("MOMO_ACCESS_KEY", ""),
		SecretKey:   config.String("MOMO_SECRET_KEY", ""),
		IPNURL:      config.String("MOMO_IPN_URL", ""),
		RedirectURL: config.String("MOMO_REDIRECT_URL", ""),
	})

	scheduleHandler := handlers.NewScheduleHandler(bookingSvc, logger)
	dayOffHandler := handlers.NewDayOffHandler(bookingSvc, logger)
	appointmentHandler := handlers.NewAppointmentHandler(bookingSvc, logger)
	paymentHandler := handlers.NewPaymentHandler(momo, lifecycleCtrl, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/schedules", scheduleHandler.Create)
	mux.HandleFunc("/api/schedules/", scheduleHandler.Route)
	mux.HandleFunc("/api/dayoffs", dayOffHandler.Create)
	mux.HandleFunc("/api/dayoffs/", dayOffHandler.Route)
	mux.HandleFunc("/api/appointments", appointmentHandler.Collection)
	mux.HandleFunc("/api/appointments/", appointmentHandler.Route)
	mux.HandleFunc("/api/payment/momo/create", paymentHandler.Create)
	mux.HandleFunc("/api/payment/momo/notify", paymentHandler.Notify)
	mux.HandleFunc("/api/payment/appointments/", paymentHandler.Status)

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		}),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(30 * time.Second),
	}

	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT_PER_MINUTE", 120), time.Minute, service)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	}

	// The gateway's IPN callback cannot carry a user token; it is
	// authenticated by its HMAC signature instead.
	if secret := config.String("JWT_SECRET", ""); secret != "" {
		middlewares = append(middlewares, auth.RequireJWT(secret,
			"/healthz", "/readyz", "/api/payment/momo/notify"))
	}

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "appointment")
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
