package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/studio-box-office/internal/artifact"
	"github.com/iliyamo/studio-box-office/internal/clock"
	"github.com/iliyamo/studio-box-office/internal/config"
	"github.com/iliyamo/studio-box-office/internal/database"
	"github.com/iliyamo/studio-box-office/internal/events"
	"github.com/iliyamo/studio-box-office/internal/handler"
	"github.com/iliyamo/studio-box-office/internal/mail"
	"github.com/iliyamo/studio-box-office/internal/payment"
	"github.com/iliyamo/studio-box-office/internal/queue"
	"github.com/iliyamo/studio-box-office/internal/repository"
	"github.com/iliyamo/studio-box-office/internal/router"
	"github.com/iliyamo/studio-box-office/internal/service"
	"github.com/iliyamo/studio-box-office/internal/session"
	"github.com/iliyamo/studio-box-office/internal/storage"
)

func main() {
	_ = godotenv.Load() // .env is optional; real environment wins

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	tcfg, err := config.LoadTicketingConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(ctx, database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := config.NewRedisClient(ctx, log)
	if rdb != nil {
		defer rdb.Close()
	}

	store, err := storage.NewS3Store(storage.Config{
		Endpoint:      tcfg.S3.Endpoint,
		AccessKey:     tcfg.S3.AccessKey,
		SecretKey:     tcfg.S3.SecretKey,
		Region:        tcfg.S3.Region,
		UseSSL:        tcfg.S3.UseSSL,
		PublicBaseURL: tcfg.S3.PublicBaseURL,
	}, log)
	if err != nil {
		return err
	}
	if err := store.EnsureBucket(ctx, tcfg.S3.Bucket); err != nil {
		// PDFs still render and download from memory without storage.
		log.Warn("object storage unavailable", "bucket", tcfg.S3.Bucket, "error", err)
	}

	mailer, err := mail.NewSMTPSender(mail.Config{
		Host:     tcfg.SMTP.Host,
		Port:     tcfg.SMTP.Port,
		Username: tcfg.SMTP.Username,
		Password: tcfg.SMTP.Password,
		From:     tcfg.SMTP.From,
		FromName: tcfg.SMTP.FromName,
		TLS:      tcfg.SMTP.TLS,
	}, log)
	if err != nil {
		return err
	}

	var publisher service.EventPublisher = events.Nop{}
	if len(tcfg.KafkaBrokers) > 0 {
		p := events.NewProducer(tcfg.KafkaBrokers, tcfg.KafkaTopic, "box-office-api", 256, log)
		p.Start(ctx)
		defer func() {
			stop()
			p.WaitClosed()
		}()
		publisher = p
	}

	clk := clock.Real()
	orders := repository.NewOrderRepo(db)
	tickets := repository.NewTicketRepo(db)
	shows := repository.NewShowRepo(db)
	seats := repository.NewShowSeatRepo(db)

	pipe := artifact.New(artifact.Deps{
		Orders:  orders,
		Tickets: tickets,
		Shows:   shows,
		Seats:   seats,
		Storage: store,
		Mailer:  mailer,
	}, artifact.Config{
		Bucket:      tcfg.S3.Bucket,
		PDFCacheTTL: cfg.PDFCacheTTL,
		Branding: artifact.Branding{
			StudioName:   tcfg.Studio.Name,
			StudioURL:    tcfg.Studio.URL,
			SupportEmail: tcfg.Studio.SupportEmail,
			TimeZone:     tcfg.Studio.TimeZone,
		},
	}, artifact.WithClock(clk), artifact.WithLogger(log))

	jobs := queue.NewPublisher(tcfg.RabbitMQURL, 256, log)
	jobs.Start(ctx)
	defer func() {
		stop()
		jobs.WaitClosed()
	}()
	svc := service.New(service.Stores{
		Seats:        seats,
		Shows:        shows,
		Reservations: repository.NewReservationRepo(db),
		Orders:       orders,
		Tickets:      tickets,
	}, payment.NewStripe(tcfg.StripeSecretKey),
		service.WithClock(clk),
		service.WithLogger(log),
		service.WithHoldTTL(cfg.HoldTTL),
		service.WithArtifactDispatcher(jobs),
		service.WithEventPublisher(publisher),
		service.WithRefundNotifier(pipe),
	)

	var dedup queue.Deduper
	if rdb != nil {
		dedup = queue.NewRedisDeduper(rdb)
	}
	worker := queue.NewWorker(queue.WorkerConfig{
		URL:         tcfg.RabbitMQURL,
		MaxAttempts: tcfg.ArtifactMaxAttempts,
		Deliverer:   pipe,
		Dedup:       dedup,
		Retry:       jobs,
		Logger:      log,
	})
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("artifact worker stopped", "error", err)
		}
	}()

	sessions, err := session.NewResolver(cfg.SessionSecret, cfg.Production(), clk)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status,
				"latency_ms", v.Latency.Milliseconds(), "request_id", v.RequestID}
			if v.Error != nil {
				log.Error("request", append(attrs, "error", v.Error)...)
				return nil
			}
			log.Info("request", attrs...)
			return nil
		},
	}))

	router.Register(e, router.Deps{
		Reservations: handler.NewReservationHandler(svc, log),
		Orders:       handler.NewOrderHandler(svc, log),
		Tickets:      handler.NewTicketHandler(pipe, svc, log),
		DB:           db,
		Sessions:     sessions,
		JWTSecret:    cfg.JWTSecret,
		RateLimit:    config.LoadRateLimitConfig(),
		Cache:        config.LoadCacheConfig(),
		Redis:        rdb,
		Logger:       log,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
