// sweeper returns lapsed seat holds to the pool and deactivates lapsed
// reservations. Buyers never depend on it: lapsed holds already read as
// available. It keeps the tables tidy and the seat map queries cheap.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/studio-box-office/internal/config"
	"github.com/iliyamo/studio-box-office/internal/database"
	"github.com/iliyamo/studio-box-office/internal/repository"
	"github.com/iliyamo/studio-box-office/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		interval time.Duration
		once     bool
		batch    int
	)
	flagSet := pflag.NewFlagSet("sweeper", pflag.ContinueOnError)
	flagSet.DurationVar(&interval, "interval", time.Minute, "time between sweeps")
	flagSet.BoolVar(&once, "once", false, "run a single sweep and exit")
	flagSet.IntVar(&batch, "batch", 500, "maximum rows released per table per sweep")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	_ = godotenv.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "sweeper")
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
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

	// The sweep never touches payments.
	svc := service.New(service.Stores{
		Seats:        repository.NewShowSeatRepo(db),
		Shows:        repository.NewShowRepo(db),
		Reservations: repository.NewReservationRepo(db),
		Orders:       repository.NewOrderRepo(db),
		Tickets:      repository.NewTicketRepo(db),
	}, nil, service.WithLogger(log))

	sweep := func() {
		res, err := svc.ReleaseExpiredHolds(ctx, batch)
		if err != nil {
			log.Error("sweep failed", "error", err)
			return
		}
		if res.Seats > 0 || res.Reservations > 0 {
			log.Info("sweep", "seats_released", res.Seats, "reservations_deactivated", res.Reservations)
		}
	}

	sweep()
	if once {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sweep()
		}
	}
}
