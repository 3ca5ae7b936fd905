package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lixing-Zhang/restaurant-backend/internal/catalog"
	"github.com/Lixing-Zhang/restaurant-backend/internal/config"
	"github.com/Lixing-Zhang/restaurant-backend/internal/handlers"
	"github.com/Lixing-Zhang/restaurant-backend/internal/metrics"
	"github.com/Lixing-Zhang/restaurant-backend/internal/repository"
	"github.com/Lixing-Zhang/restaurant-backend/internal/service"
	"github.com/Lixing-Zhang/restaurant-backend/internal/ticket"
	"github.com/Lixing-Zhang/restaurant-backend/pkg/logger"
)

// Version is set at build time
var Version = "dev"

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	log.Info("starting restaurant api server",
		"port", cfg.Server.Port,
		"host", cfg.Server.Host,
		"store", cfg.Store.Backend,
		"log_level", cfg.LogLevel,
	)

	ctx := context.Background()

	store, err := repository.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	menuService := service.NewMenuService(store, log)

	if cfg.Menu.SeedSource != "" {
		log.Info("importing menu", "source", cfg.Menu.SeedSource)
		menu, err := catalog.NewLoader(nil).Load(ctx, cfg.Menu.SeedSource)
		if err != nil {
			return fmt.Errorf("failed to load menu: %w", err)
		}
		if _, err := catalog.Apply(ctx, menuService, menu); err != nil {
			return fmt.Errorf("failed to import menu: %w", err)
		}
	}

	sinks, err := openTicketSinks(cfg.Ticket, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Error("failed to close ticket sinks", "error", err)
		}
	}()

	m := metrics.New()
	opts := []service.Option{service.WithRecorder(m)}
	if len(sinks) > 0 {
		opts = append(opts,
			service.WithTicketSink(sinks),
			service.WithTicketTimeout(time.Duration(cfg.Ticket.Timeout)*time.Second),
		)
	}
	orderService := service.NewOrderService(store, service.NewStockLedger(store), log, opts...)

	var pinger handlers.Pinger
	if p, ok := store.(handlers.Pinger); ok {
		pinger = p
	}

	r := newRouter(routes{
		health:  handlers.NewHealthHandler(Version, pinger, log),
		menu:    handlers.NewMenuHandler(menuService, log),
		dishes:  handlers.NewDishHandler(menuService, orderService, log),
		orders:  handlers.NewOrderHandler(orderService, log),
		metrics: m.Handler(),
	}, log)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case <-quit:
	}

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func openTicketSinks(cfg config.TicketConfig, log *slog.Logger) (ticket.MultiSink, error) {
	var sinks ticket.MultiSink

	if cfg.Dir != "" {
		fileSink, err := ticket.NewFileSink(cfg.Dir, time.Local)
		if err != nil {
			return nil, fmt.Errorf("failed to open ticket directory: %w", err)
		}
		sinks = append(sinks, fileSink)
		log.Info("writing kitchen tickets", "dir", cfg.Dir)
	}

	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, ticket.NewKafkaSink(ticket.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)))
		log.Info("publishing kitchen tickets", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	return sinks, nil
}
