package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Lixing-Zhang/restaurant-backend/internal/config"
	"github.com/Lixing-Zhang/restaurant-backend/internal/repository"
	"github.com/Lixing-Zhang/restaurant-backend/internal/service"
	"github.com/Lixing-Zhang/restaurant-backend/internal/ticket"
	"github.com/Lixing-Zhang/restaurant-backend/pkg/logger"
)

// options are the persistent flags shared by every command
type options struct {
	backend     string
	storeFile   string
	databaseURL string
	ticketDir   string
	logLevel    string
}

// app is the core wired for a single command run
type app struct {
	store   repository.Store
	menu    *service.MenuService
	orders  *service.OrderService
	tickets ticket.Sink
	log     *slog.Logger
}

func defaultOptions() options {
	backend := os.Getenv("STORE_BACKEND")
	if backend == "" {
		backend = config.BackendFile
	}
	storeFile := os.Getenv("STORE_FILE")
	if storeFile == "" {
		storeFile = "cardapio_state.json"
	}
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "warn"
	}
	return options{
		backend:     backend,
		storeFile:   storeFile,
		databaseURL: os.Getenv("DATABASE_URL"),
		ticketDir:   os.Getenv("TICKET_DIR"),
		logLevel:    logLevel,
	}
}

func openApp(ctx context.Context, opts options, stderr io.Writer) (*app, error) {
	storeCfg := config.StoreConfig{
		Backend:     opts.backend,
		FilePath:    opts.storeFile,
		DatabaseURL: opts.databaseURL,
	}
	if err := storeCfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.NewWithWriter(stderr, opts.logLevel)

	store, err := repository.Open(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{
		store: store,
		menu:  service.NewMenuService(store, log),
		log:   log,
	}

	var svcOpts []service.Option
	if opts.ticketDir != "" {
		sink, err := ticket.NewFileSink(opts.ticketDir, nil)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("open ticket directory: %w", err)
		}
		a.tickets = sink
		svcOpts = append(svcOpts, service.WithTicketSink(sink))
	}
	a.orders = service.NewOrderService(store, service.NewStockLedger(store), log, svcOpts...)
	return a, nil
}

func (a *app) Close() error {
	if a.tickets != nil {
		if err := a.tickets.Close(); err != nil {
			a.log.Error("failed to close ticket sink", "error", err)
		}
	}
	return a.store.Close()
}
