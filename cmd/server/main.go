package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/auctionhq/ipl-auction-backend/internal/bidding"
	"github.com/auctionhq/ipl-auction-backend/internal/config"
	"github.com/auctionhq/ipl-auction-backend/internal/ephemeral"
	"github.com/auctionhq/ipl-auction-backend/internal/httpapi"
	"github.com/auctionhq/ipl-auction-backend/internal/hub"
	"github.com/auctionhq/ipl-auction-backend/internal/queue"
	"github.com/auctionhq/ipl-auction-backend/internal/retention"
	"github.com/auctionhq/ipl-auction-backend/internal/room"
	"github.com/auctionhq/ipl-auction-backend/internal/rtm"
	"github.com/auctionhq/ipl-auction-backend/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := buildLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.DatabaseURL != "" {
		g, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("opening store", zap.Error(err))
		}
		st = g
	} else {
		log.Warn("no DATABASE_URL set, using in-memory store")
		st = store.NewMemory()
	}

	eph := ephemeral.New()
	defer eph.Stop()

	deps := room.Deps{
		Store:       st,
		Ephemeral:   eph,
		Ledger:      bidding.NewLedger(st, eph, log),
		Negotiator:  rtm.NewNegotiator(st, eph, cfg.RTMWindow, log),
		Progression: queue.NewProgression(st, eph, log),
		Log:         log,
	}
	h := hub.NewHub(ctx, deps)

	handlers := &httpapi.Handlers{
		Store:       st,
		Ephemeral:   eph,
		Hub:         h,
		Progression: deps.Progression,
		Negotiator:  deps.Negotiator,
		Log:         log,
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: httpapi.SetupRoutes(handlers),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		retention.NewCleaner(st, eph, cfg.RetentionDays, log).Run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		h.Inbox() <- hub.ShutdownHub{}
		return srv.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func buildLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}
