package server

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"croupier/internal/cache"
	"croupier/internal/database"
	"croupier/internal/roulette"
	"croupier/internal/sniper"
	"croupier/internal/store"
	"croupier/internal/wallet"
)

type FiberServer struct {
	*fiber.App

	db       database.Service
	cache    cache.Service
	sessions *store.Store
	ledger   *wallet.Service
	wheel    *roulette.Engine
	auction  *sniper.Engine
	hub      *Hub

	stop context.CancelFunc
}

func New() *FiberServer {
	// Postgres backs the account ledger
	db := database.New()

	// Redis backs the session store and the phase timers
	redisService := cache.New()
	if redisService == nil {
		log.Fatal("[SERVER] Redis is required for game sessions")
	}

	sessions := store.New(redisService.GetClient(), redisService.DB())
	ledger := wallet.New(db.Pool())

	hub := NewHub()
	wheel := roulette.NewEngine(sessions, ledger, hub)
	auction := sniper.NewEngine(sessions, ledger, hub)

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "croupier",
			AppName:       "croupier",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:       db,
		cache:    redisService,
		sessions: sessions,
		ledger:   ledger,
		wheel:    wheel,
		auction:  auction,
		hub:      hub,
	}

	// Apply global middleware
	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	server.stop = cancel

	if err := sessions.EnableExpiryEvents(ctx); err != nil {
		// Managed Redis may forbid CONFIG SET; the flag has to be preset
		// there. The schedulers still fall back to polling either way.
		log.Printf("[SERVER] Could not enable expiry events: %v", err)
	}

	go hub.Run()
	go roulette.NewScheduler(wheel, sessions).Run(ctx)
	go sniper.NewWatcher(auction, sessions).Run(ctx)

	log.Println("[SERVER] Schedulers and hub started")

	return server
}

// Shutdown gracefully stops the schedulers and closes connections.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	if s.stop != nil {
		s.stop()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return nil
}
