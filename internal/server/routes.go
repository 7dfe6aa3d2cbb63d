package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func (s *FiberServer) RegisterFiberRoutes() {
	// Apply CORS middleware
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	// Basic routes
	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")

	// Wheel game routes
	wheel := api.Group("/roulette")
	wheel.Get("/session", s.getSessionHandler)
	wheel.Get("/session/:id", s.getSessionByIDHandler)
	wheel.Post("/bet", s.placeBetHandler)
	wheel.Post("/finish", s.finishHandler)

	// Sniper auction routes
	auction := api.Group("/sniper")
	auction.Get("/auction", s.getAuctionHandler)
	auction.Post("/raise", s.raiseHandler)

	// Balance routes
	api.Get("/user/:userId/balance", s.getUserBalanceHandler)
	api.Post("/user/:userId/balance", s.depositHandler)

	// WebSocket route
	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}
