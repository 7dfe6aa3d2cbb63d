package server

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"croupier/internal/roulette"
	"croupier/internal/sniper"
	"croupier/internal/wallet"
)

// Health handler
func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"database": s.db.Health(),
		"cache":    s.cache.Health(),
		"game": fiber.Map{
			"status":            "running",
			"connected_clients": s.hub.GetClientCount(),
		},
	}
	return c.JSON(health)
}

// Wheel game handlers

func (s *FiberServer) getSessionHandler(c *fiber.Ctx) error {
	session, err := s.wheel.ActiveSession(c.Context())
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to load session",
		})
	}
	if session == nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "No active session",
		})
	}
	return c.JSON(session.Redacted())
}

func (s *FiberServer) getSessionByIDHandler(c *fiber.Ctx) error {
	session, err := s.wheel.Session(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	return c.JSON(session.Redacted())
}

type betRequest struct {
	UserID string `json:"user_id"`
	Kind   string `json:"kind"`
	Target int    `json:"target"`
	Wager  int64  `json:"wager"`
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	var req betRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	session, err := s.wheel.PlaceBet(c.Context(), roulette.BetKind(req.Kind), req.Target, req.UserID, req.Wager)
	if err != nil {
		return betError(c, err)
	}

	return c.JSON(session)
}

// finishHandler forces settlement of a session stuck in the waiting phase;
// an operator escape hatch, the scheduler does this on its own.
func (s *FiberServer) finishHandler(c *fiber.Ctx) error {
	session, err := s.wheel.Finish(c.Context())
	if err != nil {
		return betError(c, err)
	}
	return c.JSON(session.Redacted())
}

// Sniper auction handlers

func (s *FiberServer) getAuctionHandler(c *fiber.Ctx) error {
	auction, err := s.auction.Active(c.Context())
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to load auction",
		})
	}
	if auction == nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "No active auction",
		})
	}
	return c.JSON(auction)
}

type raiseRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

func (s *FiberServer) raiseHandler(c *fiber.Ctx) error {
	var req raiseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	auction, err := s.auction.Raise(c.Context(), req.UserID, req.Amount)
	if err != nil {
		return betError(c, err)
	}

	return c.JSON(auction)
}

// betError maps engine and wallet sentinels onto HTTP statuses.
func betError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, roulette.ErrNoActiveSession), errors.Is(err, sniper.ErrNoActiveAuction):
		return c.Status(404).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, roulette.ErrBettingClosed), errors.Is(err, sniper.ErrAuctionClosed),
		errors.Is(err, roulette.ErrSettlementNotReady):
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
}

// User balance handlers

func (s *FiberServer) getUserBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	balance, err := s.ledger.Balance(c.Context(), userID)
	if err != nil && !errors.Is(err, wallet.ErrAccountNotFound) {
		return c.Status(500).JSON(fiber.Map{
			"error": "Failed to read balance",
		})
	}

	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": balance,
	})
}

func (s *FiberServer) depositHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	var body struct {
		Amount int64 `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := s.ledger.Deposit(c.Context(), userID, body.Amount); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	balance, _ := s.ledger.Balance(c.Context(), userID)
	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": balance,
		"message": "Balance updated successfully",
	})
}

// gameWebSocketHandler handles WebSocket connections for real-time game updates
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	// Extract user ID from query params
	userID := conn.Query("user_id", "anonymous")

	log.Printf("[WS] New connection from user: %s", userID)

	client := s.hub.RegisterClient(conn, userID)

	// Push the current wheel session so the client can render immediately
	if session, err := s.wheel.ActiveSession(context.Background()); err == nil && session != nil {
		client.SendInitial(session.Redacted())
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Printf("[WS] Read error for user %s: %v", userID, err)
			s.hub.UnregisterClient(conn)
			break
		}
	}
}
