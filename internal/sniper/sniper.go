package sniper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

const (
	AUCTION_KEY_PREFIX = "sniper:auction:"
	ACTIVE_POINTER     = "sniper:auction:active"
	TIMER_TOKEN_PREFIX = "sniper:"

	// OPEN_TIME is how long an auction accepts raises before it closes.
	OPEN_TIME = 60 * time.Second

	// SKIM_BASIS_POINTS is the house's cut of the pot, in basis points.
	SKIM_BASIS_POINTS = 1000
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

var (
	ErrNoActiveAuction = errors.New("no active auction")
	ErrAuctionClosed   = errors.New("auction is closed")
)

// Raise is one contribution to the pot. Amount is in the smallest
// currency unit.
type Raise struct {
	UserID   string    `json:"user_id"`
	Amount   int64     `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

// Auction is the sniper round: every raise feeds the pot, and the first
// raise strictly greater than the current high takes the lead.
type Auction struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Status    Status    `json:"status"`
	Pot       int64     `json:"pot"`
	Raises    []Raise   `json:"raises"`
	Winning   *Raise    `json:"winning_bid,omitempty"`
}

// Participants returns the distinct bidders in first-raise order.
func (a *Auction) Participants() []string {
	seen := make(map[string]bool, len(a.Raises))
	var users []string
	for _, r := range a.Raises {
		if !seen[r.UserID] {
			seen[r.UserID] = true
			users = append(users, r.UserID)
		}
	}
	return users
}

// Store and Wallet mirror the contracts the wheel engine consumes; both
// are satisfied by the shared store and wallet services.
type Store interface {
	PutJSON(ctx context.Context, key string, v interface{}) error
	GetJSON(ctx context.Context, key string, v interface{}) error
	UpdateJSON(ctx context.Context, key string, v interface{}, apply func() error) error
	SetActiveNX(ctx context.Context, pointer, id string) (bool, error)
	Active(ctx context.Context, pointer string) (string, error)
	ReleaseActive(ctx context.Context, pointer, id string) error
	Arm(ctx context.Context, token string, ttl time.Duration) (bool, error)
	TimerExists(ctx context.Context, token string) (bool, error)
}

type Wallet interface {
	Charge(ctx context.Context, userID string, amount int64) error
	Pay(ctx context.Context, ref, userID string, amount int64) error
	Deposit(ctx context.Context, userID string, amount int64) error
}

type Broadcaster interface {
	Broadcast(message interface{})
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(interface{}) {}

// Engine runs sniper auctions: raise intake while open, then a single
// winner-takes-the-skimmed-pot settlement on close.
type Engine struct {
	store  Store
	wallet Wallet
	hub    Broadcaster
}

func NewEngine(store Store, wallet Wallet, hub Broadcaster) *Engine {
	if hub == nil {
		hub = nopBroadcaster{}
	}
	return &Engine{store: store, wallet: wallet, hub: hub}
}

func auctionKey(id string) string { return AUCTION_KEY_PREFIX + id }

// TimerToken names the distributed close timer for an auction.
func TimerToken(auctionID string) string {
	return TIMER_TOKEN_PREFIX + auctionID + "@open"
}

// ParseTimerToken inverts TimerToken; ok is false for foreign tokens.
func ParseTimerToken(token string) (auctionID string, ok bool) {
	if len(token) <= len(TIMER_TOKEN_PREFIX) || token[:len(TIMER_TOKEN_PREFIX)] != TIMER_TOKEN_PREFIX {
		return "", false
	}
	rest := token[len(TIMER_TOKEN_PREFIX):]
	const suffix = "@open"
	if len(rest) <= len(suffix) || rest[len(rest)-len(suffix):] != suffix {
		return "", false
	}
	return rest[:len(rest)-len(suffix)], true
}

// Raise charges the bidder and adds the contribution to the pot of the
// open auction, creating one when none is active. A raise takes the lead
// only when strictly greater than the current high; ties keep the earlier
// bid.
func (e *Engine) Raise(ctx context.Context, userID string, amount int64) (*Auction, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if amount <= 0 {
		return nil, fmt.Errorf("raise must be positive, got %d", amount)
	}

	auctionID, err := e.ensureActive(ctx)
	if err != nil {
		return nil, err
	}

	if err := e.wallet.Charge(ctx, userID, amount); err != nil {
		return nil, err
	}

	raise := Raise{UserID: userID, Amount: amount, PlacedAt: time.Now()}

	var auction Auction
	err = e.store.UpdateJSON(ctx, auctionKey(auctionID), &auction, func() error {
		if auction.Status != StatusOpen {
			return ErrAuctionClosed
		}
		auction.Pot += amount
		auction.Raises = append(auction.Raises, raise)
		if auction.Winning == nil || amount > auction.Winning.Amount {
			lead := raise
			auction.Winning = &lead
		}
		return nil
	})
	if err != nil {
		if refundErr := e.wallet.Deposit(ctx, userID, amount); refundErr != nil {
			log.Printf("[SNIPER] Refund failed for user %s amount %d: %v", userID, amount, refundErr)
		}
		return nil, err
	}

	e.hub.Broadcast(map[string]interface{}{
		"type":       "raise",
		"auction_id": auctionID,
		"user_id":    userID,
		"amount":     amount,
		"pot":        auction.Pot,
	})
	log.Printf("[SNIPER] User %s raised %d (auction %s, pot %d)", userID, amount, auctionID, auction.Pot)

	return &auction, nil
}

// Active returns the open auction, or nil.
func (e *Engine) Active(ctx context.Context) (*Auction, error) {
	id, err := e.store.Active(ctx, ACTIVE_POINTER)
	if err != nil {
		return nil, fmt.Errorf("query active auction: %w", err)
	}
	if id == "" {
		return nil, nil
	}
	var auction Auction
	if err := e.store.GetJSON(ctx, auctionKey(id), &auction); err != nil {
		return nil, fmt.Errorf("load auction %s: %w", id, err)
	}
	return &auction, nil
}

func (e *Engine) ensureActive(ctx context.Context) (string, error) {
	id, err := e.store.Active(ctx, ACTIVE_POINTER)
	if err != nil {
		return "", fmt.Errorf("query active auction: %w", err)
	}
	if id != "" {
		return id, nil
	}

	auction := &Auction{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		Status:    StatusOpen,
	}
	if err := e.store.PutJSON(ctx, auctionKey(auction.ID), auction); err != nil {
		return "", fmt.Errorf("create auction: %w", err)
	}

	won, err := e.store.SetActiveNX(ctx, ACTIVE_POINTER, auction.ID)
	if err != nil {
		return "", fmt.Errorf("install active auction: %w", err)
	}
	if !won {
		id, err := e.store.Active(ctx, ACTIVE_POINTER)
		if err != nil || id == "" {
			return "", fmt.Errorf("active auction vanished mid-create: %w", err)
		}
		return id, nil
	}

	if armed, err := e.store.Arm(ctx, TimerToken(auction.ID), OPEN_TIME); err != nil {
		log.Printf("[SNIPER] Arm close timer for %s: %v", auction.ID, err)
	} else if armed {
		log.Printf("[SNIPER] Auction %s open for %s", auction.ID, OPEN_TIME)
	}

	e.hub.Broadcast(map[string]interface{}{
		"type":       "auction_start",
		"auction_id": auction.ID,
	})

	return auction.ID, nil
}

// Close settles the auction: with at least two distinct bidders the
// highest bid takes the pot minus the house skim; a lone bidder forfeits.
// Closing an already-closed auction returns ErrAuctionClosed.
func (e *Engine) Close(ctx context.Context, auctionID string) (*Auction, error) {
	var auction Auction
	if err := e.store.GetJSON(ctx, auctionKey(auctionID), &auction); err != nil {
		return nil, fmt.Errorf("load auction %s: %w", auctionID, err)
	}
	if auction.Status != StatusOpen {
		return &auction, ErrAuctionClosed
	}

	// Pay before flipping status; the wallet's per-(ref,user) idempotency
	// keeps a crashed retry from double-paying.
	if payout, winner := settlement(&auction); payout > 0 {
		if err := e.wallet.Pay(ctx, "sniper:"+auctionID, winner, payout); err != nil {
			return nil, fmt.Errorf("pay winner %s: %w", winner, err)
		}
		e.hub.Broadcast(map[string]interface{}{
			"type":       "auction_won",
			"auction_id": auctionID,
			"user_id":    winner,
			"amount":     payout,
		})
		log.Printf("[SNIPER] Auction %s won by %s for %d (pot %d)", auctionID, winner, payout, auction.Pot)
	} else {
		log.Printf("[SNIPER] Auction %s closed without payout (%d bidders)", auctionID, len(auction.Participants()))
	}

	var updated Auction
	err := e.store.UpdateJSON(ctx, auctionKey(auctionID), &updated, func() error {
		if updated.Status != StatusOpen {
			return ErrAuctionClosed
		}
		updated.Status = StatusClosed
		return nil
	})
	if err != nil && !errors.Is(err, ErrAuctionClosed) {
		return nil, fmt.Errorf("close auction %s: %w", auctionID, err)
	}

	if err := e.store.ReleaseActive(ctx, ACTIVE_POINTER, auctionID); err != nil {
		log.Printf("[SNIPER] Release active pointer for %s: %v", auctionID, err)
	}

	e.hub.Broadcast(map[string]interface{}{
		"type":       "auction_closed",
		"auction_id": auctionID,
	})

	return &updated, nil
}

// settlement computes the winner's payout: floor(pot x (1 - skim)) when at
// least two distinct bidders played, zero otherwise. The skim is rounded up
// in integer arithmetic so the payout is exact for any pot an int64 holds.
func settlement(a *Auction) (payout int64, winner string) {
	if a.Winning == nil || len(a.Participants()) < 2 {
		return 0, ""
	}
	skim := (a.Pot*SKIM_BASIS_POINTS + 9999) / 10000
	return a.Pot - skim, a.Winning.UserID
}
