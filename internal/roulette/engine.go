package roulette

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

const (
	SESSION_KEY_PREFIX = "roulette:session:"
	ACTIVE_POINTER     = "roulette:session:active"
)

// SessionStore is the durable store the engine mutates sessions through.
// No instance owns a session in memory: every mutation is a
// read-modify-write against this store.
type SessionStore interface {
	PutJSON(ctx context.Context, key string, v interface{}) error
	GetJSON(ctx context.Context, key string, v interface{}) error
	// UpdateJSON loads the value at key into v, runs apply, and writes v
	// back only if the key was untouched in between. An error returned by
	// apply aborts the write and is returned unchanged.
	UpdateJSON(ctx context.Context, key string, v interface{}, apply func() error) error
	// SetActiveNX installs id behind pointer only if no id is installed.
	SetActiveNX(ctx context.Context, pointer, id string) (bool, error)
	Active(ctx context.Context, pointer string) (string, error)
	// ReleaseActive clears pointer only while it still holds id.
	ReleaseActive(ctx context.Context, pointer, id string) error
	// Arm sets the expiring timer token if absent; the first caller wins.
	Arm(ctx context.Context, token string, ttl time.Duration) (bool, error)
	TimerExists(ctx context.Context, token string) (bool, error)
}

// Wallet is the account ledger. Charge fails with an insufficient-funds
// error and no state change; Pay must be idempotent per (ref, user).
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

// errStale marks a transition attempt against a session that has already
// moved on; duplicate timer notifications land here and become no-ops.
var errStale = errors.New("session already advanced")

// Engine drives wheel-game sessions: bet intake, phase transitions, the
// draw, grading, and settlement.
type Engine struct {
	store  SessionStore
	wallet Wallet
	hub    Broadcaster
}

func NewEngine(store SessionStore, wallet Wallet, hub Broadcaster) *Engine {
	if hub == nil {
		hub = nopBroadcaster{}
	}
	return &Engine{store: store, wallet: wallet, hub: hub}
}

func sessionKey(id string) string { return SESSION_KEY_PREFIX + id }

// PlaceBet validates and records a wager on the active session, creating a
// fresh session when none is active. The wallet debit and the ledger
// append either both happen or neither does.
func (e *Engine) PlaceBet(ctx context.Context, kind BetKind, target int, userID string, wager int64) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if wager <= 0 {
		return nil, fmt.Errorf("wager must be positive, got %d", wager)
	}
	if err := ValidateBet(kind, target); err != nil {
		return nil, err
	}

	sessionID, err := e.ensureActive(ctx)
	if err != nil {
		return nil, err
	}

	if err := e.wallet.Charge(ctx, userID, wager); err != nil {
		return nil, err
	}

	bet := Bet{Kind: kind, Target: target, UserID: userID, Wager: wager, PlacedAt: time.Now()}

	var session Session
	err = e.store.UpdateJSON(ctx, sessionKey(sessionID), &session, func() error {
		if session.Phase != PhaseTakingBets {
			return ErrBettingClosed
		}
		session.Bets = append(session.Bets, bet)
		return nil
	})
	if err != nil {
		// The debit went through but the bet did not: put the money back.
		if refundErr := e.wallet.Deposit(ctx, userID, wager); refundErr != nil {
			log.Printf("[ENGINE] Refund failed for user %s amount %d: %v", userID, wager, refundErr)
		}
		return nil, err
	}

	e.hub.Broadcast(map[string]interface{}{
		"type":       "bet_accepted",
		"session_id": sessionID,
		"user_id":    userID,
		"kind":       kind,
		"wager":      wager,
	})
	log.Printf("[ENGINE] User %s bet %d on %s/%d (session %s)", userID, wager, kind, target, sessionID)

	return session.Redacted(), nil
}

// ActiveSession returns the one non-terminal session, or nil.
func (e *Engine) ActiveSession(ctx context.Context) (*Session, error) {
	id, err := e.store.Active(ctx, ACTIVE_POINTER)
	if err != nil {
		return nil, fmt.Errorf("query active session: %w", err)
	}
	if id == "" {
		return nil, nil
	}
	var session Session
	if err := e.store.GetJSON(ctx, sessionKey(id), &session); err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return &session, nil
}

// Session loads a session by id, active or historical.
func (e *Engine) Session(ctx context.Context, id string) (*Session, error) {
	var session Session
	if err := e.store.GetJSON(ctx, sessionKey(id), &session); err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return &session, nil
}

// ensureActive returns the active session id, creating and arming a new
// session when none exists. The conditional pointer write keeps two racing
// instances from ever running two sessions at once.
func (e *Engine) ensureActive(ctx context.Context) (string, error) {
	id, err := e.store.Active(ctx, ACTIVE_POINTER)
	if err != nil {
		return "", fmt.Errorf("query active session: %w", err)
	}
	if id != "" {
		return id, nil
	}

	serverSeed := GenerateSeed()
	session := &Session{
		ID:         uuid.New().String(),
		StartedAt:  time.Now(),
		Phase:      PhaseTakingBets,
		Outcome:    NoOutcome,
		ServerSeed: serverSeed,
		ClientSeed: GenerateSeed(),
		Commitment: HashCommitment(serverSeed),
		Nonce:      1,
	}
	if err := e.store.PutJSON(ctx, sessionKey(session.ID), session); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	won, err := e.store.SetActiveNX(ctx, ACTIVE_POINTER, session.ID)
	if err != nil {
		return "", fmt.Errorf("install active session: %w", err)
	}
	if !won {
		// Another instance created the session first; use theirs.
		id, err := e.store.Active(ctx, ACTIVE_POINTER)
		if err != nil || id == "" {
			return "", fmt.Errorf("active session vanished mid-create: %w", err)
		}
		return id, nil
	}

	e.armPhase(ctx, session)
	e.hub.Broadcast(map[string]interface{}{
		"type":       "session_start",
		"session_id": session.ID,
		"phase":      session.Phase.String(),
		"commitment": session.Commitment,
	})
	log.Printf("[ENGINE] Session %s started (commitment %s...)", session.ID, session.Commitment[:16])

	return session.ID, nil
}

// Advance applies the single valid transition out of `from` to the given
// session. It is idempotent: a duplicate notification for a session that
// has already moved on is a no-op. The scheduler is the normal caller.
func (e *Engine) Advance(ctx context.Context, sessionID string, from Phase) (*Session, error) {
	if from >= PhaseFinished {
		return e.Session(ctx, sessionID)
	}
	if from == PhaseWaiting {
		return e.finish(ctx, sessionID)
	}

	var session Session
	err := e.store.UpdateJSON(ctx, sessionKey(sessionID), &session, func() error {
		if session.Phase != from {
			return errStale
		}
		switch from {
		case PhaseTakingBets:
			session.Phase = PhaseNoMoreBets
		case PhaseNoMoreBets:
			// The one and only random draw.
			session.Outcome = DrawPocket(session.ServerSeed, session.ClientSeed, session.Nonce)
			session.Phase = PhaseSpinning
		case PhaseSpinning:
			session.Results = GradeAll(session.Bets, session.Outcome)
			session.Phase = PhaseWaiting
		}
		return nil
	})
	if errors.Is(err, errStale) {
		log.Printf("[ENGINE] Duplicate advance for session %s at %s ignored", sessionID, from)
		return &session, nil
	}
	if err != nil {
		return nil, fmt.Errorf("advance session %s from %s: %w", sessionID, from, err)
	}

	e.armPhase(ctx, &session)
	e.broadcastPhase(&session)
	log.Printf("[ENGINE] Session %s: %s -> %s", sessionID, from, session.Phase)

	return &session, nil
}

// Finish settles the active session on demand. Only valid while the
// session is waiting for settlement.
func (e *Engine) Finish(ctx context.Context) (*Session, error) {
	id, err := e.store.Active(ctx, ACTIVE_POINTER)
	if err != nil {
		return nil, fmt.Errorf("query active session: %w", err)
	}
	if id == "" {
		return nil, ErrNoActiveSession
	}
	session, err := e.Session(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Phase != PhaseWaiting {
		return nil, ErrSettlementNotReady
	}
	return e.finish(ctx, id)
}

// finish pays out and marks the session terminal. Payouts run before the
// phase flips to finished; the wallet's per-(session,user) idempotency
// makes a crashed retry safe.
func (e *Engine) finish(ctx context.Context, sessionID string) (*Session, error) {
	session, err := e.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Phase != PhaseWaiting {
		log.Printf("[ENGINE] Duplicate finish for session %s at %s ignored", sessionID, session.Phase)
		return session, nil
	}

	e.settle(ctx, session)

	var updated Session
	err = e.store.UpdateJSON(ctx, sessionKey(sessionID), &updated, func() error {
		if updated.Phase != PhaseWaiting {
			return errStale
		}
		updated.Phase = PhaseFinished
		return nil
	})
	if errors.Is(err, errStale) {
		return &updated, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finish session %s: %w", sessionID, err)
	}

	if err := e.store.ReleaseActive(ctx, ACTIVE_POINTER, sessionID); err != nil {
		log.Printf("[ENGINE] Release active pointer for %s: %v", sessionID, err)
	}

	e.broadcastPhase(&updated)
	log.Printf("[ENGINE] Session %s finished (outcome %d, %d bets)", sessionID, updated.Outcome, len(updated.Bets))

	return &updated, nil
}

// settle credits every participant what the results owe them. One failed
// credit never blocks the others; each is logged and left to the wallet's
// idempotency on retry.
func (e *Engine) settle(ctx context.Context, session *Session) {
	ref := "roulette:" + session.ID
	for _, userID := range session.Participants() {
		owed := OweTo(session.Results, userID)
		if err := e.wallet.Pay(ctx, ref, userID, owed); err != nil {
			log.Printf("[ENGINE] Payout of %d to user %s failed: %v", owed, userID, err)
			continue
		}
		wagered := TotalWagered(session.Bets, userID)
		if owed > 0 {
			e.hub.Broadcast(map[string]interface{}{
				"type":       "payout",
				"session_id": session.ID,
				"user_id":    userID,
				"wagered":    wagered,
				"amount":     owed,
			})
		}
		log.Printf("[ENGINE] Settled user %s: wagered %d, paid %d (session %s)", userID, wagered, owed, session.ID)
	}
}

func (e *Engine) armPhase(ctx context.Context, session *Session) {
	ttl := PhaseDuration(session.Phase)
	if ttl <= 0 {
		return
	}
	token := TimerToken(session.ID, session.Phase)
	won, err := e.store.Arm(ctx, token, ttl)
	if err != nil {
		log.Printf("[ENGINE] Arm timer %s: %v", token, err)
		return
	}
	if won {
		log.Printf("[ENGINE] Armed %s for %s", token, ttl)
	}
}

func (e *Engine) broadcastPhase(session *Session) {
	msg := map[string]interface{}{
		"type":       "phase_change",
		"session_id": session.ID,
		"phase":      session.Phase.String(),
	}
	if session.Phase >= PhaseWaiting {
		msg["outcome"] = session.Outcome
		msg["server_seed"] = session.ServerSeed
	}
	e.hub.Broadcast(msg)
}
