package roulette

import (
	"context"
	"log"
	"strings"
	"time"
)

const (
	TAKING_BETS_TIME  = 30 * time.Second
	NO_MORE_BETS_TIME = 5 * time.Second
	SPINNING_TIME     = 10 * time.Second
	WAITING_TIME      = 5 * time.Second

	// POLL_INTERVAL bounds how long a session can stall when the
	// expiration channel drops notifications.
	POLL_INTERVAL = 5 * time.Second

	TIMER_TOKEN_PREFIX = "roulette:"
)

// PhaseDuration returns how long a session sits in a phase before the
// scheduler moves it on. Finished has no duration.
func PhaseDuration(p Phase) time.Duration {
	switch p {
	case PhaseTakingBets:
		return TAKING_BETS_TIME
	case PhaseNoMoreBets:
		return NO_MORE_BETS_TIME
	case PhaseSpinning:
		return SPINNING_TIME
	case PhaseWaiting:
		return WAITING_TIME
	}
	return 0
}

// TimerToken names the distributed timer for one session phase, e.g.
// "roulette:3f2a...@taking-bets". The token is set once with a TTL equal
// to the phase duration; its expiration is the advance signal.
func TimerToken(sessionID string, phase Phase) string {
	return TIMER_TOKEN_PREFIX + sessionID + "@" + phase.String()
}

// ParseTimerToken inverts TimerToken. ok is false for tokens belonging to
// other games or malformed ones.
func ParseTimerToken(token string) (sessionID string, phase Phase, ok bool) {
	rest, found := strings.CutPrefix(token, TIMER_TOKEN_PREFIX)
	if !found {
		return "", 0, false
	}
	id, name, found := strings.Cut(rest, "@")
	if !found || id == "" {
		return "", 0, false
	}
	p, ok := PhaseFromName(name)
	if !ok {
		return "", 0, false
	}
	return id, p, true
}

// TriggerSource delivers expired timer tokens. Exactly one notification is
// expected per token system-wide; duplicates are harmless because Advance
// checks the session's phase first.
type TriggerSource interface {
	Subscribe(ctx context.Context) (<-chan string, error)
}

// Scheduler drives sessions through their phases off timer expirations.
// Any number of instances may run; the store-backed tokens and the
// engine's phase guard keep each transition to exactly one application.
type Scheduler struct {
	engine   *Engine
	triggers TriggerSource
}

func NewScheduler(engine *Engine, triggers TriggerSource) *Scheduler {
	return &Scheduler{engine: engine, triggers: triggers}
}

// Run blocks until ctx is cancelled. It must live on its own goroutine;
// the waits here are the system's only long-lived suspension point.
func (s *Scheduler) Run(ctx context.Context) {
	tokens, err := s.triggers.Subscribe(ctx)
	if err != nil {
		// Degrade to polling rather than stalling sessions forever.
		log.Printf("[SCHEDULER] Expiration subscribe failed, poll-only mode: %v", err)
		tokens = nil
	}

	ticker := time.NewTicker(POLL_INTERVAL)
	defer ticker.Stop()

	log.Println("[SCHEDULER] Running")
	for {
		select {
		case <-ctx.Done():
			log.Println("[SCHEDULER] Stopped")
			return
		case token, open := <-tokens:
			if !open {
				log.Println("[SCHEDULER] Expiration channel closed, poll-only mode")
				tokens = nil
				continue
			}
			s.handleExpiry(ctx, token)
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Scheduler) handleExpiry(ctx context.Context, token string) {
	sessionID, phase, ok := ParseTimerToken(token)
	if !ok {
		return
	}
	if _, err := s.engine.Advance(ctx, sessionID, phase); err != nil {
		// Transient store trouble; the poll tick retries the transition.
		log.Printf("[SCHEDULER] Advance %s from %s failed: %v", sessionID, phase, err)
	}
}

// poll is the liveness fallback: if the active session's timer token has
// expired without a delivered notification, advance it here.
func (s *Scheduler) poll(ctx context.Context) {
	session, err := s.engine.ActiveSession(ctx)
	if err != nil {
		log.Printf("[SCHEDULER] Poll: %v", err)
		return
	}
	if session == nil || session.Phase >= PhaseFinished {
		return
	}

	armed, err := s.engine.store.TimerExists(ctx, TimerToken(session.ID, session.Phase))
	if err != nil {
		log.Printf("[SCHEDULER] Poll timer check: %v", err)
		return
	}
	if armed {
		return
	}

	log.Printf("[SCHEDULER] Poll fallback advancing session %s from %s", session.ID, session.Phase)
	if _, err := s.engine.Advance(ctx, session.ID, session.Phase); err != nil {
		log.Printf("[SCHEDULER] Poll advance failed: %v", err)
	}
}
