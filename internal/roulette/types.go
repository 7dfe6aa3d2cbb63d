package roulette

import (
	"errors"
	"fmt"
	"time"
)

// Phase is a step in the session state machine. Phases only ever move
// forward: TakingBets < NoMoreBets < Spinning < Waiting < Finished.
type Phase int

const (
	PhaseTakingBets Phase = iota
	PhaseNoMoreBets
	PhaseSpinning
	PhaseWaiting
	PhaseFinished
)

var phaseNames = map[Phase]string{
	PhaseTakingBets: "taking-bets",
	PhaseNoMoreBets: "no-more-bets",
	PhaseSpinning:   "spinning",
	PhaseWaiting:    "waiting",
	PhaseFinished:   "finished",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// PhaseFromName maps a phase name back to its Phase, used when parsing
// timer tokens.
func PhaseFromName(name string) (Phase, bool) {
	for p, n := range phaseNames {
		if n == name {
			return p, true
		}
	}
	return 0, false
}

// Next returns the single valid successor phase. Finished has none.
func (p Phase) Next() (Phase, bool) {
	if p >= PhaseFinished {
		return p, false
	}
	return p + 1, true
}

type BetKind string

const (
	KindStraightUp BetKind = "straight-up"
	KindLine       BetKind = "line"
	KindColumn     BetKind = "column"
	KindDozen      BetKind = "dozen"
	KindEvenOdd    BetKind = "even-odd"
	KindRedBlack   BetKind = "red-black"
	KindHighLow    BetKind = "high-low"
)

// Targets for the even-money kinds.
const (
	TargetEven = 0
	TargetOdd  = 1

	TargetRed   = 0
	TargetBlack = 1

	TargetLow  = 0
	TargetHigh = 1
)

// DoubleZero is the 38th pocket. It belongs to no outside-bet group, so
// every bet except a matching straight-up loses on it.
const DoubleZero = 37

// NoOutcome is the Outcome sentinel before the wheel has been spun.
const NoOutcome = -1

var (
	ErrNoActiveSession    = errors.New("no active session")
	ErrBettingClosed      = errors.New("betting is closed")
	ErrSettlementNotReady = errors.New("settlement not ready")
)

// Bet is a placed wager. Wager is in the smallest currency unit.
type Bet struct {
	Kind     BetKind   `json:"kind"`
	Target   int       `json:"target"`
	UserID   string    `json:"user_id"`
	Wager    int64     `json:"wager"`
	PlacedAt time.Time `json:"placed_at"`
}

// DeterminedBet is a placed bet annotated with its graded reward.
// Reward is 0 for a losing bet and wager x multiplier for a winning one.
type DeterminedBet struct {
	Bet
	Reward int64 `json:"reward"`
}

// Session is the shared wheel-game round. It is persisted as a whole and
// mutated only through read-modify-write against the session store.
type Session struct {
	ID        string          `json:"id"`
	StartedAt time.Time       `json:"started_at"`
	Phase     Phase           `json:"phase"`
	Bets      []Bet           `json:"bets"`
	Results   []DeterminedBet `json:"results,omitempty"`

	// Outcome is drawn exactly once, on the no-more-bets -> spinning
	// transition, and never overwritten.
	Outcome int `json:"outcome"`

	// Provably fair draw material. ServerSeed stays server-side until the
	// spin stops; Commitment is published at creation.
	ServerSeed string `json:"server_seed,omitempty"`
	ClientSeed string `json:"client_seed,omitempty"`
	Commitment string `json:"commitment"`
	Nonce      int    `json:"nonce"`
}

// Participants returns the distinct bettors in first-bet order.
func (s *Session) Participants() []string {
	seen := make(map[string]bool, len(s.Bets))
	var users []string
	for _, b := range s.Bets {
		if !seen[b.UserID] {
			seen[b.UserID] = true
			users = append(users, b.UserID)
		}
	}
	return users
}

// Redacted returns a copy safe to hand to clients: the server seed stays
// hidden until the spin has stopped, and so does the drawn pocket.
func (s *Session) Redacted() *Session {
	view := *s
	if s.Phase < PhaseWaiting {
		view.ServerSeed = ""
		view.Outcome = NoOutcome
	}
	return &view
}

// ValidateBet checks that the target is in range for the kind.
func ValidateBet(kind BetKind, target int) error {
	switch kind {
	case KindStraightUp:
		// DoubleZero is a legal straight-up target.
		if target < 0 || target > DoubleZero {
			return fmt.Errorf("straight-up target must be a pocket, got %d", target)
		}
	case KindLine:
		if target < 1 || target > 6 {
			return fmt.Errorf("line target must be 1-6, got %d", target)
		}
	case KindColumn, KindDozen:
		if target < 1 || target > 3 {
			return fmt.Errorf("%s target must be 1-3, got %d", kind, target)
		}
	case KindEvenOdd, KindRedBlack, KindHighLow:
		if target != 0 && target != 1 {
			return fmt.Errorf("%s target must be 0 or 1, got %d", kind, target)
		}
	default:
		return fmt.Errorf("unknown bet kind %q", kind)
	}
	return nil
}
