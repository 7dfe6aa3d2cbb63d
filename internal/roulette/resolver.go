package roulette

// Grading rules for an American wheel (pockets 0-36 plus double zero).
//
// The group tables below simply omit 0 and the double-zero pocket, so the
// zero pockets lose every outside bet without any special casing.

// Payout multipliers per kind. A winning bet's reward is wager x multiplier;
// settlement returns the stake on top of that.
var multipliers = map[BetKind]int64{
	KindStraightUp: 35,
	KindLine:       5,
	KindColumn:     2,
	KindDozen:      2,
	KindEvenOdd:    1,
	KindRedBlack:   1,
	KindHighLow:    1,
}

// Multiplier returns the payout multiplier for a bet kind (0 for unknown).
func Multiplier(kind BetKind) int64 {
	return multipliers[kind]
}

// redPockets is the fixed 18-number red assignment; the other 18 non-zero
// pockets are black.
var redPockets = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true,
	14: true, 16: true, 18: true, 19: true, 21: true, 23: true,
	25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

// lineOf returns which six-number line (1-6) a pocket belongs to, 0 for the
// zero pockets.
func lineOf(pocket int) int {
	if pocket < 1 || pocket > 36 {
		return 0
	}
	return (pocket-1)/6 + 1
}

// columnOf returns which column (1-3) a pocket belongs to, 0 for the zero
// pockets. Column n holds the pockets congruent to n mod 3.
func columnOf(pocket int) int {
	if pocket < 1 || pocket > 36 {
		return 0
	}
	if pocket%3 == 0 {
		return 3
	}
	return pocket % 3
}

// dozenOf returns which dozen (1-3) a pocket belongs to, 0 for the zero
// pockets.
func dozenOf(pocket int) int {
	if pocket < 1 || pocket > 36 {
		return 0
	}
	return (pocket-1)/12 + 1
}

// wins reports whether a bet on (kind, target) wins against the outcome.
func wins(kind BetKind, target, outcome int) bool {
	switch kind {
	case KindStraightUp:
		return target == outcome
	case KindLine:
		return lineOf(outcome) == target
	case KindColumn:
		return columnOf(outcome) == target
	case KindDozen:
		return dozenOf(outcome) == target
	case KindEvenOdd:
		if outcome < 1 || outcome > 36 {
			return false
		}
		if outcome%2 == 0 {
			return target == TargetEven
		}
		return target == TargetOdd
	case KindRedBlack:
		if outcome < 1 || outcome > 36 {
			return false
		}
		if redPockets[outcome] {
			return target == TargetRed
		}
		return target == TargetBlack
	case KindHighLow:
		if outcome < 1 || outcome > 36 {
			return false
		}
		if outcome > 18 {
			return target == TargetHigh
		}
		return target == TargetLow
	}
	return false
}

// Grade determines a single bet against the drawn outcome. Grading is pure
// and deterministic: the same bet and outcome always yield the same reward.
func Grade(bet Bet, outcome int) DeterminedBet {
	det := DeterminedBet{Bet: bet}
	if wins(bet.Kind, bet.Target, outcome) {
		det.Reward = bet.Wager * Multiplier(bet.Kind)
	}
	return det
}

// GradeAll grades every bet in placement order.
func GradeAll(bets []Bet, outcome int) []DeterminedBet {
	results := make([]DeterminedBet, len(bets))
	for i, b := range bets {
		results[i] = Grade(b, outcome)
	}
	return results
}
