package roulette

// Bet ledger aggregations over a session's wagers and graded results.

// ByKind partitions bets into the seven kind buckets, preserving placement
// order within each bucket.
func ByKind(bets []Bet) map[BetKind][]Bet {
	buckets := make(map[BetKind][]Bet)
	for _, b := range bets {
		buckets[b.Kind] = append(buckets[b.Kind], b)
	}
	return buckets
}

// OweTo sums stake plus reward over the user's winning bets. Losing bets
// contribute nothing: the wager was already debited when the bet was
// placed, so no further charge or credit applies.
func OweTo(results []DeterminedBet, userID string) int64 {
	var owed int64
	for _, r := range results {
		if r.UserID == userID && r.Reward > 0 {
			owed += r.Wager + r.Reward
		}
	}
	return owed
}

// TotalWagered sums every wager a user has placed in the session.
func TotalWagered(bets []Bet, userID string) int64 {
	var total int64
	for _, b := range bets {
		if b.UserID == userID {
			total += b.Wager
		}
	}
	return total
}
