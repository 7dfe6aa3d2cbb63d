package roulette

import (
	"testing"
)

func TestGrade_StraightUp(t *testing.T) {
	t.Run("matching pocket pays 35x", func(t *testing.T) {
		for outcome := 0; outcome < POCKET_COUNT; outcome++ {
			det := Grade(Bet{Kind: KindStraightUp, Target: outcome, UserID: "u1", Wager: 10}, outcome)
			if det.Reward != 350 {
				t.Errorf("outcome %d: reward = %d, want 350", outcome, det.Reward)
			}
		}
	})

	t.Run("non-matching pocket pays nothing", func(t *testing.T) {
		for outcome := 0; outcome < POCKET_COUNT; outcome++ {
			target := (outcome + 1) % 37
			det := Grade(Bet{Kind: KindStraightUp, Target: target, UserID: "u1", Wager: 10}, outcome)
			if det.Reward != 0 {
				t.Errorf("outcome %d target %d: reward = %d, want 0", outcome, target, det.Reward)
			}
		}
	})

	t.Run("double zero wins its own straight-up only", func(t *testing.T) {
		for target := 0; target <= 36; target++ {
			det := Grade(Bet{Kind: KindStraightUp, Target: target, UserID: "u1", Wager: 10}, DoubleZero)
			if det.Reward != 0 {
				t.Errorf("target %d: reward = %d, want 0", target, det.Reward)
			}
		}

		if err := ValidateBet(KindStraightUp, DoubleZero); err != nil {
			t.Fatalf("double zero must be a legal straight-up target: %v", err)
		}
		det := Grade(Bet{Kind: KindStraightUp, Target: DoubleZero, UserID: "u1", Wager: 10}, DoubleZero)
		if det.Reward != 350 {
			t.Errorf("double-zero straight-up on outcome %d: reward = %d, want 350", DoubleZero, det.Reward)
		}
	})
}

func TestGrade_EvenOdd(t *testing.T) {
	t.Run("exactly one parity bet wins per non-zero outcome", func(t *testing.T) {
		for outcome := 1; outcome <= 36; outcome++ {
			even := Grade(Bet{Kind: KindEvenOdd, Target: TargetEven, Wager: 10}, outcome)
			odd := Grade(Bet{Kind: KindEvenOdd, Target: TargetOdd, Wager: 10}, outcome)
			winners := 0
			if even.Reward > 0 {
				winners++
			}
			if odd.Reward > 0 {
				winners++
			}
			if winners != 1 {
				t.Errorf("outcome %d: %d parity winners, want 1", outcome, winners)
			}
		}
	})

	t.Run("zero pockets lose both parities", func(t *testing.T) {
		for _, outcome := range []int{0, DoubleZero} {
			for _, target := range []int{TargetEven, TargetOdd} {
				if det := Grade(Bet{Kind: KindEvenOdd, Target: target, Wager: 10}, outcome); det.Reward != 0 {
					t.Errorf("outcome %d target %d: reward = %d, want 0", outcome, target, det.Reward)
				}
			}
		}
	})

	t.Run("even money multiplier", func(t *testing.T) {
		det := Grade(Bet{Kind: KindEvenOdd, Target: TargetEven, Wager: 25}, 4)
		if det.Reward != 25 {
			t.Errorf("reward = %d, want 25", det.Reward)
		}
	})
}

func TestGrade_RedBlack(t *testing.T) {
	t.Run("18 red and 18 black pockets", func(t *testing.T) {
		reds, blacks := 0, 0
		for outcome := 1; outcome <= 36; outcome++ {
			if Grade(Bet{Kind: KindRedBlack, Target: TargetRed, Wager: 1}, outcome).Reward > 0 {
				reds++
			}
			if Grade(Bet{Kind: KindRedBlack, Target: TargetBlack, Wager: 1}, outcome).Reward > 0 {
				blacks++
			}
		}
		if reds != 18 || blacks != 18 {
			t.Errorf("reds = %d, blacks = %d, want 18/18", reds, blacks)
		}
	})

	t.Run("zero pockets lose both colors", func(t *testing.T) {
		for _, outcome := range []int{0, DoubleZero} {
			for _, target := range []int{TargetRed, TargetBlack} {
				if det := Grade(Bet{Kind: KindRedBlack, Target: target, Wager: 10}, outcome); det.Reward != 0 {
					t.Errorf("outcome %d: zero pocket won a color bet", outcome)
				}
			}
		}
	})

	t.Run("known red pockets", func(t *testing.T) {
		for _, outcome := range []int{1, 18, 19, 36} {
			if det := Grade(Bet{Kind: KindRedBlack, Target: TargetRed, Wager: 10}, outcome); det.Reward != 10 {
				t.Errorf("outcome %d: expected red win", outcome)
			}
		}
	})
}

func TestGrade_HighLow(t *testing.T) {
	tests := []struct {
		name    string
		outcome int
		target  int
		want    int64
	}{
		{"1 is low", 1, TargetLow, 10},
		{"18 is low", 18, TargetLow, 10},
		{"19 is high", 19, TargetHigh, 10},
		{"36 is high", 36, TargetHigh, 10},
		{"19 loses low", 19, TargetLow, 0},
		{"zero loses low", 0, TargetLow, 0},
		{"zero loses high", 0, TargetHigh, 0},
		{"double zero loses high", DoubleZero, TargetHigh, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := Grade(Bet{Kind: KindHighLow, Target: tt.target, Wager: 10}, tt.outcome)
			if det.Reward != tt.want {
				t.Errorf("reward = %d, want %d", det.Reward, tt.want)
			}
		})
	}
}

func TestGrade_Groups(t *testing.T) {
	t.Run("lines pay 5x", func(t *testing.T) {
		// Line 2 holds pockets 7-12.
		det := Grade(Bet{Kind: KindLine, Target: 2, Wager: 10}, 9)
		if det.Reward != 50 {
			t.Errorf("reward = %d, want 50", det.Reward)
		}
		if det := Grade(Bet{Kind: KindLine, Target: 2, Wager: 10}, 13); det.Reward != 0 {
			t.Error("pocket 13 should not be in line 2")
		}
	})

	t.Run("columns pay 2x", func(t *testing.T) {
		// Column 3 holds the multiples of three.
		for _, outcome := range []int{3, 6, 36} {
			det := Grade(Bet{Kind: KindColumn, Target: 3, Wager: 10}, outcome)
			if det.Reward != 20 {
				t.Errorf("outcome %d: reward = %d, want 20", outcome, det.Reward)
			}
		}
		if det := Grade(Bet{Kind: KindColumn, Target: 3, Wager: 10}, 1); det.Reward != 0 {
			t.Error("pocket 1 should be in column 1, not 3")
		}
	})

	t.Run("dozens pay 2x", func(t *testing.T) {
		det := Grade(Bet{Kind: KindDozen, Target: 2, Wager: 10}, 13)
		if det.Reward != 20 {
			t.Errorf("reward = %d, want 20", det.Reward)
		}
		if det := Grade(Bet{Kind: KindDozen, Target: 2, Wager: 10}, 25); det.Reward != 0 {
			t.Error("pocket 25 should be in dozen 3, not 2")
		}
	})

	t.Run("every non-zero pocket is in exactly one group per kind", func(t *testing.T) {
		for outcome := 1; outcome <= 36; outcome++ {
			for kind, max := range map[BetKind]int{KindLine: 6, KindColumn: 3, KindDozen: 3} {
				winners := 0
				for target := 1; target <= max; target++ {
					if Grade(Bet{Kind: kind, Target: target, Wager: 1}, outcome).Reward > 0 {
						winners++
					}
				}
				if winners != 1 {
					t.Errorf("outcome %d kind %s: %d winning groups, want 1", outcome, kind, winners)
				}
			}
		}
	})

	t.Run("zero pockets belong to no group", func(t *testing.T) {
		for _, outcome := range []int{0, DoubleZero} {
			for kind, max := range map[BetKind]int{KindLine: 6, KindColumn: 3, KindDozen: 3} {
				for target := 1; target <= max; target++ {
					if Grade(Bet{Kind: kind, Target: target, Wager: 1}, outcome).Reward > 0 {
						t.Errorf("outcome %d won %s group %d", outcome, kind, target)
					}
				}
			}
		}
	})
}

func TestGradeAll(t *testing.T) {
	bets := []Bet{
		{Kind: KindRedBlack, Target: TargetRed, UserID: "u1", Wager: 100},
		{Kind: KindStraightUp, Target: 17, UserID: "u2", Wager: 50},
		{Kind: KindHighLow, Target: TargetHigh, UserID: "u1", Wager: 30},
	}

	t.Run("preserves order and grades deterministically", func(t *testing.T) {
		first := GradeAll(bets, 17)
		second := GradeAll(bets, 17)

		if len(first) != len(bets) {
			t.Fatalf("results length = %d, want %d", len(first), len(bets))
		}
		for i := range first {
			if first[i] != second[i] {
				t.Errorf("grading not idempotent at index %d", i)
			}
			if first[i].Bet != bets[i] {
				t.Errorf("result %d does not carry its bet", i)
			}
		}
	})

	t.Run("pocket 17 outcome", func(t *testing.T) {
		results := GradeAll(bets, 17)
		// 17 is black, so the red bet loses.
		if results[0].Reward != 0 {
			t.Errorf("red bet reward = %d, want 0", results[0].Reward)
		}
		if results[1].Reward != 50*35 {
			t.Errorf("straight-up reward = %d, want %d", results[1].Reward, 50*35)
		}
		// 17 is low.
		if results[2].Reward != 0 {
			t.Errorf("high bet reward = %d, want 0", results[2].Reward)
		}
	})
}
