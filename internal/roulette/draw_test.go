package roulette

import "testing"

func TestDrawPocket(t *testing.T) {
	t.Run("result within pocket range", func(t *testing.T) {
		for nonce := 1; nonce <= 200; nonce++ {
			pocket := DrawPocket("seed1", "seed2", nonce)
			if pocket < 0 || pocket >= POCKET_COUNT {
				t.Errorf("nonce %d: pocket %d out of range [0, %d)", nonce, pocket, POCKET_COUNT)
			}
		}
	})

	t.Run("deterministic for fixed seeds", func(t *testing.T) {
		first := DrawPocket("seed1", "seed2", 1)
		second := DrawPocket("seed1", "seed2", 1)
		if first != second {
			t.Error("draw should be deterministic")
		}
	})

	t.Run("different nonces vary the pocket", func(t *testing.T) {
		seen := make(map[int]bool)
		for nonce := 1; nonce <= 100; nonce++ {
			seen[DrawPocket("seed1", "seed2", nonce)] = true
		}
		if len(seen) < 2 {
			t.Error("100 nonces should hit more than one pocket")
		}
	})
}

func TestSeedCommitment(t *testing.T) {
	t.Run("seed is 32 random bytes hex encoded", func(t *testing.T) {
		seed := GenerateSeed()
		if len(seed) != 64 {
			t.Errorf("seed length = %d, want 64", len(seed))
		}
		if seed == GenerateSeed() {
			t.Error("two generated seeds should differ")
		}
	})

	t.Run("commitment is stable per seed", func(t *testing.T) {
		if HashCommitment("abc") != HashCommitment("abc") {
			t.Error("commitment should be deterministic")
		}
		if HashCommitment("abc") == HashCommitment("abd") {
			t.Error("different seeds should commit differently")
		}
	})
}

func TestVerifyDraw(t *testing.T) {
	pocket := DrawPocket("server", "client", 7)

	if !VerifyDraw("server", "client", 7, pocket) {
		t.Error("genuine draw should verify")
	}
	if VerifyDraw("server", "client", 7, (pocket+1)%POCKET_COUNT) {
		t.Error("wrong pocket should not verify")
	}
	if VerifyDraw("other", "client", 7, pocket) && DrawPocket("other", "client", 7) != pocket {
		t.Error("wrong seed should not verify")
	}
}
