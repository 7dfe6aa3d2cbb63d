package roulette

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// POCKET_COUNT covers 0-36 plus the double-zero pocket.
const POCKET_COUNT = 38

// DrawPocket maps the seed pair and nonce to a pocket in [0, POCKET_COUNT)
// using HMAC-SHA256. This is the session's single source of randomness:
// the same seeds and nonce always reproduce the same pocket, which lets
// players verify the draw against the published commitment.
func DrawPocket(serverSeed, clientSeed string, nonce int) int {
	data := fmt.Sprintf("%s:%d", clientSeed, nonce)
	h := hmac.New(sha256.New, []byte(serverSeed))
	h.Write([]byte(data))
	hashHex := hex.EncodeToString(h.Sum(nil))

	// Take first 16 hex characters (64 bits)
	i := new(big.Int)
	i.SetString(hashHex[:16], 16)

	return int(new(big.Int).Mod(i, big.NewInt(POCKET_COUNT)).Int64())
}

// GenerateSeed creates a cryptographically secure random seed
func GenerateSeed() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// HashCommitment creates a SHA256 hash of the seed for commitment
func HashCommitment(seed string) string {
	h := sha256.New()
	h.Write([]byte(seed))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyDraw allows players to verify the fairness of a finished session.
func VerifyDraw(serverSeed, clientSeed string, nonce, claimedPocket int) bool {
	return DrawPocket(serverSeed, clientSeed, nonce) == claimedPocket
}
