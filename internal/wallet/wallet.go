package wallet

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
)

// Service is the account ledger: atomic balance debits and credits in the
// smallest currency unit, backed by postgres.
type Service struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Charge debits amount from the user's balance. The conditional update is
// the atomicity boundary: either the balance covered the wager and was
// decremented, or nothing changed and ErrInsufficientFunds comes back.
func (s *Service) Charge(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("charge amount must be positive, got %d", amount)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET balance = balance - $2
		WHERE user_id = $1
		  AND balance >= $2
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("charge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// Pay credits a settlement payout, idempotent per (ref, userID): the
// payout row is the dedupe record, and the credit lands only on its first
// insert. amount <= 0 is a no-op, never an error.
func (s *Service) Pay(ctx context.Context, ref, userID string, amount int64) error {
	if amount <= 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pay: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO payouts (session_id, user_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, user_id) DO NOTHING
	`, ref, userID, amount)
	if err != nil {
		return fmt.Errorf("pay: record payout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		log.Printf("[WALLET] Payout %s already issued to user %s, skipping", ref, userID)
		return nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("pay: credit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pay: commit: %w", err)
	}
	return nil
}

// Deposit credits the user unconditionally, creating the account on first
// use. Used for top-ups and for refunding a charge whose bet never landed.
func (s *Service) Deposit(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive, got %d", amount)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	return nil
}

// Balance returns the user's current balance.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx, `
		SELECT balance FROM accounts WHERE user_id = $1
	`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("balance: %w", err)
	}
	return balance, nil
}
