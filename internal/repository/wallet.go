package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dungeon-run-backend/internal/model"
)

// WalletRepository handles persistent currency balances.
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository creates a new WalletRepository instance.
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

// Get returns the user's wallet, zeroed if no row exists yet.
func (r *WalletRepository) Get(ctx context.Context, userID string) (*model.Wallet, error) {
	const query = `SELECT user_id, coins, dust FROM currencies WHERE user_id = $1`

	var w model.Wallet
	err := r.pool.QueryRow(ctx, query, userID).Scan(&w.UserID, &w.Coins, &w.Dust)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.Wallet{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}

// Credit atomically adds the given amounts and returns the new balances.
// Runs inside the claim transaction so a failed claim credits nothing.
func (r *WalletRepository) Credit(ctx context.Context, q Querier, userID string, coins, dust int64) (*model.Wallet, error) {
	const query = `
		INSERT INTO currencies (user_id, coins, dust)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			coins = currencies.coins + EXCLUDED.coins,
			dust = currencies.dust + EXCLUDED.dust
		RETURNING user_id, coins, dust
	`

	var w model.Wallet
	err := q.QueryRow(ctx, query, userID, coins, dust).Scan(&w.UserID, &w.Coins, &w.Dust)
	if err != nil {
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}
	return &w, nil
}
