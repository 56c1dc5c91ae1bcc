package store

import (
	"context"
	"database/sql"
	"fmt"

	"storefront/internal/models"
)

// GetWalletEntry retrieves a ledger entry by order id.
// Returns (nil, nil) when no row exists.
func (s *Store) GetWalletEntry(ctx context.Context, orderID string) (*models.WalletLedgerEntry, error) {
	var entry models.WalletLedgerEntry
	err := s.db.GetContext(ctx, &entry,
		"SELECT * FROM wallet_ledger WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// CreditWallet inserts a ledger entry and increments the admin balance in
// one transaction. The primary key on order_id closes the double-credit
// race: a concurrent insert fails with ErrDuplicateKey and the balance is
// untouched because the whole transaction rolls back.
func (s *Store) CreditWallet(ctx context.Context, entry *models.WalletLedgerEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO wallet_ledger (order_id, admin_id, amount)
		VALUES ($1, $2, $3)
		RETURNING credited_at`,
		entry.OrderID, entry.AdminID, entry.Amount,
	).Scan(&entry.CreditedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert wallet entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO admin_wallets (admin_id, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (admin_id)
		DO UPDATE SET balance = admin_wallets.balance + EXCLUDED.balance, updated_at = NOW()`,
		entry.AdminID, entry.Amount)
	if err != nil {
		return fmt.Errorf("failed to credit admin wallet: %w", err)
	}

	return tx.Commit()
}

// GetWalletBalance retrieves the running balance for an admin
func (s *Store) GetWalletBalance(ctx context.Context, adminID string) (int64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance,
		"SELECT balance FROM admin_wallets WHERE admin_id = $1", adminID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
