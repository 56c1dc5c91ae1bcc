package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

// WalletStore is the slice of the store the ledger needs
type WalletStore interface {
	GetWalletEntry(ctx context.Context, orderID string) (*models.WalletLedgerEntry, error)
	CreditWallet(ctx context.Context, entry *models.WalletLedgerEntry) error
}

// WalletLedger applies admin balance credits with the same idempotency
// contract as order confirmation: at most one ledger entry per order id,
// closed by the storage-level primary key.
type WalletLedger struct {
	store  WalletStore
	logger *zap.Logger
}

func NewWalletLedger(walletStore WalletStore) *WalletLedger {
	return &WalletLedger{
		store:  walletStore,
		logger: util.GetLogger(),
	}
}

// Credit applies one balance credit. Returns the entry and whether this call
// created it; a repeated webhook for the same order id is a no-op that
// returns the original entry.
func (w *WalletLedger) Credit(ctx context.Context, orderID, adminID string, amount int64) (*models.WalletLedgerEntry, bool, error) {
	ctx, span := util.StartSpan(ctx, "WalletLedger.Credit")
	defer span.End()

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, false, validationErrorf("order id is required")
	}
	if adminID == "" {
		return nil, false, validationErrorf("admin id is required")
	}
	if amount <= 0 {
		return nil, false, validationErrorf("amount must be positive")
	}

	existing, err := w.store.GetWalletEntry(ctx, orderID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check wallet ledger: %w", err)
	}
	if existing != nil {
		w.logger.Info("Duplicate wallet credit resolved to existing entry",
			zap.String("order_id", orderID))
		util.WalletDuplicatesTotal.Inc()
		return existing, false, nil
	}

	entry := &models.WalletLedgerEntry{
		OrderID: orderID,
		AdminID: adminID,
		Amount:  amount,
	}

	err = w.store.CreditWallet(ctx, entry)
	if errors.Is(err, store.ErrDuplicateKey) {
		winner, ferr := w.store.GetWalletEntry(ctx, orderID)
		if ferr != nil || winner == nil {
			return nil, false, fmt.Errorf("failed to fetch wallet entry after lost race: %w", ferr)
		}
		util.WalletDuplicatesTotal.Inc()
		return winner, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to credit wallet: %w", err)
	}

	util.WalletCreditsTotal.Inc()
	w.logger.Info("Wallet credited",
		zap.String("order_id", orderID),
		zap.String("admin_id", adminID),
		zap.Int64("amount", amount))
	return entry, true, nil
}
