package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/blockvault/blockvault/internal/models"
	"github.com/blockvault/blockvault/pkg/crypto"
)

// ErrWalletNotFound indicates no wallet matches the supplied identifier.
var ErrWalletNotFound = errors.New("wallet: not found")

// defaultCoins are the wallets seeded for every new account.
var defaultCoins = []struct {
	Symbol string
	Name   string
}{
	{Symbol: "BTC", Name: "Bitcoin"},
	{Symbol: "ETH", Name: "Ethereum"},
	{Symbol: "USDT", Name: "Tether"},
}

// WalletService exposes per-user wallet balances.
type WalletService struct {
	db *gorm.DB
}

// NewWalletService constructs a wallet service.
func NewWalletService(db *gorm.DB) (*WalletService, error) {
	if db == nil {
		return nil, errors.New("wallet service: db is required")
	}
	return &WalletService{db: db}, nil
}

// ListByUser returns the user's wallets ordered by coin symbol.
func (s *WalletService) ListByUser(ctx context.Context, userID string) ([]models.Wallet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("wallet service: user id is required")
	}

	var wallets []models.Wallet
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("symbol ASC").
		Find(&wallets).Error; err != nil {
		return nil, fmt.Errorf("wallet service: list wallets: %w", err)
	}
	return wallets, nil
}

// GetBySymbol returns one wallet belonging to the user.
func (s *WalletService) GetBySymbol(ctx context.Context, userID, symbol string) (*models.Wallet, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, ErrWalletNotFound
	}

	var wallet models.Wallet
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ?", strings.TrimSpace(userID), symbol).
		Take(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("wallet service: find wallet: %w", err)
	}
	return &wallet, nil
}

// seedDefaultWallets creates zero-balance wallets for a freshly registered user.
func seedDefaultWallets(tx *gorm.DB, userID string) error {
	wallets := make([]models.Wallet, 0, len(defaultCoins))
	for _, coin := range defaultCoins {
		address, err := crypto.GenerateToken(20)
		if err != nil {
			return fmt.Errorf("wallet service: generate address: %w", err)
		}
		wallets = append(wallets, models.Wallet{
			UserID:  userID,
			Symbol:  coin.Symbol,
			Name:    coin.Name,
			Address: address,
		})
	}

	if err := tx.Create(&wallets).Error; err != nil {
		return fmt.Errorf("wallet service: seed wallets: %w", err)
	}
	return nil
}
