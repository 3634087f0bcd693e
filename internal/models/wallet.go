package models

import "gorm.io/datatypes"

// Wallet represents a per-user balance for a single coin.
type Wallet struct {
	BaseModel

	UserID  string  `gorm:"type:uuid;not null;index:idx_wallet_user_symbol,unique" json:"user_id"`
	Symbol  string  `gorm:"not null;index:idx_wallet_user_symbol,unique" json:"symbol"`
	Name    string  `gorm:"not null" json:"name"`
	Address string  `json:"address"`
	Balance float64 `gorm:"default:0" json:"balance"`

	// Holdings carries coin-specific metadata (network, contract, staking
	// positions) as free-form JSON.
	Holdings datatypes.JSON `json:"holdings,omitempty"`
}
