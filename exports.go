package escrow

import "github.com/xraph/escrow/types"

// Re-export common types so callers don't have to import the types package.

// Amount is re-exported from types package.
type Amount = types.Amount

// Coin is re-exported from types package.
type Coin = types.Coin

// Coins is re-exported from types package.
type Coins = types.Coins

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export constructors
var (
	NewCoin     = types.NewCoin
	ParseAmount = types.ParseAmount
)
