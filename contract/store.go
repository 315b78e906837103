package contract

import "context"

// Store persists payment contracts.
type Store interface {
	GetContract(ctx context.Context, id uint64) (*Contract, error)
	PutContract(ctx context.Context, c *Contract) error
}
