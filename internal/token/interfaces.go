package token

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"
)

// Client abstracts the three contract capabilities the gateway relays.
type Client interface {
	// Mint submits mint(buyer, orderID) and blocks until the transaction is mined.
	Mint(ctx context.Context, buyer, orderID string) (*types.Receipt, error)
	OwnerOf(ctx context.Context, tokenID string) (string, error)
	TokenMetadata(ctx context.Context, tokenID string) (string, error)
}

// HealthChecker is implemented by clients that can ping their RPC node.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
