package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
)

// ErrResolution is returned when a wallet address cannot be looked up or its
// description is unusable.
var ErrResolution = errors.New("wallet resolution failed")

// Address is the resolved, validated description of a wallet.
type Address = openpayments.WalletAddress

// Directory looks up wallet descriptions.
type Directory interface {
	GetWalletAddress(ctx context.Context, id string) (*openpayments.WalletAddress, error)
}

// Resolver performs one authenticated lookup per call and never caches.
type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

func (r *Resolver) Resolve(ctx context.Context, id string) (*Address, error) {
	id = openpayments.NormalizeWalletAddress(id)
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty wallet address", ErrResolution)
	}

	addr, err := r.dir.GetWalletAddress(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResolution, id, err)
	}
	if err := addr.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResolution, id, err)
	}
	return addr, nil
}
