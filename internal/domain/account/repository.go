package account

import "context"

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

// Repository defines persistence for accounts. Read returns nil, nil when
// the wallet has no stored account.
type Repository interface {
	Read(ctx context.Context, walletID string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	Write(ctx context.Context, walletID string, patch Patch) error
}
