// Package memory provides process-local repositories. Accounts are kept as
// encoded documents so every read goes through the same decoding path as
// the durable stores.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/josegomez-dev/stellar-nexus-experience-sub000/internal/domain/account"
)

// AccountRepository implements account.Repository
type AccountRepository struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewAccountRepository creates a new account repository
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{docs: make(map[string][]byte)}
}

// SeedRaw stores a raw account document as is, legacy shapes included.
func (r *AccountRepository) SeedRaw(walletID string, doc []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[walletID] = append([]byte(nil), doc...)
}

// Read retrieves an account by wallet id
func (r *AccountRepository) Read(ctx context.Context, walletID string) (*account.Account, error) {
	r.mu.RLock()
	doc, ok := r.docs[walletID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var a account.Account
	if err := json.Unmarshal(doc, &a); err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", walletID, err)
	}
	a.Normalize()
	return &a, nil
}

// Create stores a new account
func (r *AccountRepository) Create(ctx context.Context, a *account.Account) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode account: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.docs[a.WalletID]; exists {
		return fmt.Errorf("account %s already exists", a.WalletID)
	}
	r.docs[a.WalletID] = doc
	return nil
}

// Write applies a partial update
func (r *AccountRepository) Write(ctx context.Context, walletID string, patch account.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[walletID]
	if !ok {
		return account.ErrNotFound
	}
	var a account.Account
	if err := json.Unmarshal(doc, &a); err != nil {
		return fmt.Errorf("failed to decode account %s: %w", walletID, err)
	}
	patch.Apply(&a)
	out, err := json.Marshal(&a)
	if err != nil {
		return fmt.Errorf("failed to encode account: %w", err)
	}
	r.docs[walletID] = out
	return nil
}
