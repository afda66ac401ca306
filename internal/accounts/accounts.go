// Package accounts exposes the authorization subsystem's remote-account
// handles. Token refresh and consent live elsewhere; this package only reads
// the resulting handles.
package accounts

import (
	"context"
	"fmt"
	"sync"

	"github.com/raphaelgruber/uplink/internal/models"
)

// Source yields the current list of usable remote-account handles.
type Source interface {
	Accounts(ctx context.Context) ([]models.Account, error)
}

// Static is a Source backed by a fixed account list, typically from the
// config file.
type Static struct {
	accounts []models.Account
}

// NewStatic creates a static account source.
func NewStatic(accounts []models.Account) *Static {
	return &Static{accounts: accounts}
}

// Accounts returns the configured accounts.
func (s *Static) Accounts(ctx context.Context) ([]models.Account, error) {
	out := make([]models.Account, len(s.accounts))
	copy(out, s.accounts)
	return out, nil
}

// Registry indexes accounts by handle for lookup while a batch is assembled.
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{accounts: make(map[string]models.Account)}
}

// Load replaces the registry contents from a source.
func (r *Registry) Load(ctx context.Context, src Source) error {
	accs, err := src.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = make(map[string]models.Account, len(accs))
	for _, a := range accs {
		r.accounts[a.ID] = a
	}
	return nil
}

// Get returns an account by handle.
func (r *Registry) Get(id string) (models.Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	return a, ok
}

// Resolve finds an account by handle or, failing that, by label. Labels are
// for humans; accepting them here is a CLI convenience only.
func (r *Registry) Resolve(key string) (models.Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.accounts[key]; ok {
		return a, true
	}
	for _, a := range r.accounts {
		if a.Label == key {
			return a, true
		}
	}
	return models.Account{}, false
}

// All returns every known account.
func (r *Registry) All() []models.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	return out
}
