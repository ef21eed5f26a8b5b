package credentials

import (
	"sync"

	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/jrsteele09/go-mcp-auth/oauthmodel"
)

// InMemoryRepo is a thread-safe Repo that does not outlive the process
type InMemoryRepo struct {
	mu     sync.RWMutex
	record oauthmodel.Registration
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{}
}

func (r *InMemoryRepo) Load() (oauthmodel.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.record == nil {
		return nil, apperrors.ErrNotFound
	}
	// Return a copy to prevent external modifications
	return r.record.Clone(), nil
}

func (r *InMemoryRepo) Save(reg oauthmodel.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record = reg.Clone()
	return nil
}

func (r *InMemoryRepo) Delete() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record = nil
	return nil
}
