package credentials

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/jrsteele09/go-mcp-auth/oauthmodel"
	"github.com/rs/zerolog/log"
)

// ClientCredentials are what the introspector and the token relay need from the registration.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// RegisterFunc performs a dynamic client registration against the authorization server.
type RegisterFunc func(ctx context.Context) (oauthmodel.Registration, error)

// Store is the single in-process source of truth for the registered client. One Store is
// shared by the registration route, the introspector and the token relay.
type Store struct {
	repo Repo

	mu     sync.RWMutex
	record oauthmodel.Registration

	// registerMu serialises load-or-register so concurrent registrations create one client.
	registerMu sync.Mutex
}

func NewStore(repo Repo) *Store {
	return &Store{repo: repo}
}

// Load reads a previously persisted registration. It reports whether one was found.
func (s *Store) Load() (bool, error) {
	reg, err := s.repo.Load()
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if reg.ClientID() == "" {
		return false, fmt.Errorf("[credentials Store.Load] %w: %w", apperrors.ErrCorruptCredentials, oauthmodel.ErrMissingClientID)
	}

	s.mu.Lock()
	s.record = reg.WithoutManagementArtifacts()
	s.mu.Unlock()

	log.Info().Str("client_id", reg.ClientID()).Msg("Loaded persisted client credentials")
	return true, nil
}

// Get returns the active credentials, if a client is registered.
func (s *Store) Get() (ClientCredentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.record == nil {
		return ClientCredentials{}, false
	}
	return ClientCredentials{
		ClientID:     s.record.ClientID(),
		ClientSecret: s.record.ClientSecret(),
	}, true
}

// Record returns a copy of the full active registration record.
func (s *Store) Record() (oauthmodel.Registration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.record == nil {
		return nil, false
	}
	return s.record.Clone(), true
}

// Set replaces the active registration and persists it without the registration
// management token and URI. The in-memory value is updated even when persisting fails.
func (s *Store) Set(reg oauthmodel.Registration) error {
	if reg.ClientID() == "" {
		return oauthmodel.ErrMissingClientID
	}
	clean := reg.WithoutManagementArtifacts()

	s.mu.Lock()
	s.record = clean
	s.mu.Unlock()

	if err := s.repo.Save(clean); err != nil {
		return fmt.Errorf("[credentials Store.Set] persist client %s: %w", clean.ClientID(), err)
	}
	return nil
}

// LoadOrRegister returns the existing registration, or calls register and stores its
// result. existed reports whether registration was skipped. Concurrent callers are
// serialised so at most one upstream registration happens. A corrupt persisted record is
// treated as absent and overwritten by the new registration.
func (s *Store) LoadOrRegister(ctx context.Context, register RegisterFunc) (reg oauthmodel.Registration, existed bool, err error) {
	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	if rec, ok := s.Record(); ok {
		return rec, true, nil
	}
	// Another process may have registered since startup
	found, err := s.Load()
	switch {
	case apperrors.Is(err, apperrors.ErrCorruptCredentials):
		log.Warn().Err(err).Msg("Replacing corrupt client credentials with a new registration")
	case err != nil:
		return nil, false, err
	case found:
		rec, _ := s.Record()
		return rec, true, nil
	}

	reg, err = register(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := s.Set(reg); err != nil {
		if apperrors.Is(err, oauthmodel.ErrMissingClientID) {
			return nil, false, err
		}
		log.Err(err).Msg("Registered client could not be persisted")
		rec, _ := s.Record()
		return rec, false, err
	}

	rec, _ := s.Record()
	log.Info().Str("client_id", rec.ClientID()).Msg("Registered new client")
	return rec, false, nil
}

// Reset forgets the active client and deletes the persisted record.
func (s *Store) Reset() error {
	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	s.mu.Lock()
	s.record = nil
	s.mu.Unlock()

	return s.repo.Delete()
}
