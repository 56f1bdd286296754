// Package memory is an in-process record store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/elo-ledger/internal/domain"
)

// Store keeps every record in maps guarded by one mutex, which also
// serializes profile updates.
type Store struct {
	mu       sync.RWMutex
	profiles map[domain.Identity]domain.Profile
	results  []domain.GameResult
	claims   []domain.RewardClaim
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		profiles: make(map[domain.Identity]domain.Profile),
	}
}

func (s *Store) CreateProfile(ctx context.Context, profile domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[profile.Owner]; ok {
		return domain.ErrProfileExists
	}
	s.profiles[profile.Owner] = profile
	return nil
}

func (s *Store) GetProfile(ctx context.Context, owner domain.Identity) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[owner]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return &p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, owner domain.Identity, fn func(*domain.Profile) error) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[owner]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	// fn works on a copy so a failed callback leaves the stored record intact
	if err := fn(&p); err != nil {
		return nil, err
	}
	s.profiles[owner] = p
	return &p, nil
}

func (s *Store) RecordGame(ctx context.Context, owner domain.Identity, fn func(*domain.Profile) (*domain.GameResult, error)) (*domain.Profile, *domain.GameResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[owner]
	if !ok {
		return nil, nil, domain.ErrProfileNotFound
	}
	result, err := fn(&p)
	if err != nil {
		return nil, nil, err
	}
	s.profiles[owner] = p
	s.results = append(s.results, *result)
	return &p, result, nil
}

func (s *Store) InsertGameResult(ctx context.Context, result domain.GameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, result)
	return nil
}

func (s *Store) InsertRewardClaim(ctx context.Context, claim domain.RewardClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.claims = append(s.claims, claim)
	return nil
}

// ListGameResults returns the newest results first
func (s *Store) ListGameResults(ctx context.Context, player domain.Identity, limit int) ([]domain.GameResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.GameResult
	for i := len(s.results) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.results[i].Player == player {
			out = append(out, s.results[i])
		}
	}
	return out, nil
}

// ListRewardClaims returns the newest claims first
func (s *Store) ListRewardClaims(ctx context.Context, player domain.Identity, limit int) ([]domain.RewardClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.RewardClaim
	for i := len(s.claims) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.claims[i].Player == player {
			out = append(out, s.claims[i])
		}
	}
	return out, nil
}

// ListProfiles returns every profile ordered by creation time
func (s *Store) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
