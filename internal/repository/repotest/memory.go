// Package repotest provides in-memory repository implementations with the
// same atomicity guarantees as the GORM ones. One mutex guards all tables so
// multi-table operations behave like a transaction.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"campusnotes/internal/model"
	"campusnotes/internal/repository"
)

// Store holds every table.
type Store struct {
	mu      sync.Mutex
	users   map[uuid.UUID]model.User
	refresh map[uuid.UUID]model.RefreshToken
	resets  map[uuid.UUID]model.PasswordResetRequest
	now     func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:   make(map[uuid.UUID]model.User),
		refresh: make(map[uuid.UUID]model.RefreshToken),
		resets:  make(map[uuid.UUID]model.PasswordResetRequest),
		now:     time.Now,
	}
}

// Users returns the user table.
func (s *Store) Users() repository.UserRepository { return (*users)(s) }

// RefreshTokens returns the refresh token table.
func (s *Store) RefreshTokens() repository.RefreshTokenRepository { return (*refreshTokens)(s) }

// PasswordResets returns the password reset table.
func (s *Store) PasswordResets() repository.PasswordResetRepository { return (*passwordResets)(s) }

// RefreshTokensOf returns the refresh token rows of a user.
func (s *Store) RefreshTokensOf(userID uuid.UUID) []model.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RefreshToken
	for _, t := range s.refresh {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// ResetRequestsOf returns the reset requests of a user, oldest first.
func (s *Store) ResetRequestsOf(userID uuid.UUID) []model.PasswordResetRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PasswordResetRequest
	for _, r := range s.resets {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ExpireResetRequests moves the expiry of every reset request of userID to the past.
func (s *Store) ExpireResetRequests(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.resets {
		if r.UserID == userID {
			r.ExpiresAt = s.now().Add(-time.Second)
			s.resets[id] = r
		}
	}
}

// ExpireRefreshTokens moves the expiry of every refresh row of userID to the past.
func (s *Store) ExpireRefreshTokens(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.refresh {
		if t.UserID == userID {
			t.ExpiresAt = s.now().Add(-time.Second)
			s.refresh[id] = t
		}
	}
}

type users Store

func (u *users) Create(_ context.Context, user *model.User) error {
	s := (*Store)(u)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == user.Email {
			return gorm.ErrDuplicatedKey
		}
		if user.GoogleID != nil && existing.GoogleID != nil && *existing.GoogleID == *user.GoogleID {
			return gorm.ErrDuplicatedKey
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	s.users[user.ID] = *user
	return nil
}

func (u *users) Update(_ context.Context, user *model.User) error {
	s := (*Store)(u)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	user.UpdatedAt = s.now()
	s.users[user.ID] = *user
	return nil
}

func (u *users) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	s := (*Store)(u)
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &user, nil
}

func (u *users) FindByEmail(_ context.Context, email string) (*model.User, error) {
	s := (*Store)(u)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (u *users) FindByGoogleID(_ context.Context, googleID string) (*model.User, error) {
	s := (*Store)(u)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.GoogleID != nil && *user.GoogleID == googleID {
			return &user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type refreshTokens Store

func (r *refreshTokens) Create(_ context.Context, token *model.RefreshToken) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.refresh {
		if existing.TokenHash == token.TokenHash {
			return gorm.ErrDuplicatedKey
		}
	}
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.CreatedAt = s.now()
	s.refresh[token.ID] = *token
	return nil
}

func (r *refreshTokens) FindByHash(_ context.Context, tokenHash string) (*model.RefreshToken, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.refresh {
		if t.TokenHash == tokenHash {
			return &t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *refreshTokens) DeleteByID(_ context.Context, id uuid.UUID) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.refresh, id)
	return nil
}

func (r *refreshTokens) DeleteByHash(_ context.Context, tokenHash string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.refresh {
		if t.TokenHash == tokenHash {
			delete(s.refresh, id)
		}
	}
	return nil
}

func (r *refreshTokens) DeleteByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteRefreshOfLocked(userID), nil
}

func (r *refreshTokens) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.refresh {
		if !t.ExpiresAt.After(before) {
			delete(s.refresh, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) deleteRefreshOfLocked(userID uuid.UUID) int64 {
	var n int64
	for id, t := range s.refresh {
		if t.UserID == userID {
			delete(s.refresh, id)
			n++
		}
	}
	return n
}

type passwordResets Store

func (p *passwordResets) Issue(_ context.Context, req *model.PasswordResetRequest) error {
	s := (*Store)(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[req.UserID]; !ok {
		return gorm.ErrRecordNotFound
	}
	for _, existing := range s.resets {
		if existing.TokenHash == req.TokenHash {
			return gorm.ErrDuplicatedKey
		}
	}
	for id, existing := range s.resets {
		if existing.UserID == req.UserID && !existing.Used {
			existing.Used = true
			s.resets[id] = existing
		}
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.CreatedAt = s.now()
	s.resets[req.ID] = *req
	return nil
}

func (p *passwordResets) FindActiveByHash(_ context.Context, tokenHash string, now time.Time) (*model.PasswordResetRequest, error) {
	s := (*Store)(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.resets {
		if r.TokenHash == tokenHash && r.Active(now) {
			return &r, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (p *passwordResets) Consume(_ context.Context, id uuid.UUID, now time.Time) error {
	s := (*Store)(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.consumeLocked(id, now)
}

func (p *passwordResets) CompleteReset(_ context.Context, requestID, userID uuid.UUID, passwordHash string, now time.Time) (int64, error) {
	s := (*Store)(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	if err := s.consumeLocked(requestID, now); err != nil {
		return 0, err
	}
	user.PasswordHash = &passwordHash
	user.UpdatedAt = now
	s.users[userID] = user
	return s.deleteRefreshOfLocked(userID), nil
}

func (p *passwordResets) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s := (*Store)(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.resets {
		if !r.ExpiresAt.After(before) {
			delete(s.resets, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) consumeLocked(id uuid.UUID, now time.Time) error {
	r, ok := s.resets[id]
	if !ok || !r.Active(now) {
		return repository.ErrResetRequestUnavailable
	}
	r.Used = true
	s.resets[id] = r
	return nil
}
