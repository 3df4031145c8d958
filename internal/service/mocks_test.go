package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"campusnotes/internal/auth"
	"campusnotes/internal/logging"
	"campusnotes/internal/mail"
	"campusnotes/internal/model"
)

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) Update(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	args := m.Called(ctx, googleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

// MockPasswordResetRepository is a mock implementation of PasswordResetRepository.
type MockPasswordResetRepository struct {
	mock.Mock
}

func (m *MockPasswordResetRepository) Issue(ctx context.Context, req *model.PasswordResetRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockPasswordResetRepository) FindActiveByHash(ctx context.Context, tokenHash string, now time.Time) (*model.PasswordResetRequest, error) {
	args := m.Called(ctx, tokenHash, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PasswordResetRequest), args.Error(1)
}

func (m *MockPasswordResetRepository) Consume(ctx context.Context, id uuid.UUID, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *MockPasswordResetRepository) CompleteReset(ctx context.Context, requestID, userID uuid.UUID, passwordHash string, now time.Time) (int64, error) {
	args := m.Called(ctx, requestID, userID, passwordHash, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPasswordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// captureMailer records every message instead of sending it.
type captureMailer struct {
	mu   sync.Mutex
	msgs []mail.Message
	err  error
	// delay simulates a slow SMTP server.
	delay time.Duration
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	time.Sleep(m.delay)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return m.err
}

func (m *captureMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.msgs...)
}

var resetTokenPattern = regexp.MustCompile(`token=([0-9a-f]{64})`)

// tokenFrom extracts the plaintext reset token from a reset email.
func tokenFrom(t *testing.T, msg mail.Message) string {
	t.Helper()
	match := resetTokenPattern.FindStringSubmatch(msg.Text)
	require.Len(t, match, 2, "reset link not found in email")
	return match[1]
}

func newTestJWT() *auth.JWTService {
	return auth.NewJWTService("test-access-secret", "test-refresh-secret", 0, 0)
}

var testLogger = logging.Discard()
