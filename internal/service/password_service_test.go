package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"campusnotes/internal/auth"
	apperrors "campusnotes/internal/errors"
	"campusnotes/internal/repository/repotest"
)

type passwordFixture struct {
	store     *repotest.Store
	auth      *authService
	passwords *passwordService
	mailer    *captureMailer
}

func newPasswordFixture(t *testing.T) *passwordFixture {
	t.Helper()
	store := repotest.NewStore()
	mailer := &captureMailer{}
	passwords := NewPasswordService(store.Users(), store.PasswordResets(), mailer, nil, PasswordConfig{
		ResetTTL:    15 * time.Minute,
		BcryptCost:  bcrypt.MinCost,
		FrontendURL: "http://localhost:5173",
	}, testLogger)
	return &passwordFixture{
		store:     store,
		auth:      newTestAuthService(t, store),
		passwords: passwords.(*passwordService),
		mailer:    mailer,
	}
}

func (f *passwordFixture) signup(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	res, err := f.auth.Signup(context.Background(), signupInput(email, password))
	require.NoError(t, err)
	return res
}

func (f *passwordFixture) requestToken(t *testing.T, email string) string {
	t.Helper()
	before := len(f.mailer.sent())
	require.NoError(t, f.passwords.RequestReset(context.Background(), email))
	sent := f.mailer.sent()
	require.Len(t, sent, before+1)
	return tokenFrom(t, sent[len(sent)-1])
}

func TestPasswordService_RequestReset(t *testing.T) {
	f := newPasswordFixture(t)
	user := f.signup(t, "a@mictech.edu.in", "password1").User

	token := f.requestToken(t, "A@mictech.edu.in")
	assert.True(t, auth.IsResetTokenFormat(token))

	msg := f.mailer.sent()[0]
	assert.Equal(t, "a@mictech.edu.in", msg.To)
	assert.Contains(t, msg.Text, "http://localhost:5173/reset-password?token="+token)
	assert.Contains(t, msg.Text, "15 minutes")

	reqs := f.store.ResetRequestsOf(user.ID)
	require.Len(t, reqs, 1)
	assert.Equal(t, auth.HashToken(token), reqs[0].TokenHash)
	assert.False(t, reqs[0].Used)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), reqs[0].ExpiresAt, 5*time.Second)

	ok, err := f.passwords.VerifyResetToken(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPasswordService_RequestReset_SilentForUnknownAndFederated(t *testing.T) {
	f := newPasswordFixture(t)
	ctx := context.Background()
	fed, err := f.auth.FederatedLogin(ctx, FederatedPrincipal{Subject: "google-1", Email: "fed@mictech.edu.in"})
	require.NoError(t, err)

	assert.NoError(t, f.passwords.RequestReset(ctx, "nobody@mictech.edu.in"))
	assert.NoError(t, f.passwords.RequestReset(ctx, "fed@mictech.edu.in"))

	assert.Empty(t, f.mailer.sent())
	assert.Empty(t, f.store.ResetRequestsOf(fed.User.ID))
}

func TestPasswordService_RequestReset_MailFailureIsSilent(t *testing.T) {
	f := newPasswordFixture(t)
	user := f.signup(t, "a@mictech.edu.in", "password1").User
	f.mailer.err = errors.New("smtp: connection refused")

	assert.NoError(t, f.passwords.RequestReset(context.Background(), "a@mictech.edu.in"))
	assert.Len(t, f.store.ResetRequestsOf(user.ID), 1)
}

func TestPasswordService_SingleActiveToken(t *testing.T) {
	f := newPasswordFixture(t)
	user := f.signup(t, "a@mictech.edu.in", "password1").User
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 4; i++ {
		tokens = append(tokens, f.requestToken(t, "a@mictech.edu.in"))
	}

	active := 0
	for _, r := range f.store.ResetRequestsOf(user.ID) {
		if r.Active(time.Now()) {
			active++
		}
	}
	assert.Equal(t, 1, active)

	for _, token := range tokens[:len(tokens)-1] {
		ok, err := f.passwords.VerifyResetToken(ctx, token)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.ErrorIs(t, f.passwords.ResetPassword(ctx, token, "newpassword1"), apperrors.ErrInvalidResetToken)
	}

	ok, err := f.passwords.VerifyResetToken(ctx, tokens[len(tokens)-1])
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPasswordService_ConcurrentIssueLeavesOneActive(t *testing.T) {
	f := newPasswordFixture(t)
	user := f.signup(t, "a@mictech.edu.in", "password1").User

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.passwords.RequestReset(context.Background(), "a@mictech.edu.in"))
		}()
	}
	wg.Wait()

	reqs := f.store.ResetRequestsOf(user.ID)
	assert.Len(t, reqs, 20)
	active := 0
	for _, r := range reqs {
		if r.Active(time.Now()) {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestPasswordService_ResetIsOneShot(t *testing.T) {
	f := newPasswordFixture(t)
	f.signup(t, "a@mictech.edu.in", "password1")
	ctx := context.Background()
	token := f.requestToken(t, "a@mictech.edu.in")

	require.NoError(t, f.passwords.ResetPassword(ctx, token, "newpassword1"))

	err := f.passwords.ResetPassword(ctx, token, "another-password")
	assert.ErrorIs(t, err, apperrors.ErrInvalidResetToken)
	ok, err := f.passwords.VerifyResetToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.auth.Login(ctx, "a@mictech.edu.in", "newpassword1")
	assert.NoError(t, err)
	_, err = f.auth.Login(ctx, "a@mictech.edu.in", "another-password")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestPasswordService_ResetPasswordTooLongKeepsToken(t *testing.T) {
	f := newPasswordFixture(t)
	f.signup(t, "a@mictech.edu.in", "password1")
	ctx := context.Background()
	token := f.requestToken(t, "a@mictech.edu.in")

	err := f.passwords.ResetPassword(ctx, token, strings.Repeat("é", 40))
	assert.ErrorIs(t, err, apperrors.ErrPasswordTooLong)

	ok, err := f.passwords.VerifyResetToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = f.auth.Login(ctx, "a@mictech.edu.in", "password1")
	assert.NoError(t, err)
}

func TestPasswordService_ConcurrentResetSucceedsOnce(t *testing.T) {
	f := newPasswordFixture(t)
	f.signup(t, "a@mictech.edu.in", "password1")
	token := f.requestToken(t, "a@mictech.edu.in")

	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.passwords.ResetPassword(context.Background(), token, "newpassword1")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, apperrors.ErrInvalidResetToken):
				losses.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(9), losses.Load())
}

func TestPasswordService_TokenExpiry(t *testing.T) {
	f := newPasswordFixture(t)
	f.signup(t, "a@mictech.edu.in", "password1")
	ctx := context.Background()
	token := f.requestToken(t, "a@mictech.edu.in")

	f.passwords.now = func() time.Time { return time.Now().Add(16 * time.Minute) }

	ok, err := f.passwords.VerifyResetToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, f.passwords.ResetPassword(ctx, token, "newpassword1"), apperrors.ErrInvalidResetToken)
}

func TestPasswordService_ResetRevokesSessions(t *testing.T) {
	f := newPasswordFixture(t)
	signed := f.signup(t, "a@mictech.edu.in", "password1")
	ctx := context.Background()
	other, err := f.auth.Login(ctx, "a@mictech.edu.in", "password1")
	require.NoError(t, err)

	token := f.requestToken(t, "a@mictech.edu.in")
	require.NoError(t, f.passwords.ResetPassword(ctx, token, "newpassword1"))

	assert.Empty(t, f.store.RefreshTokensOf(signed.User.ID))
	for _, rt := range []string{signed.RefreshToken, other.RefreshToken} {
		_, err := f.auth.Refresh(ctx, rt)
		assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
	}
}

func TestPasswordService_MalformedTokenSkipsStorage(t *testing.T) {
	resets := new(MockPasswordResetRepository)
	svc := NewPasswordService(new(MockUserRepository), resets, &captureMailer{}, nil, PasswordConfig{}, testLogger)
	ctx := context.Background()

	for _, token := range []string{"", "short", strings.Repeat("A", 64), strings.Repeat("g", 64), strings.Repeat("a", 65)} {
		ok, err := svc.VerifyResetToken(ctx, token)
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.ErrorIs(t, svc.ResetPassword(ctx, token, "newpassword1"), apperrors.ErrInvalidResetToken)
	}

	resets.AssertNotCalled(t, "FindActiveByHash", mock.Anything, mock.Anything, mock.Anything)
}

func TestPasswordService_VerifyStorageFailure(t *testing.T) {
	resets := new(MockPasswordResetRepository)
	resets.On("FindActiveByHash", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
	svc := NewPasswordService(new(MockUserRepository), resets, &captureMailer{}, nil, PasswordConfig{}, testLogger)

	ok, err := svc.VerifyResetToken(context.Background(), strings.Repeat("a", 64))
	assert.Error(t, err)
	assert.False(t, ok)
}
