package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"campusnotes/internal/auth"
	apperrors "campusnotes/internal/errors"
	"campusnotes/internal/model"
	"campusnotes/internal/repository/repotest"
)

var testDomains = []string{"mictech.edu.in"}

func newTestAuthService(t *testing.T, store *repotest.Store) *authService {
	t.Helper()
	svc, err := NewAuthService(store.Users(), store.RefreshTokens(), newTestJWT(),
		AuthConfig{AllowedDomains: testDomains, BcryptCost: bcrypt.MinCost}, testLogger)
	require.NoError(t, err)
	return svc.(*authService)
}

func signupInput(email, password string) SignupInput {
	return SignupInput{Name: "Asha", Email: email, Password: password, Branch: "CSE", Semester: 3, Section: "A"}
}

func TestAuthService_Signup(t *testing.T) {
	store := repotest.NewStore()
	svc := newTestAuthService(t, store)
	ctx := context.Background()

	res, err := svc.Signup(ctx, signupInput(" A@MicTech.edu.in ", "password1"))
	require.NoError(t, err)

	assert.Equal(t, "a@mictech.edu.in", res.User.Email)
	assert.Equal(t, model.RoleStudent, res.User.Role)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	require.True(t, res.User.HasPassword())
	assert.NotEqual(t, "password1", *res.User.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*res.User.PasswordHash), []byte("password1")))

	rows := store.RefreshTokensOf(res.User.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, auth.HashToken(res.RefreshToken), rows[0].TokenHash)
	assert.NotEqual(t, res.RefreshToken, rows[0].TokenHash)

	claims, err := svc.jwtService.ValidateAccessToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID.String(), claims.UserID)
	assert.Equal(t, "student", claims.Role)
}

func TestAuthService_Signup_Conflict(t *testing.T) {
	store := repotest.NewStore()
	svc := newTestAuthService(t, store)
	ctx := context.Background()

	_, err := svc.Signup(ctx, signupInput("a@mictech.edu.in", "password1"))
	require.NoError(t, err)

	_, err = svc.Signup(ctx, signupInput("A@mictech.edu.in", "password2"))
	assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
}

func TestAuthService_Signup_DomainNotAllowed(t *testing.T) {
	svc := newTestAuthService(t, repotest.NewStore())

	_, err := svc.Signup(context.Background(), signupInput("a@gmail.com", "password1"))
	assert.ErrorIs(t, err, apperrors.ErrEmailDomainNotAllowed)
}

func TestAuthService_Signup_PasswordTooLong(t *testing.T) {
	store := repotest.NewStore()
	svc := newTestAuthService(t, store)

	// 40 characters but 80 bytes
	_, err := svc.Signup(context.Background(), signupInput("a@mictech.edu.in", strings.Repeat("é", 40)))
	assert.ErrorIs(t, err, apperrors.ErrPasswordTooLong)

	_, err = store.Users().FindByEmail(context.Background(), "a@mictech.edu.in")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAuthService_Signup_DuplicateRace(t *testing.T) {
	users := new(MockUserRepository)
	users.On("FindByEmail", mock.Anything, "a@mictech.edu.in").Return(nil, gorm.ErrRecordNotFound)
	users.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Return(gorm.ErrDuplicatedKey)

	svc, err := NewAuthService(users, repotest.NewStore().RefreshTokens(), newTestJWT(),
		AuthConfig{AllowedDomains: testDomains, BcryptCost: bcrypt.MinCost}, testLogger)
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), signupInput("a@mictech.edu.in", "password1"))
	assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
	users.AssertExpectations(t)
}

func TestAuthService_Login(t *testing.T) {
	store := repotest.NewStore()
	svc := newTestAuthService(t, store)
	ctx := context.Background()

	signed, err := svc.Signup(ctx, signupInput("a@mictech.edu.in", "password1"))
	require.NoError(t, err)

	res, err := svc.Login(ctx, "A@mictech.edu.in", "password1")
	require.NoError(t, err)
	assert.Equal(t, signed.User.ID, res.User.ID)
	assert.NotEqual(t, signed.RefreshToken, res.RefreshToken)

	// one row per device
	assert.Len(t, store.RefreshTokensOf(signed.User.ID), 2)
}

func TestAuthService_Login_UniformFailure(t *testing.T) {
	store := repotest.NewStore()
	svc := newTestAuthService(t, store)
	ctx := context.Background()

	_, err := svc.Signup(ctx, signupInput("a@mictech.edu.in", "password1"))
	require.NoError(t, err)
	_, err = svc.FederatedLogin(ctx, FederatedPrincipal{Subject: "google-1", Email: "fed@mictech.edu.in", Name: "Fed"})
	require.NoError(t, err)

	_, unknownErr := svc.Login(ctx, "nobody@mictech.edu.in", "password1")
	_, wrongErr := svc.Login(ctx, "a@mictech.edu.in", "wrong-password")
	_, federatedErr := svc.Login(ctx, "fed@mictech.edu.in", "password1")

	assert.ErrorIs(t, unknownErr, apperrors.ErrInvalidCredentials)
	assert.ErrorIs(t, wrongErr, apperrors.ErrInvalidCredentials)
	assert.ErrorIs(t, federatedErr, apperrors.ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestAuthService_Login_StorageFailure(t *testing.T) {
	users := new(MockUserRepository)
	users.On("FindByEmail", mock.Anything, "a@mictech.edu.in").Return(nil, errors.New("connection refused"))

	svc, err := NewAuthService(users, repotest.NewStore().RefreshTokens(), newTestJWT(),
		AuthConfig{AllowedDomains: testDomains, BcryptCost: bcrypt.MinCost}, testLogger)
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "a@mictech.edu.in", "password1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestAuthService_Refresh(t *testing.T) {
	store := repotest.NewStore()
	svc := newTestAuthService(t, store)
	ctx := context.Background()

	signed, err := svc.Signup(ctx, signupInput("a@mictech.edu.in", "password1"))
	require.NoError(t, err)

	access, err := svc.Refresh(ctx, signed.RefreshToken)
	require.NoError(t, err)
	claims, err := svc.jwtService.ValidateAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, signed.User.ID.String(), claims.UserID)

	// not rotated: the same refresh token keeps working
	_, err = svc.Refresh(ctx, signed.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_Refresh_Rejections(t *testing.T) {
	store := repotest.NewStore()
	svc := newTestAuthService(t, store)
	ctx := context.Background()

	signed, err := svc.Signup(ctx, signupInput("a@mictech.edu.in", "password1"))
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Refresh(ctx, "not-a-token")
		assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
	})

	t.Run("access token", func(t *testing.T) {
		_, err := svc.Refresh(ctx, signed.AccessToken)
		assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
	})

	t.Run("signed but never stored", func(t *testing.T) {
		token, _, err := svc.jwtService.GenerateRefreshToken(signed.User.ID.String())
		require.NoError(t, err)
		_, err = svc.Refresh(ctx, token)
		assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
	})
}

func TestAuthService_Refresh_ExpiredRowDeleted(t *testing.T) {
	store := repotest.NewStore()
	svc := newTestAuthService(t, store)
	ctx := context.Background()

	signed, err := svc.Signup(ctx, signupInput("a@mictech.edu.in", "password1"))
	require.NoError(t, err)
	store.ExpireRefreshTokens(signed.User.ID)

	_, err = svc.Refresh(ctx, signed.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
	assert.Empty(t, store.RefreshTokensOf(signed.User.ID))
}

func TestAuthService_Logout(t *testing.T) {
	store := repotest.NewStore()
	svc := newTestAuthService(t, store)
	ctx := context.Background()

	signed, err := svc.Signup(ctx, signupInput("a@mictech.edu.in", "password1"))
	require.NoError(t, err)
	other, err := svc.Login(ctx, "a@mictech.edu.in", "password1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, signed.RefreshToken))
	require.NoError(t, svc.Logout(ctx, signed.RefreshToken))
	require.NoError(t, svc.Logout(ctx, "never-issued"))

	_, err = svc.Refresh(ctx, signed.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)

	// the other device is untouched
	_, err = svc.Refresh(ctx, other.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_FederatedLogin(t *testing.T) {
	store := repotest.NewStore()
	svc := newTestAuthService(t, store)
	ctx := context.Background()

	first, err := svc.FederatedLogin(ctx, FederatedPrincipal{Subject: "google-1", Email: "Fed@mictech.edu.in", Name: "Fed"})
	require.NoError(t, err)
	assert.False(t, first.User.HasPassword())
	assert.Equal(t, "fed@mictech.edu.in", first.User.Email)

	again, err := svc.FederatedLogin(ctx, FederatedPrincipal{Subject: "google-1", Email: "fed@mictech.edu.in"})
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, again.User.ID)

	_, err = svc.FederatedLogin(ctx, FederatedPrincipal{Subject: "google-2", Email: "x@gmail.com"})
	assert.ErrorIs(t, err, apperrors.ErrEmailDomainNotAllowed)
}

func TestAuthService_FederatedLogin_LinksPasswordAccount(t *testing.T) {
	store := repotest.NewStore()
	svc := newTestAuthService(t, store)
	ctx := context.Background()

	signed, err := svc.Signup(ctx, signupInput("a@mictech.edu.in", "password1"))
	require.NoError(t, err)

	res, err := svc.FederatedLogin(ctx, FederatedPrincipal{Subject: "google-9", Email: "a@mictech.edu.in"})
	require.NoError(t, err)
	assert.Equal(t, signed.User.ID, res.User.ID)

	linked, err := store.Users().FindByGoogleID(ctx, "google-9")
	require.NoError(t, err)
	assert.True(t, linked.HasPassword())

	// password login still works after linking
	_, err = svc.Login(ctx, "a@mictech.edu.in", "password1")
	assert.NoError(t, err)
}

func TestAuthService_FederatedLogin_ConcurrentFirstLogin(t *testing.T) {
	subject := "google-7"
	winner := &model.User{ID: uuid.New(), Email: "fed@mictech.edu.in", Role: model.RoleStudent, GoogleID: &subject}

	users := new(MockUserRepository)
	users.On("FindByGoogleID", mock.Anything, subject).Return(nil, gorm.ErrRecordNotFound).Once()
	users.On("FindByEmail", mock.Anything, "fed@mictech.edu.in").Return(nil, gorm.ErrRecordNotFound)
	users.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Return(gorm.ErrDuplicatedKey)
	users.On("FindByGoogleID", mock.Anything, subject).Return(winner, nil).Once()

	svc, err := NewAuthService(users, repotest.NewStore().RefreshTokens(), newTestJWT(),
		AuthConfig{AllowedDomains: testDomains, BcryptCost: bcrypt.MinCost}, testLogger)
	require.NoError(t, err)

	res, err := svc.FederatedLogin(context.Background(), FederatedPrincipal{Subject: subject, Email: "fed@mictech.edu.in"})
	require.NoError(t, err)
	assert.Equal(t, winner.ID, res.User.ID)
	users.AssertExpectations(t)
}

func TestAuthService_FederatedLogin_EmailTakenDuringCreate(t *testing.T) {
	users := new(MockUserRepository)
	users.On("FindByGoogleID", mock.Anything, "google-8").Return(nil, gorm.ErrRecordNotFound)
	users.On("FindByEmail", mock.Anything, "fed@mictech.edu.in").Return(nil, gorm.ErrRecordNotFound)
	users.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Return(gorm.ErrDuplicatedKey)

	svc, err := NewAuthService(users, repotest.NewStore().RefreshTokens(), newTestJWT(),
		AuthConfig{AllowedDomains: testDomains, BcryptCost: bcrypt.MinCost}, testLogger)
	require.NoError(t, err)

	_, err = svc.FederatedLogin(context.Background(), FederatedPrincipal{Subject: "google-8", Email: "fed@mictech.edu.in"})
	assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
}
