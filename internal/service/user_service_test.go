package service

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"tripline/internal/models"
	"tripline/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(t *testing.T) (*UserService, *store.Store) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	st, err := store.New(filepath.Join(t.TempDir(), "trips.db"), nil, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewUserService(st, nil, "", &logger), st
}

func TestSignUpAndSignIn(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	user, err := svc.SignUp(ctx, "Alice@Example.com", "hunter22", "")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "alice", user.Username, "username defaults to the email local part")
	assert.Equal(t, models.ProviderPassword, user.Provider)
	assert.NotEmpty(t, user.PasswordHash)
	assert.NotEqual(t, "hunter22", user.PasswordHash)

	signed, err := svc.SignIn(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, user.ID, signed.ID)
}

func TestSignUpValidation(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	t.Run("invalid email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, "not-an-email", "hunter22", "")
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, AuthCodeInvalidEmail, authErr.Code)
		assert.Equal(t, "Please enter a valid email address.", authErr.Error())
	})

	t.Run("weak password", func(t *testing.T) {
		_, err := svc.SignUp(ctx, "bob@example.com", "123", "")
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, AuthCodeWeakPassword, authErr.Code)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, "carol@example.com", "hunter22", "")
		require.NoError(t, err)
		_, err = svc.SignUp(ctx, "carol@example.com", "hunter22", "")
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, AuthCodeEmailInUse, authErr.Code)
		assert.Equal(t, "This email is already registered. Please try signing in instead.", authErr.Error())
	})
}

func TestSignInFailures(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "alice@example.com", "hunter22", "")
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.SignIn(ctx, "alice@example.com", "wrong")
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, AuthCodeWrongPassword, authErr.Code)
		assert.Equal(t, "Incorrect password. Please try again.", authErr.Error())
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := svc.SignIn(ctx, "nobody@example.com", "hunter22")
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, AuthCodeUserNotFound, authErr.Code)
	})
}

func TestJoinAsGuest(t *testing.T) {
	svc, st := newUserService(t)
	ctx := context.Background()

	guest, err := svc.JoinAsGuest(ctx, "Wanderer")
	require.NoError(t, err)
	assert.True(t, guest.IsGuest)
	assert.Equal(t, models.ProviderGuest, guest.Provider)
	assert.NotEmpty(t, guest.ID)

	stored, err := st.GetUserByID(ctx, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, "Wanderer", stored.Username)
}

func TestAuthErrorFallbackMessage(t *testing.T) {
	err := &AuthError{Code: "something_new"}
	assert.Equal(t, authMessageFallback, err.Error())
}
