package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tripline/internal/domain"
	"tripline/internal/models"
	"tripline/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

// Auth failure codes. Each maps to a fixed human-readable message; API
// consumers show the message verbatim.
const (
	AuthCodeEmailInUse       = "email_already_in_use"
	AuthCodeInvalidEmail     = "invalid_email"
	AuthCodeWeakPassword     = "weak_password"
	AuthCodeWrongPassword    = "wrong_password"
	AuthCodeUserNotFound     = "user_not_found"
	AuthCodeTooManyRequests  = "too_many_requests"
	AuthCodeNetwork          = "network_error"
	AuthCodeProviderDisabled = "operation_not_allowed"
)

var authMessages = map[string]string{
	AuthCodeEmailInUse:       "This email is already registered. Please try signing in instead.",
	AuthCodeInvalidEmail:     "Please enter a valid email address.",
	AuthCodeWeakPassword:     "Password is too weak. Please choose a stronger password.",
	AuthCodeWrongPassword:    "Incorrect password. Please try again.",
	AuthCodeUserNotFound:     "No account found with this email. Please check your email or create a new account.",
	AuthCodeTooManyRequests:  "Too many failed attempts. Please try again later.",
	AuthCodeNetwork:          "Network error. Please check your internet connection and try again.",
	AuthCodeProviderDisabled: "Email/password sign-in is not enabled. Please contact support.",
}

const authMessageFallback = "An error occurred. Please try again."

// AuthError carries a machine code alongside the fixed user-facing message.
type AuthError struct {
	Code string
	Err  error
}

func (e *AuthError) Error() string {
	if msg, ok := authMessages[e.Code]; ok {
		return msg
	}
	return authMessageFallback
}

func (e *AuthError) Unwrap() error { return e.Err }

func newAuthError(code string, err error) *AuthError {
	return &AuthError{Code: code, Err: err}
}

const minPasswordLength = 6

// OAuthExchanger abstracts the authorization-code flow so tests can stub the
// provider round trip.
type OAuthExchanger interface {
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
	Client(ctx context.Context, t *oauth2.Token) *http.Client
}

// UserService implements sign-up, sign-in, OAuth federated sign-in and guest
// sessions on top of the user store.
type UserService struct {
	users       domain.UserStore
	oauth       OAuthExchanger
	userInfoURL string
	logger      zerolog.Logger
}

func NewUserService(users domain.UserStore, oauth OAuthExchanger, userInfoURL string, logger *zerolog.Logger) *UserService {
	return &UserService{
		users:       users,
		oauth:       oauth,
		userInfoURL: userInfoURL,
		logger:      logger.With().Str("component", "users").Logger(),
	}
}

// SignUp creates a password account. The username defaults to the local part
// of the email when blank.
func (s *UserService) SignUp(ctx context.Context, email, password, username string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return nil, newAuthError(AuthCodeInvalidEmail, nil)
	}
	if len(password) < minPasswordLength {
		return nil, newAuthError(AuthCodeWeakPassword, nil)
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, newAuthError(AuthCodeEmailInUse, nil)
	} else if !errors.Is(err, store.ErrUserNotFound) {
		return nil, newAuthError(AuthCodeNetwork, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Provider:     models.ProviderPassword,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := s.users.CreateOrUpdateUser(ctx, user); err != nil {
		return nil, newAuthError(AuthCodeNetwork, err)
	}

	s.logger.Info().Str("user_id", user.ID).Msg("user signed up")
	return user, nil
}

// SignIn verifies the password and re-saves the profile, matching the
// save-on-every-login behavior of the sign-up flow.
func (s *UserService) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, newAuthError(AuthCodeUserNotFound, err)
		}
		return nil, newAuthError(AuthCodeNetwork, err)
	}

	if user.Provider != models.ProviderPassword {
		return nil, newAuthError(AuthCodeProviderDisabled, nil)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, newAuthError(AuthCodeWrongPassword, nil)
	}

	if err := s.users.CreateOrUpdateUser(ctx, user); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("re-save on login failed")
	}
	return user, nil
}

type oauthUserInfo struct {
	Sub   string `json:"sub"`
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SignInWithOAuth exchanges the authorization code, fetches the user info
// document and upserts the profile. The provider-issued subject becomes the
// stable user ID, so repeat sign-ins land on the same account.
func (s *UserService) SignInWithOAuth(ctx context.Context, code string) (*models.User, error) {
	if s.oauth == nil {
		return nil, newAuthError(AuthCodeProviderDisabled, nil)
	}

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, newAuthError(AuthCodeNetwork, fmt.Errorf("failed to exchange oauth code: %w", err))
	}

	info, err := s.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, newAuthError(AuthCodeNetwork, err)
	}

	subject := info.Sub
	if subject == "" {
		subject = info.ID
	}
	if subject == "" {
		return nil, newAuthError(AuthCodeNetwork, errors.New("oauth userinfo has no subject"))
	}

	username := info.Name
	if username == "" && info.Email != "" {
		username = strings.SplitN(info.Email, "@", 2)[0]
	}

	user := &models.User{
		ID:        subject,
		Username:  username,
		Email:     strings.ToLower(info.Email),
		Provider:  models.ProviderGoogle,
		CreatedAt: time.Now(),
	}
	if existing, err := s.users.GetUserByID(ctx, user.ID); err == nil {
		user.CreatedAt = existing.CreatedAt
		if user.Username == "" {
			user.Username = existing.Username
		}
	}

	if err := s.users.CreateOrUpdateUser(ctx, user); err != nil {
		return nil, newAuthError(AuthCodeNetwork, err)
	}

	s.logger.Info().Str("user_id", user.ID).Msg("oauth sign-in")
	return user, nil
}

func (s *UserService) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*oauthUserInfo, error) {
	client := s.oauth.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, string(body))
	}

	var info oauthUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	return &info, nil
}

// JoinAsGuest creates a throwaway account with a locally generated ID.
func (s *UserService) JoinAsGuest(ctx context.Context, username string) (*models.User, error) {
	if username == "" {
		username = "guest"
	}

	user := &models.User{
		ID:        uuid.NewString(),
		Username:  username,
		Provider:  models.ProviderGuest,
		IsGuest:   true,
		CreatedAt: time.Now(),
	}
	if err := s.users.CreateOrUpdateUser(ctx, user); err != nil {
		return nil, newAuthError(AuthCodeNetwork, err)
	}

	s.logger.Info().Str("user_id", user.ID).Msg("guest joined")
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetUserByID(ctx, id)
}
