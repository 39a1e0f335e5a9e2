package services

import (
	"context"
	"log"
	"strings"

	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/store"

	"golang.org/x/crypto/bcrypt"
)

// UserService reads and authenticates end-user records. User management is
// an external concern; only lookup and password verification live here.
type UserService struct {
	store *store.Store
}

func NewUserService(s *store.Store) *UserService {
	return &UserService{store: s}
}

// Authenticate verifies a login/password pair against the local store.
// The login is a username, or an email address when it contains "@".
func (s *UserService) Authenticate(_ context.Context, login, password string) (*models.User, error) {
	user, err := s.store.GetUserByUsername(login)
	if err != nil && strings.Contains(login, "@") {
		user, err = s.store.GetUserByEmail(login)
	}
	if err != nil {
		// Burn a bcrypt comparison so unknown usernames cost the same
		// as wrong passwords.
		_ = bcrypt.CompareHashAndPassword(
			[]byte("$2a$10$000000000000000000000uGyhZh0cU9f1mCyCF7jVO7DnRcjH1dW6"),
			[]byte(password),
		)
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Printf("[User] Authentication failed for user=%s", login)
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// ListAccessTokens returns every access token issued to a user, newest
// first. Hashes stay in the store layer; callers shape the view.
func (s *UserService) ListAccessTokens(userID string) ([]models.AccessToken, error) {
	if _, err := s.store.GetUserByID(userID); err != nil {
		return nil, ErrUserNotFound
	}
	return s.store.GetAccessTokensByUserID(userID)
}

func (s *UserService) GetUserByID(id string) (*models.User, error) {
	user, err := s.store.GetUserByID(id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
