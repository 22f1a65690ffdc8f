// Package auth verifies the credentials peers present before any of the
// orchestration modules will talk to them.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/wardenms/warden/internal/core/data"
)

var (
	ErrUnknown            = errors.New("an unexpected error occurred, please contact your server administrator")
	ErrInvalidCredentials = errors.New("username/password combination not found")
	ErrAccountBanned      = errors.New("this account has been suspended")
)

// Service authenticates peers against the accounts storage.
type Service struct {
	accounts data.AccountsAccessor
}

func NewService(accounts data.AccountsAccessor) *Service {
	return &Service{accounts: accounts}
}

// VerifyAccount checks the accounts storage for the specified credentials
// combination and validates that the account is accessible.
func (s *Service) VerifyAccount(ctx context.Context, username, password string) (*data.Account, error) {
	account, err := s.accounts.FindAccountByUsername(ctx, username)
	if err != nil {
		return nil, ErrUnknown
	}

	if account == nil || account.Password != HashPassword(password) {
		return nil, ErrInvalidCredentials
	} else if account.Banned {
		return nil, ErrAccountBanned
	}

	return account, nil
}

// CreateAccount takes the specified credentials and creates a new record in
// storage, returning either the result or any errors encountered.
func (s *Service) CreateAccount(ctx context.Context, username, password, email string) (*data.Account, error) {
	account := &data.Account{
		Username:         username,
		Password:         HashPassword(password),
		Email:            email,
		RegistrationDate: time.Now(),
		Active:           true,
	}

	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	return account, nil
}

// HashPassword returns a version of password with Warden's chosen hashing strategy.
func HashPassword(password string) string {
	hash := sha256.Sum256([]byte(password))
	return hex.EncodeToString(hash[:])
}
