package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/wardenms/warden/internal/core/data"
)

// memoryAccounts is an in-memory AccountsAccessor for tests.
type memoryAccounts struct {
	accounts map[string]*data.Account
	err      error
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{accounts: make(map[string]*data.Account)}
}

func (m *memoryAccounts) FindAccountByUsername(_ context.Context, username string) (*data.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.accounts[username], nil
}

func (m *memoryAccounts) CreateAccount(_ context.Context, account *data.Account) error {
	if m.err != nil {
		return m.err
	}
	m.accounts[account.Username] = account
	return nil
}

func TestVerifyAccount(t *testing.T) {
	tests := []struct {
		name     string
		seed     func(m *memoryAccounts)
		username string
		password string
		wantErr  error
	}{
		{
			name:     "unknown username",
			seed:     func(m *memoryAccounts) {},
			username: "ghost",
			password: "pw",
			wantErr:  ErrInvalidCredentials,
		},
		{
			name: "wrong password",
			seed: func(m *memoryAccounts) {
				m.accounts["alice"] = &data.Account{Username: "alice", Password: HashPassword("right")}
			},
			username: "alice",
			password: "wrong",
			wantErr:  ErrInvalidCredentials,
		},
		{
			name: "banned account",
			seed: func(m *memoryAccounts) {
				m.accounts["bob"] = &data.Account{Username: "bob", Password: HashPassword("pw"), Banned: true}
			},
			username: "bob",
			password: "pw",
			wantErr:  ErrAccountBanned,
		},
		{
			name: "storage failure",
			seed: func(m *memoryAccounts) {
				m.err = errors.New("connection refused")
			},
			username: "alice",
			password: "pw",
			wantErr:  ErrUnknown,
		},
		{
			name: "valid credentials",
			seed: func(m *memoryAccounts) {
				m.accounts["carol"] = &data.Account{Username: "carol", Password: HashPassword("pw")}
			},
			username: "carol",
			password: "pw",
			wantErr:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMemoryAccounts()
			tt.seed(m)
			svc := NewService(m)

			account, err := svc.VerifyAccount(context.Background(), tt.username, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("VerifyAccount() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && (account == nil || account.Username != tt.username) {
				t.Errorf("VerifyAccount() account = %v, want username %s", account, tt.username)
			}
		})
	}
}

func TestCreateAccountHashesPassword(t *testing.T) {
	m := newMemoryAccounts()
	svc := NewService(m)

	account, err := svc.CreateAccount(context.Background(), "dave", "hunter2", "d@example.com")
	if err != nil {
		t.Fatalf("CreateAccount() returned an unexpected error: %v", err)
	}
	if account.Password == "hunter2" {
		t.Error("CreateAccount() stored the password in plain text")
	}
	if _, err := svc.VerifyAccount(context.Background(), "dave", "hunter2"); err != nil {
		t.Errorf("VerifyAccount() failed for a freshly created account: %v", err)
	}
}
