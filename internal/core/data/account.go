package data

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Account contains the login information specific to each registered user.
type Account struct {
	ID               uint64 `gorm:"primaryKey"`
	Username         string `gorm:"unique; not null"`
	Password         string `gorm:"not null"`
	Email            string `gorm:"unique"`
	RegistrationDate time.Time
	Admin            bool `gorm:"default:false"`
	Banned           bool `gorm:"default:false"`
	Active           bool `gorm:"default:true"`
}

// AccountsAccessor is the storage contract the auth module depends on. Any
// backend satisfying it (SQL, embedded KV, in-memory) is acceptable.
type AccountsAccessor interface {
	FindAccountByUsername(ctx context.Context, username string) (*Account, error)
	CreateAccount(ctx context.Context, account *Account) error
}

// GormAccounts implements AccountsAccessor on a gorm connection.
type GormAccounts struct {
	db *gorm.DB
}

func NewGormAccounts(db *gorm.DB) *GormAccounts {
	return &GormAccounts{db: db}
}

// FindAccountByUsername searches for an account with the specified username,
// returning the *Account instance if found or nil if there is no match.
func (a *GormAccounts) FindAccountByUsername(ctx context.Context, username string) (*Account, error) {
	var account Account
	err := a.db.WithContext(ctx).Where("username = ?", username).First(&account).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &account, nil
}

// CreateAccount persists the Account record to the database.
func (a *GormAccounts) CreateAccount(ctx context.Context, account *Account) error {
	return a.db.WithContext(ctx).Create(account).Error
}
