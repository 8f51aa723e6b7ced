// Package identity is the account store behind console logins. An account's
// subject id is the id of the matching directory User.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/suteetoe/coopregistry/internal/model"
	"github.com/suteetoe/coopregistry/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Provider interface {
	// CreateAccount provisions a login and returns its subject id. The
	// account must change its password on first login.
	CreateAccount(ctx context.Context, email, password string) (string, error)
	DeleteAccount(ctx context.Context, subjectID string) error
	Authenticate(ctx context.Context, email, password string) (*model.Account, error)
}

// BcryptProvider stores bcrypt-hashed accounts through the repository layer.
type BcryptProvider struct {
	accounts repository.AccountRepository
	cost     int
}

func NewBcryptProvider(accounts repository.AccountRepository, cost int) *BcryptProvider {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptProvider{accounts: accounts, cost: cost}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *BcryptProvider) CreateAccount(ctx context.Context, email, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	account := model.Account{
		ID:                 uuid.NewString(),
		Email:              normalizeEmail(email),
		PasswordHash:       string(hash),
		MustChangePassword: true,
	}
	if err := p.accounts.CreateAccount(ctx, &account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return "", ErrEmailTaken
		}
		return "", fmt.Errorf("creating account: %w", err)
	}
	return account.ID, nil
}

func (p *BcryptProvider) DeleteAccount(ctx context.Context, subjectID string) error {
	return p.accounts.DeleteAccount(ctx, subjectID)
}

func (p *BcryptProvider) Authenticate(ctx context.Context, email, password string) (*model.Account, error) {
	account, err := p.accounts.GetAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}
