// Package identity talks to the hosted account service that owns sign-in,
// password resets and account deletion.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrNotConfigured  = errors.New("identity provider not configured")
	ErrUnknownAccount = errors.New("unknown account")
	ErrAccountExists  = errors.New("account already exists")
)

// Claims are the verified facts carried by an identity token.
type Claims struct {
	AccountID string
	Email     string
}

type Provider interface {
	CreateAccount(ctx context.Context, email, password, displayName string) (string, error)
	PasswordResetLink(ctx context.Context, email string) (string, error)
	DeleteAccount(ctx context.Context, accountID string) error
}

type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (Claims, error)
}

// Unconfigured fails every call with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) CreateAccount(context.Context, string, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (Unconfigured) PasswordResetLink(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

func (Unconfigured) DeleteAccount(context.Context, string) error {
	return ErrNotConfigured
}

// Local is an in-process account registry for single-user workspaces and tests.
type Local struct {
	mu       sync.Mutex
	accounts map[string]string
	Resets   []string
}

func NewLocal() *Local {
	return &Local{accounts: map[string]string{}}
}

func (l *Local) CreateAccount(_ context.Context, email, _, _ string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("email is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.accounts {
		if existing == email {
			return "", fmt.Errorf("%s: %w", email, ErrAccountExists)
		}
	}
	id := uuid.NewString()
	l.accounts[id] = email
	return id, nil
}

func (l *Local) PasswordResetLink(_ context.Context, email string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Resets = append(l.Resets, email)
	return "local://reset?email=" + url.QueryEscape(email), nil
}

// DeleteAccount is a no-op for accounts this registry never created.
func (l *Local) DeleteAccount(_ context.Context, accountID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.accounts, accountID)
	return nil
}

func (l *Local) Has(accountID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.accounts[accountID]
	return ok
}
