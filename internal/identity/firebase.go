package identity

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Firebase implements Provider and TokenVerifier on Firebase Authentication.
type Firebase struct {
	client *auth.Client
}

func NewFirebase(ctx context.Context, credentialsFile string) (*Firebase, error) {
	if strings.TrimSpace(credentialsFile) == "" {
		return nil, ErrNotConfigured
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase auth: %w", err)
	}
	return &Firebase{client: client}, nil
}

func (f *Firebase) CreateAccount(ctx context.Context, email, password, displayName string) (string, error) {
	params := (&auth.UserToCreate{}).Email(email).Password(password)
	if displayName != "" {
		params = params.DisplayName(displayName)
	}
	user, err := f.client.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return "", fmt.Errorf("%s: %w", email, ErrAccountExists)
		}
		return "", fmt.Errorf("create account: %w", err)
	}
	return user.UID, nil
}

func (f *Firebase) PasswordResetLink(ctx context.Context, email string) (string, error) {
	link, err := f.client.PasswordResetLink(ctx, email)
	if err != nil {
		return "", fmt.Errorf("password reset link: %w", err)
	}
	return link, nil
}

func (f *Firebase) DeleteAccount(ctx context.Context, accountID string) error {
	if err := f.client.DeleteUser(ctx, accountID); err != nil {
		if auth.IsUserNotFound(err) {
			return fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
		}
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func (f *Firebase) VerifyToken(ctx context.Context, token string) (Claims, error) {
	tok, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return Claims{}, err
	}
	claims := Claims{AccountID: tok.UID}
	if email, ok := tok.Claims["email"].(string); ok {
		claims.Email = email
	}
	return claims, nil
}
