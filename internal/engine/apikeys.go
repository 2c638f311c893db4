package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"teaminova/internal/authz"
	"teaminova/internal/db"
	"teaminova/internal/domain"
	"teaminova/internal/events"
	"teaminova/internal/repo"
)

const apiKeyPrefix = "tm_"

var (
	cmdCreateAPIKey = command{"apikey.create", "api_key", "API key created", "Could not create API key"}
	cmdRevokeAPIKey = command{"apikey.revoke", "api_key", "API key revoked", "Could not revoke API key"}
)

func newAPIKeySecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

// CreateAPIKey issues a key for the viewer. The plaintext key is returned
// once; only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, v authz.Viewer, name string) (domain.APIKey, string, error) {
	var key domain.APIKey
	var secret string
	err := e.run(ctx, v, cmdCreateAPIKey, func(ctx context.Context) (string, error) {
		if v.ProfileID == "" {
			return "", authz.ForbiddenError{Action: "create API keys without a profile"}
		}
		var err error
		secret, err = newAPIKeySecret()
		if err != nil {
			return "", fmt.Errorf("generate key: %w", err)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = "default"
		}
		key = domain.APIKey{
			ID:        uuid.NewString(),
			ProfileID: v.ProfileID,
			Name:      name,
			KeyHash:   repo.HashAPIKey(secret),
			CreatedAt: e.timestamp(),
		}
		return key.ID, e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			if err := r.InsertAPIKey(ctx, key); err != nil {
				return err
			}
			return e.events().Append(ctx, tx, "apikey.created", "", "api_key", key.ID, v.ProfileID, events.EventPayload{"name": key.Name})
		})
	})
	if err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, v authz.Viewer) ([]domain.APIKey, error) {
	var out []domain.APIKey
	err := e.read(ctx, "apikey.list", func(ctx context.Context) error {
		var err error
		out, err = e.Repo.ListAPIKeys(ctx, v.ProfileID)
		return err
	})
	return out, err
}

// RevokeAPIKey deletes one of the viewer's keys. Administrators may revoke any key.
func (e Engine) RevokeAPIKey(ctx context.Context, v authz.Viewer, keyID string) error {
	return e.run(ctx, v, cmdRevokeAPIKey, func(ctx context.Context) (string, error) {
		if err := required("key_id", keyID); err != nil {
			return "", err
		}
		admin, err := e.Authz.IsAdministrator(ctx, v)
		if err != nil {
			return keyID, err
		}
		return keyID, e.tx(ctx, func(ctx context.Context, r repo.Repo, tx db.DBTX) error {
			keys, err := r.ListAPIKeys(ctx, "")
			if err != nil {
				return err
			}
			var found *domain.APIKey
			for i := range keys {
				if keys[i].ID == keyID {
					found = &keys[i]
					break
				}
			}
			if found == nil {
				return notFound("api key", keyID)
			}
			if found.ProfileID != v.ProfileID && !admin {
				return authz.ForbiddenError{Action: "revoke this API key"}
			}
			if err := r.DeleteAPIKey(ctx, keyID); err != nil {
				return wrapNotFound(err, "api key", keyID)
			}
			return e.events().Append(ctx, tx, "apikey.revoked", "", "api_key", keyID, v.ProfileID, nil)
		})
	})
}

// ViewerForAPIKey authenticates a plaintext key.
func (e Engine) ViewerForAPIKey(ctx context.Context, secret string) (authz.Viewer, error) {
	var v authz.Viewer
	err := e.read(ctx, "apikey.authenticate", func(ctx context.Context) error {
		key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(secret))
		if err != nil {
			return wrapNotFound(err, "api key", "")
		}
		p, err := e.Repo.GetProfile(ctx, key.ProfileID)
		if err != nil {
			return wrapNotFound(err, "member", key.ProfileID)
		}
		v = authz.Viewer{ProfileID: p.ID, AccountID: p.AccountID, Email: p.Email}
		return nil
	})
	return v, err
}
