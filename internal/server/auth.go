package server

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"teaminova/internal/authz"
	"teaminova/internal/engine"
	"teaminova/internal/identity"
	"teaminova/internal/repo"
)

type AuthConfig struct {
	// JWTSecret signs HS256 tokens whose subject is a hosted account id.
	JWTSecret string
	// Verifier accepts hosted identity tokens when the HS256 check fails.
	Verifier identity.TokenVerifier
	Logger   logrus.FieldLogger
}

type viewerKey struct{}

func (c AuthConfig) logger() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

func withViewer(ctx context.Context, v authz.Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

func viewerFromContext(ctx context.Context) (authz.Viewer, huma.StatusError) {
	if v, ok := ctx.Value(viewerKey{}).(authz.Viewer); ok && (v.AccountID != "" || v.ProfileID != "") {
		return v, nil
	}
	return authz.Viewer{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

// requireMember is viewerFromContext for endpoints that need a registered profile.
func requireMember(ctx context.Context) (authz.Viewer, huma.StatusError) {
	v, err := viewerFromContext(ctx)
	if err != nil {
		return v, err
	}
	if v.ProfileID == "" {
		return v, newAPIError(http.StatusForbidden, "not_registered", "register a member profile first", nil)
	}
	return v, nil
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// SignToken mints an HS256 token for accountID.
func SignToken(secret, accountID, email string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if strings.TrimSpace(accountID) == "" {
		return "", errors.New("account id required")
	}
	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  accountID,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   "teaminova",
		},
		Email: email,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func authenticateJWT(token string, secret string) (identity.Claims, error) {
	if strings.TrimSpace(secret) == "" {
		return identity.Claims{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &tokenClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return identity.Claims{}, err
	}
	if !parsed.Valid {
		return identity.Claims{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return identity.Claims{}, errors.New("subject claim required")
	}
	return identity.Claims{AccountID: claims.Subject, Email: claims.Email}, nil
}

func authenticateBearer(ctx context.Context, cfg AuthConfig, token string) (identity.Claims, error) {
	claims, err := authenticateJWT(token, cfg.JWTSecret)
	if err == nil {
		return claims, nil
	}
	if cfg.Verifier == nil {
		return identity.Claims{}, err
	}
	return cfg.Verifier.VerifyToken(ctx, token)
}

// viewerForClaims resolves an authenticated account. Accounts without a
// profile get a viewer carrying only the account so they can register.
func viewerForClaims(ctx context.Context, e engine.Engine, claims identity.Claims) (authz.Viewer, error) {
	v, err := e.ViewerForAccount(ctx, claims.AccountID)
	if errors.Is(err, repo.ErrNotFound) {
		return authz.Viewer{AccountID: claims.AccountID, Email: claims.Email}, nil
	}
	return v, err
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig, e engine.Engine) func(http.Handler) http.Handler {
	public := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "openapi.json"): true,
	}
	invalid := func(w http.ResponseWriter) {
		respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Only enforce for API base path.
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if public[req.URL.Path] || req.Method == http.MethodOptions {
				next.ServeHTTP(w, req)
				return
			}

			authHeader := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))

			var viewer authz.Viewer
			switch {
			case authHeader != "":
				token, ok := bearerToken(authHeader)
				if !ok {
					invalid(w)
					return
				}
				claims, err := authenticateBearer(req.Context(), cfg, token)
				if err != nil {
					cfg.logger().WithError(err).Debug("bearer token rejected")
					invalid(w)
					return
				}
				viewer, err = viewerForClaims(req.Context(), e, claims)
				if err != nil {
					respondStatusError(w, handleError(err))
					return
				}
			case apiKeyHeader != "":
				v, err := e.ViewerForAPIKey(req.Context(), apiKeyHeader)
				if errors.Is(err, repo.ErrNotFound) {
					invalid(w)
					return
				}
				if err != nil {
					respondStatusError(w, handleError(err))
					return
				}
				viewer = v
			default:
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withViewer(req.Context(), viewer)))
		})
	}
}
