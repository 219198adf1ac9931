package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/safar/peptide-shop/internal/apperr"
	"github.com/safar/peptide-shop/internal/models"
	"go.uber.org/zap"
)

// Authenticator resolves a bearer token to the calling user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Requester, error)
}

type ctxKey int

const requesterKey ctxKey = iota

// RequesterFrom returns the authenticated caller, or nil for anonymous requests.
func RequesterFrom(ctx context.Context) *models.Requester {
	requester, _ := ctx.Value(requesterKey).(*models.Requester)
	return requester
}

func withRequester(ctx context.Context, requester *models.Requester) context.Context {
	return context.WithValue(ctx, requesterKey, requester)
}

// bearerToken extracts the token from "Authorization: Bearer <token>". ok is false when
// the header is absent.
func bearerToken(r *http.Request) (token string, ok bool, err error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false, nil
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", true, apperr.Unauthenticated("invalid authorization header format, expected 'Bearer <token>'")
	}
	return strings.TrimSpace(parts[1]), true, nil
}

type authMiddleware struct {
	auth   Authenticator
	logger *zap.Logger
}

func (m *authMiddleware) resolve(w http.ResponseWriter, r *http.Request, required bool) (*http.Request, bool) {
	token, present, err := bearerToken(r)
	if err != nil {
		writeError(w, r, m.logger, err)
		return nil, false
	}
	if !present {
		if required {
			writeError(w, r, m.logger, apperr.Unauthenticated("not authorized, no token"))
			return nil, false
		}
		return r, true
	}

	requester, err := m.auth.Authenticate(r.Context(), token)
	if err != nil {
		writeError(w, r, m.logger, err)
		return nil, false
	}
	return r.WithContext(withRequester(r.Context(), requester)), true
}

// Optional attaches the requester when a token is sent. A token that is sent but invalid
// is rejected rather than treated as a guest.
func (m *authMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r, ok := m.resolve(w, r, false); ok {
			next.ServeHTTP(w, r)
		}
	})
}

func (m *authMiddleware) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r, ok := m.resolve(w, r, true); ok {
			next.ServeHTTP(w, r)
		}
	})
}

func (m *authMiddleware) Admin(next http.Handler) http.Handler {
	return m.Required(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !RequesterFrom(r.Context()).IsAdmin() {
			writeError(w, r, m.logger, apperr.Forbidden("not authorized as an admin"))
			return
		}
		next.ServeHTTP(w, r)
	}))
}
