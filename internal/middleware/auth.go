package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/brightpath/safety-engine/internal/audit"
	apperrors "github.com/brightpath/safety-engine/internal/errors"
	"github.com/brightpath/safety-engine/internal/model"
)

type contextKey string

const CallerContextKey contextKey = "caller"

func GetCaller(ctx context.Context) *model.Caller {
	if caller, ok := ctx.Value(CallerContextKey).(*model.Caller); ok {
		return caller
	}
	return nil
}

func WithCaller(ctx context.Context, caller *model.Caller) context.Context {
	return context.WithValue(ctx, CallerContextKey, caller)
}

// Claims are issued by the identity provider. Subject is the caller id;
// guardians may also carry the children they manage.
type Claims struct {
	Role     model.Role `json:"role"`
	ChildIDs []string   `json:"child_ids,omitempty"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	secret []byte
	issuer string
}

func NewAuthMiddleware(secret, issuer string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret), issuer: issuer}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		caller, err := m.Verify(token)
		if err != nil {
			log.Warn().Err(err).Msg("auth middleware: invalid token attempt")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"reason": err.Error()},
			})
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeError(w, apperrors.InvalidToken("Token has expired"))
				return
			}
			writeError(w, apperrors.InvalidToken("Invalid token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// Verify checks signature, expiry and issuer, then maps the claims onto a
// Caller.
func (m *AuthMiddleware) Verify(tokenStr string) (*model.Caller, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}

	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	if !claims.Role.Valid() {
		return nil, errors.New("token has unknown role")
	}

	return &model.Caller{
		ID:       claims.Subject,
		Role:     claims.Role,
		ChildIDs: claims.ChildIDs,
	}, nil
}

// extractToken accepts a query token because EventSource cannot set headers.
func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
