package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tgdrive/filebox/pkg/httputil"
)

type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

type User struct {
	ID    string
	Email string
}

type authContextKey struct{}

var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken signs an HS256 token for the user valid for ttl from now.
func NewAccessToken(secret string, user User, now time.Time, ttl time.Duration) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: user.Email,
	}
	return Encode(secret, claims)
}

func Encode(secret string, claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func Decode(secret, token string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tkn.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, authContextKey{}, u)
}

// GetUser returns the authenticated user. It is only meant to be called
// behind Middleware.
func GetUser(ctx context.Context) User {
	u, _ := ctx.Value(authContextKey{}).(User)
	return u
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Middleware rejects requests without a valid bearer access token.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				httputil.WriteMessage(w, http.StatusUnauthorized, "access token required")
				return
			}
			claims, err := Decode(secret, token)
			if err != nil {
				httputil.WriteMessage(w, http.StatusUnauthorized, "invalid or expired access token")
				return
			}
			ctx := WithUser(r.Context(), User{ID: claims.Subject, Email: claims.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
