package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/safar/shop-checkout/internal/logging"
	"github.com/safar/shop-checkout/internal/models"
)

var (
	ErrAuthDisabled = errors.New("token authentication is not configured")
	ErrNoEmail      = errors.New("token carries no email")
)

type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

func (c *Claims) email() string {
	if c.Email != "" {
		return c.Email
	}
	if strings.Contains(c.Subject, "@") {
		return c.Subject
	}
	return ""
}

type Buyers interface {
	EnsureBuyer(ctx context.Context, email, name string) (*models.Buyer, error)
}

// Authenticator resolves the buyer of every request. Requests without a
// bearer token act as the configured guest buyer.
type Authenticator struct {
	secret     []byte
	buyers     Buyers
	guestEmail string
	guestName  string

	mu    sync.Mutex
	guest *models.Buyer
}

func NewAuthenticator(secret string, buyers Buyers, guestEmail, guestName string) *Authenticator {
	return &Authenticator{
		secret:     []byte(secret),
		buyers:     buyers,
		guestEmail: guestEmail,
		guestName:  guestName,
	}
}

func (a *Authenticator) GenerateToken(email, name string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrAuthDisabled
	}

	now := time.Now()
	claims := &Claims{
		Email: email,
		Name:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) ParseToken(tokenString string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, ErrAuthDisabled
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("parse token: invalid")
	}
	if claims.email() == "" {
		return nil, ErrNoEmail
	}
	return claims, nil
}

func (a *Authenticator) guestBuyer(ctx context.Context) (*models.Buyer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.guest != nil {
		return a.guest, nil
	}
	buyer, err := a.buyers.EnsureBuyer(ctx, a.guestEmail, a.guestName)
	if err != nil {
		return nil, err
	}
	a.guest = buyer
	return buyer, nil
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var (
			buyer *models.Buyer
			err   error
		)

		auth := r.Header.Get("Authorization")
		if auth == "" {
			buyer, err = a.guestBuyer(ctx)
		} else {
			parts := strings.Fields(auth)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeMessage(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}
			claims, parseErr := a.ParseToken(parts[1])
			if parseErr != nil {
				slog.WarnContext(ctx, "rejected token", "error", parseErr)
				writeMessage(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			buyer, err = a.buyers.EnsureBuyer(ctx, claims.email(), claims.Name)
		}
		if err != nil {
			slog.ErrorContext(ctx, "resolve buyer", "error", err)
			writeMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx = WithBuyer(ctx, buyer)
		ctx = logging.WithBuyerID(ctx, buyer.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type ctxKey int

const (
	buyerKey ctxKey = iota
	sessionKey
)

func WithBuyer(ctx context.Context, buyer *models.Buyer) context.Context {
	return context.WithValue(ctx, buyerKey, buyer)
}

func BuyerFrom(ctx context.Context) (*models.Buyer, bool) {
	buyer, ok := ctx.Value(buyerKey).(*models.Buyer)
	return buyer, ok && buyer != nil
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
