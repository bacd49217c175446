package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// developmentJWTSecret signs tokens when no secret is configured outside production.
const developmentJWTSecret = "fluxhook-development-secret"

var ErrBadPassword = errors.New("bad password")

type AuthConfig struct {
	Environment  string
	PasswordHash string
	JWTSecret    string
	TokenTTL     time.Duration
}

// Authenticator issues and verifies the bearer tokens that protect the API. With no password hash configured every
// request is allowed.
type Authenticator struct {
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
}

func NewAuthenticator(config AuthConfig) (*Authenticator, error) {
	secret := config.JWTSecret
	if secret == "" {
		if config.Environment == "production" {
			return nil, errors.New("auth jwt_secret is required in production")
		}
		secret = developmentJWTSecret
	}

	if config.TokenTTL <= 0 {
		config.TokenTTL = 24 * time.Hour
	}

	return &Authenticator{
		passwordHash: []byte(config.PasswordHash),
		secret:       []byte(secret),
		ttl:          config.TokenTTL,
	}, nil
}

func (a *Authenticator) Enabled() bool {
	return len(a.passwordHash) > 0
}

// Login checks password and returns a signed token.
func (a *Authenticator) Login(password string) (string, error) {
	if a.Enabled() {
		if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
			return "", ErrBadPassword
		}
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "fluxhook",
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Verify(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer("fluxhook"))
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}

	return nil
}

// Middleware rejects requests without a valid "Authorization: Bearer" token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		tokenString, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
		if !ok || tokenString == "" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprintln(w, "Bad or missing Authorization header")
			return
		}

		if err := a.Verify(tokenString); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprintln(w, "Invalid token")
			return
		}

		next.ServeHTTP(w, req)
	})
}

// HashPassword returns the bcrypt hash to store as the auth password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}
