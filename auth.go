package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-chi/render"
	"golang.org/x/crypto/bcrypt"
)

var (
	JWT_LIFESPAN time.Duration = time.Hour
	JWT_SUBJECT                = "operator"
)

//---
// Structs
//

// Credentials hold the hashed operator password. Only the hash is kept
// in memory.
type Credentials struct {
	hash []byte
}

func NewCredentials(pass []byte) (*Credentials, error) {
	hash, err := bcrypt.GenerateFromPassword(pass, bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Credentials{hash: hash}, nil
}

// Compares the stored hash with the provided plain text.
// Returns values directly as provided by the bcrypt library for downstream processing.
func (c *Credentials) Verify(pass []byte) error {
	return bcrypt.CompareHashAndPassword(c.hash, pass)
}

//---
// Generic payloads
//---

type LoginPayload struct {
	Password string `json:"password"`
}

func (l *LoginPayload) Bind(r *http.Request) error {
	if l.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

type JWTPayload struct {
	SignedToken string `json:"token"`
}

//---
// Helper functions
//

func jwtSecret() []byte {
	return []byte(ENV.JWT_SECRET)
}

// Produce a standard format JWT token
func newJWT(sub string) (ts string, err error) {
	now := time.Now().UTC()
	claims := jwt.StandardClaims{
		Issuer:    ENV.JWT_ISSUER,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(JWT_LIFESPAN).Unix(),
		Subject:   sub,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString(jwtSecret())
}

// tokenFromRequest looks in the query string, then the Authorization
// header, then the jwt cookie.
func tokenFromRequest(r *http.Request) string {
	if tokenStr := r.URL.Query().Get("jwt"); tokenStr != "" {
		return tokenStr
	}

	bearer := r.Header.Get("Authorization")
	if len(bearer) > 7 && strings.ToUpper(bearer[0:6]) == "BEARER" {
		return bearer[7:]
	}

	if cookie, err := r.Cookie("jwt"); err == nil {
		return cookie.Value
	}
	return ""
}

func parseJWT(tokenStr string) (*jwt.Token, error) {
	if tokenStr == "" {
		return nil, JWTEmpty
	}

	token, err := jwt.ParseWithClaims(tokenStr,
		&jwt.StandardClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("Unexpected signing method")
			}
			return jwtSecret(), nil
		})

	if err != nil {
		if jwterr, ok := err.(*jwt.ValidationError); ok && jwterr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, errors.New("Token has expired")
		}
		return nil, errors.New("Invalid token")
	}
	if !token.Valid {
		return nil, errors.New("Invalid token")
	}
	return token, nil
}

// AuthorizeRequest validates the token carried by r.
func AuthorizeRequest(r *http.Request) error {
	_, err := parseJWT(tokenFromRequest(r))
	return err
}

//---
// Views
//---

// Login verifies the operator password and returns a token
func Login(w http.ResponseWriter, r *http.Request) {
	data := &LoginPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if ENV.Credentials == nil {
		render.Render(w, r, ErrPermissionDenied(errors.New("No operator password configured")))
		return
	}

	err := ENV.Credentials.Verify([]byte(data.Password))
	if err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			render.Render(w, r, ErrPermissionDenied(errors.New("Invalid password")))
			return
		}
		render.Render(w, r, ErrRender(err))
		return
	}

	tokenString, err := newJWT(JWT_SUBJECT)
	if err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}

	render.JSON(w, r, JWTPayload{tokenString})
}

// Provides a new token to the client
func JWTRefresh(w http.ResponseWriter, r *http.Request) {
	token := r.Context().Value(jwtContextKey).(*jwt.Token)
	claims := token.Claims.(*jwt.StandardClaims)

	tokenString, err := newJWT(claims.Subject)
	if err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}

	render.JSON(w, r, JWTPayload{tokenString})
}

//---
// Authentication middleware
//---

type contextKey string

var (
	JWTEmpty      = errors.New("Bearer token not provided")
	jwtContextKey = contextKey("jwt")
)

func ValidateJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := parseJWT(tokenFromRequest(r))
		if err != nil {
			render.Render(w, r, ErrUnauthorized(err))
			return
		}

		ctx := context.WithValue(r.Context(), jwtContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
