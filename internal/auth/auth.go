package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alphabot-ai/flapper/internal/model"
	"github.com/alphabot-ai/flapper/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/pbkdf2"
)

var (
	ErrMissingFields      = errors.New("please fill out all fields")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUsernameTaken      = errors.New("username already taken")
)

const (
	saltBytes  = 16
	keyLen     = 64
	iterations = 10000
)

// Identity is the caller decoded from a verified token.
type Identity struct {
	UserID   string
	Username string
}

// Claims is the token payload: {_id, username, exp}.
type Claims struct {
	UserID   string `json:"_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Service struct {
	users    store.UserStore
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

func NewService(users store.UserStore, secret string, tokenTTL time.Duration) *Service {
	return &Service{
		users:    users,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// SetPassword replaces the user's salt and verifier.
func SetPassword(u *model.User, password string) error {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	u.Salt = hex.EncodeToString(salt)
	u.Hash = derive(password, u.Salt)
	return nil
}

// ValidPassword reports whether password matches the stored verifier.
func ValidPassword(u model.User, password string) bool {
	if u.Salt == "" || u.Hash == "" {
		return false
	}
	got := derive(password, u.Salt)
	return subtle.ConstantTimeCompare([]byte(got), []byte(u.Hash)) == 1
}

func derive(password, salt string) string {
	return hex.EncodeToString(pbkdf2.Key([]byte(password), []byte(salt), iterations, keyLen, sha512.New))
}

// NormalizeUsername folds case so "Alice" and "alice" are one account.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (s *Service) GenerateToken(u model.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(s.now().Add(s.tokenTTL)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks signature, algorithm and expiry. Every failure is ErrInvalidToken.
func (s *Service) VerifyToken(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" || claims.Username == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// Register creates the user and returns a fresh token.
func (s *Service) Register(ctx context.Context, username, password string) (string, error) {
	username = NormalizeUsername(username)
	if username == "" || password == "" {
		return "", ErrMissingFields
	}
	u := model.User{Username: username}
	if err := SetPassword(&u, password); err != nil {
		return "", err
	}
	if err := s.users.CreateUser(ctx, &u); err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			return "", ErrUsernameTaken
		}
		return "", err
	}
	return s.GenerateToken(u)
}

// Login returns a token when the username and password match.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	username = NormalizeUsername(username)
	if username == "" || password == "" {
		return "", ErrMissingFields
	}
	u, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if !ValidPassword(u, password) {
		return "", ErrInvalidCredentials
	}
	return s.GenerateToken(u)
}
