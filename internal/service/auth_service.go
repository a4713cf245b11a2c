package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/proctorly/proctor-backend/internal/config"
	"github.com/proctorly/proctor-backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenSuperseded    = errors.New("token superseded by a newer login")
)

// TokenType distinguishes candidate vs admin tokens.
type TokenType string

const (
	TokenTypeCandidate TokenType = "candidate"
	TokenTypeAdmin     TokenType = "admin"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	UserID    int       `json:"user_id"`
	// SessionToken binds a candidate token to one exam attempt. Candidate only.
	SessionToken string `json:"session_token,omitempty"`
}

// CandidateStore resolves candidate accounts for login.
type CandidateStore interface {
	GetByUsername(ctx context.Context, username string) (*model.Candidate, error)
}

// AdminStore resolves admin accounts for login.
type AdminStore interface {
	GetByEmail(ctx context.Context, email string) (*model.Admin, error)
}

// AuthService handles password checks, JWT issuance, and the single-device
// token register. The latest candidate login supersedes earlier tokens: the
// current JWT ID is kept in Redis and older IDs stop validating.
type AuthService struct {
	cfg *config.Config
	rdb *redis.Client
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb}
}

// HashPassword hashes a password with the configured bcrypt cost.
// Default cost is 6 for high-concurrency logins. Adjustable via BCRYPT_COST.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// GenerateCandidateToken issues a JWT bound to one exam attempt and registers
// its ID as the candidate's current login.
func (s *AuthService) GenerateCandidateToken(ctx context.Context, candidateID int, sessionToken uuid.UUID) (string, error) {
	jti := uuid.New().String()
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.Itoa(candidateID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType:    TokenTypeCandidate,
		UserID:       candidateID,
		SessionToken: sessionToken.String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	if s.rdb != nil {
		key := config.CacheKey.CandidateLoginKey(candidateID)
		if err := s.rdb.Set(ctx, key, jti, s.cfg.JWTExpiry).Err(); err != nil {
			return "", fmt.Errorf("register login: %w", err)
		}
	}
	return signed, nil
}

// GenerateAdminToken issues a JWT for an administrator.
func (s *AuthService) GenerateAdminToken(adminID int) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.Itoa(adminID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType: TokenTypeAdmin,
		UserID:    adminID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// ValidateToken parses and validates a JWT, returning the claims. Candidate
// tokens are additionally checked against the login register so a newer login
// invalidates them.
func (s *AuthService) ValidateToken(ctx context.Context, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	if claims.TokenType == TokenTypeCandidate && s.rdb != nil {
		current, err := s.rdb.Get(ctx, config.CacheKey.CandidateLoginKey(claims.UserID)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("check login register: %w", err)
		}
		if current != "" && current != claims.ID {
			return nil, ErrTokenSuperseded
		}
	}
	return claims, nil
}

// SessionTokenUUID parses the attempt token out of candidate claims.
func (c *Claims) SessionTokenUUID() (uuid.UUID, error) {
	return uuid.Parse(c.SessionToken)
}
