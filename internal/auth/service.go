package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/config"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/fdg312/meal-tracker/internal/userctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

const minPasswordLength = 8

// Service — сервис авторизации
type Service struct {
	config  *config.Config
	storage storage.AdminStorage
	clock   clock.Clock
	logger  *zap.Logger
}

func NewService(cfg *config.Config, st storage.AdminStorage, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{
		config:  cfg,
		storage: st,
		clock:   clk,
		logger:  logger.Named("auth"),
	}
}

// EnsureAdmin создаёт администратора из ADMIN_USERNAME/ADMIN_PASSWORD, если его ещё нет.
// Существующий пароль не перезаписывается.
func (s *Service) EnsureAdmin(ctx context.Context) error {
	username := strings.TrimSpace(s.config.AdminUsername)
	if username == "" || s.config.AdminPassword == "" {
		s.logger.Warn("admin credentials not configured, skipping seed")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.config.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	created, err := s.storage.CreateAdminIfMissing(ctx, storage.AdminAccount{
		Username:     username,
		PasswordHash: string(hash),
		UpdatedAt:    s.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		s.logger.Info("admin account created", zap.String("username", username))
	}
	return nil
}

// AdminLogin проверяет пароль и выдаёт admin-токен.
func (s *Service) AdminLogin(ctx context.Context, username, password string) (TokenResponse, error) {
	account, ok, err := s.storage.GetAdmin(ctx, strings.TrimSpace(username))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("get admin: %w", err)
	}
	if !ok || bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		s.logger.Info("admin login failed", zap.String("username", username))
		return TokenResponse{}, ErrInvalidCredentials
	}
	return s.IssueToken(account.Username, userctx.RoleAdmin)
}

// ChangePassword меняет пароль администратора после проверки текущего.
func (s *Service) ChangePassword(ctx context.Context, username, current, next string) error {
	if len(next) < minPasswordLength {
		return ErrWeakPassword
	}

	account, ok, err := s.storage.GetAdmin(ctx, username)
	if err != nil {
		return fmt.Errorf("get admin: %w", err)
	}
	if !ok || bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.storage.UpdateAdminPassword(ctx, username, string(hash), s.clock.Now()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.logger.Info("admin password changed", zap.String("username", username))
	return nil
}

// IssueToken выдаёт JWT с ролью.
func (s *Service) IssueToken(subject, role string) (TokenResponse, error) {
	ttl := time.Duration(s.config.JWTTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	token, err := s.generateJWTWithTTL(subject, role, ttl)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
		Role:        role,
	}, nil
}

// IssueMemberToken — токен выбранного профиля.
func (s *Service) IssueMemberToken(profileID string) (TokenResponse, error) {
	return s.IssueToken(profileID, userctx.RoleMember)
}

func (s *Service) generateJWTWithTTL(subject, role string, ttl time.Duration) (string, error) {
	now := s.clock.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iss":  s.config.JWTIssuer,
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyJWT — проверка подписи, срока и издателя
func (s *Service) VerifyJWT(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	},
		jwt.WithIssuer(s.config.JWTIssuer),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" || (role != userctx.RoleAdmin && role != userctx.RoleMember) {
		return Identity{}, ErrInvalidToken
	}
	return Identity{Subject: sub, Role: role}, nil
}
