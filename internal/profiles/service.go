package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxNameLength = 100

var (
	ErrEmptyName   = errors.New("name cannot be empty")
	ErrNameTooLong = fmt.Errorf("name must be at most %d characters", maxNameLength)
	ErrNotFound    = errors.New("profile not found")
)

// Service содержит бизнес-логику профилей
type Service struct {
	storage storage.ProfilesStorage
	clock   clock.Clock
	logger  *zap.Logger
}

// NewService создаёт новый сервис
func NewService(st storage.ProfilesStorage, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{storage: st, clock: clk, logger: logger.Named("profiles")}
}

// ListProfiles возвращает все профили
func (s *Service) ListProfiles(ctx context.Context) ([]ProfileDTO, error) {
	profiles, err := s.storage.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}

	dtos := make([]ProfileDTO, 0, len(profiles))
	for _, p := range profiles {
		dtos = append(dtos, toDTO(p))
	}
	return dtos, nil
}

// GetProfile возвращает профиль по ID
func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*ProfileDTO, error) {
	profile, ok, err := s.storage.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	dto := toDTO(profile)
	return &dto, nil
}

// CreateProfile создаёт нового участника
func (s *Service) CreateProfile(ctx context.Context, req CreateProfileRequest) (*ProfileDTO, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, ErrNameTooLong
	}

	now := s.clock.Now()
	profile := &storage.Profile{
		Name:       name,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.storage.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}

	s.logger.Info("profile created", zap.String("profile_id", profile.ID.String()))
	dto := toDTO(*profile)
	return &dto, nil
}

// SelectProfile отмечает визит профиля; токен выдаёт handler
func (s *Service) SelectProfile(ctx context.Context, id uuid.UUID) (*ProfileDTO, error) {
	profile, ok, err := s.storage.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	now := s.clock.Now()
	if err := s.storage.TouchProfile(ctx, id, now); err != nil {
		return nil, err
	}
	profile.LastSeenAt = now

	dto := toDTO(profile)
	return &dto, nil
}

// DeleteProfile удаляет профиль вместе с личным планом и отметками
func (s *Service) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.storage.DeleteProfile(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	s.logger.Info("profile deleted", zap.String("profile_id", id.String()))
	return nil
}

// toDTO конвертирует storage.Profile в ProfileDTO
func toDTO(p storage.Profile) ProfileDTO {
	return ProfileDTO{
		ID:         p.ID,
		Name:       p.Name,
		CreatedAt:  p.CreatedAt,
		LastSeenAt: p.LastSeenAt,
	}
}
