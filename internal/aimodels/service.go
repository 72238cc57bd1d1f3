// Package aimodels — реестр моделей генерации рецептов.
package aimodels

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/config"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

var providers = map[string]bool{
	config.ProviderMock:       true,
	config.ProviderGroq:       true,
	config.ProviderOpenRouter: true,
	config.ProviderOpenAI:     true,
	config.ProviderAnthropic:  true,
	config.ProviderGemini:     true,
}

type Service struct {
	storage storage.AIModelsStorage
	clock   clock.Clock
	logger  *zap.Logger
}

func NewService(st storage.AIModelsStorage, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{storage: st, clock: clk, logger: logger.Named("aimodels")}
}

// ParseSeed decodes a seed file.
func ParseSeed(data []byte) ([]SeedModel, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse model seed: %w", err)
	}
	return f.Models, nil
}

// SeedIfEmpty создаёт модели из встроенного seed.yaml, если реестр пуст.
func (s *Service) SeedIfEmpty(ctx context.Context) (int, error) {
	existing, err := s.storage.ListAIModels(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list ai models: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	seed, err := ParseSeed(seedYAML)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, m := range seed {
		_, err := s.Create(ctx, CreateModelRequest{
			Provider:    m.Provider,
			ModelID:     m.ModelID,
			DisplayName: m.DisplayName,
			IsDefault:   m.Default,
		})
		if errors.Is(err, ErrModelExists) {
			continue
		}
		if err != nil {
			return created, err
		}
		created++
	}
	s.logger.Info("seeded ai models", zap.Int("count", created))
	return created, nil
}

func (s *Service) List(ctx context.Context) ([]storage.AIModel, error) {
	models, err := s.storage.ListAIModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ai models: %w", err)
	}
	return models, nil
}

func (s *Service) Create(ctx context.Context, req CreateModelRequest) (storage.AIModel, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if !providers[provider] {
		return storage.AIModel{}, ErrInvalidProvider
	}
	modelID := strings.TrimSpace(req.ModelID)
	if modelID == "" {
		return storage.AIModel{}, ErrInvalidModelID
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = modelID
	}

	model := storage.AIModel{
		Provider:    provider,
		ModelID:     modelID,
		DisplayName: name,
		IsDefault:   req.IsDefault,
		CreatedAt:   s.clock.Now().UTC(),
	}
	if err := s.storage.CreateAIModel(ctx, &model); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return storage.AIModel{}, ErrModelExists
		}
		return storage.AIModel{}, fmt.Errorf("failed to create ai model: %w", err)
	}
	return model, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.storage.DeleteAIModel(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete ai model: %w", err)
	}
	if !deleted {
		return ErrModelNotFound
	}
	return nil
}

func (s *Service) SetDefault(ctx context.Context, id uuid.UUID) error {
	ok, err := s.storage.SetDefaultAIModel(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to set default ai model: %w", err)
	}
	if !ok {
		return ErrModelNotFound
	}
	return nil
}

// Default returns the default model, else the first registered one.
func (s *Service) Default(ctx context.Context) (storage.AIModel, bool, error) {
	model, found, err := s.storage.GetDefaultAIModel(ctx)
	if err != nil {
		return storage.AIModel{}, false, fmt.Errorf("failed to get default ai model: %w", err)
	}
	if found {
		return model, true, nil
	}
	models, err := s.List(ctx)
	if err != nil {
		return storage.AIModel{}, false, err
	}
	if len(models) == 0 {
		return storage.AIModel{}, false, nil
	}
	return models[0], true, nil
}
