package recipes

import (
	"context"
	"fmt"
	"slices"

	"github.com/fdg312/meal-tracker/internal/ai"
	"github.com/fdg312/meal-tracker/internal/config"
	"github.com/fdg312/meal-tracker/internal/planentries"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ModelRegistry selects the default generator model.
type ModelRegistry interface {
	Default(ctx context.Context) (storage.AIModel, bool, error)
}

// ProviderFactory builds a generator; ai.NewProvider in production.
type ProviderFactory func(cfg config.RecipeConfig, provider, model string) (ai.Provider, error)

// Service resolves dish details for plan entries.
type Service struct {
	cache       *Cache
	plans       storage.PlanEntriesStorage
	models      ModelRegistry
	cfg         config.RecipeConfig
	newProvider ProviderFactory
	logger      *zap.Logger
}

func NewService(cache *Cache, plans storage.PlanEntriesStorage, models ModelRegistry, cfg config.RecipeConfig, factory ProviderFactory, logger *zap.Logger) *Service {
	if factory == nil {
		factory = ai.NewProvider
	}
	return &Service{
		cache:       cache,
		plans:       plans,
		models:      models,
		cfg:         cfg,
		newProvider: factory,
		logger:      logger.Named("recipes"),
	}
}

// DishDetail — запись плана вместе с описанием рецепта.
type DishDetail struct {
	Entry  storage.PlanEntry
	Recipe storage.RecipeInfo
}

// DishInfo returns recipe info for an entry visible to userID.
func (s *Service) DishInfo(ctx context.Context, entryID uuid.UUID, userID string) (DishDetail, error) {
	entry, found, err := s.plans.GetPlanEntryByID(ctx, entryID)
	if err != nil {
		return DishDetail{}, fmt.Errorf("failed to get plan entry: %w", err)
	}
	if !found || !slices.Contains(storage.ScopesFor(userID), entry.Scope) {
		return DishDetail{}, planentries.ErrEntryNotFound
	}

	gen := s.Generator(ctx)
	info := s.cache.GetOrGenerate(ctx, entry.DishName, entry.Description, gen)
	return DishDetail{Entry: entry, Recipe: info}, nil
}

// Generator builds the provider for the registry default, else the configured one.
// A misconfigured provider yields a generator that always fails, so the cache stores a fallback.
func (s *Service) Generator(ctx context.Context) ai.Provider {
	provider, model := s.cfg.Provider, s.cfg.DefaultModel
	if s.models != nil {
		m, found, err := s.models.Default(ctx)
		if err != nil {
			s.logger.Warn("failed to read default ai model", zap.Error(err))
		} else if found {
			provider, model = m.Provider, m.ModelID
		}
	}

	gen, err := s.newProvider(s.cfg, provider, model)
	if err != nil {
		s.logger.Warn("recipe generator unavailable", zap.String("provider", provider), zap.String("model", model), zap.Error(err))
		return failingProvider{model: provider + "/" + model, err: err}
	}
	return gen
}

// Invalidate expires the cache entry of a dish.
func (s *Service) Invalidate(ctx context.Context, dishName, description string) (string, bool, error) {
	sig := Signature(dishName, description)
	ok, err := s.cache.Invalidate(ctx, sig)
	return sig, ok, err
}

func (s *Service) InvalidateSignature(ctx context.Context, signature string) (bool, error) {
	return s.cache.Invalidate(ctx, signature)
}

type failingProvider struct {
	model string
	err   error
}

func (p failingProvider) GenerateRecipe(context.Context, ai.RecipeRequest) (ai.RecipeResponse, error) {
	return ai.RecipeResponse{}, p.err
}

func (p failingProvider) Model() string {
	return p.model
}
