// Package recipes кэширует сгенерированные описания блюд.
package recipes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/fdg312/meal-tracker/internal/ai"
	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CacheConfig holds TTLs and timing of the cache.
type CacheConfig struct {
	FreshTTL        time.Duration
	FallbackTTL     time.Duration
	LeaseTTL        time.Duration
	GenerateTimeout time.Duration
	WaitPoll        time.Duration
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.FreshTTL <= 0 {
		c.FreshTTL = 30 * 24 * time.Hour
	}
	if c.FallbackTTL <= 0 {
		c.FallbackTTL = 10 * time.Minute
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = 30 * time.Second
	}
	if c.LeaseTTL <= c.GenerateTimeout {
		c.LeaseTTL = c.GenerateTimeout + 5*time.Second
	}
	if c.WaitPoll <= 0 {
		c.WaitPoll = 200 * time.Millisecond
	}
	return c
}

// Cache — кэш рецептов: не более одной генерации на сигнатуру.
// Внутри процесса вызовы склеиваются singleflight, между процессами выбирается держатель лиза.
type Cache struct {
	storage storage.RecipeCacheStorage
	clock   clock.Clock
	cfg     CacheConfig
	owner   string
	group   singleflight.Group
	logger  *zap.Logger
}

func NewCache(st storage.RecipeCacheStorage, clk clock.Clock, cfg CacheConfig, logger *zap.Logger) *Cache {
	return &Cache{
		storage: st,
		clock:   clk,
		cfg:     cfg.withDefaults(),
		owner:   uuid.NewString(),
		logger:  logger.Named("recipes"),
	}
}

// Signature is the hex SHA-256 of the normalized dish name and description.
func Signature(dishName, description string) string {
	sum := sha256.Sum256([]byte(normalize(dishName) + "\x1f" + normalize(description)))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// FallbackText is the deterministic body used when nothing was ever generated.
func FallbackText(dishName string) string {
	return fmt.Sprintf("<p class='error'>Recipe details for <strong>%s</strong> are unavailable right now. Please try again later.</p>",
		html.EscapeString(strings.TrimSpace(dishName)))
}

// GetOrGenerate never fails: on any error the caller gets a fallback entry.
func (c *Cache) GetOrGenerate(ctx context.Context, dishName, description string, gen ai.Provider) storage.RecipeInfo {
	sig := Signature(dishName, description)

	prev, found := c.lookup(ctx, sig)
	if found && !prev.Expired(c.clock.Now()) {
		return prev
	}

	ch := c.group.DoChan(sig, func() (interface{}, error) {
		return c.fill(sig, dishName, description, gen), nil
	})
	select {
	case res := <-ch:
		return res.Val.(storage.RecipeInfo)
	case <-ctx.Done():
		// генерация продолжается без этого вызывающего
		var prevPtr *storage.RecipeInfo
		if found {
			prevPtr = &prev
		}
		return c.fallback(sig, dishName, description, prevPtr, "", ctx.Err())
	}
}

// Invalidate expires an entry immediately.
func (c *Cache) Invalidate(ctx context.Context, signature string) (bool, error) {
	ok, err := c.storage.ExpireRecipeInfo(ctx, signature, c.clock.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to expire recipe info: %w", err)
	}
	return ok, nil
}

func (c *Cache) Count(ctx context.Context) (int, error) {
	return c.storage.CountRecipeInfos(ctx)
}

// fill работает на контексте, не связанном с конкретным запросом.
func (c *Cache) fill(sig, dishName, description string, gen ai.Provider) storage.RecipeInfo {
	ctx := context.Background()
	// срок ожидания и срок лиза считаются по одним часам; число опросов ограничено
	// тем же окном, чтобы остановленные часы не держали ожидание вечно
	wait := c.cfg.LeaseTTL + c.cfg.GenerateTimeout
	deadline := c.clock.Now().Add(wait)
	maxPolls := pollBudget(wait, c.cfg.WaitPoll)

	for poll := 0; ; poll++ {
		prev, found := c.lookup(ctx, sig)
		if found && !prev.Expired(c.clock.Now()) {
			return prev
		}
		var prevPtr *storage.RecipeInfo
		if found {
			prevPtr = &prev
		}

		acquired, err := c.storage.AcquireRecipeLease(ctx, sig, c.owner, c.clock.Now().UTC(), c.cfg.LeaseTTL)
		if err != nil {
			c.logger.Warn("recipe lease unavailable, generating without it",
				zap.String("signature", sig), zap.Error(err))
			return c.generate(ctx, sig, dishName, description, prevPtr, gen)
		}
		if acquired {
			defer c.release(sig)
			// запись могла появиться между проверкой и захватом лиза
			if again, ok := c.lookup(ctx, sig); ok && !again.Expired(c.clock.Now()) {
				return again
			}
			return c.generate(ctx, sig, dishName, description, prevPtr, gen)
		}

		if c.clock.Now().After(deadline) || poll >= maxPolls {
			c.logger.Warn("gave up waiting for recipe lease holder", zap.String("signature", sig))
			return c.fallback(sig, dishName, description, prevPtr, "", context.DeadlineExceeded)
		}
		time.Sleep(c.cfg.WaitPoll)
	}
}

func pollBudget(wait, poll time.Duration) int {
	if poll <= 0 {
		return 1
	}
	return int(wait/poll) + 1
}

func (c *Cache) generate(ctx context.Context, sig, dishName, description string, prev *storage.RecipeInfo, gen ai.Provider) storage.RecipeInfo {
	if gen == nil {
		err := &ai.Error{Kind: ai.KindConfig, Message: "no generator configured"}
		return c.store(ctx, c.failed(sig, dishName, description, prev, "", err))
	}

	genCtx, cancel := context.WithTimeout(ctx, c.cfg.GenerateTimeout)
	defer cancel()

	type result struct {
		resp ai.RecipeResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := gen.GenerateRecipe(genCtx, ai.RecipeRequest{DishName: dishName, Description: description})
		done <- result{resp, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-genCtx.Done():
		res.err = &ai.Error{Kind: ai.KindTimeout, Model: gen.Model(), Cause: genCtx.Err()}
	}
	if res.err == nil && strings.TrimSpace(res.resp.Text) == "" {
		res.err = &ai.Error{Kind: ai.KindMalformed, Model: gen.Model(), Message: "empty response"}
	}
	if res.err != nil {
		return c.store(ctx, c.failed(sig, dishName, description, prev, gen.Model(), res.err))
	}

	now := c.clock.Now().UTC()
	info := storage.RecipeInfo{
		Signature:        sig,
		DishName:         strings.TrimSpace(dishName),
		Description:      strings.TrimSpace(description),
		GeneratedText:    res.resp.Text,
		NutritionSummary: res.resp.NutritionSummary,
		Status:           storage.RecipeFresh,
		SourceModel:      gen.Model(),
		GeneratedAt:      now,
		ExpiresAt:        now.Add(c.cfg.FreshTTL),
	}
	c.logger.Info("recipe generated", zap.String("signature", sig), zap.String("model", info.SourceModel))
	return c.store(ctx, info)
}

// failed логирует GenerationError и строит fallback с коротким TTL.
func (c *Cache) failed(sig, dishName, description string, prev *storage.RecipeInfo, model string, err error) storage.RecipeInfo {
	c.logger.Warn("GenerationError",
		zap.String("signature", sig),
		zap.String("dish", dishName),
		zap.String("model", model),
		zap.String("kind", string(ai.KindOf(err))),
		zap.Error(err))
	return c.fallback(sig, dishName, description, prev, model, err)
}

func (c *Cache) fallback(sig, dishName, description string, prev *storage.RecipeInfo, model string, cause error) storage.RecipeInfo {
	now := c.clock.Now().UTC()
	info := storage.RecipeInfo{
		Signature:     sig,
		DishName:      strings.TrimSpace(dishName),
		Description:   strings.TrimSpace(description),
		GeneratedText: FallbackText(dishName),
		Status:        storage.RecipeStaleFallback,
		SourceModel:   model,
		GeneratedAt:   now,
		ExpiresAt:     now.Add(c.cfg.FallbackTTL),
	}
	if cause != nil {
		info.LastError = cause.Error()
	}
	if prev != nil && strings.TrimSpace(prev.GeneratedText) != "" {
		info.GeneratedText = prev.GeneratedText
		info.NutritionSummary = prev.NutritionSummary
		info.SourceModel = prev.SourceModel
		info.GeneratedAt = prev.GeneratedAt
	}
	return info
}

func (c *Cache) store(ctx context.Context, info storage.RecipeInfo) storage.RecipeInfo {
	if err := c.storage.PutRecipeInfo(ctx, info); err != nil {
		c.logger.Error("failed to store recipe info", zap.String("signature", info.Signature), zap.Error(err))
	}
	return info
}

func (c *Cache) lookup(ctx context.Context, sig string) (storage.RecipeInfo, bool) {
	info, found, err := c.storage.GetRecipeInfo(ctx, sig)
	if err != nil {
		c.logger.Warn("recipe cache lookup failed", zap.String("signature", sig), zap.Error(err))
		return storage.RecipeInfo{}, false
	}
	return info, found
}

func (c *Cache) release(sig string) {
	if err := c.storage.ReleaseRecipeLease(context.Background(), sig, c.owner); err != nil {
		c.logger.Warn("failed to release recipe lease", zap.String("signature", sig), zap.Error(err))
	}
}
