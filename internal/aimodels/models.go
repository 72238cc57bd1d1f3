package aimodels

import (
	"errors"
	"time"

	"github.com/fdg312/meal-tracker/internal/storage"
)

var (
	ErrModelNotFound   = errors.New("ai model not found")
	ErrModelExists     = errors.New("ai model already exists")
	ErrInvalidProvider = errors.New("unknown provider")
	ErrInvalidModelID  = errors.New("model_id is required")
)

// SeedModel — запись seed.yaml.
type SeedModel struct {
	Provider    string `yaml:"provider"`
	ModelID     string `yaml:"model_id"`
	DisplayName string `yaml:"display_name"`
	Default     bool   `yaml:"default"`
}

type seedFile struct {
	Models []SeedModel `yaml:"models"`
}

type CreateModelRequest struct {
	Provider    string `json:"provider"`
	ModelID     string `json:"model_id"`
	DisplayName string `json:"display_name"`
	IsDefault   bool   `json:"is_default"`
}

type ModelDTO struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ModelID     string    `json:"model_id"`
	DisplayName string    `json:"display_name"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
}

type ListModelsResponse struct {
	Models []ModelDTO `json:"models"`
}

func ToDTO(m storage.AIModel) ModelDTO {
	return ModelDTO{
		ID:          m.ID.String(),
		Provider:    m.Provider,
		ModelID:     m.ModelID,
		DisplayName: m.DisplayName,
		IsDefault:   m.IsDefault,
		CreatedAt:   m.CreatedAt,
	}
}
