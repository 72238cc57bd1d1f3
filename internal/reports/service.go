package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fdg312/meal-tracker/internal/blob"
	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Errors
var (
	ErrInvalidFormat    = errors.New("invalid format")
	ErrInvalidDate      = errors.New("invalid date format")
	ErrInvalidDateRange = errors.New("from date must be before to date")
	ErrRangeTooLarge    = errors.New("date range too large")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrExportNotFound   = errors.New("export not found")
)

// Service handles adherence exports
type Service struct {
	exports   storage.ExportsStorage
	profiles  storage.ProfilesStorage
	generator *Generator
	blobStore blob.Store // nil: выгрузки хранятся inline
	opts      Options
	clock     clock.Clock
	logger    *zap.Logger
}

// NewService creates a new reports service. blobStore may be nil (local mode).
func NewService(
	exports storage.ExportsStorage,
	profiles storage.ProfilesStorage,
	days DayViewer,
	blobStore blob.Store,
	opts Options,
	clk clock.Clock,
	logger *zap.Logger,
) *Service {
	if opts.MaxRangeDays <= 0 {
		opts.MaxRangeDays = 92
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 900
	}
	return &Service{
		exports:   exports,
		profiles:  profiles,
		generator: NewGenerator(days),
		blobStore: blobStore,
		opts:      opts,
		clock:     clk,
		logger:    logger.Named("reports"),
	}
}

// LocalMode reports whether exports are kept inline.
func (s *Service) LocalMode() bool {
	return s.blobStore == nil
}

// MaxRangeDays returns the longest allowed export period.
func (s *Service) MaxRangeDays() int {
	return s.opts.MaxRangeDays
}

// CreateExport builds an export of the member's adherence for [from, to]
func (s *Service) CreateExport(ctx context.Context, profileID uuid.UUID, req CreateExportRequest) (*storage.ExportMeta, error) {
	if req.Format != FormatPDF && req.Format != FormatCSV {
		return nil, ErrInvalidFormat
	}
	if !clock.ValidDate(req.From) || !clock.ValidDate(req.To) {
		return nil, ErrInvalidDate
	}
	daysDiff, err := clock.DaysBetween(req.From, req.To)
	if err != nil {
		return nil, ErrInvalidDate
	}
	if daysDiff < 0 {
		return nil, ErrInvalidDateRange
	}
	if daysDiff > s.opts.MaxRangeDays {
		return nil, ErrRangeTooLarge
	}

	profile, ok, err := s.profiles.GetProfile(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if !ok {
		return nil, ErrProfileNotFound
	}

	data, err := s.generator.Generate(ctx, profileID.String(), profile.Name, req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate export: %w", err)
	}

	export := &storage.ExportMeta{
		ID:        uuid.New(),
		ProfileID: profileID,
		Format:    req.Format,
		FromDate:  req.From,
		ToDate:    req.To,
		SizeBytes: int64(len(data)),
		CreatedAt: s.clock.Now(),
	}

	if s.LocalMode() {
		export.Data = data
	} else {
		objectKey := blob.ExportKey(profileID, export.ID, req.Format)
		if _, err := s.blobStore.PutObject(ctx, objectKey, data, contentTypeFor(req.Format)); err != nil {
			return nil, fmt.Errorf("failed to upload export: %w", err)
		}
		export.ObjectKey = &objectKey
	}

	if err := s.exports.CreateExport(ctx, export); err != nil {
		return nil, fmt.Errorf("failed to save export metadata: %w", err)
	}

	s.logger.Info("export created",
		zap.String("export_id", export.ID.String()),
		zap.String("profile_id", profileID.String()),
		zap.String("format", req.Format),
		zap.Int64("size_bytes", export.SizeBytes),
	)
	return export, nil
}

// GetExport returns an export owned by the profile
func (s *Service) GetExport(ctx context.Context, profileID, id uuid.UUID) (*storage.ExportMeta, error) {
	meta, ok, err := s.exports.GetExport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get export: %w", err)
	}
	if !ok || meta.ProfileID != profileID {
		return nil, ErrExportNotFound
	}
	return &meta, nil
}

// ListExports lists exports for a profile
func (s *Service) ListExports(ctx context.Context, profileID uuid.UUID, limit, offset int) ([]storage.ExportMeta, error) {
	list, err := s.exports.ListExports(ctx, profileID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	return list, nil
}

// DeleteExport deletes an export and its object
func (s *Service) DeleteExport(ctx context.Context, profileID, id uuid.UUID) error {
	meta, err := s.GetExport(ctx, profileID, id)
	if err != nil {
		return err
	}

	if !s.LocalMode() && meta.ObjectKey != nil {
		if err := s.blobStore.DeleteObject(ctx, *meta.ObjectKey); err != nil {
			// метаданные важнее объекта
			s.logger.Warn("failed to delete export object", zap.String("key", *meta.ObjectKey), zap.Error(err))
		}
	}

	if _, err := s.exports.DeleteExport(ctx, id); err != nil {
		return fmt.Errorf("failed to delete export metadata: %w", err)
	}
	return nil
}

// DownloadURL returns the link a client should follow to fetch the export
func (s *Service) DownloadURL(ctx context.Context, meta *storage.ExportMeta, baseURL string) (string, error) {
	if s.LocalMode() || meta.ObjectKey == nil {
		return fmt.Sprintf("%s/v1/exports/%s/download", strings.TrimSuffix(baseURL, "/"), meta.ID.String()), nil
	}

	if s.opts.PreferPublicURL && s.opts.PublicBaseURL != "" {
		return strings.TrimSuffix(s.opts.PublicBaseURL, "/") + "/" + *meta.ObjectKey, nil
	}

	presignedURL, err := s.blobStore.PresignGet(ctx, *meta.ObjectKey, s.opts.PresignTTL)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return presignedURL, nil
}

// ExportData returns the raw export bytes
func (s *Service) ExportData(ctx context.Context, meta *storage.ExportMeta) ([]byte, string, error) {
	contentType := contentTypeFor(meta.Format)
	if meta.ObjectKey == nil {
		return meta.Data, contentType, nil
	}
	if s.LocalMode() {
		return nil, "", fmt.Errorf("export %s is stored remotely but object storage is not configured", meta.ID)
	}
	data, err := s.blobStore.GetObject(ctx, *meta.ObjectKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch export: %w", err)
	}
	return data, contentType, nil
}

func (s *Service) toDTO(ctx context.Context, meta *storage.ExportMeta, baseURL string) ExportDTO {
	downloadURL, err := s.DownloadURL(ctx, meta, baseURL)
	if err != nil {
		s.logger.Warn("failed to build download url", zap.String("export_id", meta.ID.String()), zap.Error(err))
	}
	return ExportDTO{
		ID:          meta.ID,
		ProfileID:   meta.ProfileID,
		Format:      meta.Format,
		From:        meta.FromDate,
		To:          meta.ToDate,
		DownloadURL: downloadURL,
		SizeBytes:   meta.SizeBytes,
		CreatedAt:   meta.CreatedAt,
	}
}
