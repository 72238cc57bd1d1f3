package activity

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder пишет событие в журнал. Ошибки записи не прерывают запрос.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}

// Service handles the activity log.
type Service struct {
	storage storage.ActivityStorage
	clock   clock.Clock
	logger  *zap.Logger
}

// NewService creates a new activity service.
func NewService(st storage.ActivityStorage, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{storage: st, clock: clk, logger: logger.Named("activity")}
}

func (s *Service) Record(ctx context.Context, e Entry) {
	event := storage.ActivityEvent{
		ProfileID: e.ProfileID,
		Action:    e.Action,
		Details:   e.Details,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.storage.AddActivity(ctx, &event); err != nil {
		s.logger.Warn("failed to record activity", zap.String("action", e.Action), zap.Error(err))
	}
}

// List returns one page (1-based) of events, newest first.
func (s *Service) List(ctx context.Context, profileID *uuid.UUID, page int) (ListResponse, error) {
	if page < 1 {
		page = 1
	}
	events, total, err := s.storage.ListActivity(ctx, profileID, PageSize, (page-1)*PageSize)
	if err != nil {
		return ListResponse{}, fmt.Errorf("failed to list activity: %w", err)
	}

	dtos := make([]EventDTO, len(events))
	for i, e := range events {
		dtos[i] = toDTO(e)
	}
	pages := (total + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}
	return ListResponse{Events: dtos, Total: total, Page: page, TotalPages: pages}, nil
}

// FromRequest fills IP and User-Agent from r.
func FromRequest(r *http.Request, profileID *uuid.UUID, action, details string) Entry {
	return Entry{
		ProfileID: profileID,
		Action:    action,
		Details:   details,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func toDTO(e storage.ActivityEvent) EventDTO {
	dto := EventDTO{
		ID:        e.ID.String(),
		Action:    e.Action,
		Details:   e.Details,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		CreatedAt: e.CreatedAt,
	}
	if e.ProfileID != nil {
		id := e.ProfileID.String()
		dto.ProfileID = &id
	}
	return dto
}
