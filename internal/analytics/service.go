package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/meal-tracker/internal/adherence"
	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/storage"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidDate = errors.New("invalid date format")

// memberWorkers — сколько недель участников считается параллельно
const memberWorkers = 4

// ProfileStorage defines the interface for profile operations
type ProfileStorage interface {
	ListProfiles(ctx context.Context) ([]storage.Profile, error)
}

// PlanStorage defines the interface for plan aggregates
type PlanStorage interface {
	PlanStats(ctx context.Context) (storage.PlanStats, error)
}

// ActivityCounter defines the interface for activity volume
type ActivityCounter interface {
	CountActivitySince(ctx context.Context, since time.Time) (int, error)
}

// RecipeCounter reports the number of cached recipe entries
type RecipeCounter interface {
	Count(ctx context.Context) (int, error)
}

// WeekViewer builds a member's week with effective statuses
type WeekViewer interface {
	WeeklyView(ctx context.Context, userID, weekStart string) (adherence.WeekView, error)
	WeekStartFor(offset int) string
}

// Service handles admin analytics
type Service struct {
	profiles ProfileStorage
	plans    PlanStorage
	activity ActivityCounter
	recipes  RecipeCounter
	weeks    WeekViewer
	clock    clock.Clock
}

// NewService creates a new analytics service
func NewService(profiles ProfileStorage, plans PlanStorage, activity ActivityCounter, recipes RecipeCounter, weeks WeekViewer, clk clock.Clock) *Service {
	return &Service{
		profiles: profiles,
		plans:    plans,
		activity: activity,
		recipes:  recipes,
		weeks:    weeks,
		clock:    clk,
	}
}

// Stats returns household totals
func (s *Service) Stats(ctx context.Context) (*StatsResponse, error) {
	profiles, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	plan, err := s.plans.PlanStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan stats: %w", err)
	}
	recipes, err := s.recipes.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count recipes: %w", err)
	}
	recent, err := s.activity.CountActivitySince(ctx, s.clock.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count activity: %w", err)
	}

	return &StatsResponse{
		Members:        len(profiles),
		Entries:        plan.Entries,
		PlanDays:       plan.Days,
		RecipeEntries:  recipes,
		ActivityLast24: recent,
	}, nil
}

// WeeklyAdherence returns per-member counts for the week starting at weekStart
// (normalized to Monday; empty means the current week).
func (s *Service) WeeklyAdherence(ctx context.Context, weekStart string) (*AdherenceResponse, error) {
	if weekStart == "" {
		weekStart = s.weeks.WeekStartFor(0)
	} else {
		start, err := clock.WeekStart(weekStart)
		if err != nil {
			return nil, ErrInvalidDate
		}
		weekStart = start
	}
	weekEnd, _ := clock.AddDays(weekStart, 6)

	profiles, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	members := make([]MemberAdherence, len(profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(memberWorkers)
	for i, p := range profiles {
		g.Go(func() error {
			week, err := s.weeks.WeeklyView(gctx, p.ID.String(), weekStart)
			if err != nil {
				return fmt.Errorf("week for %s: %w", p.ID, err)
			}
			members[i] = toMemberAdherence(p, week.Totals)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &AdherenceResponse{WeekStart: weekStart, WeekEnd: weekEnd, Members: members}, nil
}

func toMemberAdherence(p storage.Profile, c adherence.Counts) MemberAdherence {
	m := MemberAdherence{
		ProfileID: p.ID,
		Name:      p.Name,
		Prepared:  c.Prepared,
		Missed:    c.Missed,
		Pending:   c.Pending,
		Total:     c.Total(),
	}
	if decided := c.Prepared + c.Missed; decided > 0 {
		rate := float64(c.Prepared) / float64(decided)
		m.Rate = &rate
	}
	return m
}
