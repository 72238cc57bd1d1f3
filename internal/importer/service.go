package importer

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"sort"

	"github.com/fdg312/meal-tracker/internal/blob"
	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/planentries"
	"github.com/fdg312/meal-tracker/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service runs the import pipeline: parse, validate, dedupe, write (or preview).
type Service struct {
	entries *planentries.Service
	reader  storage.PlanEntriesStorage
	archive blob.Store // nil: загрузки не архивируются
	clock   clock.Clock
	logger  *zap.Logger
}

// NewService creates the import service. archive may be nil.
func NewService(entries *planentries.Service, reader storage.PlanEntriesStorage, archive blob.Store, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{
		entries: entries,
		reader:  reader,
		archive: archive,
		clock:   clk,
		logger:  logger.Named("importer"),
	}
}

type candidate struct {
	row   int
	entry storage.PlanEntry
}

// Import processes one upload. Row problems go to the report; only file-level
// problems (format, header, scope) are returned as errors.
func (s *Service) Import(ctx context.Context, req Request) (Report, error) {
	scope, verr := planentries.NormalizeScope(req.Scope)
	if verr != nil {
		return Report{}, verr
	}
	format, err := DetectFormat(req.Filename, req.Data)
	if err != nil {
		return Report{}, err
	}
	rows, err := ParseRows(req.Data, format)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		DryRun:    req.DryRun,
		Scope:     scope,
		Format:    format,
		TotalRows: len(rows),
		Replaced:  []ReplacedRow{},
		Rejected:  []RowError{},
	}

	survivors := validateRows(rows, scope, &report)

	if req.DryRun {
		if err := s.preview(ctx, survivors, &report); err != nil {
			return Report{}, err
		}
		return report, nil
	}

	for _, c := range survivors {
		res, err := s.entries.Upsert(ctx, c.entry)
		if err != nil {
			var verr *planentries.ValidationError
			if errors.As(err, &verr) {
				report.Rejected = append(report.Rejected, RowError{Row: c.row, Reason: verr.Reason, Field: verr.Field, Value: verr.Value})
				continue
			}
			s.logger.Error("row write failed", zap.Int("row", c.row), zap.Error(err))
			report.Rejected = append(report.Rejected, RowError{Row: c.row, Reason: ReasonStorageError})
			continue
		}
		report.Accepted++
		countOutcome(&report.Effects, res)
	}
	sortRejected(report.Rejected)

	if s.archive != nil && report.Accepted > 0 {
		report.ArchiveKey = s.archiveUpload(ctx, scope, format, req.Data)
	}

	s.logger.Info("import committed",
		zap.String("scope", scope),
		zap.String("format", string(format)),
		zap.Int("rows", report.TotalRows),
		zap.Int("accepted", report.Accepted),
		zap.Int("replaced", len(report.Replaced)),
		zap.Int("rejected", len(report.Rejected)),
		zap.Int("adherence_reset", report.Effects.AdherenceReset))
	return report, nil
}

// validateRows rejects malformed and invalid rows and drops rows replaced by a
// later row with the same (plan_date, meal_type).
func validateRows(rows []RawRow, scope string, report *Report) []candidate {
	// последняя строка с тем же (plan_date, meal_type) побеждает
	var valid []candidate
	lastByKey := make(map[storage.PlanKey]int)
	for _, r := range rows {
		if r.Malformed != "" {
			report.Rejected = append(report.Rejected, RowError{Row: r.Row, Reason: ReasonMalformedRow, Value: r.Malformed})
			continue
		}
		entry, verr := planentries.Validate(r.Entry)
		if verr != nil {
			report.Rejected = append(report.Rejected, RowError{Row: r.Row, Reason: verr.Reason, Field: verr.Field, Value: verr.Value})
			continue
		}
		entry.Scope = scope
		valid = append(valid, candidate{row: r.Row, entry: entry})
		lastByKey[entry.Key()] = r.Row
	}

	survivors := make([]candidate, 0, len(lastByKey))
	for _, c := range valid {
		if winner := lastByKey[c.entry.Key()]; winner != c.row {
			report.Replaced = append(report.Replaced, ReplacedRow{Row: c.row, ReplacedBy: winner})
			continue
		}
		survivors = append(survivors, c)
	}
	return survivors
}

// preview computes store effects by reading current state only.
func (s *Service) preview(ctx context.Context, survivors []candidate, report *Report) error {
	for _, c := range survivors {
		current, found, err := s.reader.GetPlanEntry(ctx, c.entry.Key())
		if err != nil {
			return fmt.Errorf("failed to read plan entry: %w", err)
		}
		report.Accepted++
		switch {
		case !found:
			report.Effects.Created++
		case storage.SameContent(current, c.entry):
			report.Effects.Unchanged++
		default:
			report.Effects.Updated++
			if !storage.SameDish(current, c.entry) {
				report.Effects.DishChanged++
			}
		}
	}
	return nil
}

func countOutcome(e *Effects, res storage.PlanUpsertResult) {
	switch res.Outcome {
	case storage.OutcomeCreated:
		e.Created++
	case storage.OutcomeUpdated:
		e.Updated++
	case storage.OutcomeUnchanged:
		e.Unchanged++
	}
	e.AdherenceReset += res.AdherenceReset
	if res.DishChanged {
		e.DishChanged++
	}
}

func (s *Service) archiveUpload(ctx context.Context, scope string, format Format, data []byte) string {
	key := blob.ImportKey(scope, s.clock.Now(), uuid.New(), string(format))
	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := s.archive.PutObject(ctx, key, data, contentType); err != nil {
		s.logger.Warn("failed to archive upload", zap.String("key", key), zap.Error(err))
		return ""
	}
	return key
}

func sortRejected(rejected []RowError) {
	sort.SliceStable(rejected, func(i, j int) bool { return rejected[i].Row < rejected[j].Row })
}
