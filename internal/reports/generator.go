package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/fdg312/meal-tracker/internal/adherence"
	"github.com/jung-kurt/gofpdf"
)

// DayViewer отдаёт дни плана с эффективными статусами участника.
type DayViewer interface {
	RangeView(ctx context.Context, userID, from, to string) ([]adherence.DayView, error)
}

// Generator generates PDF/CSV adherence exports
type Generator struct {
	days DayViewer
}

// NewGenerator creates a new export generator
func NewGenerator(days DayViewer) *Generator {
	return &Generator{days: days}
}

// Generate builds the export for one member and returns the data
func (g *Generator) Generate(ctx context.Context, memberID, memberName string, req CreateExportRequest) ([]byte, error) {
	days, err := g.days.RangeView(ctx, memberID, req.From, req.To)
	if err != nil {
		return nil, fmt.Errorf("failed to load adherence: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return g.generatePDF(memberName, req, days)
	case FormatCSV:
		return g.generateCSV(days)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

var csvHeader = []string{"date", "meal_type", "dish_name", "calories", "protein_g", "carbs_g", "fat_g", "fiber_g", "status", "changed_at"}

// generateCSV — одна строка на приём пищи
func (g *Generator) generateCSV(days []adherence.DayView) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, d := range days {
		for _, v := range d.Entries {
			changedAt := ""
			if v.Status.ChangedAt != nil {
				changedAt = v.Status.ChangedAt.UTC().Format(time.RFC3339)
			}
			row := []string{
				d.Date,
				v.Entry.MealType,
				v.Entry.DishName,
				formatNumber(v.Entry.Calories),
				formatNumber(v.Entry.ProteinG),
				formatNumber(v.Entry.CarbsG),
				formatNumber(v.Entry.FatG),
				formatNumber(v.Entry.FiberG),
				string(v.Status.Kind),
				changedAt,
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Summary holds calculated summary statistics
type Summary struct {
	Counts           adherence.Counts
	PlannedCalories  float64
	PreparedCalories float64
	DaysWithPlan     int
}

// Rate — доля приготовленных среди решённых (prepared + missed), в процентах.
func (s Summary) Rate() (float64, bool) {
	decided := s.Counts.Prepared + s.Counts.Missed
	if decided == 0 {
		return 0, false
	}
	return float64(s.Counts.Prepared) * 100 / float64(decided), true
}

func summarize(days []adherence.DayView) Summary {
	var s Summary
	for _, d := range days {
		if len(d.Entries) > 0 {
			s.DaysWithPlan++
		}
		s.Counts.Prepared += d.Counts.Prepared
		s.Counts.Missed += d.Counts.Missed
		s.Counts.Pending += d.Counts.Pending
		for _, v := range d.Entries {
			s.PlannedCalories += v.Entry.Calories
			if v.Status.Kind == adherence.KindPrepared {
				s.PreparedCalories += v.Entry.Calories
			}
		}
	}
	return s
}

// generatePDF рисует сводку и таблицу по дням базовым шрифтом Arial
func (g *Generator) generatePDF(memberName string, req CreateExportRequest, days []adherence.DayView) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	fontName := "Arial"

	pdf.AddPage()
	pdf.SetFont(fontName, "B", 16)
	pdf.Cell(0, 10, "Meal plan adherence")
	pdf.Ln(10)

	pdf.SetFont(fontName, "", 12)
	pdf.Cell(0, 8, tr(fmt.Sprintf("Member: %s", memberName)))
	pdf.Ln(6)
	pdf.Cell(0, 8, fmt.Sprintf("Period: %s - %s", req.From, req.To))
	pdf.Ln(12)

	summary := summarize(days)

	pdf.SetFont(fontName, "B", 14)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont(fontName, "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Days with a plan: %d", summary.DaysWithPlan))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Prepared: %d   Missed: %d   Pending: %d", summary.Counts.Prepared, summary.Counts.Missed, summary.Counts.Pending))
	pdf.Ln(5)
	if rate, ok := summary.Rate(); ok {
		pdf.Cell(0, 6, fmt.Sprintf("Adherence: %.0f%%", rate))
	} else {
		pdf.Cell(0, 6, "Adherence: no data")
	}
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Calories prepared: %s of %s kcal", formatNumber(summary.PreparedCalories), formatNumber(summary.PlannedCalories)))
	pdf.Ln(12)

	pdf.SetFont(fontName, "B", 14)
	pdf.Cell(0, 8, "Days")
	pdf.Ln(8)

	g.drawDaysTable(pdf, days, fontName, tr)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	return buf.Bytes(), nil
}

// drawDaysTable — таблица приёмов пищи; пустые дни пропускаются
func (g *Generator) drawDaysTable(pdf *gofpdf.Fpdf, days []adherence.DayView, fontName string, tr func(string) string) {
	pdf.SetFont(fontName, "B", 8)
	pdf.CellFormat(25, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Meal", "1", 0, "C", false, 0, "")
	pdf.CellFormat(80, 6, "Dish", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "kcal", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Status", "1", 1, "C", false, 0, "")

	pdf.SetFont(fontName, "", 8)
	for _, d := range days {
		for _, v := range d.Entries {
			pdf.CellFormat(25, 6, d.Date, "1", 0, "C", false, 0, "")
			pdf.CellFormat(25, 6, tr(truncate(v.Entry.MealType, 16)), "1", 0, "L", false, 0, "")
			pdf.CellFormat(80, 6, tr(truncate(v.Entry.DishName, 52)), "1", 0, "L", false, 0, "")
			pdf.CellFormat(20, 6, formatNumber(v.Entry.Calories), "1", 0, "R", false, 0, "")
			pdf.CellFormat(25, 6, string(v.Status.Kind), "1", 1, "C", false, 0, "")
		}
	}
}

// Helper functions
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
