package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/planentries"
	"github.com/xuri/excelize/v2"
)

// Format — формат загружаемого файла.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format, use CSV or XLSX")
	ErrInvalidHeader     = errors.New("invalid header")
	ErrEmptyFile         = errors.New("file is empty")
	ErrMalformedFile     = errors.New("malformed file")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RawRow — строка данных с номером строки таблицы (заголовок = 1).
type RawRow struct {
	Row   int
	Entry planentries.RawEntry
	// Malformed — ошибка декодирования строки; Entry тогда пуст.
	Malformed string
}

// DetectFormat picks the format by extension, falling back to a zip magic sniff.
func DetectFormat(filename string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case "":
	default:
		return "", ErrUnsupportedFormat
	}
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return FormatXLSX, nil
	}
	return FormatCSV, nil
}

// ParseRows decodes raw into data rows. All-empty rows are skipped but keep their numbers.
func ParseRows(raw []byte, format Format) ([]RawRow, error) {
	switch format {
	case FormatCSV:
		return parseCSV(raw)
	case FormatXLSX:
		return parseXLSX(raw)
	default:
		return nil, ErrUnsupportedFormat
	}
}

func parseCSV(raw []byte) ([]RawRow, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyFile
	}

	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	// кавычка внутри поля (6" Turkey Sub) остаётся литералом
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %w", ErrMalformedFile, err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}
	return readDataRows(r, recordEndLine(r, header))
}

// readDataRows reads records after the header. A record the reader cannot
// decode becomes a Malformed row; reading continues with the next record.
func readDataRows(r *csv.Reader, headerEnd int) ([]RawRow, error) {
	// csv.Reader пропускает пустые строки; номер строки восстанавливаем по позиции в файле
	row := 1
	prevEnd := headerEnd
	advance := func(start, end int) {
		if gap := start - prevEnd - 1; gap > 0 {
			row += gap
		}
		row++
		prevEnd = end
	}

	var rows []RawRow
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, fmt.Errorf("%w: failed to read after line %d: %w", ErrMalformedFile, prevEnd, err)
			}
			advance(perr.StartLine, perr.Line)
			rows = append(rows, RawRow{Row: row, Malformed: perr.Err.Error()})
			continue
		}

		start, _ := r.FieldPos(0)
		advance(start, recordEndLine(r, rec))

		if allEmpty(rec) {
			continue
		}
		rows = append(rows, RawRow{Row: row, Entry: toRawEntry(rec)})
	}
	return rows, nil
}

func recordEndLine(r *csv.Reader, rec []string) int {
	last := len(rec) - 1
	line, _ := r.FieldPos(last)
	return line + strings.Count(rec[last], "\n")
}

func parseXLSX(raw []byte) ([]RawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook: %w", ErrMalformedFile, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		return nil, ErrEmptyFile
	}
	cells, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sheet %q: %w", ErrMalformedFile, sheet, err)
	}
	if len(cells) == 0 {
		return nil, ErrEmptyFile
	}
	if err := checkHeader(cells[0]); err != nil {
		return nil, err
	}

	var rows []RawRow
	for i, rec := range cells[1:] {
		if allEmpty(rec) {
			continue
		}
		entry := toRawEntry(rec)
		entry.PlanDate = excelDate(entry.PlanDate)
		entry.Calories = plainNumber(entry.Calories)
		entry.ProteinG = plainNumber(entry.ProteinG)
		entry.CarbsG = plainNumber(entry.CarbsG)
		entry.FatG = plainNumber(entry.FatG)
		entry.FiberG = plainNumber(entry.FiberG)
		rows = append(rows, RawRow{Row: i + 2, Entry: entry})
	}
	return rows, nil
}

// checkHeader requires the exact column list; trailing blank cells are tolerated.
func checkHeader(header []string) error {
	got := make([]string, 0, len(header))
	for _, h := range header {
		got = append(got, strings.ToLower(strings.TrimSpace(h)))
	}
	for len(got) > 0 && got[len(got)-1] == "" {
		got = got[:len(got)-1]
	}

	want := planentries.Header
	if len(got) != len(want) {
		return fmt.Errorf("%w: expected %s", ErrInvalidHeader, strings.Join(want, ","))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("%w: column %d is %q, expected %q", ErrInvalidHeader, i+1, got[i], want[i])
		}
	}
	return nil
}

func toRawEntry(rec []string) planentries.RawEntry {
	cell := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	return planentries.RawEntry{
		PlanDate:    cell(0),
		MealType:    cell(1),
		DishName:    cell(2),
		Description: cell(3),
		Calories:    cell(4),
		ProteinG:    cell(5),
		CarbsG:      cell(6),
		FatG:        cell(7),
		FiberG:      cell(8),
	}
}

func allEmpty(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// excelDate turns a date serial into YYYY-MM-DD; anything else passes through for validation.
func excelDate(s string) string {
	if clock.ValidDate(s) {
		return s
	}
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil || serial < 1 {
		return s
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return s
	}
	return clock.FormatDate(t)
}

// plainNumber rewrites 1.2E+3 style cells without an exponent.
func plainNumber(s string) string {
	if !strings.ContainsAny(s, "eE") {
		return s
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
