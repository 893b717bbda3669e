package exam

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/examgate/examgate/internal/model"
)

// StudentStore is the slice of persistence the importer needs.
type StudentStore interface {
	InsertStudent(st model.Student) (int64, error)
}

// ImportResult summarizes a bulk import. Skipped counts both invalid rows
// and duplicate emails.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// studentRow mirrors one CSV line. Rows are validated before they reach the
// store; the engine afterwards assumes student emails are unique.
type studentRow struct {
	Name               string `validate:"required"`
	Email              string `validate:"required,email"`
	Mobile             string `validate:"omitempty,min=7,max=15"`
	YearOfPass         int    `validate:"required,gte=1990,lte=2100"`
	DateOfRegistration string `validate:"required"`
	Stream             string `validate:"required"`
	College            string
}

var validate = validator.New()

// ImportStudents reads CSV rows (header line first) in the order
// name,email,mobile,year_of_pass,date_of_registration,stream[,college] and
// inserts each valid, previously unseen student. Invalid rows and duplicate
// emails are skipped and counted, never fatal.
func ImportStudents(s StudentStore, r io.Reader) (ImportResult, error) {
	var result ImportResult

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	// Header row.
	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return result, fmt.Errorf("%w: empty CSV input", model.ErrValidation)
		}
		return result, fmt.Errorf("read CSV header: %w", err)
	}

	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read CSV line %d: %w", line+1, err)
		}
		line++

		row, err := parseStudentRow(record)
		if err != nil {
			slog.Warn("skipping invalid student row", "line", line, "error", err)
			result.Skipped++
			continue
		}

		_, err = s.InsertStudent(model.Student{
			Name:               row.Name,
			Email:              row.Email,
			Mobile:             row.Mobile,
			YearOfPass:         row.YearOfPass,
			DateOfRegistration: row.DateOfRegistration,
			Stream:             row.Stream,
			College:            row.College,
		})
		if errors.Is(err, model.ErrConflict) {
			slog.Warn("skipping duplicate student email", "line", line, "email", row.Email)
			result.Skipped++
			continue
		}
		if err != nil {
			return result, fmt.Errorf("insert student from line %d: %w", line, err)
		}
		result.Imported++
	}

	slog.Info("imported students", "imported", result.Imported, "skipped", result.Skipped)
	return result, nil
}

func parseStudentRow(record []string) (studentRow, error) {
	var row studentRow
	if len(record) < 6 {
		return row, fmt.Errorf("expected at least 6 fields, got %d", len(record))
	}
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}

	year, err := strconv.Atoi(record[3])
	if err != nil {
		return row, fmt.Errorf("year_of_pass %q: %w", record[3], err)
	}

	row = studentRow{
		Name:               record[0],
		Email:              record[1],
		Mobile:             record[2],
		YearOfPass:         year,
		DateOfRegistration: record[4],
		Stream:             record[5],
	}
	if len(record) > 6 {
		row.College = record[6]
	}

	if err := validate.Struct(row); err != nil {
		return row, err
	}
	if _, err := time.Parse(model.DateLayout, row.DateOfRegistration); err != nil {
		return row, fmt.Errorf("date_of_registration %q: %w", row.DateOfRegistration, err)
	}
	return row, nil
}
