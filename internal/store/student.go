package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/examgate/examgate/internal/model"
)

// InsertStudent stores a student. A duplicate email is reported as a
// conflict so bulk importers can skip the row.
func (s *Store) InsertStudent(st model.Student) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO students (name, email, mobile, year_of_pass, date_of_registration, stream, college)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.Name, st.Email, st.Mobile, st.YearOfPass, st.DateOfRegistration, st.Stream, st.College,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("student email %q: %w", st.Email, model.ErrConflict)
		}
		return 0, err
	}
	return res.LastInsertId()
}

// GetStudent returns a student by ID.
func (s *Store) GetStudent(id int64) (model.Student, error) {
	var st model.Student
	err := s.db.QueryRow(
		`SELECT id, name, email, mobile, year_of_pass, date_of_registration, stream, college
		 FROM students WHERE id = ?`, id,
	).Scan(&st.ID, &st.Name, &st.Email, &st.Mobile, &st.YearOfPass, &st.DateOfRegistration, &st.Stream, &st.College)
	if errors.Is(err, sql.ErrNoRows) {
		return st, fmt.Errorf("student %d: %w", id, model.ErrNotFound)
	}
	return st, err
}

// GetStudentByEmail returns a student by email, or nil if none matches.
func (s *Store) GetStudentByEmail(email string) (*model.Student, error) {
	var st model.Student
	err := s.db.QueryRow(
		`SELECT id, name, email, mobile, year_of_pass, date_of_registration, stream, college
		 FROM students WHERE email = ?`, email,
	).Scan(&st.ID, &st.Name, &st.Email, &st.Mobile, &st.YearOfPass, &st.DateOfRegistration, &st.Stream, &st.College)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListStudents returns students matching every supplied filter predicate.
// Nil predicates are ignored; an empty filter returns all students.
func (s *Store) ListStudents(f model.CohortFilter) ([]model.Student, error) {
	query := `SELECT id, name, email, mobile, year_of_pass, date_of_registration, stream, college
	 FROM students WHERE 1=1`
	var args []any
	if f.YearOfPass != nil {
		query += ` AND year_of_pass = ?`
		args = append(args, *f.YearOfPass)
	}
	if f.Stream != nil {
		query += ` AND stream = ?`
		args = append(args, *f.Stream)
	}
	if f.College != nil {
		query += ` AND college = ?`
		args = append(args, *f.College)
	}
	if f.DateOfRegistration != nil {
		query += ` AND date_of_registration = ?`
		args = append(args, *f.DateOfRegistration)
	}
	query += ` ORDER BY id`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var students []model.Student
	for rows.Next() {
		var st model.Student
		if err := rows.Scan(&st.ID, &st.Name, &st.Email, &st.Mobile, &st.YearOfPass, &st.DateOfRegistration, &st.Stream, &st.College); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// StudentCount returns the total number of students.
func (s *Store) StudentCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM students`).Scan(&count)
	return count, err
}

// AppendStudentLog appends an audit event. Rows in student_log are never
// updated or deleted.
func (s *Store) AppendStudentLog(l model.StudentLog) error {
	at := l.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO student_log (student_id, event, details, created_at) VALUES (?, ?, ?, ?)`,
		l.StudentID, l.Event, l.Details, at,
	)
	return err
}

// ListStudentLog returns the audit trail for one student, oldest first.
func (s *Store) ListStudentLog(studentID int64) ([]model.StudentLog, error) {
	rows, err := s.db.Query(
		`SELECT id, student_id, event, details, created_at FROM student_log WHERE student_id = ? ORDER BY id`,
		studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []model.StudentLog
	for rows.Next() {
		var l model.StudentLog
		if err := rows.Scan(&l.ID, &l.StudentID, &l.Event, &l.Details, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// GetImportedFileHash returns the recorded content hash for an import path,
// or empty string if the path was never imported.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM import_files WHERE path = ?`, path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the content hash of an imported file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO import_files (path, hash) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = ?`,
		path, hash, hash,
	)
	return err
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. modernc.org/sqlite does not export a typed error for this, so the
// message is matched.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
