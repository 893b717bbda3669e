package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/examgate/examgate/internal/model"
)

// CreateAssignment persists an assignment and one session row per student as
// a single transaction. Either everything lands or nothing does, so
// total_students can never disagree with the session rows.
func (s *Store) CreateAssignment(a model.Assignment, sessions []model.AssignmentStudent) (model.Assignment, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return a, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO assignments
		 (name, date, assessment_id, filter_year_of_pass, filter_stream, filter_college, filter_date_of_registration, total_students, attendees)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		a.Name, a.Date, a.AssessmentID,
		a.Filter.YearOfPass, a.Filter.Stream, a.Filter.College, a.Filter.DateOfRegistration,
		a.TotalStudents,
	)
	if err != nil {
		return a, err
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return a, err
	}

	for _, as := range sessions {
		_, err := tx.Exec(
			`INSERT INTO assignment_students (assignment_id, student_id, code, attended) VALUES (?, ?, ?, 0)`,
			a.ID, as.StudentID, as.Code,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return a, fmt.Errorf("assignment student %d: %w", as.StudentID, model.ErrConflict)
			}
			return a, err
		}
	}
	return a, tx.Commit()
}

// GetAssignment returns an assignment by ID.
func (s *Store) GetAssignment(id int64) (model.Assignment, error) {
	row := s.db.QueryRow(
		`SELECT id, name, date, assessment_id, filter_year_of_pass, filter_stream, filter_college, filter_date_of_registration, total_students, attendees
		 FROM assignments WHERE id = ?`, id,
	)
	a, err := scanAssignment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return a, fmt.Errorf("assignment %d: %w", id, model.ErrNotFound)
	}
	return a, err
}

// ListAssignments returns all assignments, newest first.
func (s *Store) ListAssignments() ([]model.Assignment, error) {
	rows, err := s.db.Query(
		`SELECT id, name, date, assessment_id, filter_year_of_pass, filter_stream, filter_college, filter_date_of_registration, total_students, attendees
		 FROM assignments ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssignment(scan func(...any) error) (model.Assignment, error) {
	var a model.Assignment
	var year sql.NullInt64
	var stream, college, regDate sql.NullString
	err := scan(&a.ID, &a.Name, &a.Date, &a.AssessmentID, &year, &stream, &college, &regDate, &a.TotalStudents, &a.Attendees)
	if err != nil {
		return a, err
	}
	if year.Valid {
		y := int(year.Int64)
		a.Filter.YearOfPass = &y
	}
	if stream.Valid {
		a.Filter.Stream = &stream.String
	}
	if college.Valid {
		a.Filter.College = &college.String
	}
	if regDate.Valid {
		a.Filter.DateOfRegistration = &regDate.String
	}
	return a, nil
}

// AssignmentCount returns the total number of assignments.
func (s *Store) AssignmentCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM assignments`).Scan(&count)
	return count, err
}

// DeleteAssignment removes an assignment, its session rows, their answers,
// and their materialized question draws in one transaction.
func (s *Store) DeleteAssignment(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM assignments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("assignment %d: %w", id, model.ErrNotFound)
	}
	if _, err := tx.Exec(
		`DELETE FROM assignment_answers WHERE assignment_student_id IN
		 (SELECT id FROM assignment_students WHERE assignment_id = ?)`, id,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`DELETE FROM exam_questions WHERE assignment_student_id IN
		 (SELECT id FROM assignment_students WHERE assignment_id = ?)`, id,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM assignment_students WHERE assignment_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

const assignmentStudentCols = `id, assignment_id, student_id, code, attended, start_time, end_time, marks, pass`

// GetAssignmentStudent returns a session row by ID.
func (s *Store) GetAssignmentStudent(id int64) (model.AssignmentStudent, error) {
	row := s.db.QueryRow(
		`SELECT `+assignmentStudentCols+` FROM assignment_students WHERE id = ?`, id,
	)
	as, err := scanAssignmentStudent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return as, fmt.Errorf("assignment student %d: %w", id, model.ErrNotFound)
	}
	return as, err
}

// FindAssignmentStudent looks up a session by the login triple, or nil when
// no row matches all three keys.
func (s *Store) FindAssignmentStudent(assignmentID, studentID int64, code string) (*model.AssignmentStudent, error) {
	row := s.db.QueryRow(
		`SELECT `+assignmentStudentCols+` FROM assignment_students
		 WHERE assignment_id = ? AND student_id = ? AND code = ?`,
		assignmentID, studentID, code,
	)
	as, err := scanAssignmentStudent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &as, nil
}

// ListAssignmentStudents returns every session of an assignment joined with
// the student's name and email.
func (s *Store) ListAssignmentStudents(assignmentID int64) ([]model.AssignmentStudentDetail, error) {
	rows, err := s.db.Query(
		`SELECT a.id, a.assignment_id, a.student_id, a.code, a.attended, a.start_time, a.end_time, a.marks, a.pass,
		        s.name, s.email
		 FROM assignment_students a
		 JOIN students s ON s.id = a.student_id
		 WHERE a.assignment_id = ? ORDER BY a.id`, assignmentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AssignmentStudentDetail
	for rows.Next() {
		var d model.AssignmentStudentDetail
		var attended int
		var start, end sql.NullTime
		var marks sql.NullFloat64
		var pass sql.NullBool
		if err := rows.Scan(&d.ID, &d.AssignmentID, &d.StudentID, &d.Code, &attended, &start, &end, &marks, &pass,
			&d.StudentName, &d.StudentEmail); err != nil {
			return nil, err
		}
		d.Attended = attended != 0
		applyNullables(&d.AssignmentStudent, start, end, marks, pass)
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanAssignmentStudent(scan func(...any) error) (model.AssignmentStudent, error) {
	var as model.AssignmentStudent
	var attended int
	var start, end sql.NullTime
	var marks sql.NullFloat64
	var pass sql.NullBool
	err := scan(&as.ID, &as.AssignmentID, &as.StudentID, &as.Code, &attended, &start, &end, &marks, &pass)
	if err != nil {
		return as, err
	}
	as.Attended = attended != 0
	applyNullables(&as, start, end, marks, pass)
	return as, nil
}

func applyNullables(as *model.AssignmentStudent, start, end sql.NullTime, marks sql.NullFloat64, pass sql.NullBool) {
	if start.Valid {
		t := start.Time
		as.StartTime = &t
	}
	if end.Valid {
		t := end.Time
		as.EndTime = &t
	}
	if marks.Valid {
		m := marks.Float64
		as.Marks = &m
	}
	if pass.Valid {
		p := pass.Bool
		as.Pass = &p
	}
}

// StartExamSession stamps start_time and materializes the drawn question
// list for a session. The conditional UPDATE makes the transition atomic:
// only the caller that flips start_time from NULL inserts the draw, so a
// concurrent first load can never produce a second question set and a
// resume never re-rolls.
func (s *Store) StartExamSession(id int64, start time.Time, questionIDs []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE assignment_students SET start_time = ? WHERE id = ? AND start_time IS NULL`,
		start, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Already started elsewhere; the stored draw stands.
		return nil
	}
	for i, qid := range questionIDs {
		_, err := tx.Exec(
			`INSERT INTO exam_questions (assignment_student_id, question_id, position) VALUES (?, ?, ?)`,
			id, qid, i,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetExamQuestions returns the materialized question draw for a session in
// draw order. Empty result means the session has not started.
func (s *Store) GetExamQuestions(id int64) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT q.id, q.skill_id, q.text, q.type, q.payload
		 FROM exam_questions e
		 JOIN questions q ON q.id = e.question_id
		 WHERE e.assignment_student_id = ?
		 ORDER BY e.position`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQuestions(rows)
}

// UpsertAnswer saves or replaces a student's answer to one question,
// last-write-wins. The insert is guarded against finalized sessions: once
// attended is set no write goes through and ErrConflict is returned.
func (s *Store) UpsertAnswer(assignmentStudentID, questionID int64, answer string, at time.Time) (model.AssignmentAnswer, error) {
	var out model.AssignmentAnswer
	res, err := s.db.Exec(
		`INSERT INTO assignment_answers (assignment_student_id, question_id, answer, answer_time)
		 SELECT ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM assignment_students WHERE id = ? AND attended = 0)
		 ON CONFLICT(assignment_student_id, question_id) DO UPDATE SET answer = excluded.answer, answer_time = excluded.answer_time`,
		assignmentStudentID, questionID, answer, at, assignmentStudentID,
	)
	if err != nil {
		return out, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return out, err
	}
	if n == 0 {
		if _, err := s.GetAssignmentStudent(assignmentStudentID); err != nil {
			return out, err
		}
		return out, fmt.Errorf("session %d already finalized: %w", assignmentStudentID, model.ErrConflict)
	}

	err = s.db.QueryRow(
		`SELECT id, assignment_student_id, question_id, answer, answer_time
		 FROM assignment_answers WHERE assignment_student_id = ? AND question_id = ?`,
		assignmentStudentID, questionID,
	).Scan(&out.ID, &out.AssignmentStudentID, &out.QuestionID, &out.Answer, &out.AnswerTime)
	return out, err
}

// ListAnswers returns all saved answers for a session.
func (s *Store) ListAnswers(assignmentStudentID int64) ([]model.AssignmentAnswer, error) {
	rows, err := s.db.Query(
		`SELECT id, assignment_student_id, question_id, answer, answer_time
		 FROM assignment_answers WHERE assignment_student_id = ? ORDER BY id`, assignmentStudentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AssignmentAnswer
	for rows.Next() {
		var ans model.AssignmentAnswer
		if err := rows.Scan(&ans.ID, &ans.AssignmentStudentID, &ans.QuestionID, &ans.Answer, &ans.AnswerTime); err != nil {
			return nil, err
		}
		out = append(out, ans)
	}
	return out, rows.Err()
}

// FinalizeSession flips attended false to true and bumps the parent
// assignment's attendees counter. The flip and the bump share a transaction
// and the flip is conditional on attended = 0, so across any number of
// concurrent or repeated calls the counter moves exactly once. The returned
// bool reports whether this call performed the transition.
func (s *Store) FinalizeSession(id int64, at time.Time) (model.AssignmentStudent, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return model.AssignmentStudent{}, false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE assignment_students SET attended = 1, end_time = ? WHERE id = ? AND attended = 0`,
		at, id,
	)
	if err != nil {
		return model.AssignmentStudent{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.AssignmentStudent{}, false, err
	}
	if n == 1 {
		_, err = tx.Exec(
			`UPDATE assignments SET attendees = attendees + 1
			 WHERE id = (SELECT assignment_id FROM assignment_students WHERE id = ?)`, id,
		)
		if err != nil {
			return model.AssignmentStudent{}, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.AssignmentStudent{}, false, err
	}

	as, err := s.GetAssignmentStudent(id)
	if err != nil {
		return as, false, err
	}
	return as, n == 1, nil
}
