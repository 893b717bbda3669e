package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/examgate/examgate/internal/model"
)

// CreateAssessment validates and stores an assessment with its ordered skill
// requirements in one transaction.
func (s *Store) CreateAssessment(a model.Assessment) (int64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	for _, req := range a.Skills {
		if _, err := s.GetSkill(req.SkillID); err != nil {
			return 0, err
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO assessments (name, description, duration) VALUES (?, ?, ?)`,
		a.Name, a.Description, a.Duration,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for i, req := range a.Skills {
		_, err := tx.Exec(
			`INSERT INTO assessment_skills (assessment_id, skill_id, question_count, position) VALUES (?, ?, ?, ?)`,
			id, req.SkillID, req.QuestionCount, i,
		)
		if err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

// GetAssessment returns an assessment with its requirements in order.
func (s *Store) GetAssessment(id int64) (model.Assessment, error) {
	var a model.Assessment
	err := s.db.QueryRow(
		`SELECT id, name, description, duration FROM assessments WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.Description, &a.Duration)
	if errors.Is(err, sql.ErrNoRows) {
		return a, fmt.Errorf("assessment %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return a, err
	}

	rows, err := s.db.Query(
		`SELECT skill_id, question_count FROM assessment_skills WHERE assessment_id = ? ORDER BY position`, id,
	)
	if err != nil {
		return a, err
	}
	defer rows.Close()
	for rows.Next() {
		var req model.SkillRequirement
		if err := rows.Scan(&req.SkillID, &req.QuestionCount); err != nil {
			return a, err
		}
		a.Skills = append(a.Skills, req)
	}
	return a, rows.Err()
}

// ListAssessments returns all assessments with their requirements.
func (s *Store) ListAssessments() ([]model.Assessment, error) {
	rows, err := s.db.Query(`SELECT id FROM assessments ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []model.Assessment
	for _, id := range ids {
		a, err := s.GetAssessment(id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// AssessmentCount returns the total number of assessments.
func (s *Store) AssessmentCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM assessments`).Scan(&count)
	return count, err
}
