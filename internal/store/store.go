package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/examgate/examgate/internal/model"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed entity store. All multi-step mutations run in
// transactions so partial writes never become visible.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		mobile TEXT NOT NULL DEFAULT '',
		year_of_pass INTEGER NOT NULL,
		date_of_registration TEXT NOT NULL,
		stream TEXT NOT NULL,
		college TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS skills (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		skill_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		type TEXT NOT NULL,
		payload TEXT NOT NULL,
		FOREIGN KEY (skill_id) REFERENCES skills(id)
	);

	CREATE TABLE IF NOT EXISTS assessments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		duration INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assessment_skills (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assessment_id INTEGER NOT NULL,
		skill_id INTEGER NOT NULL,
		question_count INTEGER NOT NULL,
		position INTEGER NOT NULL,
		FOREIGN KEY (assessment_id) REFERENCES assessments(id),
		FOREIGN KEY (skill_id) REFERENCES skills(id)
	);

	CREATE TABLE IF NOT EXISTS assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		date DATETIME NOT NULL,
		assessment_id INTEGER NOT NULL,
		filter_year_of_pass INTEGER,
		filter_stream TEXT,
		filter_college TEXT,
		filter_date_of_registration TEXT,
		total_students INTEGER NOT NULL DEFAULT 0,
		attendees INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (assessment_id) REFERENCES assessments(id)
	);

	CREATE TABLE IF NOT EXISTS assignment_students (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assignment_id INTEGER NOT NULL,
		student_id INTEGER NOT NULL,
		code TEXT NOT NULL,
		attended INTEGER NOT NULL DEFAULT 0,
		start_time DATETIME,
		end_time DATETIME,
		marks REAL,
		pass INTEGER,
		FOREIGN KEY (assignment_id) REFERENCES assignments(id),
		FOREIGN KEY (student_id) REFERENCES students(id),
		UNIQUE (assignment_id, student_id),
		UNIQUE (assignment_id, code)
	);

	CREATE TABLE IF NOT EXISTS exam_questions (
		assignment_student_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (assignment_student_id, position),
		UNIQUE (assignment_student_id, question_id),
		FOREIGN KEY (assignment_student_id) REFERENCES assignment_students(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS assignment_answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assignment_student_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		answer TEXT NOT NULL,
		answer_time DATETIME NOT NULL,
		UNIQUE (assignment_student_id, question_id),
		FOREIGN KEY (assignment_student_id) REFERENCES assignment_students(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS student_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id INTEGER NOT NULL,
		event TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS admin_users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES admin_users(id)
	);

	CREATE TABLE IF NOT EXISTS import_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSkill stores a skill.
func (s *Store) CreateSkill(sk model.Skill) (int64, error) {
	if sk.Name == "" {
		return 0, fmt.Errorf("%w: skill name is required", model.ErrValidation)
	}
	res, err := s.db.Exec(
		`INSERT INTO skills (name, description) VALUES (?, ?)`,
		sk.Name, sk.Description,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetSkill returns a skill by ID.
func (s *Store) GetSkill(id int64) (model.Skill, error) {
	var sk model.Skill
	err := s.db.QueryRow(
		`SELECT id, name, description FROM skills WHERE id = ?`, id,
	).Scan(&sk.ID, &sk.Name, &sk.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return sk, fmt.Errorf("skill %d: %w", id, model.ErrNotFound)
	}
	return sk, err
}

// ListSkills returns all skills.
func (s *Store) ListSkills() ([]model.Skill, error) {
	rows, err := s.db.Query(`SELECT id, name, description FROM skills ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var skills []model.Skill
	for rows.Next() {
		var sk model.Skill
		if err := rows.Scan(&sk.ID, &sk.Name, &sk.Description); err != nil {
			return nil, err
		}
		skills = append(skills, sk)
	}
	return skills, rows.Err()
}

// UpdateSkill updates a skill's name and description.
func (s *Store) UpdateSkill(sk model.Skill) error {
	if sk.Name == "" {
		return fmt.Errorf("%w: skill name is required", model.ErrValidation)
	}
	res, err := s.db.Exec(
		`UPDATE skills SET name = ?, description = ? WHERE id = ?`,
		sk.Name, sk.Description, sk.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("skill %d: %w", sk.ID, model.ErrNotFound)
	}
	return nil
}

// DeleteSkill removes a skill and all of its questions in one transaction,
// so no orphan question can survive the skill.
func (s *Store) DeleteSkill(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM skills WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("skill %d: %w", id, model.ErrNotFound)
	}
	if _, err := tx.Exec(`DELETE FROM questions WHERE skill_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertQuestion validates and stores a question. The payload variant is
// serialized as JSON in a single column.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	if _, err := s.GetSkill(q.SkillID); err != nil {
		return 0, err
	}
	payload, err := marshalPayload(q)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO questions (skill_id, text, type, payload) VALUES (?, ?, ?, ?)`,
		q.SkillID, q.Text, q.Type, payload,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	var q model.Question
	var payload string
	err := s.db.QueryRow(
		`SELECT id, skill_id, text, type, payload FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.SkillID, &q.Text, &q.Type, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return q, fmt.Errorf("question %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return q, err
	}
	if err := unmarshalPayload(&q, payload); err != nil {
		return q, err
	}
	return q, nil
}

// ListQuestionsBySkill returns all questions owned by a skill.
func (s *Store) ListQuestionsBySkill(skillID int64) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, skill_id, text, type, payload FROM questions WHERE skill_id = ? ORDER BY id`, skillID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQuestions(rows)
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

func scanQuestions(rows *sql.Rows) ([]model.Question, error) {
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var payload string
		if err := rows.Scan(&q.ID, &q.SkillID, &q.Text, &q.Type, &payload); err != nil {
			return nil, err
		}
		if err := unmarshalPayload(&q, payload); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func marshalPayload(q model.Question) (string, error) {
	var v any
	switch q.Type {
	case model.QuestionChoice:
		v = q.Choice
	case model.QuestionAnswer:
		v = q.Answer
	case model.QuestionCode:
		v = q.Code
	default:
		return "", fmt.Errorf("%w: unknown question type %q", model.ErrValidation, q.Type)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal question payload: %w", err)
	}
	return string(data), nil
}

func unmarshalPayload(q *model.Question, payload string) error {
	switch q.Type {
	case model.QuestionChoice:
		q.Choice = &model.ChoicePayload{}
		return json.Unmarshal([]byte(payload), q.Choice)
	case model.QuestionAnswer:
		q.Answer = &model.AnswerPayload{}
		return json.Unmarshal([]byte(payload), q.Answer)
	case model.QuestionCode:
		q.Code = &model.CodePayload{}
		return json.Unmarshal([]byte(payload), q.Code)
	}
	return fmt.Errorf("question %d: unknown type %q", q.ID, q.Type)
}
