package exam

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/examgate/examgate/internal/model"
)

// Store is the persistence the engine needs. *store.Store satisfies it; tests
// may substitute anything that honors the same semantics.
type Store interface {
	GetAssessment(id int64) (model.Assessment, error)
	ListStudents(f model.CohortFilter) ([]model.Student, error)
	CreateAssignment(a model.Assignment, sessions []model.AssignmentStudent) (model.Assignment, error)
	DeleteAssignment(id int64) error
	GetAssignment(id int64) (model.Assignment, error)
	ListAssignmentStudents(assignmentID int64) ([]model.AssignmentStudentDetail, error)

	GetStudent(id int64) (model.Student, error)
	GetStudentByEmail(email string) (*model.Student, error)
	ListQuestionsBySkill(skillID int64) ([]model.Question, error)

	GetAssignmentStudent(id int64) (model.AssignmentStudent, error)
	FindAssignmentStudent(assignmentID, studentID int64, code string) (*model.AssignmentStudent, error)
	StartExamSession(id int64, start time.Time, questionIDs []int64) error
	GetExamQuestions(id int64) ([]model.Question, error)
	UpsertAnswer(assignmentStudentID, questionID int64, answer string, at time.Time) (model.AssignmentAnswer, error)
	ListAnswers(assignmentStudentID int64) ([]model.AssignmentAnswer, error)
	FinalizeSession(id int64, at time.Time) (model.AssignmentStudent, bool, error)
	AppendStudentLog(l model.StudentLog) error
}

// maxCodeAttempts bounds regeneration on access code collisions so creation
// can never loop forever.
const maxCodeAttempts = 10

// Engine drives assignment generation and exam sessions.
type Engine struct {
	store Store
	rng   *rand.Rand
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand replaces the sampling source; tests inject a seeded generator to
// make question draws deterministic.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// WithNow replaces the clock.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(s Store, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateAssignment materializes an assessment for the filtered cohort: one
// assignment row plus one session per matching student, each with a fresh
// access code unique within the assignment. The store persists the unit
// atomically, so a failure leaves nothing behind.
func (e *Engine) CreateAssignment(name string, assessmentID int64, filter model.CohortFilter) (model.Assignment, error) {
	if name == "" {
		return model.Assignment{}, fmt.Errorf("%w: assignment name is required", model.ErrValidation)
	}
	if _, err := e.store.GetAssessment(assessmentID); err != nil {
		return model.Assignment{}, err
	}

	students, err := e.store.ListStudents(filter)
	if err != nil {
		return model.Assignment{}, err
	}

	sessions := make([]model.AssignmentStudent, 0, len(students))
	seen := make(map[string]bool, len(students))
	for _, st := range students {
		code, err := newUniqueCode(seen)
		if err != nil {
			return model.Assignment{}, err
		}
		sessions = append(sessions, model.AssignmentStudent{StudentID: st.ID, Code: code})
	}

	a := model.Assignment{
		Name:          name,
		Date:          e.now(),
		AssessmentID:  assessmentID,
		Filter:        filter,
		TotalStudents: len(students),
	}
	created, err := e.store.CreateAssignment(a, sessions)
	if err != nil {
		return model.Assignment{}, err
	}
	slog.Info("created assignment", "id", created.ID, "name", name, "students", len(students))
	return created, nil
}

func newUniqueCode(seen map[string]bool) (string, error) {
	for range maxCodeAttempts {
		code, err := NewCode()
		if err != nil {
			return "", err
		}
		if !seen[code] {
			seen[code] = true
			return code, nil
		}
	}
	return "", fmt.Errorf("access code collisions exhausted %d attempts: %w", maxCodeAttempts, model.ErrConflict)
}

// DeleteAssignment removes an assignment and everything under it.
func (e *Engine) DeleteAssignment(id int64) error {
	return e.store.DeleteAssignment(id)
}

// ListAssignmentStudents returns the admin monitoring view for an
// assignment: each session with student name, email, code and attended flag.
func (e *Engine) ListAssignmentStudents(assignmentID int64) ([]model.AssignmentStudentDetail, error) {
	if _, err := e.store.GetAssignment(assignmentID); err != nil {
		return nil, err
	}
	return e.store.ListAssignmentStudents(assignmentID)
}

// Login authenticates a student into an exam session. Every failure mode
// (unknown email, wrong code, wrong assignment, already attended) collapses
// into ErrInvalidCredentials so a caller cannot tell which check failed.
// A completed session can never be re-entered.
func (e *Engine) Login(assignmentID int64, email, code string) (model.AssignmentStudent, error) {
	st, err := e.store.GetStudentByEmail(email)
	if err != nil {
		return model.AssignmentStudent{}, err
	}
	if st == nil {
		return model.AssignmentStudent{}, model.ErrInvalidCredentials
	}
	as, err := e.store.FindAssignmentStudent(assignmentID, st.ID, code)
	if err != nil {
		return model.AssignmentStudent{}, err
	}
	if as == nil || as.Attended {
		return model.AssignmentStudent{}, model.ErrInvalidCredentials
	}

	e.logEvent(st.ID, model.LogEventLogin, map[string]any{"assignment_id": assignmentID})
	return *as, nil
}

// ExamData loads everything the exam client needs. The first call stamps
// start_time and persists the question draw; every later call is an
// idempotent resume returning the same start time and the same questions.
func (e *Engine) ExamData(assignmentStudentID int64) (model.ExamData, error) {
	var data model.ExamData

	as, err := e.store.GetAssignmentStudent(assignmentStudentID)
	if err != nil {
		return data, err
	}
	assignment, err := e.store.GetAssignment(as.AssignmentID)
	if err != nil {
		return data, err
	}
	assessment, err := e.store.GetAssessment(assignment.AssessmentID)
	if err != nil {
		return data, err
	}
	student, err := e.store.GetStudent(as.StudentID)
	if err != nil {
		return data, err
	}

	if as.StartTime == nil {
		draw, err := e.sample(assessment)
		if err != nil {
			return data, err
		}
		ids := make([]int64, len(draw))
		for i, q := range draw {
			ids[i] = q.ID
		}
		if err := e.store.StartExamSession(assignmentStudentID, e.now(), ids); err != nil {
			return data, err
		}
		// Re-read: a concurrent first load may have won the start stamp.
		as, err = e.store.GetAssignmentStudent(assignmentStudentID)
		if err != nil {
			return data, err
		}
	}

	questions, err := e.store.GetExamQuestions(assignmentStudentID)
	if err != nil {
		return data, err
	}
	answers, err := e.store.ListAnswers(assignmentStudentID)
	if err != nil {
		return data, err
	}

	return model.ExamData{
		AssignmentStudent: as,
		Assignment:        assignment,
		Assessment:        assessment,
		Student:           student,
		Questions:         questions,
		Answers:           answers,
	}, nil
}

// SaveAnswer upserts the student's answer to one question, last write wins.
// Writes against a finalized session are rejected with ErrConflict.
func (e *Engine) SaveAnswer(assignmentStudentID, questionID int64, answer string) (model.AssignmentAnswer, error) {
	return e.store.UpsertAnswer(assignmentStudentID, questionID, answer, e.now())
}

// Finalize ends a session. Safe to call at any time, any number of times,
// from any caller: the first call flips attended and bumps the assignment's
// attendee counter; repeats return the already finalized row unchanged.
func (e *Engine) Finalize(assignmentStudentID int64) (model.AssignmentStudent, error) {
	as, finalized, err := e.store.FinalizeSession(assignmentStudentID, e.now())
	if err != nil {
		return as, err
	}
	if finalized {
		e.logEvent(as.StudentID, model.LogEventFinalize, map[string]any{"assignment_id": as.AssignmentID})
		slog.Info("finalized exam session", "assignment_student_id", as.ID, "assignment_id", as.AssignmentID)
	}
	return as, nil
}

func (e *Engine) logEvent(studentID int64, event string, details map[string]any) {
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}
	if err := e.store.AppendStudentLog(model.StudentLog{
		StudentID: studentID,
		Event:     event,
		Details:   string(payload),
		CreatedAt: e.now(),
	}); err != nil {
		slog.Error("failed to append student log", "student_id", studentID, "event", event, "error", err)
	}
}
