package model

import (
	"context"
	"fmt"
	"time"
)

// DateLayout is the storage format for date-only fields such as a student's
// registration date.
const DateLayout = "2006-01-02"

// Student is one imported student. Students are created by bulk import and
// never modified afterwards.
type Student struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	Mobile             string `json:"mobile"`
	YearOfPass         int    `json:"year_of_pass"`
	DateOfRegistration string `json:"date_of_registration"`
	Stream             string `json:"stream"`
	College            string `json:"college,omitempty"`
}

// Skill groups questions by topic area.
type Skill struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// QuestionType discriminates the question payload variant.
type QuestionType string

const (
	QuestionChoice QuestionType = "choice"
	QuestionAnswer QuestionType = "answer"
	QuestionCode   QuestionType = "code"
)

// ChoicePayload is a multiple-choice question body: four options and the
// 1-based index of the correct one.
type ChoicePayload struct {
	Options [4]string `json:"options"`
	Correct int       `json:"correct"`
}

// AnswerPayload is a free-text question body.
type AnswerPayload struct {
	Expected string `json:"expected"`
}

// TestCase is one input/output pair for a coding question.
type TestCase struct {
	Input    string `json:"input"`
	Type     string `json:"type"`
	Expected string `json:"expected"`
}

// CodePayload is a coding question body: a reference solution plus ordered
// test cases.
type CodePayload struct {
	Solution  string     `json:"solution"`
	TestCases []TestCase `json:"test_cases"`
}

// Question is an exam question. Exactly one payload field is set, matching
// Type; Validate enforces this at construction time.
type Question struct {
	ID      int64          `json:"id"`
	SkillID int64          `json:"skill_id"`
	Text    string         `json:"text"`
	Type    QuestionType   `json:"type"`
	Choice  *ChoicePayload `json:"choice,omitempty"`
	Answer  *AnswerPayload `json:"answer,omitempty"`
	Code    *CodePayload   `json:"code,omitempty"`
}

// Validate checks that the question has text, a known type, and exactly the
// payload variant matching that type.
func (q Question) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("%w: question text is required", ErrValidation)
	}
	set := 0
	if q.Choice != nil {
		set++
	}
	if q.Answer != nil {
		set++
	}
	if q.Code != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: question must have exactly one payload, has %d", ErrValidation, set)
	}
	switch q.Type {
	case QuestionChoice:
		if q.Choice == nil {
			return fmt.Errorf("%w: choice question missing choice payload", ErrValidation)
		}
		if q.Choice.Correct < 1 || q.Choice.Correct > 4 {
			return fmt.Errorf("%w: correct option must be 1-4, got %d", ErrValidation, q.Choice.Correct)
		}
		for i, opt := range q.Choice.Options {
			if opt == "" {
				return fmt.Errorf("%w: option %d is empty", ErrValidation, i+1)
			}
		}
	case QuestionAnswer:
		if q.Answer == nil {
			return fmt.Errorf("%w: answer question missing answer payload", ErrValidation)
		}
	case QuestionCode:
		if q.Code == nil {
			return fmt.Errorf("%w: code question missing code payload", ErrValidation)
		}
		if len(q.Code.TestCases) == 0 {
			return fmt.Errorf("%w: code question needs at least one test case", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown question type %q", ErrValidation, q.Type)
	}
	return nil
}

// SkillRequirement is one entry of an assessment: draw QuestionCount random
// questions from the given skill.
type SkillRequirement struct {
	SkillID       int64 `json:"skill_id"`
	QuestionCount int   `json:"question_count"`
}

// Assessment is a reusable exam template: duration plus ordered per-skill
// question quotas. Treated as immutable once an assignment references it.
type Assessment struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Duration    int                `json:"duration"` // minutes
	Skills      []SkillRequirement `json:"skills"`
}

// MaxQuestions is the sum of all requirement counts. The actual drawn set may
// be shorter when a skill is under-populated.
func (a Assessment) MaxQuestions() int {
	total := 0
	for _, req := range a.Skills {
		total += req.QuestionCount
	}
	return total
}

// Validate checks duration and requirement counts.
func (a Assessment) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: assessment name is required", ErrValidation)
	}
	if a.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %d", ErrValidation, a.Duration)
	}
	if len(a.Skills) == 0 {
		return fmt.Errorf("%w: assessment needs at least one skill requirement", ErrValidation)
	}
	for _, req := range a.Skills {
		if req.QuestionCount <= 0 {
			return fmt.Errorf("%w: question count for skill %d must be positive", ErrValidation, req.SkillID)
		}
	}
	return nil
}

// CohortFilter selects students for an assignment. Nil fields are ignored;
// the supplied predicates are ANDed. An empty filter matches every student.
type CohortFilter struct {
	YearOfPass         *int    `json:"year_of_pass,omitempty"`
	Stream             *string `json:"stream,omitempty"`
	College            *string `json:"college,omitempty"`
	DateOfRegistration *string `json:"date_of_registration,omitempty"`
}

// Assignment is one issuance of an assessment to a filtered cohort.
type Assignment struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	Date          time.Time    `json:"date"`
	AssessmentID  int64        `json:"assessment_id"`
	Filter        CohortFilter `json:"filter"`
	TotalStudents int          `json:"total_students"`
	Attendees     int          `json:"attendees"`
}

// AssignmentStudent is one student's exam session within an assignment,
// keyed by a unique access code. Attended flips false to true exactly once.
type AssignmentStudent struct {
	ID           int64      `json:"id"`
	AssignmentID int64      `json:"assignment_id"`
	StudentID    int64      `json:"student_id"`
	Code         string     `json:"code"`
	Attended     bool       `json:"attended"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Marks        *float64   `json:"marks,omitempty"` // reserved, no grading logic
	Pass         *bool      `json:"pass,omitempty"`  // reserved
}

// AssignmentStudentDetail joins a session row with its student's name and
// email for the admin monitoring view.
type AssignmentStudentDetail struct {
	AssignmentStudent
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`
}

// AssignmentAnswer is a student's latest answer to one question. Unique per
// (assignment_student, question); saves upsert rather than duplicate.
type AssignmentAnswer struct {
	ID                  int64     `json:"id"`
	AssignmentStudentID int64     `json:"assignment_student_id"`
	QuestionID          int64     `json:"question_id"`
	Answer              string    `json:"answer"`
	AnswerTime          time.Time `json:"answer_time"`
}

// StudentLog is an append-only audit record of session events.
type StudentLog struct {
	ID        int64     `json:"id"`
	StudentID int64     `json:"student_id"`
	Event     string    `json:"event"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// Log event names.
const (
	LogEventLogin    = "login"
	LogEventFinalize = "finalize"
)

// ExamData is everything a student's exam client needs for one session.
type ExamData struct {
	AssignmentStudent AssignmentStudent  `json:"assignment_student"`
	Assignment        Assignment         `json:"assignment"`
	Assessment        Assessment         `json:"assessment"`
	Student           Student            `json:"student"`
	Questions         []Question         `json:"questions"`
	Answers           []AssignmentAnswer `json:"answers"`
}

// AdminUser is an administrator account.
type AdminUser struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession is an admin cookie session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type adminCtxKey struct{}

// ContextWithAdmin stores the authenticated admin in the request context.
func ContextWithAdmin(ctx context.Context, u *AdminUser) context.Context {
	return context.WithValue(ctx, adminCtxKey{}, u)
}

// AdminFromContext retrieves the authenticated admin from context, or nil.
func AdminFromContext(ctx context.Context) *AdminUser {
	u, _ := ctx.Value(adminCtxKey{}).(*AdminUser)
	return u
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}
