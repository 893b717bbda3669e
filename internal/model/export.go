package model

import "time"

// AnswerExport is one answered question in a results export.
type AnswerExport struct {
	QuestionID int64     `json:"question_id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	AnswerTime time.Time `json:"answer_time"`
}

// SessionExport is one student's session in a results export.
type SessionExport struct {
	StudentName  string         `json:"student_name"`
	StudentEmail string         `json:"student_email"`
	Code         string         `json:"code"`
	Attended     bool           `json:"attended"`
	StartTime    *time.Time     `json:"start_time,omitempty"`
	EndTime      *time.Time     `json:"end_time,omitempty"`
	Answers      []AnswerExport `json:"answers"`
}

// AssignmentExport is the full results dump for one assignment.
type AssignmentExport struct {
	AssignmentID  int64           `json:"assignment_id"`
	Name          string          `json:"name"`
	Date          time.Time       `json:"date"`
	Assessment    string          `json:"assessment"`
	TotalStudents int             `json:"total_students"`
	Attendees     int             `json:"attendees"`
	Sessions      []SessionExport `json:"sessions"`
}
