package store

import (
	"github.com/examgate/examgate/internal/model"
)

// ExportAssignment builds the full results dump for one assignment: every
// session with its saved answers joined to question text. Grading fields are
// deliberately absent; marks and pass are reserved but unused.
func (s *Store) ExportAssignment(assignmentID int64) (model.AssignmentExport, error) {
	var out model.AssignmentExport

	a, err := s.GetAssignment(assignmentID)
	if err != nil {
		return out, err
	}
	assessment, err := s.GetAssessment(a.AssessmentID)
	if err != nil {
		return out, err
	}
	out = model.AssignmentExport{
		AssignmentID:  a.ID,
		Name:          a.Name,
		Date:          a.Date,
		Assessment:    assessment.Name,
		TotalStudents: a.TotalStudents,
		Attendees:     a.Attendees,
	}

	details, err := s.ListAssignmentStudents(assignmentID)
	if err != nil {
		return out, err
	}
	for _, d := range details {
		answers, err := s.ListAnswers(d.ID)
		if err != nil {
			return out, err
		}
		sess := model.SessionExport{
			StudentName:  d.StudentName,
			StudentEmail: d.StudentEmail,
			Code:         d.Code,
			Attended:     d.Attended,
			StartTime:    d.StartTime,
			EndTime:      d.EndTime,
		}
		for _, ans := range answers {
			q, err := s.GetQuestion(ans.QuestionID)
			if err != nil {
				return out, err
			}
			sess.Answers = append(sess.Answers, model.AnswerExport{
				QuestionID: ans.QuestionID,
				Question:   q.Text,
				Answer:     ans.Answer,
				AnswerTime: ans.AnswerTime,
			})
		}
		out.Sessions = append(out.Sessions, sess)
	}
	return out, nil
}
