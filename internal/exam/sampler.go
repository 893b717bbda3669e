package exam

import (
	"github.com/examgate/examgate/internal/model"
)

// sample draws the question set for one session: for each skill requirement
// in assessment order, a uniform shuffle of that skill's questions truncated
// to the requested count. A skill with fewer questions than requested
// contributes all it has; that is a silent truncation, not an error. The
// result is persisted by the caller so a resume never re-rolls.
func (e *Engine) sample(assessment model.Assessment) ([]model.Question, error) {
	var out []model.Question
	for _, req := range assessment.Skills {
		qs, err := e.store.ListQuestionsBySkill(req.SkillID)
		if err != nil {
			return nil, err
		}
		e.rng.Shuffle(len(qs), func(i, j int) {
			qs[i], qs[j] = qs[j], qs[i]
		})
		n := min(req.QuestionCount, len(qs))
		out = append(out, qs[:n]...)
	}
	return out, nil
}
