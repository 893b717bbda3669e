package handler

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/examgate/examgate/internal/exam"
	appI18n "github.com/examgate/examgate/internal/i18n"
	"github.com/examgate/examgate/internal/model"
)

func urlID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

type dashboardResponse struct {
	Students    int `json:"students"`
	Skills      int `json:"skills"`
	Questions   int `json:"questions"`
	Assessments int `json:"assessments"`
	Assignments int `json:"assignments"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var d dashboardResponse
	var err error
	if d.Students, err = h.store.StudentCount(); err != nil {
		writeError(w, r, err)
		return
	}
	skills, err := h.store.ListSkills()
	if err != nil {
		writeError(w, r, err)
		return
	}
	d.Skills = len(skills)
	if d.Questions, err = h.store.QuestionCount(); err != nil {
		writeError(w, r, err)
		return
	}
	if d.Assessments, err = h.store.AssessmentCount(); err != nil {
		writeError(w, r, err)
		return
	}
	if d.Assignments, err = h.store.AssignmentCount(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type skillRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (h *Handler) handleListSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := h.store.ListSkills()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, skills)
}

func (h *Handler) handleCreateSkill(w http.ResponseWriter, r *http.Request) {
	var req skillRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id, err := h.store.CreateSkill(model.Skill{Name: req.Name, Description: req.Description})
	if err != nil {
		writeError(w, r, err)
		return
	}
	sk, err := h.store.GetSkill(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sk)
}

func (h *Handler) handleUpdateSkill(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "skillID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid skill ID"})
		return
	}
	var req skillRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.UpdateSkill(model.Skill{ID: id, Name: req.Name, Description: req.Description}); err != nil {
		writeError(w, r, err)
		return
	}
	sk, err := h.store.GetSkill(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sk)
}

func (h *Handler) handleDeleteSkill(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "skillID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid skill ID"})
		return
	}
	if err := h.store.DeleteSkill(id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	skillID, err := urlID(r, "skillID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid skill ID"})
		return
	}
	if _, err := h.store.GetSkill(skillID); err != nil {
		writeError(w, r, err)
		return
	}
	questions, err := h.store.ListQuestionsBySkill(skillID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

type questionRequest struct {
	Text   string               `json:"text" validate:"required"`
	Type   model.QuestionType   `json:"type" validate:"required"`
	Choice *model.ChoicePayload `json:"choice,omitempty"`
	Answer *model.AnswerPayload `json:"answer,omitempty"`
	Code   *model.CodePayload   `json:"code,omitempty"`
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	skillID, err := urlID(r, "skillID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid skill ID"})
		return
	}
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	q := model.Question{
		SkillID: skillID,
		Text:    req.Text,
		Type:    req.Type,
		Choice:  req.Choice,
		Answer:  req.Answer,
		Code:    req.Code,
	}
	id, err := h.store.InsertQuestion(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.store.GetQuestion(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	assessments, err := h.store.ListAssessments()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assessments)
}

type assessmentRequest struct {
	Name        string                   `json:"name" validate:"required"`
	Description string                   `json:"description"`
	Duration    int                      `json:"duration" validate:"required,gt=0"`
	Skills      []model.SkillRequirement `json:"skills" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreateAssessment(w http.ResponseWriter, r *http.Request) {
	var req assessmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id, err := h.store.CreateAssessment(model.Assessment{
		Name:        req.Name,
		Description: req.Description,
		Duration:    req.Duration,
		Skills:      req.Skills,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.store.GetAssessment(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.store.ListAssignments()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

type assignmentRequest struct {
	Name         string             `json:"name" validate:"required"`
	AssessmentID int64              `json:"assessment_id" validate:"required,gt=0"`
	Filter       model.CohortFilter `json:"filter"`
}

func (h *Handler) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req assignmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.engine.CreateAssignment(req.Name, req.AssessmentID, req.Filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "assignmentID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid assignment ID"})
		return
	}
	if err := h.engine.DeleteAssignment(id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListAssignmentStudents(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "assignmentID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid assignment ID"})
		return
	}
	details, err := h.engine.ListAssignmentStudents(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *Handler) handleExportAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "assignmentID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid assignment ID"})
		return
	}
	export, err := h.store.ExportAssignment(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (h *Handler) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.store.ListStudents(model.CohortFilter{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

type importResponse struct {
	exam.ImportResult
	Message string `json:"message"`
}

func (h *Handler) handleImportStudents(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "file too large"})
		return
	}
	file, header, err := r.FormFile("students_file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no file uploaded"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read file"})
		return
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])
	storedHash, err := h.store.GetImportedFileHash(header.Filename)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if storedHash == hash {
		writeJSON(w, http.StatusOK, importResponse{
			Message: appI18n.T(r.Context(), "ImportUnchanged"),
		})
		return
	}

	result, err := exam.ImportStudents(h.store, bytes.NewReader(data))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.SetImportedFileHash(header.Filename, hash); err != nil {
		slog.Error("failed to record import", "error", err)
	}
	slog.Info("imported students via admin", "filename", header.Filename,
		"imported", result.Imported, "skipped", result.Skipped)

	writeJSON(w, http.StatusOK, importResponse{
		ImportResult: result,
		Message: appI18n.Td(r.Context(), "ImportSummary",
			map[string]any{"Imported": result.Imported, "Skipped": result.Skipped}),
	})
}
