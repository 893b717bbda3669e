package handler

import (
	"net/http"
	"time"

	appI18n "github.com/examgate/examgate/internal/i18n"
)

type studentLoginRequest struct {
	AssignmentID int64  `json:"assignment_id" validate:"required,gt=0"`
	Email        string `json:"email" validate:"required,email"`
	Code         string `json:"code" validate:"required,len=6"`
}

func (h *Handler) handleStudentLogin(w http.ResponseWriter, r *http.Request) {
	var req studentLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	as, err := h.engine.Login(req.AssignmentID, req.Email, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, as)
}

func (h *Handler) handleExamData(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "assignmentStudentID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid session ID"})
		return
	}
	data, err := h.engine.ExamData(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

type saveAnswerRequest struct {
	Answer string `json:"answer"`
}

func (h *Handler) handleSaveAnswer(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "assignmentStudentID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid session ID"})
		return
	}
	questionID, err := urlID(r, "questionID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid question ID"})
		return
	}
	var req saveAnswerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ans, err := h.engine.SaveAnswer(id, questionID, req.Answer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

type finalizeResponse struct {
	Message string `json:"message"`
	EndTime string `json:"end_time,omitempty"`
}

func (h *Handler) handleFinalizeExam(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "assignmentStudentID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid session ID"})
		return
	}
	as, err := h.engine.Finalize(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := finalizeResponse{Message: appI18n.T(r.Context(), "ExamSubmitted")}
	if as.EndTime != nil {
		resp.EndTime = as.EndTime.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}
