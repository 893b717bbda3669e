package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/examgate/examgate/internal/exam"
	"github.com/examgate/examgate/internal/store"
)

// Config holds runtime handler parameters set via CLI flags.
type Config struct {
	SecureCookies bool // Set Secure flag on cookies (disable for local dev)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	engine *exam.Engine
	config Config
}

// New creates a new Handler.
func New(s *store.Store, e *exam.Engine, cfg Config) *Handler {
	return &Handler{store: s, engine: e, config: cfg}
}

// Routes registers all HTTP routes. The exam surface authenticates by
// access code only; the admin surface requires a session cookie.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/exam/login", h.handleStudentLogin)
		r.Get("/exam/{assignmentStudentID}", h.handleExamData)
		r.Put("/exam/{assignmentStudentID}/answers/{questionID}", h.handleSaveAnswer)
		r.Post("/exam/{assignmentStudentID}/finalize", h.handleFinalizeExam)

		r.Post("/admin/login", h.handleAdminLogin)
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Use(h.csrfMiddleware)

			r.Post("/admin/logout", h.handleAdminLogout)
			r.Get("/admin/dashboard", h.handleDashboard)

			r.Get("/admin/skills", h.handleListSkills)
			r.Post("/admin/skills", h.handleCreateSkill)
			r.Put("/admin/skills/{skillID}", h.handleUpdateSkill)
			r.Delete("/admin/skills/{skillID}", h.handleDeleteSkill)
			r.Get("/admin/skills/{skillID}/questions", h.handleListQuestions)
			r.Post("/admin/skills/{skillID}/questions", h.handleCreateQuestion)

			r.Get("/admin/assessments", h.handleListAssessments)
			r.Post("/admin/assessments", h.handleCreateAssessment)

			r.Get("/admin/assignments", h.handleListAssignments)
			r.Post("/admin/assignments", h.handleCreateAssignment)
			r.Delete("/admin/assignments/{assignmentID}", h.handleDeleteAssignment)
			r.Get("/admin/assignments/{assignmentID}/students", h.handleListAssignmentStudents)
			r.Get("/admin/assignments/{assignmentID}/export", h.handleExportAssignment)

			r.Get("/admin/students", h.handleListStudents)
			r.Post("/admin/students/import", h.handleImportStudents)
		})
	})
}
