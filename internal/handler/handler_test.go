package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/examgate/examgate/internal/exam"
	appI18n "github.com/examgate/examgate/internal/i18n"
	"github.com/examgate/examgate/internal/model"
	"github.com/examgate/examgate/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store, *exam.Engine) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}

	e := exam.New(s)
	h := New(s, e, Config{SecureCookies: false})

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, s, e
}

func seedExam(t *testing.T, s *store.Store, e *exam.Engine) (model.Assignment, model.AssignmentStudentDetail) {
	t.Helper()
	skillID, err := s.CreateSkill(model.Skill{Name: "Go"})
	if err != nil {
		t.Fatalf("CreateSkill: %v", err)
	}
	for i := range 4 {
		if _, err := s.InsertQuestion(model.Question{
			SkillID: skillID,
			Text:    fmt.Sprintf("Q%d", i+1),
			Type:    model.QuestionAnswer,
			Answer:  &model.AnswerPayload{},
		}); err != nil {
			t.Fatalf("InsertQuestion: %v", err)
		}
	}
	assessmentID, err := s.CreateAssessment(model.Assessment{
		Name: "Screening", Duration: 30,
		Skills: []model.SkillRequirement{{SkillID: skillID, QuestionCount: 2}},
	})
	if err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}
	if _, err := s.InsertStudent(model.Student{
		Name: "Asha", Email: "asha@example.com",
		YearOfPass: 2024, DateOfRegistration: "2023-06-15", Stream: "CSE",
	}); err != nil {
		t.Fatalf("InsertStudent: %v", err)
	}

	a, err := e.CreateAssignment("Drive", assessmentID, model.CohortFilter{})
	if err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	details, err := s.ListAssignmentStudents(a.ID)
	if err != nil {
		t.Fatalf("ListAssignmentStudents: %v", err)
	}
	return a, details[0]
}

func postJSON(t *testing.T, client *http.Client, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestStudentExamFlow(t *testing.T) {
	srv, s, e := newTestServer(t)
	a, sess := seedExam(t, s, e)
	client := srv.Client()

	// Login with the access code.
	resp := postJSON(t, client, srv.URL+"/api/exam/login", map[string]any{
		"assignment_id": a.ID,
		"email":         "asha@example.com",
		"code":          sess.Code,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	var loggedIn model.AssignmentStudent
	decodeBody(t, resp, &loggedIn)
	if loggedIn.ID != sess.ID {
		t.Fatalf("expected session %d, got %d", sess.ID, loggedIn.ID)
	}

	// First data load starts the session.
	resp, err := client.Get(fmt.Sprintf("%s/api/exam/%d", srv.URL, sess.ID))
	if err != nil {
		t.Fatalf("GET exam data: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("exam data: expected 200, got %d", resp.StatusCode)
	}
	var data model.ExamData
	decodeBody(t, resp, &data)
	if data.AssignmentStudent.StartTime == nil {
		t.Error("expected start time stamped")
	}
	if len(data.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(data.Questions))
	}

	// Save an answer.
	body, _ := json.Marshal(map[string]string{"answer": "my answer"})
	req, _ := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/api/exam/%d/answers/%d", srv.URL, sess.ID, data.Questions[0].ID),
		bytes.NewReader(body))
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("PUT answer: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save answer: expected 200, got %d", resp.StatusCode)
	}
	var saved model.AssignmentAnswer
	decodeBody(t, resp, &saved)
	if saved.Answer != "my answer" {
		t.Errorf("expected saved answer, got %q", saved.Answer)
	}

	// Finalize.
	resp = postJSON(t, client, fmt.Sprintf("%s/api/exam/%d/finalize", srv.URL, sess.ID), map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finalize: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Re-login after finalize is rejected with the generic message.
	resp = postJSON(t, client, srv.URL+"/api/exam/login", map[string]any{
		"assignment_id": a.ID,
		"email":         "asha@example.com",
		"code":          sess.Code,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("re-login: expected 401, got %d", resp.StatusCode)
	}
	var errBody errorResponse
	decodeBody(t, resp, &errBody)
	if errBody.Error != "Invalid details or already completed." {
		t.Errorf("unexpected error message: %q", errBody.Error)
	}

	// Answer writes after finalize conflict.
	req, _ = http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/api/exam/%d/answers/%d", srv.URL, sess.ID, data.Questions[0].ID),
		bytes.NewReader(body))
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("PUT answer after finalize: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 after finalize, got %d", resp.StatusCode)
	}
}

func TestStudentLoginValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)
	client := srv.Client()

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing email", map[string]any{"assignment_id": 1, "code": "AAAAAA"}, http.StatusBadRequest},
		{"bad email", map[string]any{"assignment_id": 1, "email": "nope", "code": "AAAAAA"}, http.StatusBadRequest},
		{"short code", map[string]any{"assignment_id": 1, "email": "a@b.com", "code": "AB"}, http.StatusBadRequest},
		{"unknown student", map[string]any{"assignment_id": 1, "email": "a@b.com", "code": "AAAAAA"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, client, srv.URL+"/api/exam/login", tt.body)
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestAdminAuthAndCSRF(t *testing.T) {
	srv, s, _ := newTestServer(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if _, err := s.CreateAdminUser(model.AdminUser{
		Username: "admin", DisplayName: "Admin", PasswordHash: string(hash), Active: true,
	}); err != nil {
		t.Fatalf("CreateAdminUser: %v", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	client := &http.Client{Jar: jar}

	// Unauthenticated requests bounce.
	resp, err := client.Get(srv.URL + "/api/admin/dashboard")
	if err != nil {
		t.Fatalf("GET dashboard: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", resp.StatusCode)
	}

	// Wrong password.
	resp = postJSON(t, client, srv.URL+"/api/admin/login", map[string]string{
		"username": "admin", "password": "wrong",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", resp.StatusCode)
	}

	// Login sets session and CSRF cookies.
	resp = postJSON(t, client, srv.URL+"/api/admin/login", map[string]string{
		"username": "admin", "password": "secret",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}

	// Authenticated GET works and issues a fresh CSRF token.
	resp, err = client.Get(srv.URL + "/api/admin/dashboard")
	if err != nil {
		t.Fatalf("GET dashboard: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with session, got %d", resp.StatusCode)
	}

	// Mutation without the CSRF header is rejected.
	resp = postJSON(t, client, srv.URL+"/api/admin/skills", map[string]string{"name": "Go"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF header, got %d", resp.StatusCode)
	}

	// Mutation echoing the cookie token succeeds.
	csrf := csrfToken(t, jar, srv.URL)
	body, _ := json.Marshal(map[string]string{"name": "Go"})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/admin/skills", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", csrf)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("POST skill: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var sk model.Skill
	decodeBody(t, resp, &sk)
	if sk.Name != "Go" || sk.ID == 0 {
		t.Errorf("unexpected skill: %+v", sk)
	}
}

func csrfToken(t *testing.T, jar http.CookieJar, base string) string {
	t.Helper()
	for _, c := range jar.Cookies(mustParseURL(t, base)) {
		if c.Name == "csrf_token" {
			return c.Value
		}
	}
	t.Fatal("expected csrf_token cookie")
	return ""
}

func TestImportStudentsReUpload(t *testing.T) {
	srv, s, _ := newTestServer(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if _, err := s.CreateAdminUser(model.AdminUser{
		Username: "admin", DisplayName: "Admin", PasswordHash: string(hash), Active: true,
	}); err != nil {
		t.Fatalf("CreateAdminUser: %v", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	client := &http.Client{Jar: jar}

	resp := postJSON(t, client, srv.URL+"/api/admin/login", map[string]string{
		"username": "admin", "password": "secret",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}

	csvContent := "name,email,mobile,year_of_pass,date_of_registration,stream\n" +
		"Asha,asha@example.com,5551234567,2024,2023-06-15,CSE\n"
	upload := func() importResponse {
		t.Helper()
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("students_file", "students.csv")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write([]byte(csvContent)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
		mw.Close()

		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/admin/students/import", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("X-CSRF-Token", csrfToken(t, jar, srv.URL))
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("POST import: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("import: expected 200, got %d", resp.StatusCode)
		}
		var out importResponse
		decodeBody(t, resp, &out)
		return out
	}

	first := upload()
	if first.Imported != 1 || first.Skipped != 0 {
		t.Errorf("first upload: expected 1 imported / 0 skipped, got %+v", first.ImportResult)
	}

	// An identical re-upload must be reported as unchanged, not as an empty
	// import.
	second := upload()
	if second.Imported != 0 || second.Skipped != 0 {
		t.Errorf("re-upload: expected no work, got %+v", second.ImportResult)
	}
	if second.Message != "This file was already imported; nothing changed." {
		t.Errorf("re-upload message = %q", second.Message)
	}
	if second.Message == first.Message {
		t.Error("re-upload message should differ from a fresh import summary")
	}
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse URL %q: %v", raw, err)
	}
	return u
}
