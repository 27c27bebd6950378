package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"academy/internal/config"
	"academy/internal/models"
	"academy/internal/testutil"
)

const testPassword = "password123"

func init() {
	gin.SetMode(gin.TestMode)
}

type testApp struct {
	t   *testing.T
	db  *gorm.DB
	srv *server
	h   http.Handler
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db := testutil.DB(t)
	cfg := &config.Config{
		SessionSecret: "test-secret",
		CORSOrigins:   []string{"http://localhost:3000"},
		UnenrollScope: config.UnenrollScopeStudent,
	}
	srv := newServer(cfg, db, testutil.Logger(t))
	return &testApp{t: t, db: db, srv: srv, h: srv.router()}
}

// user inserts an account with testPassword and returns a logged-in client.
func (a *testApp) user(email, role string) *client {
	a.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		a.t.Fatal(err)
	}
	u := &models.User{Email: email, PasswordHash: string(hash), Role: role, FullName: email}
	if err := a.db.Create(u).Error; err != nil {
		a.t.Fatalf("seed user: %v", err)
	}
	c := a.anon()
	c.user = u
	rec := c.do(http.MethodPost, "/api/auth/login", gin.H{"email": email, "password": testPassword})
	if rec.Code != http.StatusOK {
		a.t.Fatalf("login %s: %d %s", email, rec.Code, rec.Body)
	}
	return c
}

func (a *testApp) anon() *client {
	return &client{t: a.t, h: a.h}
}

type client struct {
	t       *testing.T
	h       http.Handler
	user    *models.User
	cookies []*http.Cookie
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	if set := rec.Result().Cookies(); len(set) > 0 {
		c.cookies = set
	}
	return rec
}

// expect fails unless the response has the given status, then decodes the body into out.
func (c *client) expect(rec *httptest.ResponseRecorder, status int, out any) {
	c.t.Helper()
	if rec.Code != status {
		c.t.Fatalf("status = %d, want %d: %s", rec.Code, status, rec.Body)
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			c.t.Fatalf("decode %s: %v", rec.Body, err)
		}
	}
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e apiError
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error %s: %v", rec.Body, err)
	}
	return e.Error.Code
}

func TestHealthcheckAndRequestID(t *testing.T) {
	app := newTestApp(t)
	rec := app.anon().do(http.MethodGet, "/healthcheck", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("healthcheck = %d, request id %q", rec.Code, rec.Header().Get("X-Request-ID"))
	}
}

func TestAuthFlow(t *testing.T) {
	app := newTestApp(t)
	c := app.anon()

	rec := c.do(http.MethodPost, "/api/auth/register", gin.H{
		"email": "kid@academy.test", "password": testPassword, "password2": testPassword, "full_name": "Kid",
	})
	var me userView
	c.expect(rec, http.StatusCreated, &me)
	if me.Role != models.RoleStudent || me.Email != "kid@academy.test" {
		t.Fatalf("registered = %+v", me)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("password")) {
		t.Fatalf("password leaked: %s", rec.Body)
	}

	c.expect(c.do(http.MethodGet, "/api/auth/me", nil), http.StatusOK, &me)
	if me.Email != "kid@academy.test" {
		t.Fatalf("me = %+v", me)
	}

	c.expect(c.do(http.MethodPost, "/api/auth/logout", nil), http.StatusNoContent, nil)
	rec = c.do(http.MethodGet, "/api/auth/me", nil)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "unauthorized" {
		t.Fatalf("me after logout = %d %s", rec.Code, rec.Body)
	}

	tests := []struct {
		name   string
		path   string
		body   gin.H
		status int
	}{
		{"duplicate email", "/api/auth/register", gin.H{"email": "kid@academy.test", "password": testPassword, "password2": testPassword}, http.StatusConflict},
		{"password mismatch", "/api/auth/register", gin.H{"email": "x@academy.test", "password": testPassword, "password2": "other-password"}, http.StatusBadRequest},
		{"short password", "/api/auth/register", gin.H{"email": "x@academy.test", "password": "short", "password2": "short"}, http.StatusBadRequest},
		{"bad email", "/api/auth/register", gin.H{"email": "nope", "password": testPassword, "password2": testPassword}, http.StatusBadRequest},
		{"wrong password", "/api/auth/login", gin.H{"email": "kid@academy.test", "password": "wrong-password"}, http.StatusUnauthorized},
		{"unknown user", "/api/auth/login", gin.H{"email": "ghost@academy.test", "password": testPassword}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := app.anon().do(http.MethodPost, tt.path, tt.body); rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
		})
	}
}

func TestRoleGates(t *testing.T) {
	app := newTestApp(t)
	kid := app.user("kid@academy.test", models.RoleStudent)
	editor := app.user("ed@academy.test", models.RoleEditor)

	tests := []struct {
		name   string
		c      *client
		method string
		path   string
		status int
	}{
		{"anonymous content", app.anon(), http.MethodGet, "/api/programs", http.StatusUnauthorized},
		{"student content", kid, http.MethodGet, "/api/programs", http.StatusForbidden},
		{"editor content", editor, http.MethodGet, "/api/programs", http.StatusOK},
		{"editor approve", editor, http.MethodGet, "/api/programs/1/approve", http.StatusForbidden},
		{"editor reports", editor, http.MethodGet, "/api/reports/passed", http.StatusForbidden},
		{"editor users", editor, http.MethodGet, "/api/admin/users", http.StatusForbidden},
		{"student catalog", kid, http.MethodGet, "/api/catalog", http.StatusOK},
		{"bad id", editor, http.MethodGet, "/api/programs/abc", http.StatusBadRequest},
		{"missing program", editor, http.MethodGet, "/api/programs/42", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := tt.c.do(tt.method, tt.path, nil); rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
		})
	}
}

type reviewBody struct {
	Published   map[string]any   `json:"published"`
	NotApproved []map[string]any `json:"not_approved"`
}

func versionID(t *testing.T, v map[string]any) uint {
	t.Helper()
	id, ok := v["version_id"].(float64)
	if !ok {
		t.Fatalf("no version_id in %v", v)
	}
	return uint(id)
}

// approveLatest approves the newest pending snapshot behind an approve path.
func approveLatest(t *testing.T, c *client, approvePath string) {
	t.Helper()
	var review reviewBody
	c.expect(c.do(http.MethodGet, approvePath, nil), http.StatusOK, &review)
	if len(review.NotApproved) == 0 {
		t.Fatalf("nothing pending at %s", approvePath)
	}
	c.expect(c.do(http.MethodPut, approvePath, gin.H{"version_id": versionID(t, review.NotApproved[0]), "approved": true}), http.StatusOK, nil)
}

func TestApprovalAndRollback(t *testing.T) {
	app := newTestApp(t)
	editor := app.user("ed@academy.test", models.RoleEditor)
	manager := app.user("boss@academy.test", models.RoleManager)

	var p models.Program
	editor.expect(editor.do(http.MethodPost, "/api/programs", gin.H{"title": "A v1", "description": "d"}), http.StatusCreated, &p)
	if p.IsApproved {
		t.Fatal("new program is approved")
	}
	editor.expect(editor.do(http.MethodPatch, fmt.Sprintf("/api/programs/%d", p.ID), gin.H{"title": "A v1 v2"}), http.StatusOK, nil)

	approvePath := fmt.Sprintf("/api/programs/%d/approve", p.ID)
	var review reviewBody
	manager.expect(manager.do(http.MethodGet, approvePath, nil), http.StatusOK, &review)
	if review.Published != nil || len(review.NotApproved) != 2 {
		t.Fatalf("review = %+v", review)
	}
	// newest first
	v2, v1 := versionID(t, review.NotApproved[0]), versionID(t, review.NotApproved[1])
	if review.NotApproved[1]["title"] != "A v1" || review.NotApproved[0]["editor"] != "ed@academy.test" {
		t.Fatalf("not_approved = %+v", review.NotApproved)
	}

	rec := manager.do(http.MethodPut, approvePath, gin.H{"version_id": v1})
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_argument" {
		t.Fatalf("missing approved flag = %d %s", rec.Code, rec.Body)
	}
	rec = manager.do(http.MethodPut, approvePath, gin.H{"version_id": 9999, "approved": true})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown version = %d %s", rec.Code, rec.Body)
	}

	manager.expect(manager.do(http.MethodPut, approvePath, gin.H{"version_id": v1, "approved": true}), http.StatusOK, &p)
	if p.Title != "A v1" || !p.IsApproved {
		t.Fatalf("approved program = %+v", p)
	}
	manager.expect(manager.do(http.MethodGet, approvePath, nil), http.StatusOK, &review)
	if review.Published == nil || review.Published["title"] != "A v1" || len(review.NotApproved) != 0 {
		t.Fatalf("review after approve = %+v", review)
	}

	// v2 is older than the approval, so it is no longer pending; a new edit is
	editor.expect(editor.do(http.MethodPatch, fmt.Sprintf("/api/programs/%d", p.ID), gin.H{"title": "A v3"}), http.StatusOK, nil)
	manager.expect(manager.do(http.MethodGet, approvePath, nil), http.StatusOK, &review)
	if len(review.NotApproved) != 1 {
		t.Fatalf("pending = %+v", review.NotApproved)
	}
	v3 := versionID(t, review.NotApproved[0])
	manager.expect(manager.do(http.MethodPut, approvePath, gin.H{"version_id": v3, "approved": false}), http.StatusOK, &p)
	if p.Title != "A v3" || p.IsApproved {
		t.Fatalf("after reject live = %+v", p)
	}
	manager.expect(manager.do(http.MethodPut, approvePath, gin.H{"version_id": v3, "approved": true}), http.StatusNotFound, nil)

	editor.expect(editor.do(http.MethodPatch, fmt.Sprintf("/api/programs/%d", p.ID), gin.H{"title": "A v4"}), http.StatusOK, nil)
	manager.expect(manager.do(http.MethodGet, approvePath, nil), http.StatusOK, &review)
	v4 := versionID(t, review.NotApproved[0])
	manager.expect(manager.do(http.MethodPut, approvePath, gin.H{"version_id": v4, "approved": true}), http.StatusOK, &p)

	historyPath := fmt.Sprintf("/api/programs/%d/history", p.ID)
	var history []map[string]any
	manager.expect(manager.do(http.MethodGet, historyPath, nil), http.StatusOK, &history)
	if len(history) != 2 || history[0]["title"] != "A v4" || history[1]["title"] != "A v1" {
		t.Fatalf("history = %+v", history)
	}

	manager.expect(manager.do(http.MethodPut, historyPath, gin.H{"version_id": v2}), http.StatusBadRequest, nil)
	manager.expect(manager.do(http.MethodPut, historyPath, gin.H{"version_id": versionID(t, history[1])}), http.StatusOK, &p)
	if p.Title != "A v1" || !p.IsApproved {
		t.Fatalf("after rollback = %+v", p)
	}
	manager.expect(manager.do(http.MethodGet, historyPath, nil), http.StatusOK, &history)
	if len(history) != 3 || history[0]["title"] != "A v1" {
		t.Fatalf("history after rollback = %+v", history)
	}

	var catalog []map[string]any
	editor.expect(editor.do(http.MethodGet, "/api/catalog", nil), http.StatusOK, &catalog)
	if len(catalog) != 1 || catalog[0]["title"] != "A v1" {
		t.Fatalf("catalog = %+v", catalog)
	}

	rec = app.anon().do(http.MethodGet, "/metrics", nil)
	for _, want := range []string{
		`academy_moderation_decisions_total{kind="program",outcome="approved"} 2`,
		`academy_moderation_decisions_total{kind="program",outcome="rejected"} 1`,
		`academy_moderation_decisions_total{kind="program",outcome="rolled_back"} 1`,
	} {
		if !bytes.Contains(rec.Body.Bytes(), []byte(want)) {
			t.Fatalf("metrics missing %s", want)
		}
	}
}

func TestStudyFlow(t *testing.T) {
	app := newTestApp(t)
	editor := app.user("ed@academy.test", models.RoleEditor)
	manager := app.user("boss@academy.test", models.RoleManager)
	alice := app.user("alice@academy.test", models.RoleStudent)
	bob := app.user("bob@academy.test", models.RoleStudent)

	var p models.Program
	editor.expect(editor.do(http.MethodPost, "/api/programs", gin.H{"title": "Photo"}), http.StatusCreated, &p)
	var a, b models.Lesson
	editor.expect(editor.do(http.MethodPost, fmt.Sprintf("/api/programs/%d/lessons", p.ID), gin.H{"title": "A", "answer": "Light"}), http.StatusCreated, &a)
	editor.expect(editor.do(http.MethodPost, fmt.Sprintf("/api/programs/%d/lessons", p.ID), gin.H{"title": "B", "answer": "shadow"}), http.StatusCreated, &b)
	if a.Answer != "light" || b.ParentID == nil || *b.ParentID != a.ID {
		t.Fatalf("lessons = %+v, %+v", a, b)
	}
	var next models.Lesson
	editor.expect(editor.do(http.MethodGet, fmt.Sprintf("/api/lessons/%d/next", a.ID), nil), http.StatusOK, &next)
	if next.ID != b.ID {
		t.Fatalf("next = %+v", next)
	}
	approveLatest(t, manager, fmt.Sprintf("/api/lessons/%d/approve", a.ID))
	approveLatest(t, manager, fmt.Sprintf("/api/lessons/%d/approve", b.ID))
	editor.expect(editor.do(http.MethodPatch, fmt.Sprintf("/api/lessons/%d", a.ID), gin.H{"title": "A draft"}), http.StatusOK, nil)

	alice.expect(alice.do(http.MethodGet, "/api/student", nil), http.StatusNotFound, nil)
	var st models.Student
	alice.expect(alice.do(http.MethodPost, "/api/student", nil), http.StatusCreated, &st)
	alice.expect(alice.do(http.MethodPost, "/api/student", nil), http.StatusConflict, nil)
	bob.expect(bob.do(http.MethodPost, "/api/student", nil), http.StatusCreated, nil)

	alice.expect(alice.do(http.MethodPost, fmt.Sprintf("/api/student/wishes/%d", p.ID), nil), http.StatusOK, &st)
	if len(st.WishPrograms) != 1 {
		t.Fatalf("wishes = %+v", st.WishPrograms)
	}

	manager.expect(manager.do(http.MethodPost, fmt.Sprintf("/api/students/%d/programs/%d", st.ID, p.ID), nil), http.StatusOK, &st)
	if len(st.OpenPrograms) != 1 {
		t.Fatalf("open = %+v", st.OpenPrograms)
	}

	var rows []models.Studying
	alice.expect(alice.do(http.MethodGet, "/api/student/studyings", nil), http.StatusOK, &rows)
	if len(rows) != 1 || rows[0].LessonID != a.ID {
		t.Fatalf("studyings = %+v", rows)
	}
	studyingPath := fmt.Sprintf("/api/student/studyings/%d", rows[0].ID)

	var shown map[string]any
	alice.expect(alice.do(http.MethodGet, studyingPath, nil), http.StatusOK, &shown)
	lesson, _ := shown["lesson"].(map[string]any)
	if lesson == nil || lesson["title"] != "A" {
		t.Fatalf("studying lesson = %+v", shown)
	}
	if _, leaked := lesson["answer"]; leaked {
		t.Fatalf("answer exposed to student: %+v", lesson)
	}

	bob.expect(bob.do(http.MethodPatch, studyingPath, gin.H{"answer": "light"}), http.StatusForbidden, nil)
	alice.expect(alice.do(http.MethodPatch, studyingPath, gin.H{}), http.StatusBadRequest, nil)

	var row models.Studying
	alice.expect(alice.do(http.MethodPatch, studyingPath, gin.H{"answer": "LIGHT"}), http.StatusOK, &row)
	if !row.Passed {
		t.Fatalf("row = %+v", row)
	}
	alice.expect(alice.do(http.MethodGet, "/api/student/studyings", nil), http.StatusOK, &rows)
	if len(rows) != 1 || rows[0].LessonID != b.ID {
		t.Fatalf("open studyings = %+v", rows)
	}
	var available []models.Lesson
	alice.expect(alice.do(http.MethodGet, fmt.Sprintf("/api/student/programs/%d/lessons", p.ID), nil), http.StatusOK, &available)
	if len(available) != 2 {
		t.Fatalf("available = %+v", available)
	}
	var passed map[string]int
	alice.expect(alice.do(http.MethodGet, "/api/student/passed", nil), http.StatusOK, &passed)
	if passed["amount_passed_lesson"] != 1 {
		t.Fatalf("passed = %+v", passed)
	}

	var report []map[string]any
	manager.expect(manager.do(http.MethodGet, "/api/reports/programs", nil), http.StatusOK, &report)
	if len(report) != 1 || report[0]["student_amount"] != float64(1) {
		t.Fatalf("report = %+v", report)
	}
	rec := manager.do(http.MethodGet, "/api/reports/passed?format=xlsx", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != xlsxContentType || rec.Body.Len() == 0 {
		t.Fatalf("xlsx = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	manager.expect(manager.do(http.MethodDelete, fmt.Sprintf("/api/students/%d/programs/%d", st.ID, p.ID), nil), http.StatusOK, &st)
	alice.expect(alice.do(http.MethodGet, "/api/student/studyings", nil), http.StatusOK, &rows)
	if len(st.OpenPrograms) != 0 || len(rows) != 0 {
		t.Fatalf("after unenroll open=%+v studyings=%+v", st.OpenPrograms, rows)
	}
}

func TestContentCascadeOverHTTP(t *testing.T) {
	app := newTestApp(t)
	editor := app.user("ed@academy.test", models.RoleEditor)
	manager := app.user("boss@academy.test", models.RoleManager)

	var p models.Program
	editor.expect(editor.do(http.MethodPost, "/api/programs", gin.H{"title": "Photo"}), http.StatusCreated, &p)
	var th models.Theme
	editor.expect(editor.do(http.MethodPost, fmt.Sprintf("/api/programs/%d/themes", p.ID), gin.H{"title": "Light"}), http.StatusCreated, &th)
	var l models.Lesson
	editor.expect(editor.do(http.MethodPost, fmt.Sprintf("/api/programs/%d/lessons", p.ID), gin.H{"title": "A", "answer": "x", "theme_id": th.ID}), http.StatusCreated, &l)

	var grouped struct {
		WithTheme    []map[string]any `json:"with_theme"`
		WithoutTheme []map[string]any `json:"without_theme"`
	}
	editor.expect(editor.do(http.MethodGet, fmt.Sprintf("/api/catalog/%d/lessons", p.ID), nil), http.StatusOK, &grouped)
	if len(grouped.WithTheme) != 1 || len(grouped.WithoutTheme) != 0 {
		t.Fatalf("grouped = %+v", grouped)
	}

	var pending []models.Lesson
	editor.expect(editor.do(http.MethodGet, "/api/lessons/pending", nil), http.StatusOK, &pending)
	if len(pending) != 1 {
		t.Fatalf("pending = %+v", pending)
	}

	editor.expect(editor.do(http.MethodDelete, fmt.Sprintf("/api/programs/%d", p.ID), nil), http.StatusForbidden, nil)
	editor.expect(editor.do(http.MethodDelete, fmt.Sprintf("/api/themes/%d", th.ID), nil), http.StatusNoContent, nil)
	editor.expect(editor.do(http.MethodGet, fmt.Sprintf("/api/lessons/%d", l.ID), nil), http.StatusNotFound, nil)
	manager.expect(manager.do(http.MethodDelete, fmt.Sprintf("/api/programs/%d", p.ID), nil), http.StatusNoContent, nil)
	editor.expect(editor.do(http.MethodGet, fmt.Sprintf("/api/programs/%d", p.ID), nil), http.StatusNotFound, nil)
}

func TestAdminUsers(t *testing.T) {
	app := newTestApp(t)
	root := app.user("root@academy.test", models.RoleSuperuser)

	var u userView
	root.expect(root.do(http.MethodPost, "/api/admin/users", gin.H{
		"email": "ed@academy.test", "password": testPassword, "role": models.RoleEditor,
	}), http.StatusCreated, &u)
	root.expect(root.do(http.MethodPost, "/api/admin/users", gin.H{
		"email": "x@academy.test", "password": testPassword, "role": "admin",
	}), http.StatusBadRequest, nil)

	root.expect(root.do(http.MethodPatch, fmt.Sprintf("/api/admin/users/%d", u.ID), gin.H{"role": models.RoleManager, "full_name": "Ed"}), http.StatusOK, &u)
	if u.Role != models.RoleManager || u.FullName != "Ed" {
		t.Fatalf("updated = %+v", u)
	}

	var users []userView
	root.expect(root.do(http.MethodGet, "/api/admin/users?role=manager", nil), http.StatusOK, &users)
	if len(users) != 1 || users[0].ID != u.ID {
		t.Fatalf("managers = %+v", users)
	}

	// a user with versions cannot be removed
	ed := app.anon()
	ed.expect(ed.do(http.MethodPost, "/api/auth/login", gin.H{"email": "ed@academy.test", "password": testPassword}), http.StatusOK, nil)
	ed.expect(ed.do(http.MethodPost, "/api/programs", gin.H{"title": "Photo"}), http.StatusCreated, nil)
	root.expect(root.do(http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", u.ID), nil), http.StatusConflict, nil)

	kid := app.user("kid@academy.test", models.RoleStudent)
	kid.expect(kid.do(http.MethodPost, "/api/student", nil), http.StatusCreated, nil)
	root.expect(root.do(http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", kid.user.ID), nil), http.StatusNoContent, nil)
	var students int64
	app.db.Model(&models.Student{}).Count(&students)
	if students != 0 {
		t.Fatalf("students left = %d", students)
	}
	root.expect(root.do(http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", root.user.ID), nil), http.StatusBadRequest, nil)
}

func TestRollbackToTakenTitleOverHTTP(t *testing.T) {
	app := newTestApp(t)
	editor := app.user("ed@academy.test", models.RoleEditor)
	manager := app.user("boss@academy.test", models.RoleManager)

	var a models.Program
	editor.expect(editor.do(http.MethodPost, "/api/programs", gin.H{"title": "X"}), http.StatusCreated, &a)
	approveLatest(t, manager, fmt.Sprintf("/api/programs/%d/approve", a.ID))
	editor.expect(editor.do(http.MethodPatch, fmt.Sprintf("/api/programs/%d", a.ID), gin.H{"title": "Y"}), http.StatusOK, nil)
	approveLatest(t, manager, fmt.Sprintf("/api/programs/%d/approve", a.ID))
	editor.expect(editor.do(http.MethodPost, "/api/programs", gin.H{"title": "X"}), http.StatusCreated, nil)

	historyPath := fmt.Sprintf("/api/programs/%d/history", a.ID)
	var history []map[string]any
	manager.expect(manager.do(http.MethodGet, historyPath, nil), http.StatusOK, &history)
	if len(history) != 2 || history[1]["title"] != "X" {
		t.Fatalf("history = %+v", history)
	}
	rec := manager.do(http.MethodPut, historyPath, gin.H{"version_id": versionID(t, history[1])})
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "conflict" {
		t.Fatalf("rollback to taken title = %d %s", rec.Code, rec.Body)
	}
}
