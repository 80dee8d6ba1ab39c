package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom-judge/internal/db"
	"classroom-judge/internal/judge"
)

const testToken = "dev-secret-token"

func do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	s := &Server{Token: testToken}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	return rec
}

func TestJudgeEndpoint(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"pass and fail", `{"exercises": [{"name": "a", "result": true}, {"name": "b", "result": false}]}`, `{"a": [1, 1], "b": [0, 1]}`},
		{"not json", "not json", `{}`},
		{"missing exercises", `{}`, `{}`},
		{"empty body", ``, `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, http.MethodPost, "/judge", testToken, tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestJudgeEndpoint_TooLarge(t *testing.T) {
	body := `{"exercises": [` + strings.Repeat(`{"name": "x", "result": true},`, maxReportBytes/20) + `]}`
	rec := do(t, http.MethodPost, "/judge", testToken, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) { return 0, errors.New("connection reset by peer") }

func TestReadBody_Errors(t *testing.T) {
	for _, path := range []string{"/judge", "/reports", "/runs"} {
		t.Run(path, func(t *testing.T) {
			s := &Server{Token: testToken}
			req := httptest.NewRequest(http.MethodPost, path, brokenBody{})
			req.Header.Set("Authorization", "Bearer "+testToken)
			rec := httptest.NewRecorder()
			s.routes().ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			var e errResp
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
			assert.Equal(t, "read body: connection reset by peer", e.Error)
		})
	}
}

func TestRequireAPIToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		code  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"right", testToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, http.MethodPost, "/judge", tt.token, `{"exercises": []}`)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestRequireAPIToken_EmptyConfiguredToken(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodPost, "/judge", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitRun_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `{`, "invalid JSON"},
		{"missing repository", `{"commit": "abc"}`, "invalid run_request"},
		{"empty repository", `{"repository": ""}`, "invalid run_request"},
		{"unknown field", `{"repository": "r", "branch": "main"}`, "invalid run_request"},
		{"wrong type", `{"repository": 42}`, "invalid run_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, http.MethodPost, "/runs", testToken, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var e errResp
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
			assert.Contains(t, e.Error, tt.want)
		})
	}
}

func TestGetReport_BadID(t *testing.T) {
	rec := do(t, http.MethodGet, "/reports/not-a-uuid", testToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz_NoDB(t *testing.T) {
	rec := do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status": "db error"}`, rec.Body.String())
}

func TestReportOut(t *testing.T) {
	created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	rep := &db.Report{
		ID:        "8a7e0f2c-54a1-4c55-9d3b-3c1c1c7e1f00",
		CreatedAt: created,
		Source:    db.SourceRun,
		Status:    db.StatusJudged,
		Points:    []byte(`{"intro1": [1, 1], "intro2": [0, 1], "vars1": [1, 1]}`),
		Earned:    2,
		Possible:  3,
		Run:       []byte(`{"ok": false, "exit_code": 1}`),
		JudgedAt:  sql.NullTime{Time: created.Add(time.Minute), Valid: true},
	}

	out, err := reportOut(rep)
	require.NoError(t, err)
	assert.Equal(t, judge.Points{"intro1": judge.Pass, "intro2": judge.Fail, "vars1": judge.Pass}, out.Points)
	assert.Equal(t, []string{"intro1", "vars1"}, out.Passed)
	assert.Equal(t, []string{"intro2"}, out.Failed)
	assert.Equal(t, 2, out.Earned)
	assert.Equal(t, 3, out.Possible)
	assert.Equal(t, float64(1), out.Run["exit_code"])
	require.NotNil(t, out.JudgedAt)
	assert.Equal(t, created.Add(time.Minute), *out.JudgedAt)
}

func TestReportOut_Pending(t *testing.T) {
	out, err := reportOut(&db.Report{ID: "r", Status: db.StatusPending, Error: sql.NullString{}})
	require.NoError(t, err)
	assert.Nil(t, out.Points)
	assert.Nil(t, out.Passed)
	assert.Nil(t, out.JudgedAt)
	assert.Empty(t, out.Error)
}

func TestReportOut_CorruptRun(t *testing.T) {
	rep := &db.Report{ID: "r", Status: db.StatusJudged, Points: []byte(`{"a": [1, 1]}`), Run: []byte(`{"ok": tru`)}
	_, err := reportOut(rep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode run for report r")
}
