package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	m "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"

	"classroom-judge/internal/config"
	"classroom-judge/internal/db"
	"classroom-judge/internal/judge"
	"classroom-judge/internal/schemas"
	"classroom-judge/internal/storage"
	"classroom-judge/internal/worker"
)

// maxReportBytes bounds request bodies; reports are small.
const maxReportBytes = 8 << 20

type Server struct {
	DB    *sqlx.DB
	S3    *storage.Client
	Asynq *asynq.Client
	Token string
}

func NewServer(cfg config.Config, dbx *sqlx.DB, s3c *storage.Client, asq *asynq.Client) *http.Server {
	s := &Server{DB: dbx, S3: s3c, Asynq: asq, Token: cfg.APIToken}
	return &http.Server{Addr: cfg.APIAddr, Handler: s.routes()}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(m.RequestID, m.RealIP, m.Logger, m.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(RequireAPIToken(s.Token))
		r.Post("/judge", s.judgeInline)
		r.Post("/reports", s.submitReport)
		r.Post("/runs", s.submitRun)
		r.Get("/reports/{id}", s.getReport)
	})

	r.Get("/healthz", s.healthz)
	return r
}

type errResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// readBody reads the request body, writing a 413 or 400 response on failure.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReportBytes))
	if err != nil {
		code := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, code, errResp{fmt.Sprintf("read body: %v", err)})
		return nil, false
	}
	return b, true
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil || s.DB.PingContext(r.Context()) != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "db error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// judgeInline scores the request body synchronously. Bad reports score {} with a
// 200, same as a report with no exercises.
func (s *Server) judgeInline(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	points := judge.Judge(string(body))
	if len(points) == 0 {
		logParseFailure("inline", body)
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) submitReport(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	ref, err := s.S3.PutReport(r.Context(), body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errResp{err.Error()})
		return
	}
	id := uuid.NewString()
	if err := db.InsertReport(r.Context(), s.DB, id, db.SourceUpload, ref, nil); err != nil {
		writeJSON(w, http.StatusInternalServerError, errResp{err.Error()})
		return
	}
	if err := s.enqueue(worker.NewJudgeTask(id)); err != nil {
		writeJSON(w, http.StatusInternalServerError, errResp{err.Error()})
		return
	}
	log.Printf("report %s stored at %s", id, ref)
	writeJSON(w, http.StatusAccepted, schemas.SubmitResp{ReportID: id, Status: db.StatusPending})
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req schemas.RunRequest
	if err := decodeValid("run_request", runRequestSchema, body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResp{err.Error()})
		return
	}
	id := uuid.NewString()
	if err := db.InsertReport(r.Context(), s.DB, id, db.SourceRun, "", req); err != nil {
		writeJSON(w, http.StatusInternalServerError, errResp{err.Error()})
		return
	}
	if err := s.enqueue(worker.NewRunTask(id)); err != nil {
		writeJSON(w, http.StatusInternalServerError, errResp{err.Error()})
		return
	}
	log.Printf("run %s enqueued for %s", id, req.Repository)
	writeJSON(w, http.StatusAccepted, schemas.SubmitResp{ReportID: id, Status: db.StatusPending})
}

func (s *Server) enqueue(t *asynq.Task) error {
	if _, err := s.Asynq.Enqueue(t); err != nil {
		return fmt.Errorf("enqueue %s: %w", t.Type(), err)
	}
	return nil
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(w, http.StatusNotFound, errResp{"not found"})
		return
	}
	rep, err := db.GetReport(r.Context(), s.DB, id)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, errResp{"not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errResp{err.Error()})
		return
	}
	out, err := reportOut(rep)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errResp{err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func reportOut(rep *db.Report) (*schemas.ReportOut, error) {
	points, err := rep.DecodePoints()
	if err != nil {
		return nil, err
	}
	out := &schemas.ReportOut{
		ReportID:  rep.ID,
		CreatedAt: rep.CreatedAt,
		Source:    rep.Source,
		Status:    rep.Status,
		Points:    points,
		Earned:    rep.Earned,
		Possible:  rep.Possible,
		Error:     rep.Error.String,
	}
	if points != nil {
		out.Passed = points.Passed()
		out.Failed = points.Failed()
	}
	if rep.JudgedAt.Valid {
		t := rep.JudgedAt.Time
		out.JudgedAt = &t
	}
	if len(rep.Run) > 0 {
		if err := json.Unmarshal(rep.Run, &out.Run); err != nil {
			return nil, fmt.Errorf("decode run for report %s: %w", rep.ID, err)
		}
	}
	return out, nil
}

func logParseFailure(source string, raw []byte) {
	if _, err := judge.Parse(raw); err != nil {
		log.Printf("judge %s: %v", source, err)
	}
}
