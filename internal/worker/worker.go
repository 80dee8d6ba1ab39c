package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"

	"classroom-judge/internal/config"
	"classroom-judge/internal/db"
	"classroom-judge/internal/judge"
	"classroom-judge/internal/runner"
	"classroom-judge/internal/schemas"
	"classroom-judge/internal/storage"
)

const (
	TypeJudgeReport  = "judge_report"
	TypeRunExercises = "run_exercises"
)

// MaxRetry is how often a task is retried after a transient failure. The
// report is marked failed once the last attempt fails.
const MaxRetry = 3

// NewJudgeTask scores an uploaded report already stored in object storage.
func NewJudgeTask(reportID string) *asynq.Task {
	return asynq.NewTask(TypeJudgeReport, []byte(reportID), asynq.MaxRetry(MaxRetry))
}

// NewRunTask runs the exercise checker for a repository, then scores its output.
func NewRunTask(reportID string) *asynq.Task {
	return asynq.NewTask(TypeRunExercises, []byte(reportID), asynq.MaxRetry(MaxRetry))
}

type reportStore interface {
	GetReport(ctx context.Context, id string) (*db.Report, error)
	MarkJudged(ctx context.Context, id string, points judge.Points) error
	MarkFailed(ctx context.Context, id string, cause error) error
	CompleteRun(ctx context.Context, id, ref string, outcome schemas.RunOutcome, points judge.Points) error
}

type blobStore interface {
	PutReport(ctx context.Context, raw []byte) (string, error)
	GetReport(ctx context.Context, ref string) ([]byte, error)
}

type Server struct {
	Reports reportStore
	Blobs   blobStore
	Run     config.RunConfig

	runExercises func(context.Context, runner.Spec) (*runner.Result, error)
	lastAttempt  func(context.Context) bool
}

func NewServer(dbx *sqlx.DB, s3c *storage.Client, run config.RunConfig) *Server {
	return &Server{
		Reports:      sqlStore{dbx},
		Blobs:        s3c,
		Run:          run,
		runExercises: runner.Run,
		lastAttempt:  lastAttempt,
	}
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeJudgeReport, s.handleJudge)
	mux.HandleFunc(TypeRunExercises, s.handleRun)
	return mux
}

func (s *Server) handleJudge(ctx context.Context, t *asynq.Task) error {
	id := string(t.Payload())
	log.Printf("judging report %s", id)

	rep, err := s.Reports.GetReport(ctx, id)
	if err != nil {
		return s.loadFailed(ctx, id, err)
	}
	if !rep.ObjectRef.Valid {
		return s.fail(ctx, id, fmt.Errorf("report %s has no stored object", id))
	}
	raw, err := s.Blobs.GetReport(ctx, rep.ObjectRef.String)
	if err != nil {
		return s.retryOrFail(ctx, id, fmt.Errorf("fetch report: %w", err))
	}

	points := judgeRaw(id, raw)
	if err := s.Reports.MarkJudged(ctx, id, points); err != nil {
		return s.retryOrFail(ctx, id, fmt.Errorf("store points: %w", err))
	}
	total := points.Total()
	log.Printf("report %s judged: %d/%d", id, total.Earned(), total.Possible())
	return nil
}

func (s *Server) handleRun(ctx context.Context, t *asynq.Task) error {
	id := string(t.Payload())
	log.Printf("starting exercise run %s", id)

	rep, err := s.Reports.GetReport(ctx, id)
	if err != nil {
		return s.loadFailed(ctx, id, err)
	}
	var req schemas.RunRequest
	if err := json.Unmarshal(rep.Run, &req); err != nil {
		return s.fail(ctx, id, fmt.Errorf("decode run request: %w", err))
	}

	res, err := s.runExercises(ctx, specFor(req, s.Run))
	if err != nil {
		log.Printf("runner error for %s: %v", id, err)
		return s.fail(ctx, id, err)
	}
	if !res.OK && strings.TrimSpace(res.Stdout) == "" {
		return s.fail(ctx, id, fmt.Errorf("checker exited %d without a report: %s", res.ExitCode, strings.TrimSpace(res.Stderr)))
	}

	ref, err := s.Blobs.PutReport(ctx, []byte(res.Stdout))
	if err != nil {
		return s.retryOrFail(ctx, id, fmt.Errorf("store report: %w", err))
	}
	points := judgeRaw(id, []byte(res.Stdout))
	outcome := schemas.RunOutcome{Request: req, OK: res.OK, ExitCode: res.ExitCode, Stderr: res.Stderr}

	if err := s.Reports.CompleteRun(ctx, id, ref, outcome, points); err != nil {
		return s.retryOrFail(ctx, id, fmt.Errorf("store run: %w", err))
	}
	total := points.Total()
	log.Printf("run %s judged: %d/%d (exit=%d)", id, total.Earned(), total.Possible(), res.ExitCode)
	return nil
}

// fail records cause on the report and reports success to asynq so a
// deterministic failure is not retried.
func (s *Server) fail(ctx context.Context, id string, cause error) error {
	if err := s.Reports.MarkFailed(ctx, id, cause); err != nil {
		return fmt.Errorf("mark %s failed: %w", id, err)
	}
	return nil
}

// retryOrFail hands a transient error back to asynq for another attempt, and
// marks the report failed on the last one.
func (s *Server) retryOrFail(ctx context.Context, id string, cause error) error {
	final := s.lastAttempt
	if final == nil {
		final = lastAttempt
	}
	if !final(ctx) {
		log.Printf("report %s: %v (will retry)", id, cause)
		return cause
	}
	log.Printf("report %s: %v (giving up)", id, cause)
	return s.fail(ctx, id, cause)
}

// loadFailed handles a failed row lookup. A missing row has nothing to mark.
func (s *Server) loadFailed(ctx context.Context, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("report %s not found: %w", id, asynq.SkipRetry)
	}
	return s.retryOrFail(ctx, id, fmt.Errorf("load report: %w", err))
}

// lastAttempt is true outside asynq, so direct calls never leave a row pending.
func lastAttempt(ctx context.Context) bool {
	n, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	max, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return n >= max
}

// judgeRaw scores raw report bytes, logging why a report scored nothing.
func judgeRaw(id string, raw []byte) judge.Points {
	points := judge.Judge(string(raw))
	if len(points) == 0 {
		if _, err := judge.Parse(raw); err != nil {
			log.Printf("report %s: %v", id, err)
		}
	}
	return points
}

func specFor(req schemas.RunRequest, defaults config.RunConfig) runner.Spec {
	spec := runner.Spec{
		Repository: req.Repository,
		Commit:     req.Commit,
		Patch:      req.Patch,
		Image:      req.Image,
		Command:    req.Command,
		Timeout:    defaults.Timeout,
	}
	if spec.Image == "" {
		spec.Image = defaults.Image
	}
	if spec.Command == "" {
		spec.Command = defaults.Command
	}
	return spec
}

func Run(cfg config.Config, db *sqlx.DB, s3c *storage.Client) error {
	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{Concurrency: cfg.WorkerConcurrency})
	return srv.Run(NewServer(db, s3c, cfg.Run).mux())
}
