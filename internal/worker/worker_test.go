package worker

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"

	"classroom-judge/internal/config"
	"classroom-judge/internal/judge"
	"classroom-judge/internal/schemas"
)

func TestTasks(t *testing.T) {
	jt := NewJudgeTask("r1")
	assert.Equal(t, TypeJudgeReport, jt.Type())
	assert.Equal(t, []byte("r1"), jt.Payload())

	rt := NewRunTask("r2")
	assert.Equal(t, TypeRunExercises, rt.Type())
	assert.Equal(t, []byte("r2"), rt.Payload())
}

func TestSpecFor(t *testing.T) {
	defaults := config.RunConfig{Image: "rust:1.79", Command: "./report.sh --json", Timeout: time.Minute}

	spec := specFor(schemas.RunRequest{Repository: "https://example.com/student.git", Commit: "abc123"}, defaults)
	assert.Equal(t, "https://example.com/student.git", spec.Repository)
	assert.Equal(t, "abc123", spec.Commit)
	assert.Equal(t, "rust:1.79", spec.Image)
	assert.Equal(t, "./report.sh --json", spec.Command)
	assert.Equal(t, time.Minute, spec.Timeout)

	spec = specFor(schemas.RunRequest{Repository: "r", Image: "rust:1.80", Command: "make check"}, defaults)
	assert.Equal(t, "rust:1.80", spec.Image)
	assert.Equal(t, "make check", spec.Command)
}

func TestJudgeRaw(t *testing.T) {
	got := judgeRaw("r1", []byte(`{"exercises": [{"name": "intro1", "result": true}, {"name": "intro2", "result": false}]}`))
	assert.Equal(t, judge.Points{"intro1": judge.Pass, "intro2": judge.Fail}, got)

	got = judgeRaw("r1", []byte("thread 'main' panicked"))
	assert.Equal(t, judge.Points{}, got)
}

func TestMux_RegistersHandlers(t *testing.T) {
	s := &Server{}
	mux := s.mux()
	for _, typ := range []string{TypeJudgeReport, TypeRunExercises} {
		_, pattern := mux.Handler(asynq.NewTask(typ, []byte("x")))
		assert.Equal(t, typ, pattern)
	}
}
