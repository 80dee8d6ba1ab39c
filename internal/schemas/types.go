package schemas

import (
	"time"

	"classroom-judge/internal/judge"
)

// RunRequest asks the worker to check out a student repository and run the
// exercise checker in a container.
type RunRequest struct {
	Repository string `json:"repository"`
	Commit     string `json:"commit,omitempty"`
	Patch      string `json:"patch,omitempty"`
	Image      string `json:"image,omitempty"`
	Command    string `json:"command,omitempty"`
}

type SubmitResp struct {
	ReportID string `json:"report_id"`
	Status   string `json:"status"`
}

type ReportOut struct {
	ReportID  string         `json:"report_id"`
	CreatedAt time.Time      `json:"created_at"`
	Source    string         `json:"source"`
	Status    string         `json:"status"`
	Points    judge.Points   `json:"points"`
	Earned    int            `json:"earned"`
	Possible  int            `json:"possible"`
	Passed    []string       `json:"passed,omitempty"`
	Failed    []string       `json:"failed,omitempty"`
	Error     string         `json:"error,omitempty"`
	Run       map[string]any `json:"run,omitempty"`
	JudgedAt  *time.Time     `json:"judged_at,omitempty"`
}

// RunOutcome is what the worker records about a container run next to the
// judged points.
type RunOutcome struct {
	Request  RunRequest `json:"request"`
	OK       bool       `json:"ok"`
	ExitCode int        `json:"exit_code"`
	Stderr   string     `json:"stderr,omitempty"`
}
