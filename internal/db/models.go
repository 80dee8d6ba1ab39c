package db

import (
	"database/sql"
	"time"
)

const (
	StatusPending = "pending"
	StatusJudged  = "judged"
	StatusFailed  = "failed"
)

const (
	SourceUpload = "upload"
	SourceRun    = "run"
)

type Report struct {
	ID        string         `db:"id"`
	CreatedAt time.Time      `db:"created_at"`
	Source    string         `db:"source"`
	ObjectRef sql.NullString `db:"object_ref"`
	Status    string         `db:"status"`
	Points    []byte         `db:"points"`
	Earned    int            `db:"earned"`
	Possible  int            `db:"possible"`
	Error     sql.NullString `db:"error"`
	Run       []byte         `db:"run"`
	JudgedAt  sql.NullTime   `db:"judged_at"`
}
