package worker

import (
	"context"

	"github.com/jmoiron/sqlx"

	"classroom-judge/internal/db"
	"classroom-judge/internal/judge"
	"classroom-judge/internal/schemas"
)

// sqlStore backs the worker with the reports table.
type sqlStore struct {
	db *sqlx.DB
}

func (s sqlStore) GetReport(ctx context.Context, id string) (*db.Report, error) {
	return db.GetReport(ctx, s.db, id)
}

func (s sqlStore) MarkJudged(ctx context.Context, id string, points judge.Points) error {
	return db.MarkJudged(ctx, s.db, id, points)
}

func (s sqlStore) MarkFailed(ctx context.Context, id string, cause error) error {
	return db.MarkFailed(ctx, s.db, id, cause)
}

func (s sqlStore) CompleteRun(ctx context.Context, id, ref string, outcome schemas.RunOutcome, points judge.Points) error {
	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := db.SetObjectRef(ctx, tx, id, ref); err != nil {
			return err
		}
		if err := db.SetRun(ctx, tx, id, outcome); err != nil {
			return err
		}
		return db.MarkJudged(ctx, tx, id, points)
	})
}
