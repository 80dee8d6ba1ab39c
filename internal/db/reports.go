package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"classroom-judge/internal/judge"
)

func InsertReport(ctx context.Context, q sqlx.ExtContext, id, source string, objectRef string, run any) error {
	var runJSON []byte
	if run != nil {
		b, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}
		runJSON = b
	}
	var ref *string
	if objectRef != "" {
		ref = &objectRef
	}
	_, err := q.ExecContext(ctx,
		`insert into reports(id, source, object_ref, status, run) values($1,$2,$3,$4,$5)`,
		id, source, ref, StatusPending, runJSON)
	return err
}

func GetReport(ctx context.Context, q sqlx.QueryerContext, id string) (*Report, error) {
	var r Report
	if err := sqlx.GetContext(ctx, q, &r, `select * from reports where id=$1`, id); err != nil {
		return nil, err
	}
	return &r, nil
}

func SetObjectRef(ctx context.Context, q sqlx.ExecerContext, id, ref string) error {
	_, err := q.ExecContext(ctx, `update reports set object_ref=$2 where id=$1`, id, ref)
	return err
}

// MarkJudged stores the point mapping and its totals.
func MarkJudged(ctx context.Context, q sqlx.ExecerContext, id string, points judge.Points) error {
	b, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("marshal points: %w", err)
	}
	total := points.Total()
	_, err = q.ExecContext(ctx,
		`update reports set status=$2, points=$3, earned=$4, possible=$5, error=null, judged_at=now() where id=$1`,
		id, StatusJudged, b, total.Earned(), total.Possible())
	return err
}

func MarkFailed(ctx context.Context, q sqlx.ExecerContext, id string, cause error) error {
	_, err := q.ExecContext(ctx,
		`update reports set status=$2, error=$3 where id=$1`,
		id, StatusFailed, cause.Error())
	return err
}

// DecodePoints returns the stored mapping, or nil if the report is not judged.
func (r *Report) DecodePoints() (judge.Points, error) {
	if len(r.Points) == 0 {
		return nil, nil
	}
	var p judge.Points
	if err := json.Unmarshal(r.Points, &p); err != nil {
		return nil, fmt.Errorf("decode points for %s: %w", r.ID, err)
	}
	return p, nil
}

// SetRun replaces the run column with v, typically the run request plus its outcome.
func SetRun(ctx context.Context, q sqlx.ExecerContext, id string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	_, err = q.ExecContext(ctx, `update reports set run=$2 where id=$1`, id, b)
	return err
}
