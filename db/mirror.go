package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/onnwee/flvwatch/crawl"
)

// Mirror writes finished runs into Postgres. It implements crawl.Recorder.
type Mirror struct {
	DB *sql.DB
}

// RecordRun stores the run row and its observations in one transaction.
// Re-recording the same run id is a no-op.
func (m *Mirror) RecordRun(ctx context.Context, sum crawl.RunSummary) error {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `INSERT INTO crawl_runs (run_id, started_at, finished_at, sub_areas, rooms, inconclusive, records)
		VALUES ($1,$2,$3,$4,$5,$6,$7) ON CONFLICT (run_id) DO NOTHING`,
		sum.RunID, sum.StartedAt, sum.FinishedAt, sum.SubAreas, sum.Rooms, sum.Inconclusive, sum.Records)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	for _, o := range sum.Observations {
		if _, err := tx.ExecContext(ctx, `INSERT INTO flv_observations (run_id, area_id, area_name, sub_area_id, sub_area_name, room_id, flv_available, observed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (run_id, sub_area_id) DO NOTHING`,
			sum.RunID, o.AreaID, o.AreaName, o.SubAreaID, o.SubAreaName, o.RoomID, o.FlvAvailable, sum.FinishedAt); err != nil {
			return fmt.Errorf("insert observation %s: %w", o.SubAreaID, err)
		}
	}
	return tx.Commit()
}

// RunRow is a mirrored run as read back for the status API.
type RunRow struct {
	RunID        string    `json:"runId"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	SubAreas     int       `json:"subAreas"`
	Rooms        int       `json:"rooms"`
	Inconclusive int       `json:"inconclusive"`
	Records      int       `json:"records"`
	Available    int       `json:"available"`
	Observed     int       `json:"observed"`
}

// RecentRuns returns up to limit mirrored runs, newest first.
func (m *Mirror) RecentRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := m.DB.QueryContext(ctx, `SELECT r.run_id, r.started_at, r.finished_at, r.sub_areas, r.rooms, r.inconclusive, r.records,
			COALESCE(SUM(CASE WHEN o.flv_available THEN 1 ELSE 0 END),0), COUNT(o.id)
		FROM crawl_runs r LEFT JOIN flv_observations o ON o.run_id = r.run_id
		GROUP BY r.id ORDER BY r.finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RunRow{}
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.SubAreas, &r.Rooms, &r.Inconclusive, &r.Records, &r.Available, &r.Observed); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
