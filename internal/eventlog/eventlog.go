// Package eventlog is an append-only audit trail of exam activity.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-training/internal/db"
)

const (
	TypeExamSubmitted = "ExamSubmitted"
	TypeExamRetried   = "ExamRetried"
	TypeResultGraded  = "ResultGraded"
)

type Event struct {
	Seq       int64           `json:"seq"`
	SiteID    string          `json:"siteId"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"createdAt"`
}

// Key groups the events of one learner on one exam.
func Key(learnerID, examID string) string {
	return "learner:" + learnerID + ":exam:" + examID
}

type Repo struct {
	db     *sql.DB
	siteID string
	now    func() time.Time
}

func NewRepo(dbh *sql.DB, siteID string) *Repo {
	if siteID == "" {
		siteID = "local"
	}
	return &Repo{db: dbh, siteID: siteID, now: time.Now}
}

// Append writes through q so callers can log inside their own transaction.
// A nil q uses the repo's database.
func (r *Repo) Append(ctx context.Context, q db.Queryer, typ, key string, data any) error {
	if q == nil {
		q = r.db
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		r.siteID, typ, key, string(raw), r.now().Unix())
	return err
}

// List returns events for key, oldest first.
func (r *Repo) List(ctx context.Context, key string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log WHERE key=$1 ORDER BY seq`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Event{}
	for rows.Next() {
		var e Event
		var data string
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		out = append(out, e)
	}
	return out, rows.Err()
}
