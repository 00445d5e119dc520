package eventlog

import (
	"context"
	"database/sql"
	"testing"

	"github.com/mind-engage/mindengage-training/internal/db"
)

func TestAppendAndList(t *testing.T) {
	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer dbh.Close()
	r := NewRepo(dbh, "")

	key := Key("l1", "e1")
	if err := r.Append(ctx, nil, TypeExamSubmitted, key, map[string]any{"score": "100.00"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	err = db.WithTx(ctx, dbh, func(tx *sql.Tx) error {
		return r.Append(ctx, tx, TypeExamRetried, key, nil)
	})
	if err != nil {
		t.Fatalf("Append in tx: %v", err)
	}
	if err := r.Append(ctx, nil, TypeExamSubmitted, Key("l2", "e1"), nil); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := r.List(ctx, key)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].Type != TypeExamSubmitted || got[1].Type != TypeExamRetried {
		t.Fatalf("events = %+v", got)
	}
	if string(got[0].Data) != `{"score":"100.00"}` || got[0].SiteID != "local" {
		t.Errorf("first event = %+v", got[0])
	}
}
