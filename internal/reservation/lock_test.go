package reservation

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mind-engage/mindengage-training/internal/apperr"
)

func newTestLock(t *testing.T) (*Lock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLock(rdb, 60*time.Second), mr
}

var slotT = Slot{TimeslotID: "ts-9", Date: "2025-03-14", InstructorID: "ins-1"}

func TestReserve_SecondUserRejected(t *testing.T) {
	l, _ := newTestLock(t)
	ctx := context.Background()

	first, err := l.Reserve(ctx, slotT, "userA")
	if err != nil {
		t.Fatalf("Reserve A: %v", err)
	}
	if !first.Reserved || first.Renewed {
		t.Fatalf("first = %+v", first)
	}
	second, err := l.Reserve(ctx, slotT, "userB")
	if err != nil {
		t.Fatalf("Reserve B: %v", err)
	}
	if second.Reserved || second.ReservedBy != "userA" {
		t.Fatalf("second = %+v, want rejected with reservedBy userA", second)
	}
}

func TestReserve_SameHolderRenews(t *testing.T) {
	l, mr := newTestLock(t)
	ctx := context.Background()
	if _, err := l.Reserve(ctx, slotT, "userA"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	mr.FastForward(50 * time.Second)
	again, err := l.Reserve(ctx, slotT, "userA")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !again.Reserved || !again.Renewed {
		t.Fatalf("renew = %+v", again)
	}
	mr.FastForward(50 * time.Second)
	if _, held, _ := l.Status(ctx, slotT); !held {
		t.Fatal("renewed hold expired early")
	}
	mr.FastForward(11 * time.Second)
	if _, held, _ := l.Status(ctx, slotT); held {
		t.Fatal("hold should expire after the TTL")
	}
	got, err := l.Reserve(ctx, slotT, "userB")
	if err != nil || !got.Reserved {
		t.Fatalf("after expiry Reserve B = %+v, %v", got, err)
	}
}

func TestRelease_OnlyByHolder(t *testing.T) {
	l, _ := newTestLock(t)
	ctx := context.Background()
	if _, err := l.Reserve(ctx, slotT, "userA"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if ok, err := l.Release(ctx, slotT, "userB"); err != nil || ok {
		t.Fatalf("Release by B = %v, %v", ok, err)
	}
	if r, held, _ := l.Status(ctx, slotT); !held || r.UserID != "userA" || r.ExpiresInMs <= 0 {
		t.Fatalf("status after foreign release = %+v, %v", r, held)
	}
	if ok, err := l.Release(ctx, slotT, "userA"); err != nil || !ok {
		t.Fatalf("Release by A = %v, %v", ok, err)
	}
	if _, held, _ := l.Status(ctx, slotT); held {
		t.Fatal("slot still held")
	}
}

func TestMine_UsesIndexAndPrunes(t *testing.T) {
	l, mr := newTestLock(t)
	ctx := context.Background()
	other := Slot{TimeslotID: "ts-10", Date: "2025-03-14"}
	for _, s := range []Slot{slotT, other} {
		if _, err := l.Reserve(ctx, s, "userA"); err != nil {
			t.Fatalf("Reserve: %v", err)
		}
	}
	if _, err := l.Reserve(ctx, Slot{TimeslotID: "ts-11", Date: "2025-03-15"}, "userB"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	mine, err := l.Mine(ctx, "userA")
	if err != nil || len(mine) != 2 {
		t.Fatalf("Mine = %+v, %v", mine, err)
	}

	mr.Del(other.key())
	mine, err = l.Mine(ctx, "userA")
	if err != nil || len(mine) != 1 || mine[0].TimeslotID != "ts-9" {
		t.Fatalf("Mine after expiry = %+v, %v", mine, err)
	}
	if members, _ := mr.Members(userKey("userA")); len(members) != 1 {
		t.Fatalf("index not pruned: %v", members)
	}

	n, err := l.ReleaseAll(ctx, "userA")
	if err != nil || n != 1 {
		t.Fatalf("ReleaseAll = %d, %v", n, err)
	}
	if _, held, _ := l.Status(ctx, Slot{TimeslotID: "ts-11", Date: "2025-03-15"}); !held {
		t.Fatal("ReleaseAll freed another user's slot")
	}
}

func TestReserve_Validation(t *testing.T) {
	l, _ := newTestLock(t)
	ctx := context.Background()
	for _, s := range []Slot{{Date: "2025-03-14"}, {TimeslotID: "ts", Date: "14/03/2025"}} {
		_, err := l.Reserve(ctx, s, "userA")
		if apperr.StatusOf(err, 0) != http.StatusBadRequest {
			t.Errorf("Reserve(%+v) err = %v, want 400", s, err)
		}
	}
	if _, err := l.Reserve(ctx, slotT, ""); apperr.StatusOf(err, 0) != http.StatusBadRequest {
		t.Errorf("empty user err = %v", err)
	}
}
