// Package reservation holds short-lived booking locks on timeslots in Redis.
// Each (timeslot, date, instructor) maps to one hash key with a TTL; a set
// per user indexes the keys that user holds.
package reservation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mind-engage/mindengage-training/internal/apperr"
)

const DefaultTTL = 60 * time.Second

type Slot struct {
	TimeslotID   string `json:"timeslotId"`
	Date         string `json:"date"`
	InstructorID string `json:"instructorId,omitempty"`
}

func (s Slot) key() string {
	k := "slot:reservation:" + s.TimeslotID + ":" + s.Date
	if s.InstructorID != "" {
		k += ":" + s.InstructorID
	}
	return k
}

func (s Slot) validate() error {
	if strings.TrimSpace(s.TimeslotID) == "" {
		return apperr.Invalid("timeslotId is required")
	}
	if _, err := time.Parse("2006-01-02", s.Date); err != nil {
		return apperr.Invalid("date must be YYYY-MM-DD")
	}
	return nil
}

func userKey(userID string) string { return "slot:user:" + userID }

type Reservation struct {
	Slot
	UserID      string `json:"userId"`
	ReservedAt  int64  `json:"reservedAt"`
	ExpiresInMs int64  `json:"expiresInMs"`
}

// Outcome of Reserve. When Reserved is false the slot belongs to ReservedBy.
type Outcome struct {
	Reserved   bool   `json:"reserved"`
	Renewed    bool   `json:"renewed"`
	ReservedBy string `json:"reservedBy"`
}

// reserve returns {1, user} for a new hold, {2, user} for a renewal by the
// same holder and {0, holder} when someone else holds the slot.
var reserveScript = redis.NewScript(`
local holder = redis.call('HGET', KEYS[1], 'userId')
if holder and holder ~= ARGV[1] then
  return {0, holder}
end
if holder then
  redis.call('PEXPIRE', KEYS[1], ARGV[6])
  redis.call('SADD', KEYS[2], KEYS[1])
  return {2, holder}
end
redis.call('HSET', KEYS[1], 'userId', ARGV[1], 'reservedAt', ARGV[2], 'timeslotId', ARGV[3], 'date', ARGV[4], 'instructorId', ARGV[5])
redis.call('PEXPIRE', KEYS[1], ARGV[6])
redis.call('SADD', KEYS[2], KEYS[1])
return {1, ARGV[1]}
`)

// release deletes the key only for its holder. A key that already expired
// is dropped from the caller's index.
var releaseScript = redis.NewScript(`
local holder = redis.call('HGET', KEYS[1], 'userId')
if holder == ARGV[1] then
  redis.call('DEL', KEYS[1])
  redis.call('SREM', KEYS[2], KEYS[1])
  return 1
end
if not holder then
  redis.call('SREM', KEYS[2], KEYS[1])
end
return 0
`)

type Lock struct {
	rdb redis.Cmdable
	ttl time.Duration
	now func() time.Time
}

func NewLock(rdb redis.Cmdable, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Lock{rdb: rdb, ttl: ttl, now: time.Now}
}

// Reserve takes the slot for userID or renews an existing hold. A slot held
// by someone else is reported in the Outcome, not as an error.
func (l *Lock) Reserve(ctx context.Context, slot Slot, userID string) (Outcome, error) {
	if err := slot.validate(); err != nil {
		return Outcome{}, err
	}
	if userID == "" {
		return Outcome{}, apperr.Invalid("userId is required")
	}
	res, err := reserveScript.Run(ctx, l.rdb, []string{slot.key(), userKey(userID)},
		userID, l.now().Unix(), slot.TimeslotID, slot.Date, slot.InstructorID, l.ttl.Milliseconds()).Slice()
	if err != nil {
		return Outcome{}, fmt.Errorf("reserve slot: %w", err)
	}
	if len(res) != 2 {
		return Outcome{}, fmt.Errorf("reserve slot: unexpected reply %v", res)
	}
	code, _ := res[0].(int64)
	holder, _ := res[1].(string)
	return Outcome{Reserved: code != 0, Renewed: code == 2, ReservedBy: holder}, nil
}

// Release frees the slot if userID holds it and reports whether it did.
func (l *Lock) Release(ctx context.Context, slot Slot, userID string) (bool, error) {
	if err := slot.validate(); err != nil {
		return false, err
	}
	n, err := releaseScript.Run(ctx, l.rdb, []string{slot.key(), userKey(userID)}, userID).Int()
	if err != nil {
		return false, fmt.Errorf("release slot: %w", err)
	}
	return n == 1, nil
}

// Status returns the current hold on slot, if any.
func (l *Lock) Status(ctx context.Context, slot Slot) (Reservation, bool, error) {
	if err := slot.validate(); err != nil {
		return Reservation{}, false, err
	}
	return l.load(ctx, slot.key())
}

func (l *Lock) load(ctx context.Context, key string) (Reservation, bool, error) {
	m, err := l.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return Reservation{}, false, fmt.Errorf("load reservation: %w", err)
	}
	if m["userId"] == "" {
		return Reservation{}, false, nil
	}
	r := Reservation{
		Slot:   Slot{TimeslotID: m["timeslotId"], Date: m["date"], InstructorID: m["instructorId"]},
		UserID: m["userId"],
	}
	r.ReservedAt, _ = strconv.ParseInt(m["reservedAt"], 10, 64)
	if ttl, err := l.rdb.PTTL(ctx, key).Result(); err == nil && ttl > 0 {
		r.ExpiresInMs = ttl.Milliseconds()
	}
	return r, true, nil
}

// Mine lists the slots userID currently holds. Index entries whose key has
// expired or changed hands are pruned on the way.
func (l *Lock) Mine(ctx context.Context, userID string) ([]Reservation, error) {
	keys, err := l.rdb.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	out := []Reservation{}
	var stale []any
	for _, k := range keys {
		r, ok, err := l.load(ctx, k)
		if err != nil {
			return nil, err
		}
		if !ok || r.UserID != userID {
			stale = append(stale, k)
			continue
		}
		out = append(out, r)
	}
	if len(stale) > 0 {
		if err := l.rdb.SRem(ctx, userKey(userID), stale...).Err(); err != nil {
			return nil, fmt.Errorf("prune reservations: %w", err)
		}
	}
	return out, nil
}

// ReleaseAll frees every slot userID holds and returns how many were freed.
func (l *Lock) ReleaseAll(ctx context.Context, userID string) (int, error) {
	keys, err := l.rdb.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("list reservations: %w", err)
	}
	freed := 0
	for _, k := range keys {
		n, err := releaseScript.Run(ctx, l.rdb, []string{k, userKey(userID)}, userID).Int()
		if err != nil {
			return freed, fmt.Errorf("release slot: %w", err)
		}
		freed += n
	}
	// Keys held by someone else now are no longer ours to track.
	if err := l.rdb.Del(ctx, userKey(userID)).Err(); err != nil {
		return freed, fmt.Errorf("clear index: %w", err)
	}
	return freed, nil
}
