package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakePool struct {
	qrErr   error
	count   int
	start   time.Time
	lastSQL string
	lastArg []any
}

func (f *fakePool) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL = sql
	f.lastArg = args
	if !strings.Contains(sql, "RETURNING req_count, window_start") {
		return fakeRow{scan: func(...any) error { return errors.New("unexpected query") }}
	}
	return fakeRow{scan: func(dest ...any) error {
		if f.qrErr != nil {
			return f.qrErr
		}
		*(dest[0].(*int)) = f.count
		*(dest[1].(*time.Time)) = f.start
		return nil
	}}
}

func TestPG_Allow_WithinBudget(t *testing.T) {
	fp := &fakePool{count: 3, start: time.Now()}
	l := NewPG(fp, time.Minute, 5)

	ok, dur, err := l.Allow(context.Background(), 42)
	if err != nil || !ok || dur != 0 {
		t.Fatalf("Allow: ok=%v dur=%v err=%v", ok, dur, err)
	}
	if fp.lastArg[0] != int64(42) || fp.lastArg[1] != time.Minute {
		t.Fatalf("unexpected args: %v", fp.lastArg)
	}
}

func TestPG_Allow_OverBudgetReturnsRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 30, 0, time.UTC)
	fp := &fakePool{count: 6, start: now.Add(-30 * time.Second)}
	l := NewPG(fp, time.Minute, 5)
	l.now = func() time.Time { return now }

	ok, dur, err := l.Allow(context.Background(), 1)
	if err != nil || ok || dur != 30*time.Second {
		t.Fatalf("Allow over budget: ok=%v dur=%v err=%v", ok, dur, err)
	}
}

func TestPG_Allow_DBError_Propagates(t *testing.T) {
	fp := &fakePool{qrErr: errors.New("db boom")}
	l := NewPG(fp, time.Minute, 5)

	ok, _, err := l.Allow(context.Background(), 1)
	if err == nil || ok {
		t.Fatalf("want error propagate, got ok=%v err=%v", ok, err)
	}
}
