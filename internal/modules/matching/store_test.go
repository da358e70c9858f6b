package matching

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"colibri/internal/types"
)

func TestStore_RecordDispatch(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := NewStore(rdb)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.RecordDispatch(ctx, "p@x.mx", []types.ID{"c1", "c2"}, at); err != nil {
		t.Fatalf("RecordDispatch: %v", err)
	}
	ids, err := store.Notified(ctx, "p@x.mx")
	if err != nil || len(ids) != 2 {
		t.Fatalf("Notified = %v, %v", ids, err)
	}
	got, ok, err := store.GetDispatchedAt(ctx, "p@x.mx")
	if err != nil || !ok || !got.Equal(at) {
		t.Errorf("GetDispatchedAt = %v, %v, %v", got, ok, err)
	}

	// A newer request replaces the set.
	if err := store.RecordDispatch(ctx, "p@x.mx", nil, at.Add(time.Minute)); err != nil {
		t.Fatalf("RecordDispatch: %v", err)
	}
	ids, _ = store.Notified(ctx, "p@x.mx")
	if len(ids) != 0 {
		t.Errorf("expected empty notified set, got %v", ids)
	}

	mr.FastForward(dispatchTTL + time.Second)
	if _, ok, _ := store.GetDispatchedAt(ctx, "p@x.mx"); ok {
		t.Error("dispatch record should expire")
	}
}
