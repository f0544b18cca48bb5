package intent

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisStore(t *testing.T) (*RedisProfileStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisProfileStore(context.Background(), RedisProfileStoreConfig{
		RedisURL: "redis://" + mr.Addr(),
		TTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisProfileStoreRoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	saved := &UserProfile{
		UserID:            "u1",
		MBTIType:          "ENFP",
		PreferredCuisines: []string{"thai", "japanese"},
		History: []HistoryEntry{
			{Request: "find lunch", Confidence: 0.6, Success: true, Timestamp: time.Now().UTC()},
		},
	}
	if err := store.Save(ctx, saved); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected profile, got nil")
	}
	if got.MBTIType != "ENFP" || len(got.PreferredCuisines) != 2 || len(got.History) != 1 {
		t.Errorf("round trip lost data: %+v", got)
	}
}

func TestRedisProfileStoreMissingUser(t *testing.T) {
	store, _ := newTestRedisStore(t)

	got, err := store.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("expected nil error for missing user, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil profile for missing user, got %+v", got)
	}
}

func TestRedisProfileStoreCorruptEntryTreatedAsAbsent(t *testing.T) {
	store, mr := newTestRedisStore(t)

	mr.Set("tripmind:profile:u-bad", "{not json")

	got, err := store.Get(context.Background(), "u-bad")
	if err != nil {
		t.Fatalf("corrupt entry should not error, got %v", err)
	}
	if got != nil {
		t.Errorf("corrupt entry should read as absent, got %+v", got)
	}
}

func TestRedisProfileStoreDelete(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	store.Save(ctx, &UserProfile{UserID: "u-del"})
	if err := store.Delete(ctx, "u-del"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if got, _ := store.Get(ctx, "u-del"); got != nil {
		t.Error("expected profile gone after delete")
	}
}

func TestRedisProfileStoreTTL(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	store.Save(ctx, &UserProfile{UserID: "u-ttl"})
	if ttl := mr.TTL("tripmind:profile:u-ttl"); ttl != time.Hour {
		t.Errorf("expected TTL 1h, got %s", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if got, _ := store.Get(ctx, "u-ttl"); got != nil {
		t.Error("expected profile expired after TTL")
	}
}
