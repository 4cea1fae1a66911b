//go:build integration

package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

// setupRedisContainer starts a Redis container for testing.
func setupRedisContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	redisContainer, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(redisContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	return strings.TrimPrefix(endpoint, "redis://")
}

func TestRedisStore_Connect(t *testing.T) {
	addr := setupRedisContainer(t)

	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestRedisStore_InvalidConfig(t *testing.T) {
	if _, err := NewRedisStore("", "", 0, time.Minute); err == nil {
		t.Error("expected error for empty address")
	}
	if _, err := NewRedisStore("localhost:6379", "", -1, time.Minute); err == nil {
		t.Error("expected error for negative db number")
	}
}

func TestRedisStore_PutGetRoundTrip(t *testing.T) {
	addr := setupRedisContainer(t)
	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	want := sampleSnapshot("usd_eur")
	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, found, err := store.GetLatest(ctx, "usd_eur")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatal("snapshot not found")
	}
	if got.SeriesName != want.SeriesName {
		t.Errorf("series name = %q", got.SeriesName)
	}
	if got.BestParams.SARIMAOrder == nil || *got.BestParams.SARIMAOrder != *want.BestParams.SARIMAOrder {
		t.Errorf("sarima order lost: %+v", got.BestParams)
	}
	if got.BestParams.Forest == nil || got.BestParams.Forest.Estimators != 100 {
		t.Errorf("forest params lost: %+v", got.BestParams)
	}
	if got.Report == nil || len(got.Report.Entries) != len(want.Report.Entries) {
		t.Errorf("report lost: %+v", got.Report)
	}
	if len(got.Trials) != len(want.Trials) || got.Trials[0].Score != want.Trials[0].Score {
		t.Errorf("trials lost: %+v", got.Trials)
	}
}

func TestRedisStore_InvalidSeriesName(t *testing.T) {
	addr := setupRedisContainer(t)
	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Put(ctx, Snapshot{}); err == nil {
		t.Error("expected error for empty series name")
	}

	bad := sampleSnapshot("usd/eur")
	if err := store.Put(ctx, bad); err == nil {
		t.Error("expected error for series name with slash")
	}
	if _, _, err := store.GetLatest(ctx, "usd eur"); err == nil {
		t.Error("expected error for series name with space")
	}
}

func TestRedisStore_GetLatestNotFound(t *testing.T) {
	addr := setupRedisContainer(t)
	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	_, found, err := store.GetLatest(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Error("found a snapshot that was never stored")
	}
}

func TestRedisStore_TTLExpiration(t *testing.T) {
	addr := setupRedisContainer(t)
	store, err := NewRedisStore(addr, "", 0, time.Second)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Put(ctx, sampleSnapshot("usd_eur")); err != nil {
		t.Fatalf("put: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		_, found, err := store.GetLatest(ctx, "usd_eur")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !found {
			return
		}
		select {
		case <-deadline:
			t.Fatal("snapshot never expired")
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func TestRedisStore_ConcurrentPuts(t *testing.T) {
	addr := setupRedisContainer(t)
	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap := sampleSnapshot(fmt.Sprintf("series_%d", i%3))
			if err := store.Put(ctx, snap); err != nil {
				t.Errorf("put: %v", err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		_, found, err := store.GetLatest(ctx, fmt.Sprintf("series_%d", i))
		if err != nil || !found {
			t.Errorf("series_%d: found=%v err=%v", i, found, err)
		}
	}
}

func TestRedisStore_CloseIdempotent(t *testing.T) {
	addr := setupRedisContainer(t)
	store, err := NewRedisStore(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("first close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
