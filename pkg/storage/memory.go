package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps the latest snapshot per series in a map. It is safe
// for concurrent use.
//
// With a TTL configured, a background goroutine removes snapshots whose
// GeneratedAt is older than the TTL. For multi-instance deployments that
// need shared results, use RedisStore instead.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot

	ttl           time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewMemoryStore creates a store without expiration; snapshots live until
// replaced.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Snapshot)}
}

// NewMemoryStoreWithTTL creates a store whose snapshots expire after ttl.
// The cleanup goroutine runs every cleanupInterval (default one minute)
// and must be stopped with Stop to avoid a leak.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := &MemoryStore{
		snapshots:     make(map[string]Snapshot),
		ttl:           ttl,
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
	}

	go store.runCleanup()

	return store
}

// Stop shuts down the cleanup goroutine and blocks until it exits.
// Safe to call multiple times, and a no-op on stores without TTL.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if s.stopped {
		return
	}

	close(s.stopCleanup)
	<-s.cleanupDone
	s.cleanupTicker.Stop()
	s.stopped = true
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl == 0 {
		return
	}

	now := time.Now()
	for name, snapshot := range s.snapshots {
		if now.Sub(snapshot.GeneratedAt) > s.ttl {
			delete(s.snapshots, name)
		}
	}
}

// Put stores a snapshot under its SeriesName, replacing any previous run.
func (s *MemoryStore) Put(ctx context.Context, snapshot Snapshot) error {
	if snapshot.SeriesName == "" {
		return fmt.Errorf("snapshot series name cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.SeriesName] = snapshot
	return nil
}

// GetLatest returns the stored snapshot for a series, with found=false
// when none exists.
func (s *MemoryStore) GetLatest(ctx context.Context, seriesName string) (Snapshot, bool, error) {
	select {
	case <-ctx.Done():
		return Snapshot{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, found := s.snapshots[seriesName]
	return snapshot, found, nil
}

// Len reports how many snapshots are stored. Mostly useful in tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Delete removes the snapshot for a series, reporting whether one existed.
func (s *MemoryStore) Delete(seriesName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.snapshots[seriesName]
	delete(s.snapshots, seriesName)
	return existed
}
