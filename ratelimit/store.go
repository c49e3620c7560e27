package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmcleod/quill/storage"
)

const (
	storeNamespace  = "__ratelimit"
	storeRecordType = "LOGIN"
	sweepInterval   = 5 * time.Minute
)

type window struct {
	Attempts []time.Time `json:"attempts"`
}

// Store is a Limiter whose windows live in a storage.Repository. Each
// attempt is a read-modify-write inside one repository batch, so instances
// sharing a database (e.g. Postgres) share one limit per key.
type Store struct {
	repo     storage.Repository
	window   time.Duration
	max      int
	now      func() time.Time
	stopOnce sync.Once
	stopCh   chan struct{}
}

var _ Limiter = (*Store)(nil)

// NewStore returns a repository-backed limiter and starts its cleanup loop.
// Call Close to stop it.
func NewStore(repo storage.Repository, windowSize time.Duration, max int, opts ...Option) *Store {
	cfg := newConfig(opts)
	s := &Store{
		repo:   repo,
		window: windowSize,
		max:    max,
		now:    cfg.now,
		stopCh: make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Close stops the background cleanup goroutine.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Store) Record(ctx context.Context, key string) (Result, error) {
	var res Result
	err := s.repo.Batch(ctx, storeNamespace, func(tx storage.BatchTx) error {
		w, version, err := loadWindow(tx, key)
		if err != nil {
			return err
		}
		w.Attempts, res = record(w.Attempts, s.now(), s.window, s.max)
		rec, err := storage.Encode(w, version+1)
		if err != nil {
			return err
		}
		return tx.Put(storeRecordType, key, rec)
	})
	if err != nil {
		return Result{}, fmt.Errorf("recording attempt: %w", err)
	}
	return res, nil
}

func (s *Store) Reset(ctx context.Context, key string) error {
	err := s.repo.Delete(ctx, storeNamespace, storeRecordType, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// Sweep deletes windows with no attempts left and returns how many were removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	removed := 0
	err := s.repo.Batch(ctx, storeNamespace, func(tx storage.BatchTx) error {
		removed = 0
		keys, err := tx.List(storeRecordType)
		if err != nil {
			return err
		}
		now := s.now()
		for _, key := range keys {
			w, _, err := loadWindow(tx, key)
			if err != nil {
				return err
			}
			if len(prune(w.Attempts, now, s.window)) > 0 {
				continue
			}
			if err := tx.Delete(storeRecordType, key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.Sweep(context.Background()); err != nil {
				slog.Warn("rate limit sweep failed", "error", err)
			}
		}
	}
}

func loadWindow(tx storage.BatchTx, key string) (window, uint64, error) {
	var w window
	rec, err := tx.Get(storeRecordType, key)
	if errors.Is(err, storage.ErrNotFound) {
		return w, 0, nil
	}
	if err != nil {
		return w, 0, err
	}
	if err := storage.Decode(rec, &w); err != nil {
		return w, 0, err
	}
	return w, rec.Version, nil
}
