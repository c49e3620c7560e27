// Package content stores the blog's posts, projects, categories and users
// on top of a storage.Repository and enforces their invariants.
//
// Multi-record invariants (unique usernames, the last active admin, a
// category's projects) are checked inside a single repository batch, so
// they hold under concurrent requests.
package content

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/quill/storage"
)

const (
	namespace = "content"

	postType     = "POST"
	projectType  = "PROJECT"
	categoryType = "CATEGORY"
	userType     = "USER"

	// DefaultBcryptCost is the bcrypt work factor for stored passwords.
	DefaultBcryptCost = 12
)

// Store is the content service. It is safe for concurrent use.
type Store struct {
	repo       storage.Repository
	now        func() time.Time
	bcryptCost int

	dummyOnce sync.Once
	dummyHash []byte
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBcryptCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Store) { s.bcryptCost = cost }
}

// NewStore returns a Store backed by repo.
func NewStore(repo storage.Repository, opts ...Option) *Store {
	s := &Store{
		repo:       repo,
		now:        func() time.Time { return time.Now().UTC() },
		bcryptCost: DefaultBcryptCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// reader is the read side shared by storage.Repository and storage.BatchTx.
type reader interface {
	Get(recordType, recordID string) (*storage.Record, error)
	List(recordType string) ([]string, error)
}

type repoReader struct {
	ctx  context.Context
	repo storage.Repository
}

func (r repoReader) Get(recordType, recordID string) (*storage.Record, error) {
	return r.repo.Get(r.ctx, namespace, recordType, recordID)
}

func (r repoReader) List(recordType string) ([]string, error) {
	return r.repo.List(r.ctx, namespace, recordType)
}

func (s *Store) reader(ctx context.Context) reader {
	return repoReader{ctx: ctx, repo: s.repo}
}

type versioned interface {
	setVersion(uint64)
}

func load[T any, PT interface {
	*T
	versioned
}](r reader, recordType, id string) (T, error) {
	var v T
	rec, err := r.Get(recordType, id)
	if errors.Is(err, storage.ErrNotFound) {
		return v, fmt.Errorf("%s %s: %w", recordType, id, ErrNotFound)
	}
	if err != nil {
		return v, err
	}
	if err := storage.Decode(rec, &v); err != nil {
		return v, err
	}
	PT(&v).setVersion(rec.Version)
	return v, nil
}

func loadAll[T any, PT interface {
	*T
	versioned
}](r reader, recordType string) ([]T, error) {
	ids, err := r.List(recordType)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		v, err := load[T, PT](r, recordType, id)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// writer is the write side shared by the repository and a batch.
type writer interface {
	PutCAS(recordType, recordID string, expectedVersion uint64, record *storage.Record) error
}

type repoWriter struct {
	ctx  context.Context
	repo storage.Repository
}

func (w repoWriter) PutCAS(recordType, recordID string, expectedVersion uint64, record *storage.Record) error {
	return w.repo.PutCAS(w.ctx, namespace, recordType, recordID, expectedVersion, record)
}

// save writes v as the successor of version, mapping CAS failures to ErrConflict.
func save(w writer, recordType, id string, version uint64, v any) error {
	rec, err := storage.Encode(v, version+1)
	if err != nil {
		return err
	}
	if err := w.PutCAS(recordType, id, version, rec); err != nil {
		if errors.Is(err, storage.ErrCASFailed) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// checkVersion rejects an update made against a stale copy. Zero skips the check.
func checkVersion(expected, current uint64) error {
	if expected != 0 && expected != current {
		return ErrConflict
	}
	return nil
}

func (s *Store) batch(ctx context.Context, fn func(tx storage.BatchTx) error) error {
	return s.repo.Batch(ctx, namespace, fn)
}

func (s *Store) deleteRecord(ctx context.Context, recordType, id string) error {
	err := s.repo.Delete(ctx, namespace, recordType, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", recordType, id, ErrNotFound)
	}
	return err
}

func (s *Store) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// equalizeTiming burns one bcrypt comparison so unknown usernames take as
// long to reject as wrong passwords.
func (s *Store) equalizeTiming(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("quill-dummy-password"), s.bcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}
