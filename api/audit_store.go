package api

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jmcleod/quill/internal/uuid"
	"github.com/jmcleod/quill/storage"
)

const (
	auditNamespace  = "__audit"
	auditRecordType = "AUDIT"

	defaultAuditMaxEntries = 10000
)

// AuditEntry is a persisted record of a content or account mutation.
type AuditEntry struct {
	ID         string     `json:"id"`
	Event      AuditEvent `json:"event"`
	ActorID    string     `json:"actor_id"`
	Actor      string     `json:"actor,omitempty"`
	Target     string     `json:"target,omitempty"`
	RemoteAddr string     `json:"remote_addr,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// auditStore keeps the most recent maxEntries audit entries. Entry IDs
// start with a zero-padded timestamp so lexical order is creation order.
type auditStore struct {
	repo       storage.Repository
	maxEntries int
	now        func() time.Time
}

func newAuditStore(repo storage.Repository, maxEntries int) *auditStore {
	if maxEntries <= 0 {
		maxEntries = defaultAuditMaxEntries
	}
	return &auditStore{repo: repo, maxEntries: maxEntries, now: time.Now}
}

func (s *auditStore) append(ctx context.Context, entry AuditEntry) error {
	now := s.now().UTC()
	entry.CreatedAt = now
	entry.ID = fmt.Sprintf("%020d-%s", now.UnixNano(), uuid.New())

	rec, err := storage.Encode(entry, 1)
	if err != nil {
		return err
	}
	return s.repo.Batch(ctx, auditNamespace, func(tx storage.BatchTx) error {
		if err := tx.Put(auditRecordType, entry.ID, rec); err != nil {
			return err
		}
		ids, err := tx.List(auditRecordType)
		if err != nil {
			return err
		}
		if len(ids) <= s.maxEntries {
			return nil
		}
		slices.Sort(ids)
		for _, id := range ids[:len(ids)-s.maxEntries] {
			if err := tx.Delete(auditRecordType, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// list returns up to limit entries, newest first. A zero limit returns
// everything retained.
func (s *auditStore) list(ctx context.Context, limit int) ([]AuditEntry, error) {
	ids, err := s.repo.List(ctx, auditNamespace, auditRecordType)
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	slices.Reverse(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	entries := make([]AuditEntry, 0, len(ids))
	for _, id := range ids {
		rec, err := s.repo.Get(ctx, auditNamespace, auditRecordType, id)
		if err != nil {
			// Pruned between List and Get.
			continue
		}
		var entry AuditEntry
		if err := storage.Decode(rec, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ReadAuditLog returns up to limit persisted audit entries from repo, newest
// first. It reads what a server configured with WithAuditStore wrote.
func ReadAuditLog(ctx context.Context, repo storage.Repository, limit int) ([]AuditEntry, error) {
	return newAuditStore(repo, 0).list(ctx, limit)
}
