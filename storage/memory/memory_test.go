package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jmcleod/quill/storage"
)

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	namespace := "content"
	recordType := "POST"
	recordID := "id1"
	rec := &storage.Record{Data: []byte(`{"title":"hello"}`), Version: 1}

	t.Run("PutAndGet", func(t *testing.T) {
		err := repo.Put(ctx, namespace, recordType, recordID, rec)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		got, err := repo.Get(ctx, namespace, recordType, recordID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got.Data, rec.Data) || got.Version != rec.Version {
			t.Errorf("Get returned wrong record: %+v", got)
		}

		// Test isolation (cloning)
		got.Data[0] = 'X'
		got2, _ := repo.Get(ctx, namespace, recordType, recordID)
		if got2.Data[0] == 'X' {
			t.Error("Memory repository should return clones of records")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.Get(ctx, "nonexistent", recordType, recordID)
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound for nonexistent namespace, got %v", err)
		}

		_, err = repo.Get(ctx, namespace, recordType, "nonexistent")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound for nonexistent record, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo.Put(ctx, namespace, "POST", "id2", rec)
		repo.Put(ctx, namespace, "USER", "id1", rec)

		ids, err := repo.List(ctx, namespace, "POST")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 2 || ids[0] != "id1" || ids[1] != "id2" {
			t.Errorf("Expected [id1 id2], got %v", ids)
		}

		ids, _ = repo.List(ctx, "nonexistent", "POST")
		if len(ids) != 0 {
			t.Errorf("Expected 0 IDs for nonexistent namespace, got %d", len(ids))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo.Put(ctx, namespace, "POST", "gone", rec)
		if err := repo.Delete(ctx, namespace, "POST", "gone"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := repo.Delete(ctx, namespace, "POST", "gone"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("PutCAS", func(t *testing.T) {
		repo := NewRepository()
		rec1 := &storage.Record{Version: 1}
		rec2 := &storage.Record{Version: 2}

		// Create-only (expectedVersion = 0)
		err := repo.PutCAS(ctx, namespace, recordType, recordID, 0, rec1)
		if err != nil {
			t.Fatalf("PutCAS create failed: %v", err)
		}

		// Version mismatch on create
		err = repo.PutCAS(ctx, namespace, "other", "id", 1, rec1)
		if err != storage.ErrCASFailed {
			t.Errorf("Expected ErrCASFailed, got %v", err)
		}

		// Version match update
		err = repo.PutCAS(ctx, namespace, recordType, recordID, 1, rec2)
		if err != nil {
			t.Fatalf("PutCAS update failed: %v", err)
		}

		// Version mismatch update
		err = repo.PutCAS(ctx, namespace, recordType, recordID, 1, rec1)
		if err != storage.ErrCASFailed {
			t.Errorf("Expected ErrCASFailed, got %v", err)
		}
	})

	t.Run("Batch", func(t *testing.T) {
		repo := NewRepository()

		// Successful batch
		err := repo.Batch(ctx, namespace, func(tx storage.BatchTx) error {
			if err := tx.Put("type", "id1", rec); err != nil {
				return err
			}
			return tx.PutCAS("type", "id2", 0, rec)
		})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}

		if _, err := repo.Get(ctx, namespace, "type", "id1"); err != nil {
			t.Error("Record id1 should exist after batch")
		}

		// Reads inside a batch observe earlier writes of the same batch.
		err = repo.Batch(ctx, namespace, func(tx storage.BatchTx) error {
			if err := tx.Put("type", "id4", rec); err != nil {
				return err
			}
			ids, err := tx.List("type")
			if err != nil {
				return err
			}
			if len(ids) != 3 {
				return fmt.Errorf("expected 3 ids in batch, got %d", len(ids))
			}
			_, err = tx.Get("type", "id4")
			return err
		})
		if err != nil {
			t.Fatalf("Batch read-your-writes failed: %v", err)
		}

		// Failing batch (rollback)
		err = repo.Batch(ctx, namespace, func(tx storage.BatchTx) error {
			tx.Put("type", "id3", rec)
			tx.Delete("type", "id1")
			return fmt.Errorf("simulated error")
		})
		if err == nil {
			t.Error("Expected error from Batch, got nil")
		}

		if _, err := repo.Get(ctx, namespace, "type", "id3"); err == nil {
			t.Error("Record id3 should NOT exist after failed batch")
		}
		if _, err := repo.Get(ctx, namespace, "type", "id1"); err != nil {
			t.Error("Record id1 should be restored after failed batch")
		}

		// Rollback with pre-existing data
		_ = repo.Batch(ctx, namespace, func(tx storage.BatchTx) error {
			tx.Put("type", "id1", &storage.Record{Version: 9})
			return fmt.Errorf("simulated error")
		})
		got, _ := repo.Get(ctx, namespace, "type", "id1")
		if got.Version != 1 {
			t.Errorf("Expected Version 1 after rollback, got %d", got.Version)
		}
	})
}
