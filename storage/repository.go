// Package storage provides the storage abstraction layer for content records.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")
)

// BatchTx provides reads and writes within an atomic transaction.
// The namespace is scoped to the batch, so methods don't require it.
type BatchTx interface {
	Get(recordType string, recordID string) (*Record, error)
	List(recordType string) ([]string, error)
	Put(recordType string, recordID string, record *Record) error
	PutCAS(recordType string, recordID string, expectedVersion uint64, record *Record) error
	Delete(recordType string, recordID string) error
}

// Repository defines the interface for record storage. Records are grouped
// into namespaces and addressed by (recordType, recordID).
type Repository interface {
	Put(ctx context.Context, namespace string, recordType string, recordID string, record *Record) error
	Get(ctx context.Context, namespace string, recordType string, recordID string) (*Record, error)
	List(ctx context.Context, namespace string, recordType string) ([]string, error)
	Delete(ctx context.Context, namespace string, recordType string, recordID string) error
	PutCAS(ctx context.Context, namespace string, recordType string, recordID string, expectedVersion uint64, record *Record) error
	Batch(ctx context.Context, namespace string, fn func(tx BatchTx) error) error
}
