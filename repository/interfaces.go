// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"

	"github.com/quantsix/seqd/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// SequenceRepository defines durable, lockable access to IDSequence rows.
type SequenceRepository interface {
	// ByKey reads a row without locking it. Returns nil when absent.
	ByKey(ctx context.Context, key string) (*models.IDSequence, error)

	// LockForUpdate reads the row for key and acquires an exclusive row
	// lock held until the transaction in ctx commits or rolls back.
	// Calling without a transaction in ctx is a programming error and
	// fails with ErrNoTransaction. Returns ErrSequenceRowNotFound when
	// no row exists for key.
	LockForUpdate(ctx context.Context, key string) (*models.IDSequence, error)

	// UpdateCurrentValue writes current_value and refreshes updated_at for
	// key. The caller must still hold the lock from LockForUpdate on the
	// same key, in the same transaction.
	UpdateCurrentValue(ctx context.Context, key string, newValue int64) error

	// InsertIfAbsent atomically inserts seq unless a row with its key
	// already exists, and reports whether an insert occurred. It needs no
	// external lock; concurrent racers are resolved by the primary-key
	// constraint and losing racers observe inserted=false.
	InsertIfAbsent(ctx context.Context, seq *models.IDSequence) (bool, error)
}
