package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/quantsix/seqd/models"
	"github.com/quantsix/seqd/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository-level error sentinels
var (
	// ErrNoTransaction signals a locked read attempted outside an active
	// transaction. The lock would be released immediately, so this is
	// always a caller bug.
	ErrNoTransaction = errors.New("locked read requires an active transaction")

	// ErrSequenceRowNotFound signals a locked read on a key with no row.
	ErrSequenceRowNotFound = errors.New("sequence row not found")
)

// SequenceRepositoryImpl implements SequenceRepository interface
type SequenceRepositoryImpl struct {
	*BaseRepository
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *gorm.DB) SequenceRepository {
	return &SequenceRepositoryImpl{
		BaseRepository: NewBaseRepository(db),
	}
}

// ByKey finds a sequence definition by key without locking
func (r *SequenceRepositoryImpl) ByKey(ctx context.Context, key string) (*models.IDSequence, error) {
	db := r.getDB(ctx)
	var seq models.IDSequence
	err := db.Where("seq_key = ?", key).First(&seq).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &seq, nil
}

// LockForUpdate reads the row for key under SELECT ... FOR UPDATE. The row
// lock rides on the transaction in ctx and lasts until commit or rollback.
func (r *SequenceRepositoryImpl) LockForUpdate(ctx context.Context, key string) (*models.IDSequence, error) {
	tx := r.getTx(ctx)
	if tx == nil {
		return nil, ErrNoTransaction
	}

	var seq models.IDSequence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("seq_key = ?", key).
		First(&seq).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSequenceRowNotFound, key)
		}
		return nil, fmt.Errorf("failed to lock sequence %s: %w", key, err)
	}

	return &seq, nil
}

// UpdateCurrentValue writes current_value and refreshes updated_at. The
// caller must hold the row lock from LockForUpdate in the same transaction.
func (r *SequenceRepositoryImpl) UpdateCurrentValue(ctx context.Context, key string, newValue int64) error {
	tx := r.getTx(ctx)
	if tx == nil {
		return ErrNoTransaction
	}

	res := tx.Model(&models.IDSequence{}).
		Where("seq_key = ?", key).
		Updates(map[string]any{
			"current_value": newValue,
			"updated_at":    utils.UTCNow(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update sequence %s: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrSequenceRowNotFound, key)
	}

	return nil
}

// InsertIfAbsent inserts seq unless its key already exists. Conflicts with a
// concurrent insert on the same key are swallowed by ON CONFLICT DO NOTHING
// and reported as inserted=false.
func (r *SequenceRepositoryImpl) InsertIfAbsent(ctx context.Context, seq *models.IDSequence) (bool, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return false, err
	}

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "seq_key"}},
		DoNothing: true,
	}).Create(seq)
	if res.Error != nil {
		if shouldCommit {
			db.Rollback()
		}
		return false, fmt.Errorf("failed to insert sequence %s: %w", seq.SeqKey, res.Error)
	}

	// An insert only counts once it is durable; a failed commit must not
	// report inserted=true.
	if shouldCommit {
		if err := db.Commit().Error; err != nil {
			return false, fmt.Errorf("failed to commit sequence insert %s: %w", seq.SeqKey, err)
		}
	}

	return res.RowsAffected > 0, nil
}
