// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"context"
	"fmt"
	"testing"

	"github.com/quantsix/seqd/models"
	"github.com/quantsix/seqd/repository"
	testingutil "github.com/quantsix/seqd/testing"
	"github.com/quantsix/seqd/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewSequenceRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("ByKey", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("bykey")
			_, err := fixtures.CreateTestSequence(key, 5, 1, 1, utils.ToPtr("P"))
			require.NoError(t, err)

			seq, err := repo.ByKey(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, seq)
			assert.Equal(t, key, seq.SeqKey)
			assert.Equal(t, int64(5), seq.CurrentValue)
			require.NotNil(t, seq.Prefix)
			assert.Equal(t, "P", *seq.Prefix)
		})

		t.Run("ByKeyNotFound", func(t *testing.T) {
			seq, err := repo.ByKey(ctx, "does_not_exist")
			assert.NoError(t, err)
			assert.Nil(t, seq)
		})

		t.Run("LockForUpdateRequiresTransaction", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("lock_notx")
			_, err := fixtures.CreateTestSequence(key, 0, 1, 1, nil)
			require.NoError(t, err)

			_, err = repo.LockForUpdate(ctx, key)
			assert.ErrorIs(t, err, repository.ErrNoTransaction)
		})

		t.Run("LockForUpdateAndWrite", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("lock")
			_, err := fixtures.CreateTestSequence(key, 10, 1, 1, nil)
			require.NoError(t, err)

			err = repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				seq, err := repo.LockForUpdate(txCtx, key)
				require.NoError(t, err)
				assert.Equal(t, int64(10), seq.CurrentValue)

				return repo.UpdateCurrentValue(txCtx, key, seq.CurrentValue+1)
			})
			require.NoError(t, err)

			seq, err := repo.ByKey(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, seq)
			assert.Equal(t, int64(11), seq.CurrentValue)
			assert.True(t, seq.UpdatedAt.After(seq.CreatedAt) || seq.UpdatedAt.Equal(seq.CreatedAt))
		})

		t.Run("LockForUpdateNotFound", func(t *testing.T) {
			err := repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				_, err := repo.LockForUpdate(txCtx, "missing_key")
				return err
			})
			assert.ErrorIs(t, err, repository.ErrSequenceRowNotFound)
		})

		t.Run("UpdateCurrentValueRequiresTransaction", func(t *testing.T) {
			err := repo.UpdateCurrentValue(ctx, "whatever", 1)
			assert.ErrorIs(t, err, repository.ErrNoTransaction)
		})

		t.Run("InsertIfAbsent", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("insert")
			now := utils.UTCNow()
			seq := &models.IDSequence{
				SeqKey:       key,
				CurrentValue: 3,
				StepMin:      1,
				StepMax:      2,
				CreatedAt:    now,
				UpdatedAt:    now,
			}

			inserted, err := repo.InsertIfAbsent(ctx, seq)
			require.NoError(t, err)
			assert.True(t, inserted)

			// Second attempt with a different payload loses silently.
			dup := &models.IDSequence{
				SeqKey:       key,
				CurrentValue: 99,
				StepMin:      5,
				StepMax:      5,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			inserted, err = repo.InsertIfAbsent(ctx, dup)
			require.NoError(t, err)
			assert.False(t, inserted)

			stored, err := repo.ByKey(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, int64(3), stored.CurrentValue)
		})

		t.Run("InsertIfAbsentJoinsCallerTransaction", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("insert_tx")
			now := utils.UTCNow()
			seq := &models.IDSequence{
				SeqKey:       key,
				CurrentValue: 7,
				StepMin:      1,
				StepMax:      1,
				CreatedAt:    now,
				UpdatedAt:    now,
			}

			// Inside a caller transaction the repository must not commit on
			// its own; the rollback below has to undo the insert.
			rollback := fmt.Errorf("abort")
			err := repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				inserted, err := repo.InsertIfAbsent(txCtx, seq)
				require.NoError(t, err)
				assert.True(t, inserted)
				return rollback
			})
			assert.ErrorIs(t, err, rollback)

			stored, err := repo.ByKey(ctx, key)
			require.NoError(t, err)
			assert.Nil(t, stored)
		})

		return nil
	})
	require.NoError(t, err)
}
