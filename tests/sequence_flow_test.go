// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	businessflow "github.com/quantsix/seqd/business_flow"
	"github.com/quantsix/seqd/models"
	"github.com/quantsix/seqd/repository"
	testingutil "github.com/quantsix/seqd/testing"
	"github.com/quantsix/seqd/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceFlowAllocation(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		seqRepo := repository.NewSequenceRepository(testDB.DB)
		flow := businessflow.NewSequenceFlow(seqRepo)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("RawValueIsNotPadded", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("raw")
			_, err := fixtures.CreateTestSequence(key, 1234566, 1, 1, nil)
			require.NoError(t, err)

			var value int64
			err = repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				var err error
				value, err = flow.NextID(txCtx, key)
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1234567), value)
		})

		t.Run("MonotonicAcrossSequentialAllocations", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("mono")
			_, err := fixtures.CreateTestSequence(key, 0, 1, 5, nil)
			require.NoError(t, err)

			var prev int64
			for i := 0; i < 10; i++ {
				var value int64
				err := repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
					var err error
					value, err = flow.NextID(txCtx, key)
					return err
				})
				require.NoError(t, err)
				assert.Greater(t, value, prev)
				assert.LessOrEqual(t, value, prev+5)
				prev = value
			}
		})

		t.Run("UniqueUnderConcurrency", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("conc")
			_, err := fixtures.CreateTestSequence(key, 0, 1, 1, nil)
			require.NoError(t, err)

			const workers = 20
			values := make(chan int64, workers)
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
						value, err := flow.NextID(txCtx, key)
						if err != nil {
							return err
						}
						values <- value
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()
			close(values)

			seen := make(map[int64]bool)
			for value := range values {
				assert.False(t, seen[value], "value %d allocated twice", value)
				seen[value] = true
			}
			assert.Len(t, seen, workers)

			// Fixed step of 1 means the committed counter equals the
			// number of allocations.
			seq, err := seqRepo.ByKey(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, seq)
			assert.Equal(t, int64(workers), seq.CurrentValue)
		})

		t.Run("RolledBackAllocationLeavesNoGap", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("rollback")
			_, err := fixtures.CreateTestSequence(key, 0, 1, 1, nil)
			require.NoError(t, err)

			boom := errors.New("boom")
			err = repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				value, err := flow.NextID(txCtx, key)
				require.NoError(t, err)
				assert.Equal(t, int64(1), value)
				return boom
			})
			require.ErrorIs(t, err, boom)

			// The aborted increment must not be observable.
			seq, err := seqRepo.ByKey(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, seq)
			assert.Equal(t, int64(0), seq.CurrentValue)

			// The next successful allocation reuses the same baseline.
			var value int64
			err = repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				var err error
				value, err = flow.NextID(txCtx, key)
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), value)
		})

		t.Run("UnknownKeyFailsWithoutCreatingRow", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("missing")

			err := repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				_, err := flow.NextID(txCtx, key)
				return err
			})
			require.Error(t, err)
			assert.True(t, businessflow.IsSequenceNotFound(err))

			seq, err := seqRepo.ByKey(ctx, key)
			require.NoError(t, err)
			assert.Nil(t, seq)
		})

		t.Run("AllocationOutsideTransactionIsRejected", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("notx")
			_, err := fixtures.CreateTestSequence(key, 0, 1, 1, nil)
			require.NoError(t, err)

			_, err = flow.NextID(ctx, key)
			assert.ErrorIs(t, err, businessflow.ErrOutsideTransaction)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestSequenceFlowFormatting(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		seqRepo := repository.NewSequenceRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		// Pin the clock so the datetime segment is deterministic.
		fixedNow := time.Date(2023, 12, 23, 15, 30, 0, 0, time.Local)
		flow := businessflow.NewSequenceFlowWithClock(seqRepo, func() time.Time { return fixedNow })

		t.Run("PrefixDatetimeAndPaddedNumber", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("order")
			_, err := fixtures.CreateTestSequence(key, 0, 1, 1, utils.ToPtr("ORD"))
			require.NoError(t, err)

			var formatted string
			err = repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				var err error
				formatted, err = flow.NextFormatted(txCtx, key, businessflow.AllocationOptions{
					WithPrefix:   true,
					WithDatetime: true,
				})
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, "ORD2312231530000001", formatted)
		})

		t.Run("PrefixOnly", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("prefixonly")
			_, err := fixtures.CreateTestSequence(key, 41, 1, 1, utils.ToPtr("INV"))
			require.NoError(t, err)

			var formatted string
			err = repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				var err error
				formatted, err = flow.NextFormatted(txCtx, key, businessflow.AllocationOptions{WithPrefix: true})
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, "INV000042", formatted)
		})

		t.Run("FormattingDoesNotAlterStoredValue", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("stored")
			_, err := fixtures.CreateTestSequence(key, 0, 1, 1, utils.ToPtr("X"))
			require.NoError(t, err)

			err = repository.WithTransaction(ctx, testDB.DB, func(txCtx context.Context) error {
				_, err := flow.NextFormatted(txCtx, key, businessflow.AllocationOptions{WithPrefix: true, WithDatetime: true})
				return err
			})
			require.NoError(t, err)

			seq, err := seqRepo.ByKey(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, seq)
			assert.Equal(t, int64(1), seq.CurrentValue)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestSequenceFlowInitialization(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		seqRepo := repository.NewSequenceRepository(testDB.DB)
		flow := businessflow.NewSequenceFlow(seqRepo)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("EnsureSequenceCreatesOnce", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("init")
			first := businessflow.SequenceConfig{CurrentValue: 100, StepMin: 1, StepMax: 3, Prefix: utils.ToPtr("A")}
			require.NoError(t, flow.EnsureSequence(ctx, key, first))

			// A second call with different defaults must be a no-op.
			second := businessflow.SequenceConfig{CurrentValue: 999, StepMin: 7, StepMax: 9, Prefix: utils.ToPtr("B")}
			require.NoError(t, flow.EnsureSequence(ctx, key, second))

			seq, err := seqRepo.ByKey(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, seq)
			assert.Equal(t, int64(100), seq.CurrentValue)
			assert.Equal(t, int64(1), seq.StepMin)
			assert.Equal(t, int64(3), seq.StepMax)
			require.NotNil(t, seq.Prefix)
			assert.Equal(t, "A", *seq.Prefix)
		})

		t.Run("ExistingKeyIgnoresInvalidDefaults", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("existing")
			require.NoError(t, flow.EnsureSequence(ctx, key, businessflow.SequenceConfig{CurrentValue: 10, StepMin: 1, StepMax: 3}))

			// Re-initializing an existing key is a no-op even when the
			// caller's defaults would never validate.
			err := flow.EnsureSequence(ctx, key, businessflow.SequenceConfig{CurrentValue: -1, StepMin: 5, StepMax: 2})
			require.NoError(t, err)

			seq, err := seqRepo.ByKey(ctx, key)
			require.NoError(t, err)
			require.NotNil(t, seq)
			assert.Equal(t, int64(10), seq.CurrentValue)
			assert.Equal(t, int64(1), seq.StepMin)
			assert.Equal(t, int64(3), seq.StepMax)
		})

		t.Run("KnownConfigWinsOverCallerDefaults", func(t *testing.T) {
			garbage := businessflow.SequenceConfig{CurrentValue: 5, StepMin: 9, StepMax: 9, Prefix: utils.ToPtr("ZZZ")}
			require.NoError(t, flow.EnsureSequence(ctx, models.SeqKeyOrderNo, garbage))

			seq, err := seqRepo.ByKey(ctx, models.SeqKeyOrderNo)
			require.NoError(t, err)
			require.NotNil(t, seq)
			assert.Equal(t, int64(1), seq.CurrentValue)
			assert.Equal(t, int64(1), seq.StepMin)
			assert.Equal(t, int64(1), seq.StepMax)
			require.NotNil(t, seq.Prefix)
			assert.Equal(t, "ORD", *seq.Prefix)
		})

		t.Run("EnsureKnownSequences", func(t *testing.T) {
			// Start from an empty registry so both known keys are
			// created by this call rather than earlier subtests.
			require.NoError(t, testDB.ClearAllTables())

			require.NoError(t, flow.EnsureKnownSequences(ctx))
			// Safe to repeat.
			require.NoError(t, flow.EnsureKnownSequences(ctx))

			userSeq, err := seqRepo.ByKey(ctx, models.SeqKeyUserID)
			require.NoError(t, err)
			require.NotNil(t, userSeq)
			assert.GreaterOrEqual(t, userSeq.CurrentValue, int64(1_000_000))
			assert.LessOrEqual(t, userSeq.CurrentValue, int64(1_001_000))
			assert.Equal(t, int64(1), userSeq.StepMin)
			assert.Equal(t, int64(20), userSeq.StepMax)

			orderSeq, err := seqRepo.ByKey(ctx, models.SeqKeyOrderNo)
			require.NoError(t, err)
			require.NotNil(t, orderSeq)
			assert.Equal(t, int64(1), orderSeq.CurrentValue)
		})

		t.Run("InvalidStepBounds", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("badstep")
			err := flow.EnsureSequence(ctx, key, businessflow.SequenceConfig{CurrentValue: 0, StepMin: 5, StepMax: 2})
			assert.ErrorIs(t, err, businessflow.ErrInvalidStepBounds)

			err = flow.EnsureSequence(ctx, key, businessflow.SequenceConfig{CurrentValue: 0, StepMin: 0, StepMax: 2})
			assert.ErrorIs(t, err, businessflow.ErrInvalidStepBounds)
		})

		t.Run("ConcurrentEnsureSequence", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("race")
			cfg := businessflow.SequenceConfig{CurrentValue: 10, StepMin: 1, StepMax: 1}

			const workers = 10
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					assert.NoError(t, flow.EnsureSequence(ctx, key, cfg))
				}()
			}
			wg.Wait()

			var count int64
			require.NoError(t, testDB.DB.Model(&models.IDSequence{}).Where("seq_key = ?", key).Count(&count).Error)
			assert.Equal(t, int64(1), count)
		})

		t.Run("Definition", func(t *testing.T) {
			key := fixtures.RandomSequenceKey("def")
			_, err := flow.Definition(ctx, key)
			assert.True(t, businessflow.IsSequenceNotFound(err))

			require.NoError(t, flow.EnsureSequence(ctx, key, businessflow.SequenceConfig{CurrentValue: 7, StepMin: 1, StepMax: 1}))
			seq, err := flow.Definition(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, int64(7), seq.CurrentValue)
		})

		return nil
	})
	require.NoError(t, err)
}
