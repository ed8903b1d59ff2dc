// Package testing provides test utilities and database setup for testing the sequence service
package testing

import (
	"fmt"
	"math/rand"

	"github.com/quantsix/seqd/models"
	"github.com/quantsix/seqd/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestSequence inserts a sequence definition directly
func (tf *TestFixtures) CreateTestSequence(key string, currentValue, stepMin, stepMax int64, prefix *string) (*models.IDSequence, error) {
	now := utils.UTCNow()
	seq := &models.IDSequence{
		SeqKey:       key,
		CurrentValue: currentValue,
		StepMin:      stepMin,
		StepMax:      stepMax,
		Prefix:       prefix,
		Description:  utils.ToPtr("test sequence"),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := tf.DB.DB.Create(seq).Error; err != nil {
		return nil, fmt.Errorf("failed to create test sequence %s: %w", key, err)
	}

	return seq, nil
}

// RandomSequenceKey returns a unique key for tests that must not collide
func (tf *TestFixtures) RandomSequenceKey(base string) string {
	return fmt.Sprintf("%s_%09d", base, rand.Intn(900000000)+100000000)
}
