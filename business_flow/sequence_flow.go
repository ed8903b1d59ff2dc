// Package businessflow contains the core business logic for sequence allocation
package businessflow

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/quantsix/seqd/models"
	"github.com/quantsix/seqd/repository"
	"github.com/quantsix/seqd/utils"
)

// DefaultDatetimeLayout renders two-digit year, month, day, hour and minute.
const DefaultDatetimeLayout = "0601021504"

// formattedNumberWidth is the minimum zero-padded width of the numeric part
// inside formatted strings. Raw allocations are never padded.
const formattedNumberWidth = 6

// AllocationOptions controls formatting of an allocated value
type AllocationOptions struct {
	WithPrefix     bool
	WithDatetime   bool
	DatetimeFormat string // Go time layout; DefaultDatetimeLayout when empty
}

// SequenceConfig holds the creation parameters of a sequence definition
type SequenceConfig struct {
	CurrentValue int64
	StepMin      int64
	StepMax      int64
	Prefix       *string
	Description  *string
}

// knownSequenceConfigs maps the well-known sequence keys to their documented
// starting configuration. Built once at process start and never mutated; the
// user_id base is randomized inside [1_000_000, 1_001_000] so user-facing IDs
// do not start from an obvious round number.
var knownSequenceConfigs = map[string]SequenceConfig{
	models.SeqKeyUserID: {
		CurrentValue: 1_000_000 + rand.Int63n(1_001),
		StepMin:      1,
		StepMax:      20,
		Description:  utils.ToPtr("User ID"),
	},
	models.SeqKeyOrderNo: {
		CurrentValue: 1,
		StepMin:      1,
		StepMax:      1,
		Prefix:       utils.ToPtr("ORD"),
		Description:  utils.ToPtr("Recharge order number"),
	},
}

// KnownSequenceKeys returns the keys seeded by EnsureKnownSequences.
func KnownSequenceKeys() []string {
	keys := make([]string, 0, len(knownSequenceConfigs))
	for key := range knownSequenceConfigs {
		keys = append(keys, key)
	}
	return keys
}

// SequenceFlow defines allocation and initialization of named sequences.
//
// NextID and NextFormatted must run inside an enclosing transaction supplied
// by the caller (repository.WithTransaction or the database middleware); the
// row lock they take is released when that transaction finalizes, and an
// aborted transaction rolls the increment back entirely. Neither method
// creates missing sequences.
type SequenceFlow interface {
	// NextID allocates and returns the next raw value for key.
	NextID(ctx context.Context, key string) (int64, error)
	// NextFormatted allocates the next value for key and renders it as
	// prefix + timestamp + zero-padded number per opts.
	NextFormatted(ctx context.Context, key string, opts AllocationOptions) (string, error)
	// Definition returns the current definition of key without locking
	// or mutating it.
	Definition(ctx context.Context, key string) (*models.IDSequence, error)
	// EnsureSequence idempotently creates the definition for key. Known
	// keys always get their documented configuration; defaults apply to
	// everything else. Existing definitions are never overwritten.
	EnsureSequence(ctx context.Context, key string, defaults SequenceConfig) error
	// EnsureKnownSequences seeds every well-known sequence. Safe to call
	// repeatedly and concurrently at startup.
	EnsureKnownSequences(ctx context.Context) error
}

type SequenceFlowImpl struct {
	seqRepo repository.SequenceRepository
	now     func() time.Time
}

func NewSequenceFlow(seqRepo repository.SequenceRepository) SequenceFlow {
	return &SequenceFlowImpl{seqRepo: seqRepo, now: time.Now}
}

// NewSequenceFlowWithClock overrides the timestamp source used by formatted
// allocations. Tests use this to pin the datetime segment.
func NewSequenceFlowWithClock(seqRepo repository.SequenceRepository, now func() time.Time) SequenceFlow {
	return &SequenceFlowImpl{seqRepo: seqRepo, now: now}
}

// NextID allocates the next raw value for key
func (f *SequenceFlowImpl) NextID(ctx context.Context, key string) (int64, error) {
	_, value, err := f.allocate(ctx, key)
	return value, err
}

// NextFormatted allocates the next value for key and formats it
func (f *SequenceFlowImpl) NextFormatted(ctx context.Context, key string, opts AllocationOptions) (string, error) {
	seq, value, err := f.allocate(ctx, key)
	if err != nil {
		return "", err
	}
	return FormatSequenceValue(seq.Prefix, f.now(), value, opts), nil
}

// allocate performs the locked read-modify-write on the counter row of key.
// The critical section spans LockForUpdate through the caller's commit, so
// nothing slow may run between here and transaction finalization.
func (f *SequenceFlowImpl) allocate(ctx context.Context, key string) (*models.IDSequence, int64, error) {
	if key == "" {
		return nil, 0, ErrSequenceKeyRequired
	}

	seq, err := f.seqRepo.LockForUpdate(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrSequenceRowNotFound) {
			return nil, 0, fmt.Errorf("%w: %s", ErrSequenceNotFound, key)
		}
		if errors.Is(err, repository.ErrNoTransaction) {
			return nil, 0, ErrOutsideTransaction
		}
		return nil, 0, NewBusinessError("SEQUENCE_LOCK_FAILED", "Failed to lock sequence row", err)
	}

	// Fixed step when the bounds collapse; otherwise a uniform draw in
	// [step_min, step_max]. The randomness only obscures the counter from
	// end users, it is not a security boundary.
	step := seq.StepMin
	if seq.StepMin != seq.StepMax {
		step = seq.StepMin + rand.Int63n(seq.StepMax-seq.StepMin+1)
	}
	newValue := seq.CurrentValue + step

	if err := f.seqRepo.UpdateCurrentValue(ctx, key, newValue); err != nil {
		return nil, 0, err
	}

	return seq, newValue, nil
}

// Definition returns the current definition of key without locking it
func (f *SequenceFlowImpl) Definition(ctx context.Context, key string) (*models.IDSequence, error) {
	if key == "" {
		return nil, ErrSequenceKeyRequired
	}
	seq, err := f.seqRepo.ByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if seq == nil {
		return nil, fmt.Errorf("%w: %s", ErrSequenceNotFound, key)
	}
	return seq, nil
}

// EnsureSequence idempotently creates the sequence definition for key
func (f *SequenceFlowImpl) EnsureSequence(ctx context.Context, key string, defaults SequenceConfig) error {
	if key == "" {
		return ErrSequenceKeyRequired
	}

	// An existing definition is never touched, whatever the caller passed;
	// parameters are only resolved and checked when a row must be created.
	existing, err := f.seqRepo.ByKey(ctx, key)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	// Known configuration wins over whatever the caller passed, so system
	// sequences always get their documented starting point.
	cfg := defaults
	if known, ok := knownSequenceConfigs[key]; ok {
		cfg = known
	}

	if cfg.CurrentValue < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeStartValue, key)
	}
	if cfg.StepMin < 1 || cfg.StepMin > cfg.StepMax {
		return fmt.Errorf("%w: %s", ErrInvalidStepBounds, key)
	}

	now := utils.UTCNow()
	seq := &models.IDSequence{
		SeqKey:       key,
		CurrentValue: cfg.CurrentValue,
		StepMin:      cfg.StepMin,
		StepMax:      cfg.StepMax,
		Prefix:       cfg.Prefix,
		Description:  cfg.Description,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// A racer may have inserted between the presence check and here; the
	// losing insert is rejected by the primary key and treated as done.
	if _, err := f.seqRepo.InsertIfAbsent(ctx, seq); err != nil {
		return NewBusinessError("SEQUENCE_INIT_FAILED", "Failed to initialize sequence", err)
	}
	return nil
}

// EnsureKnownSequences seeds every well-known sequence definition
func (f *SequenceFlowImpl) EnsureKnownSequences(ctx context.Context) error {
	for key := range knownSequenceConfigs {
		if err := f.EnsureSequence(ctx, key, SequenceConfig{}); err != nil {
			return fmt.Errorf("failed to ensure sequence %s: %w", key, err)
		}
	}
	return nil
}

// FormatSequenceValue renders an allocated value as prefix + timestamp +
// zero-padded number. The stored numeric value is never altered; padding
// exists only inside the formatted string.
func FormatSequenceValue(prefix *string, now time.Time, value int64, opts AllocationOptions) string {
	var b strings.Builder
	if opts.WithPrefix && prefix != nil && *prefix != "" {
		b.WriteString(*prefix)
	}
	if opts.WithDatetime {
		layout := opts.DatetimeFormat
		if layout == "" {
			layout = DefaultDatetimeLayout
		}
		b.WriteString(now.Format(layout))
	}
	fmt.Fprintf(&b, "%0*d", formattedNumberWidth, value)
	return b.String()
}
