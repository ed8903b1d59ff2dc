package businessflow

import (
	"testing"
	"time"

	"github.com/quantsix/seqd/utils"
	"github.com/stretchr/testify/assert"
)

func TestFormatSequenceValue(t *testing.T) {
	now := time.Date(2023, 12, 23, 15, 30, 0, 0, time.Local)
	prefix := utils.ToPtr("ORD")

	t.Run("PrefixDatetimeNumber", func(t *testing.T) {
		got := FormatSequenceValue(prefix, now, 1, AllocationOptions{WithPrefix: true, WithDatetime: true})
		assert.Equal(t, "ORD2312231530000001", got)
	})

	t.Run("NumberOnlyIsPadded", func(t *testing.T) {
		got := FormatSequenceValue(prefix, now, 42, AllocationOptions{})
		assert.Equal(t, "000042", got)
	})

	t.Run("WideValueIsNotTruncated", func(t *testing.T) {
		got := FormatSequenceValue(nil, now, 1234567, AllocationOptions{WithDatetime: true})
		assert.Equal(t, "23122315301234567", got)
	})

	t.Run("PrefixRequestedButUnconfigured", func(t *testing.T) {
		got := FormatSequenceValue(nil, now, 7, AllocationOptions{WithPrefix: true})
		assert.Equal(t, "000007", got)
	})

	t.Run("CustomDatetimeLayout", func(t *testing.T) {
		got := FormatSequenceValue(prefix, now, 7, AllocationOptions{
			WithPrefix:     true,
			WithDatetime:   true,
			DatetimeFormat: "20060102",
		})
		assert.Equal(t, "ORD20231223000007", got)
	})
}

func TestKnownSequenceConfigs(t *testing.T) {
	keys := KnownSequenceKeys()
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, "user_id")
	assert.Contains(t, keys, "order_no")

	userCfg := knownSequenceConfigs["user_id"]
	assert.GreaterOrEqual(t, userCfg.CurrentValue, int64(1_000_000))
	assert.LessOrEqual(t, userCfg.CurrentValue, int64(1_001_000))
	assert.Equal(t, int64(1), userCfg.StepMin)
	assert.Equal(t, int64(20), userCfg.StepMax)

	orderCfg := knownSequenceConfigs["order_no"]
	assert.Equal(t, int64(1), orderCfg.CurrentValue)
	assert.Equal(t, int64(1), orderCfg.StepMin)
	assert.Equal(t, int64(1), orderCfg.StepMax)
	assert.NotNil(t, orderCfg.Prefix)
	assert.Equal(t, "ORD", *orderCfg.Prefix)
}
