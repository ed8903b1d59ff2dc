package models

import "time"

// Well-known sequence keys seeded by the registry initializer.
const (
	SeqKeyUserID  = "user_id"
	SeqKeyOrderNo = "order_no"
)

// IDSequence is a named persisted counter. CurrentValue is the last value
// already handed out, not the next one; it only ever increases and mutates
// exclusively through the allocator's locked read-modify-write.
type IDSequence struct {
	SeqKey       string    `gorm:"column:seq_key;primaryKey;size:64" json:"seq_key"`
	CurrentValue int64     `gorm:"not null" json:"current_value"`
	StepMin      int64     `gorm:"not null;default:1" json:"step_min"`
	StepMax      int64     `gorm:"not null;default:1" json:"step_max"`
	Prefix       *string   `gorm:"size:16" json:"prefix,omitempty"`
	Description  *string   `gorm:"size:255" json:"description,omitempty"`
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (IDSequence) TableName() string { return "id_sequences" }
