package dto

// AllocateSequenceRequest controls formatting of the allocated value
type AllocateSequenceRequest struct {
	WithPrefix     bool   `json:"with_prefix"`
	WithDatetime   bool   `json:"with_datetime"`
	DatetimeFormat string `json:"datetime_format" validate:"omitempty,max=32"`
}

// AllocateSequenceResponse carries either the raw or the formatted result,
// never both, matching the options the caller passed.
type AllocateSequenceResponse struct {
	SeqKey    string `json:"seq_key"`
	Value     *int64 `json:"value,omitempty"`
	Formatted string `json:"formatted,omitempty"`
}

// InitSequenceRequest holds caller-supplied defaults for explicit
// initialization. Known keys ignore these and use their documented
// configuration.
type InitSequenceRequest struct {
	SeqKey       string  `json:"seq_key" validate:"required,min=1,max=64"`
	CurrentValue int64   `json:"current_value" validate:"min=0"`
	StepMin      int64   `json:"step_min" validate:"min=1"`
	StepMax      int64   `json:"step_max" validate:"min=1,gtefield=StepMin"`
	Prefix       *string `json:"prefix,omitempty" validate:"omitempty,max=16"`
	Description  *string `json:"description,omitempty" validate:"omitempty,max=255"`
}

// SequenceDefinitionDTO is the read-only view of a sequence definition
type SequenceDefinitionDTO struct {
	SeqKey       string  `json:"seq_key"`
	CurrentValue int64   `json:"current_value"`
	StepMin      int64   `json:"step_min"`
	StepMax      int64   `json:"step_max"`
	Prefix       *string `json:"prefix,omitempty"`
	Description  *string `json:"description,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}
