package models

// PositionSnapshot is the traded instrument's state right after an
// execution run: resting orders plus live positions, with aggregates.
type PositionSnapshot struct {
	OpenOrders    []OrderHandle
	Positions     []Position
	UnrealizedPnL float64
	RealizedPnL   float64
	NetDelta      float64
}

// ExecutionOutcome is the transient result of one placement/execution run.
// Success means the final order state could be read; partial and zero fills
// are still a success with a descriptive message.
type ExecutionOutcome struct {
	Success      bool
	Message      string
	Instrument   string
	OrderID      string
	State        string
	FilledAmount float64
	AveragePrice float64
	Snapshot     PositionSnapshot
}

type AdjustmentResult struct {
	Success       bool
	Message       string
	OldInstrument string
	NewInstrument string
	CloseOutcome  *ExecutionOutcome
	OpenOutcome   *ExecutionOutcome
}

type CloseResult struct {
	Success       bool
	Message       string
	Instrument    string
	ClosedAmount  float64
	RecordDeleted bool
	Outcome       *ExecutionOutcome
}
