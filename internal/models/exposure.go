package models

import (
	"fmt"
	"time"
)

type ExposureKind string

const (
	KindPosition ExposureKind = "position"
	KindOrder    ExposureKind = "order"
)

// ExposureRecord is the only persisted entity: an account's intended delta
// target for one instrument. kind=order while it represents a resting order
// (OrderID set), kind=position once filled.
type ExposureRecord struct {
	ID           int64
	Account      string
	Instrument   string
	OrderID      string // empty unless Kind == order
	TargetDelta  float64
	MoveDelta    float64
	MinTenorDays int // 0 = no constraint
	SignalID     string
	Kind         ExposureKind
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r ExposureRecord) Validate() error {
	if r.Account == "" || r.Instrument == "" {
		return fmt.Errorf("exposure: account and instrument are required")
	}
	if r.TargetDelta < -1 || r.TargetDelta > 1 {
		return fmt.Errorf("exposure: target delta %.4f out of [-1,1]", r.TargetDelta)
	}
	if r.MoveDelta < -1 || r.MoveDelta > 1 {
		return fmt.Errorf("exposure: move delta %.4f out of [-1,1]", r.MoveDelta)
	}
	if r.MinTenorDays < 0 {
		return fmt.Errorf("exposure: min tenor %d must be positive", r.MinTenorDays)
	}
	switch r.Kind {
	case KindPosition, KindOrder:
	default:
		return fmt.Errorf("exposure: unknown kind %q", r.Kind)
	}
	return nil
}

// ExposureFilter narrows store queries. Zero values match everything.
type ExposureFilter struct {
	Account    string
	Instrument string
	OrderID    string
	SignalID   string
	Kind       ExposureKind
}

// ExposureAggregate is a per-account or per-instrument rollup.
type ExposureAggregate struct {
	Key          string // account name or instrument name
	Records      int64
	AbsTargetSum float64
}
