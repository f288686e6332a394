package models

import "strings"

type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

const (
	OrderOpen      = "open"
	OrderFilled    = "filled"
	OrderCancelled = "cancelled"
	OrderRejected  = "rejected"
)

// OrderHandle is the exchange's view of one order.
type OrderHandle struct {
	OrderID      string
	Instrument   string
	Direction    Direction
	Price        float64
	Amount       float64
	FilledAmount float64
	AveragePrice float64
	State        string
	Label        string
}

// Closed reports whether the venue no longer considers the order working.
func (o OrderHandle) Closed() bool {
	return !strings.EqualFold(o.State, OrderOpen)
}

// Position is a live exchange position for one instrument.
type Position struct {
	Instrument   string
	Size         float64 // contracts, always >= 0
	Direction    Direction
	AveragePrice float64
	MarkPrice    float64
	IndexPrice   float64
	Delta        float64
	TotalPnL     float64
	RealizedPnL  float64
}