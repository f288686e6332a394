// Package quant rounds prices and amounts onto the exchange's allowed grid.
// All arithmetic runs on decimals: option ticks are non-binary fractions
// (0.0005 and friends) and float drift gets orders rejected.
package quant

import (
	"option_bot/internal/models"

	"github.com/shopspring/decimal"
)

// ResolveTick picks the tick size for a raw price: the tiered override with
// the largest threshold not exceeding the price, else the base tick.
func ResolveTick(inst models.Instrument, rawPrice float64) float64 {
	tick := inst.TickSize
	best := -1.0
	for _, step := range inst.TickSteps {
		if rawPrice >= step.AbovePrice && step.AbovePrice > best {
			best = step.AbovePrice
			tick = step.Tick
		}
	}
	return tick
}

// CorrectPrice rounds half-up to the nearest multiple of the resolved tick.
// Returns the corrected price and the tick actually used.
func CorrectPrice(rawPrice float64, inst models.Instrument) (float64, float64) {
	tick := ResolveTick(inst, rawPrice)
	return roundToStep(rawPrice, tick), tick
}

// CorrectAmount rounds half-up to the nearest multiple of the minimum trade
// amount. Returns the corrected amount and the unit used.
func CorrectAmount(rawAmount float64, inst models.Instrument) (float64, float64) {
	return roundToStep(rawAmount, inst.MinTradeAmount), inst.MinTradeAmount
}

// CorrectAmountUp rounds up to the next multiple of the minimum trade
// amount. Used when reducing or closing, so the close never under-covers.
func CorrectAmountUp(rawAmount float64, inst models.Instrument) (float64, float64) {
	step := inst.MinTradeAmount
	if step <= 0 {
		return rawAmount, step
	}
	d := decimal.NewFromFloat(rawAmount)
	s := decimal.NewFromFloat(step)
	v, _ := d.Div(s).Ceil().Mul(s).Float64()
	return v, step
}

func roundToStep(raw, step float64) float64 {
	if step <= 0 {
		return raw
	}
	d := decimal.NewFromFloat(raw)
	s := decimal.NewFromFloat(step)
	// Round is half away from zero, which is half-up for the positive
	// prices and sizes we deal with.
	v, _ := d.Div(s).Round(0).Mul(s).Float64()
	return v
}
