package models

import (
	"strings"
	"time"
)

const (
	KindOption = "option"

	OptionCall = "call"
	OptionPut  = "put"
)

// TickStep is one entry of a price-tiered tick table: Tick applies to
// raw prices above AbovePrice.
type TickStep struct {
	AbovePrice float64
	Tick       float64
}

// Instrument is per-expiry contract metadata as reported by the exchange.
// Never cached across calls; a selection run fetches its own copy.
type Instrument struct {
	Name               string
	BaseCurrency       string
	QuoteCurrency      string
	SettlementCurrency string
	OptionType         string // call / put
	Strike             float64
	Expiry             time.Time
	TickSize           float64
	TickSteps          []TickStep
	MinTradeAmount     float64
	ContractSize       float64
}

func (i Instrument) IsCall() bool { return strings.EqualFold(i.OptionType, OptionCall) }

// TenorDays is the time remaining to expiry, in whole days rounded down.
func (i Instrument) TenorDays(now time.Time) int {
	if i.Expiry.Before(now) {
		return 0
	}
	return int(i.Expiry.Sub(now).Hours() / 24)
}

// Underlying returns the leading segment of the instrument name,
// e.g. "BTC" for BTC-27MAR26-60000-C, "SOL_USDC" for SOL_USDC-....
func (i Instrument) Underlying() string {
	if idx := strings.IndexByte(i.Name, '-'); idx > 0 {
		return i.Name[:idx]
	}
	return i.Name
}

// UnderlyingOf splits an instrument name into underlying and settlement
// currency. Names like SOL_USDC-... settle in the currency after the
// underscore; plain BTC-... settle in the base coin itself.
func UnderlyingOf(instrument string) (underlying, currency string) {
	underlying = instrument
	if idx := strings.IndexByte(instrument, '-'); idx > 0 {
		underlying = instrument[:idx]
	}
	currency = underlying
	if idx := strings.IndexByte(underlying, '_'); idx > 0 {
		currency = underlying[idx+1:]
	}
	return underlying, currency
}
