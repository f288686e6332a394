package service

import (
	"context"
	"fmt"
	"time"

	"option_bot/internal/models"
	"option_bot/internal/quant"
	"option_bot/pkg/logger"
)

// Exchange is the slice of the venue the stepper drives.
type Exchange interface {
	Ticker(ctx context.Context, instrument string) (models.Quote, error)
	OrderState(ctx context.Context, token, orderID string) (models.OrderHandle, error)
	EditOrder(ctx context.Context, token, orderID string, amount, price float64) (models.OrderHandle, error)
	OpenOrders(ctx context.Context, token, instrument string) ([]models.OrderHandle, error)
	Positions(ctx context.Context, token, currency, kind string) ([]models.Position, error)
}

// TokenSource refreshes bearer tokens; a long stepping run can outlive one.
type TokenSource interface {
	Token(ctx context.Context, account string) (string, error)
}

// Stepper walks a resting limit order toward the far side of the book in
// maxStep bounded edits, then crosses the spread outright. Patience first,
// certainty after.
type Stepper struct {
	ex      Exchange
	tokens  TokenSource
	wait    time.Duration
	maxStep int
}

func NewStepper(ex Exchange, tokens TokenSource, wait time.Duration, maxStep int) *Stepper {
	if maxStep <= 0 {
		maxStep = 1
	}
	return &Stepper{
		ex:      ex,
		tokens:  tokens,
		wait:    wait,
		maxStep: maxStep,
	}
}

// Run drives an already-resting limit order to a terminal state and reports
// the outcome. Per-step errors are logged and swallowed; only failing to
// read the final state makes the run itself a failure.
func (s *Stepper) Run(ctx context.Context, account string, inst models.Instrument, initial models.OrderHandle) (models.ExecutionOutcome, error) {
	closed := false
	for step := 1; step <= s.maxStep && !closed; step++ {
		if err := waitStep(ctx, s.wait); err != nil {
			out, _ := s.finalize(ctx, account, inst, initial.OrderID)
			return out, fmt.Errorf("Stepper.Run %s: %w", initial.OrderID, err)
		}
		closed = s.step(ctx, account, inst, initial, step)
	}

	if !closed {
		s.crossSpread(ctx, account, inst, initial)
	}

	return s.finalize(ctx, account, inst, initial.OrderID)
}

// step does one re-quote pass. Returns true once the venue reports the
// order no longer open, which short-circuits the rest of the run.
func (s *Stepper) step(ctx context.Context, account string, inst models.Instrument, initial models.OrderHandle, step int) bool {
	token, err := s.tokens.Token(ctx, account)
	if err != nil {
		logger.Error("stepper %s step %d: token: %v", initial.OrderID, step, err)
		return false
	}

	state, err := s.ex.OrderState(ctx, token, initial.OrderID)
	if err != nil {
		logger.Error("stepper %s step %d: state: %v", initial.OrderID, step, err)
		return false
	}
	if state.Closed() {
		logger.Info("stepper %s: closed on step %d, state=%s filled=%.4f",
			initial.OrderID, step, state.State, state.FilledAmount)
		return true
	}

	quote, err := s.ex.Ticker(ctx, inst.Name)
	if err != nil {
		logger.Error("stepper %s step %d: ticker: %v", initial.OrderID, step, err)
		return false
	}
	if quote.Crossed() || quote.BestBid <= 0 || quote.BestAsk <= 0 {
		// crossed or one-sided book: skip the step instead of
		// interpolating toward garbage
		logger.Warn("stepper %s step %d: unusable book bid=%.6f ask=%.6f",
			initial.OrderID, step, quote.BestBid, quote.BestAsk)
		return false
	}

	target := quote.BestBid
	if initial.Direction == models.Buy {
		target = quote.BestAsk
	}
	raw := initial.Price + (target-initial.Price)*float64(step)/float64(s.maxStep)
	price, _ := quant.CorrectPrice(raw, inst)

	if _, err := s.ex.EditOrder(ctx, token, initial.OrderID, state.Amount, price); err != nil {
		logger.Error("stepper %s step %d: edit to %.6f: %v", initial.OrderID, step, price, err)
		return false
	}
	logger.Info("stepper %s step %d/%d: edited to %.6f", initial.OrderID, step, s.maxStep, price)
	return false
}

// crossSpread is the post-patience edit: buy at best ask, sell at best bid.
func (s *Stepper) crossSpread(ctx context.Context, account string, inst models.Instrument, initial models.OrderHandle) {
	token, err := s.tokens.Token(ctx, account)
	if err != nil {
		logger.Error("stepper %s cross: token: %v", initial.OrderID, err)
		return
	}
	state, err := s.ex.OrderState(ctx, token, initial.OrderID)
	if err != nil {
		logger.Error("stepper %s cross: state: %v", initial.OrderID, err)
		return
	}
	if state.Closed() {
		return
	}
	quote, err := s.ex.Ticker(ctx, inst.Name)
	if err != nil {
		logger.Error("stepper %s cross: ticker: %v", initial.OrderID, err)
		return
	}

	target := quote.BestBid
	if initial.Direction == models.Buy {
		target = quote.BestAsk
	}
	if target <= 0 {
		logger.Warn("stepper %s cross: no opposite side to cross to", initial.OrderID)
		return
	}

	price, _ := quant.CorrectPrice(target, inst)
	if _, err := s.ex.EditOrder(ctx, token, initial.OrderID, state.Amount, price); err != nil {
		logger.Error("stepper %s cross: edit to %.6f: %v", initial.OrderID, price, err)
		return
	}
	logger.Info("stepper %s: crossed the spread at %.6f", initial.OrderID, price)
}

// finalize reads the terminal order state and assembles the outcome with a
// snapshot of the instrument's orders and positions.
func (s *Stepper) finalize(ctx context.Context, account string, inst models.Instrument, orderID string) (models.ExecutionOutcome, error) {
	token, err := s.tokens.Token(ctx, account)
	if err != nil {
		return models.ExecutionOutcome{
			Instrument: inst.Name,
			OrderID:    orderID,
			Message:    fmt.Sprintf("order %s on %s: final state unreadable: %v", orderID, inst.Name, err),
		}, fmt.Errorf("Stepper.finalize %s: token: %w", orderID, err)
	}

	state, err := s.ex.OrderState(ctx, token, orderID)
	if err != nil {
		return models.ExecutionOutcome{
			Instrument: inst.Name,
			OrderID:    orderID,
			Message:    fmt.Sprintf("order %s on %s: final state unreadable: %v", orderID, inst.Name, err),
		}, fmt.Errorf("Stepper.finalize %s: state: %w", orderID, err)
	}

	out := models.ExecutionOutcome{
		Success:      true,
		Instrument:   inst.Name,
		OrderID:      orderID,
		State:        state.State,
		FilledAmount: state.FilledAmount,
		AveragePrice: state.AveragePrice,
		Snapshot:     s.snapshot(ctx, token, inst),
		Message: fmt.Sprintf("order %s on %s: state=%s filled=%.4f avg=%.6f",
			orderID, inst.Name, state.State, state.FilledAmount, state.AveragePrice),
	}
	return out, nil
}

func (s *Stepper) snapshot(ctx context.Context, token string, inst models.Instrument) models.PositionSnapshot {
	var snap models.PositionSnapshot

	orders, err := s.ex.OpenOrders(ctx, token, inst.Name)
	if err != nil {
		logger.Warn("stepper snapshot %s: open orders: %v", inst.Name, err)
	} else {
		snap.OpenOrders = orders
	}

	positions, err := s.ex.Positions(ctx, token, inst.SettlementCurrency, models.KindOption)
	if err != nil {
		logger.Warn("stepper snapshot %s: positions: %v", inst.Name, err)
		return snap
	}
	for _, pos := range positions {
		if pos.Instrument != inst.Name {
			continue
		}
		snap.Positions = append(snap.Positions, pos)
		snap.UnrealizedPnL += pos.TotalPnL - pos.RealizedPnL
		snap.RealizedPnL += pos.RealizedPnL
		snap.NetDelta += pos.Delta
	}
	return snap
}

func waitStep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
