package runner

import (
	"context"
	"fmt"
	"strings"

	"option_bot/internal/models"
	deribit "option_bot/internal/modules/deribit/service"
	"option_bot/internal/quant"
	"option_bot/pkg/logger"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
)

const (
	UnitCash  = "cash"
	UnitFixed = "fixed"
)

// PlaceRequest describes one trade intent against a concrete instrument.
type PlaceRequest struct {
	Instrument string
	Direction  models.Direction
	Size       float64
	SizeUnit   string // cash = notional in Currency, fixed = contracts
	Currency   string

	// non-zero target/move deltas make this a qualifying opening order
	// that gets an exposure record
	TargetDelta  float64
	MoveDelta    float64
	MinTenorDays int
	SignalID     string

	Reduce bool // closing/reducing: round amount up, no exposure record
	Forced bool // market order, skip the stepping strategy
}

// PlaceOptionOrder resolves size and price, gates on spread width, places
// the order (stepping it when the market is tight) and records exposure.
// Reportable failures come back as a failed outcome plus a typed error;
// nothing is thrown past this boundary.
func (r *Runner) PlaceOptionOrder(ctx context.Context, account string, req PlaceRequest) (models.ExecutionOutcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "runner.place_option_order")
	defer span.Finish()
	span.SetTag("account", account)
	span.SetTag("instrument", req.Instrument)

	fail := func(err error) (models.ExecutionOutcome, error) {
		return models.ExecutionOutcome{
			Instrument: req.Instrument,
			Message:    err.Error(),
		}, err
	}

	inst, err := r.ex.Instrument(ctx, req.Instrument)
	if err != nil {
		return fail(fmt.Errorf("Runner.PlaceOptionOrder: %w", err))
	}
	quote, err := r.ex.Ticker(ctx, req.Instrument)
	if err != nil {
		return fail(fmt.Errorf("Runner.PlaceOptionOrder: %w", err))
	}

	entry := quote.Mid()
	if entry <= 0 {
		return fail(fmt.Errorf("Runner.PlaceOptionOrder %s: no usable price (bid=%.6f ask=%.6f mark=%.6f)",
			req.Instrument, quote.BestBid, quote.BestAsk, quote.MarkPrice))
	}

	amount, err := orderAmount(req, inst, entry, quote.IndexPrice)
	if err != nil {
		return fail(err)
	}

	price, _ := quant.CorrectPrice(entry, inst)
	if req.Reduce {
		amount, _ = quant.CorrectAmountUp(amount, inst)
	} else {
		amount, _ = quant.CorrectAmount(amount, inst)
	}
	if amount <= 0 {
		return fail(&models.InvalidQuantityError{Instrument: req.Instrument, Amount: amount})
	}

	token, err := r.ex.Token(ctx, account)
	if err != nil {
		return fail(fmt.Errorf("Runner.PlaceOptionOrder %s: %w", account, err))
	}

	label := "optbot-" + uuid.NewString()[:8]

	if req.Forced {
		handle, err := r.ex.PlaceOrder(ctx, token, inst.Name, req.Direction, amount, deribit.OrderTypeMarket, 0, label)
		if err != nil {
			return fail(fmt.Errorf("Runner.PlaceOptionOrder market %s: %w", inst.Name, err))
		}
		out := outcomeFromHandle(inst.Name, handle, "market exit")
		r.record(ctx, account, req, out)
		return out, nil
	}

	ratio := quote.SpreadRatio()

	// wide market: a single resting limit, no stepping. Chasing a quote
	// this unreliable only buys worse fills.
	if ratio >= r.cfg.SpreadLimit {
		handle, err := r.ex.PlaceOrder(ctx, token, inst.Name, req.Direction, amount, deribit.OrderTypeLimit, price, label)
		if err != nil {
			return fail(fmt.Errorf("Runner.PlaceOptionOrder wide %s: %w", inst.Name, err))
		}
		out := outcomeFromHandle(inst.Name, handle,
			fmt.Sprintf("wide spread (ratio=%.4f >= %.4f), resting at %.6f", ratio, r.cfg.SpreadLimit, price))
		r.record(ctx, account, req, out)
		return out, nil
	}

	// tight market: start just off the passive side, then step
	initialPrice := initialOffsetPrice(req.Direction, quote, r.cfg.EntryOffset)
	initialPrice, _ = quant.CorrectPrice(initialPrice, inst)

	handle, err := r.ex.PlaceOrder(ctx, token, inst.Name, req.Direction, amount, deribit.OrderTypeLimit, initialPrice, label)
	if err != nil {
		return fail(fmt.Errorf("Runner.PlaceOptionOrder limit %s: %w", inst.Name, err))
	}

	var out models.ExecutionOutcome
	if handle.Closed() {
		out = outcomeFromHandle(inst.Name, handle, "filled on placement")
	} else {
		out, err = r.stepper.Run(ctx, account, inst, handle)
		if err != nil {
			r.record(ctx, account, req, out)
			return out, fmt.Errorf("Runner.PlaceOptionOrder step %s: %w", inst.Name, err)
		}
	}

	r.record(ctx, account, req, out)
	return out, nil
}

// orderAmount converts the requested size into contracts. Cash notional in
// the instrument's own settlement currency passes through untouched;
// otherwise contracts = notional / (option price * index price).
func orderAmount(req PlaceRequest, inst models.Instrument, entry, indexPrice float64) (float64, error) {
	switch req.SizeUnit {
	case UnitCash:
		if strings.EqualFold(inst.SettlementCurrency, req.Currency) {
			return req.Size, nil
		}
		if indexPrice <= 0 {
			return 0, fmt.Errorf("cash conversion for %s: index price %.6f", inst.Name, indexPrice)
		}
		return req.Size / (entry * indexPrice), nil
	case UnitFixed, "":
		return req.Size, nil
	default:
		return 0, fmt.Errorf("unknown size unit %q for %s", req.SizeUnit, inst.Name)
	}
}

// initialOffsetPrice sits the first limit a fraction of the spread off the
// passive side.
func initialOffsetPrice(dir models.Direction, quote models.Quote, offset float64) float64 {
	spread := quote.BestAsk - quote.BestBid
	if dir == models.Buy {
		return quote.BestBid + offset*spread
	}
	return quote.BestAsk - offset*spread
}

func outcomeFromHandle(instrument string, handle models.OrderHandle, note string) models.ExecutionOutcome {
	return models.ExecutionOutcome{
		Success:      true,
		Instrument:   instrument,
		OrderID:      handle.OrderID,
		State:        handle.State,
		FilledAmount: handle.FilledAmount,
		AveragePrice: handle.AveragePrice,
		Message: fmt.Sprintf("order %s on %s: %s, state=%s filled=%.4f",
			handle.OrderID, instrument, note, handle.State, handle.FilledAmount),
	}
}

// record writes or refreshes the exposure row for a qualifying opening
// order. Store trouble is logged, never allowed to fail the trade itself.
func (r *Runner) record(ctx context.Context, account string, req PlaceRequest, out models.ExecutionOutcome) {
	if req.Reduce || (req.TargetDelta == 0 && req.MoveDelta == 0) {
		return
	}
	if out.OrderID == "" {
		return
	}

	rec := models.ExposureRecord{
		Account:      account,
		Instrument:   req.Instrument,
		TargetDelta:  req.TargetDelta,
		MoveDelta:    req.MoveDelta,
		MinTenorDays: req.MinTenorDays,
		SignalID:     req.SignalID,
		Kind:         models.KindPosition,
	}
	if out.State != models.OrderFilled {
		rec.Kind = models.KindOrder
		rec.OrderID = out.OrderID
	}

	if _, err := r.store.Upsert(ctx, rec); err != nil {
		logger.Error("runner: record exposure %s/%s: %v", account, req.Instrument, err)
	}
}
