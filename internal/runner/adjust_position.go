package runner

import (
	"context"
	"fmt"

	"option_bot/internal/models"
	exposure "option_bot/internal/modules/exposure/service"
	selector "option_bot/internal/modules/selector/service"
	"option_bot/internal/quant"
	"option_bot/pkg/logger"

	"github.com/opentracing/opentracing-go"
)

// AdjustPosition rolls an exposure into a replacement contract: select a
// new instrument at the stored "move" delta, close the old position in
// full, open the replacement, and repoint the record. Each stage failure
// comes back as a descriptive result, not a panic.
func (r *Runner) AdjustPosition(ctx context.Context, account string, rec models.ExposureRecord) (models.AdjustmentResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "runner.adjust_position")
	defer span.Finish()
	span.SetTag("account", account)
	span.SetTag("instrument", rec.Instrument)

	fail := func(err error) (models.AdjustmentResult, error) {
		return models.AdjustmentResult{
			OldInstrument: rec.Instrument,
			Message:       err.Error(),
		}, err
	}

	pos, err := r.livePosition(ctx, account, rec.Instrument)
	if err != nil {
		return fail(fmt.Errorf("Runner.AdjustPosition %s: %w", rec.Instrument, err))
	}

	oldInst, err := r.ex.Instrument(ctx, rec.Instrument)
	if err != nil {
		return fail(fmt.Errorf("Runner.AdjustPosition %s: %w", rec.Instrument, err))
	}

	underlying, currency := models.UnderlyingOf(rec.Instrument)
	selReq := selector.Request{
		Currency:     currency,
		MinTenorDays: rec.MinTenorDays,
		TargetDelta:  rec.MoveDelta,
		IsCall:       oldInst.IsCall(),
	}
	if selReq.MinTenorDays <= 0 {
		selReq.MinTenorDays = r.cfg.DefaultMinTenorDays
	}
	if underlying != currency {
		selReq.Underlying = underlying
	}

	cand, err := r.sel.SelectByDelta(ctx, selReq)
	if err != nil {
		return fail(fmt.Errorf("Runner.AdjustPosition: %w", err))
	}
	if cand.SpreadRatio >= r.cfg.SpreadLimit {
		return fail(&models.SpreadTooWideError{
			Instrument: cand.Instrument.Name,
			Ratio:      cand.SpreadRatio,
			Limit:      r.cfg.SpreadLimit,
		})
	}
	if cand.Instrument.Name == rec.Instrument {
		return models.AdjustmentResult{
			Success:       true,
			OldInstrument: rec.Instrument,
			NewInstrument: rec.Instrument,
			Message:       fmt.Sprintf("adjust %s: %s is still the best contract, nothing to roll", account, rec.Instrument),
		}, nil
	}

	// unwind the old leg completely before opening the new one
	closeSize, _ := quant.CorrectAmountUp(pos.Size, oldInst)
	closeOut, err := r.PlaceOptionOrder(ctx, account, PlaceRequest{
		Instrument: rec.Instrument,
		Direction:  pos.Direction.Opposite(),
		Size:       closeSize,
		SizeUnit:   UnitFixed,
		Reduce:     true,
	})
	if err != nil {
		return fail(fmt.Errorf("Runner.AdjustPosition close %s: %w", rec.Instrument, err))
	}

	openOut, err := r.PlaceOptionOrder(ctx, account, PlaceRequest{
		Instrument: cand.Instrument.Name,
		Direction:  pos.Direction,
		Size:       pos.Size,
		SizeUnit:   UnitFixed,
	})
	if err != nil {
		return models.AdjustmentResult{
			OldInstrument: rec.Instrument,
			NewInstrument: cand.Instrument.Name,
			CloseOutcome:  &closeOut,
			OpenOutcome:   &openOut,
			Message:       fmt.Sprintf("adjust %s: closed %s but opening %s failed: %v", account, rec.Instrument, cand.Instrument.Name, err),
		}, err
	}

	// repoint the record at the replacement contract
	newName := cand.Instrument.Name
	orderID := ""
	kind := models.KindPosition
	if openOut.State != models.OrderFilled {
		orderID = openOut.OrderID
		kind = models.KindOrder
	}
	if _, err := r.store.Update(ctx, rec.ID, exposure.UpdateParams{
		Instrument: &newName,
		OrderID:    &orderID,
		Kind:       &kind,
	}); err != nil {
		logger.Error("runner: repoint exposure %d to %s: %v", rec.ID, newName, err)
	}
	r.quotes.Forget(rec.Instrument)

	result := models.AdjustmentResult{
		Success:       true,
		OldInstrument: rec.Instrument,
		NewInstrument: newName,
		CloseOutcome:  &closeOut,
		OpenOutcome:   &openOut,
		Message: fmt.Sprintf("adjusted %s: %s -> %s (delta dist=%.4f spread=%.4f)",
			account, rec.Instrument, newName, cand.DeltaDistance, cand.SpreadRatio),
	}
	r.n.Sendf("🔁 %s", result.Message)
	return result, nil
}
