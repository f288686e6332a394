package runner

import (
	"context"
	"errors"
	"fmt"

	"option_bot/internal/models"
	"option_bot/internal/quant"
	"option_bot/pkg/logger"

	"github.com/opentracing/opentracing-go"
)

// CloseBySignalID unwinds the position recorded under a signal id. ratio in
// (0,1] is the fraction of the live position to close; 1 removes the
// exposure record as well. forced skips the stepping strategy and exits at
// market.
func (r *Runner) CloseBySignalID(ctx context.Context, account, signalID string, ratio float64, forced bool) (models.CloseResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "runner.close_by_signal")
	defer span.Finish()
	span.SetTag("account", account)
	span.SetTag("signal_id", signalID)

	fail := func(instrument string, err error) (models.CloseResult, error) {
		return models.CloseResult{Instrument: instrument, Message: err.Error()}, err
	}

	if ratio <= 0 || ratio > 1 {
		return fail("", fmt.Errorf("Runner.CloseBySignalID %s: ratio %.4f outside (0,1]", signalID, ratio))
	}

	rec, err := r.store.GetBySignal(ctx, account, signalID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fail("", fmt.Errorf("Runner.CloseBySignalID: no exposure for %s/%s: %w", account, signalID, err))
		}
		return fail("", fmt.Errorf("Runner.CloseBySignalID %s: %w", signalID, err))
	}

	pos, err := r.livePosition(ctx, account, rec.Instrument)
	if err != nil {
		return fail(rec.Instrument, fmt.Errorf("Runner.CloseBySignalID %s: %w", rec.Instrument, err))
	}

	// closing into a bad market is deferred, not forced
	quote, err := r.ex.Ticker(ctx, rec.Instrument)
	if err != nil {
		return fail(rec.Instrument, fmt.Errorf("Runner.CloseBySignalID %s: %w", rec.Instrument, err))
	}
	if sr := quote.SpreadRatio(); !forced && sr >= r.cfg.SpreadLimit {
		return fail(rec.Instrument, &models.SpreadTooWideError{
			Instrument: rec.Instrument, Ratio: sr, Limit: r.cfg.SpreadLimit,
		})
	}

	inst, err := r.ex.Instrument(ctx, rec.Instrument)
	if err != nil {
		return fail(rec.Instrument, fmt.Errorf("Runner.CloseBySignalID %s: %w", rec.Instrument, err))
	}
	closeAmount, _ := quant.CorrectAmountUp(pos.Size*ratio, inst)

	out, err := r.PlaceOptionOrder(ctx, account, PlaceRequest{
		Instrument: rec.Instrument,
		Direction:  pos.Direction.Opposite(),
		Size:       closeAmount,
		SizeUnit:   UnitFixed,
		Reduce:     true,
		Forced:     forced,
	})
	if err != nil {
		return models.CloseResult{
			Instrument: rec.Instrument,
			Message:    out.Message,
			Outcome:    &out,
		}, err
	}

	result := models.CloseResult{
		Success:      true,
		Instrument:   rec.Instrument,
		ClosedAmount: closeAmount,
		Outcome:      &out,
		Message: fmt.Sprintf("close %s %s: ratio=%.2f amount=%.4f state=%s",
			account, rec.Instrument, ratio, closeAmount, out.State),
	}

	if ratio >= 1 {
		if err := r.store.Delete(ctx, rec.ID); err != nil {
			logger.Error("runner: delete exposure %d after full close: %v", rec.ID, err)
		} else {
			result.RecordDeleted = true
			r.quotes.Forget(rec.Instrument)
		}
	}

	r.n.Sendf("✅ %s", result.Message)
	return result, nil
}

// livePosition finds the account's open position on one instrument.
func (r *Runner) livePosition(ctx context.Context, account, instrument string) (models.Position, error) {
	token, err := r.ex.Token(ctx, account)
	if err != nil {
		return models.Position{}, err
	}
	_, currency := models.UnderlyingOf(instrument)
	positions, err := r.ex.Positions(ctx, token, currency, models.KindOption)
	if err != nil {
		return models.Position{}, err
	}
	for _, pos := range positions {
		if pos.Instrument == instrument && pos.Size > 0 {
			return pos, nil
		}
	}
	return models.Position{}, fmt.Errorf("no live position on %s: %w", instrument, models.ErrNotFound)
}
