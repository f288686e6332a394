package runner

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"option_bot/internal/models"
	exposure "option_bot/internal/modules/exposure/service"
	"option_bot/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// QuoteStream restarts the websocket subscription when the watched
// instrument set changes.
type QuoteStream interface {
	Stream(ctx context.Context, instruments []string, out chan<- models.Quote)
}

// Watch reconciles stored exposure against the venue on a fixed interval:
// promotes filled resting orders, purges dead ones, and triggers the
// adjustment workflow when live delta drifts past the stored threshold.
// Accounts run in bounded parallel batches; ordering holds only within one
// account.
func (r *Runner) Watch(ctx context.Context, stream QuoteStream) {
	t := time.NewTicker(r.cfg.WatchInterval)
	defer t.Stop()

	for {
		r.reconcile(ctx, stream)
		select {
		case <-ctx.Done():
			if r.streamCancel != nil {
				r.streamCancel()
			}
			return
		case <-t.C:
		}
	}
}

func (r *Runner) reconcile(ctx context.Context, stream QuoteStream) {
	if aggs, err := r.store.AggregateByAccount(ctx); err == nil {
		for _, agg := range aggs {
			logger.Info("exposure %s: %d records, sum|target|=%.4f", agg.Key, agg.Records, agg.AbsTargetSum)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.WatchParallel)
	for _, acc := range r.cfg.Accounts {
		acc := acc
		g.Go(func() error {
			r.reconcileAccount(gctx, acc.Name)
			return nil
		})
	}
	_ = g.Wait()

	if purged, err := r.store.PurgeStaleOrders(ctx, r.cfg.OrderTTL); err != nil {
		logger.Error("watcher: purge stale orders: %v", err)
	} else if purged > 0 {
		logger.Info("watcher: purged %d stale order records", purged)
	}

	r.refreshStream(ctx, stream)
}

// reconcileAccount walks one account's records sequentially.
func (r *Runner) reconcileAccount(ctx context.Context, account string) {
	recs, err := r.store.Query(ctx, models.ExposureFilter{Account: account})
	if err != nil {
		logger.Error("watcher %s: query exposures: %v", account, err)
		return
	}

	for _, rec := range recs {
		switch rec.Kind {
		case models.KindOrder:
			r.reconcileOrder(ctx, account, rec)
		case models.KindPosition:
			r.reconcilePosition(ctx, account, rec)
		}
	}
}

// reconcileOrder promotes a filled resting order to a position record and
// drops records whose order died on the venue.
func (r *Runner) reconcileOrder(ctx context.Context, account string, rec models.ExposureRecord) {
	token, err := r.ex.Token(ctx, account)
	if err != nil {
		logger.Error("watcher %s: token: %v", account, err)
		return
	}
	state, err := r.ex.OrderState(ctx, token, rec.OrderID)
	if err != nil {
		logger.Error("watcher %s: order %s state: %v", account, rec.OrderID, err)
		return
	}

	switch state.State {
	case models.OrderFilled:
		orderID := ""
		kind := models.KindPosition
		if _, err := r.store.Update(ctx, rec.ID, exposure.UpdateParams{
			OrderID: &orderID,
			Kind:    &kind,
		}); err != nil {
			logger.Error("watcher %s: promote %d: %v", account, rec.ID, err)
			return
		}
		logger.Info("watcher %s: order %s filled, exposure %d now a position", account, rec.OrderID, rec.ID)
	case models.OrderCancelled, models.OrderRejected:
		if err := r.store.Delete(ctx, rec.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
			logger.Error("watcher %s: drop dead order %d: %v", account, rec.ID, err)
			return
		}
		logger.Info("watcher %s: order %s is %s, exposure %d dropped", account, rec.OrderID, state.State, rec.ID)
	}
}

// reconcilePosition fires the adjustment workflow once the live
// per-contract delta has drifted from the stored move threshold by more
// than the stored target.
func (r *Runner) reconcilePosition(ctx context.Context, account string, rec models.ExposureRecord) {
	quote, ok := r.quotes.Latest(rec.Instrument)
	if !ok {
		var err error
		quote, err = r.ex.Ticker(ctx, rec.Instrument)
		if err != nil {
			logger.Error("watcher %s: ticker %s: %v", account, rec.Instrument, err)
			return
		}
	}

	drift := math.Abs(math.Abs(quote.Delta) - math.Abs(rec.MoveDelta))
	if drift <= math.Abs(rec.TargetDelta) {
		return
	}

	logger.Info("watcher %s: %s delta=%.4f move=%.4f drift=%.4f, adjusting",
		account, rec.Instrument, quote.Delta, rec.MoveDelta, drift)

	if _, err := r.AdjustPosition(ctx, account, rec); err != nil {
		if models.IsReportable(err) {
			logger.Warn("watcher %s: adjust %s deferred: %v", account, rec.Instrument, err)
			return
		}
		logger.Error("watcher %s: adjust %s: %v", account, rec.Instrument, err)
	}
}

// refreshStream re-subscribes the ticker stream when the set of watched
// position instruments changed since the last cycle.
func (r *Runner) refreshStream(ctx context.Context, stream QuoteStream) {
	recs, err := r.store.Query(ctx, models.ExposureFilter{Kind: models.KindPosition})
	if err != nil {
		logger.Error("watcher: query positions for stream: %v", err)
		return
	}

	seen := make(map[string]struct{}, len(recs))
	var names []string
	for _, rec := range recs {
		if _, ok := seen[rec.Instrument]; ok {
			continue
		}
		seen[rec.Instrument] = struct{}{}
		names = append(names, rec.Instrument)
	}
	sort.Strings(names)

	if equalStrings(names, r.streamed) {
		return
	}
	if r.streamCancel != nil {
		r.streamCancel()
	}
	r.streamed = names
	if len(names) == 0 {
		r.streamCancel = nil
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)
	r.streamCancel = cancel
	out := make(chan models.Quote, 64)
	go stream.Stream(streamCtx, names, out)
	go func() {
		// the ws client keeps its own latest-quote cache; the pushes
		// only need draining
		for range out {
		}
	}()
	logger.Info("watcher: streaming %d instruments", len(names))
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
