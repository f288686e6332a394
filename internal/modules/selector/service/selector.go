package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"option_bot/internal/models"
	"option_bot/pkg/logger"
)

// MarketData is the slice of the exchange the selector needs.
type MarketData interface {
	Instruments(ctx context.Context, currency, kind string) ([]models.Instrument, error)
	Ticker(ctx context.Context, instrument string) (models.Quote, error)
}

// Selector picks the single tradable contract closest to a target delta.
// Quotes are fetched only for the two nearest distinct expiries, which
// bounds API fan-out no matter how long the option chain is.
type Selector struct {
	market MarketData
	now    func() time.Time
}

func NewSelector(market MarketData) *Selector {
	return &Selector{
		market: market,
		now:    time.Now,
	}
}

// Request describes what contract to look for.
type Request struct {
	Currency     string
	Underlying   string // optional, for multi-underlying settlement currencies
	MinTenorDays int
	TargetDelta  float64
	IsCall       bool
}

// SelectByDelta returns the best candidate or a NoContractError. The error
// is an expected outcome: callers report it, never synthesize a contract.
func (s *Selector) SelectByDelta(ctx context.Context, req Request) (models.Candidate, error) {
	notFound := func(reason string) error {
		return &models.NoContractError{
			Currency:     req.Currency,
			Underlying:   req.Underlying,
			TargetDelta:  req.TargetDelta,
			MinTenorDays: req.MinTenorDays,
			Reason:       reason,
		}
	}

	instruments, err := s.market.Instruments(ctx, req.Currency, models.KindOption)
	if err != nil {
		return models.Candidate{}, fmt.Errorf("Selector.SelectByDelta %s: %w", req.Currency, err)
	}
	if len(instruments) == 0 {
		return models.Candidate{}, notFound("no live instruments")
	}

	minExpiry := s.now().Add(time.Duration(req.MinTenorDays) * 24 * time.Hour)

	matched := 0
	groups := make(map[int64][]models.Instrument)
	for _, inst := range instruments {
		if inst.IsCall() != req.IsCall {
			continue
		}
		if req.Underlying != "" && !strings.HasPrefix(inst.Name, req.Underlying+"-") {
			continue
		}
		matched++
		if inst.Expiry.Before(minExpiry) {
			continue
		}
		key := inst.Expiry.UnixMilli()
		groups[key] = append(groups[key], inst)
	}
	if matched == 0 {
		return models.Candidate{}, notFound("no instrument of the requested side")
	}
	if len(groups) == 0 {
		return models.Candidate{}, notFound(fmt.Sprintf("no expiry at least %dd out", req.MinTenorDays))
	}

	// two nearest distinct expiries, not two nearest instruments
	expiries := make([]int64, 0, len(groups))
	for key := range groups {
		expiries = append(expiries, key)
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i] < expiries[j] })
	if len(expiries) > 2 {
		expiries = expiries[:2]
	}

	var pool []models.Candidate
	for _, key := range expiries {
		pool = append(pool, s.rankGroup(ctx, groups[key], req.TargetDelta)...)
	}
	if len(pool) == 0 {
		return models.Candidate{}, notFound("no quotable instrument in the two nearest expiries")
	}

	// degenerate books out: ratio 0 or >=1 means bad/missing quote data
	best := models.Candidate{}
	found := false
	for _, cand := range pool {
		if cand.SpreadRatio <= 0 || cand.SpreadRatio >= 1 {
			continue
		}
		if !found ||
			cand.DeltaDistance < best.DeltaDistance ||
			(cand.DeltaDistance == best.DeltaDistance && cand.SpreadRatio < best.SpreadRatio) {
			best = cand
			found = true
		}
	}
	if !found {
		return models.Candidate{}, notFound(fmt.Sprintf("all %d finalists have a degenerate spread", len(pool)))
	}
	return best, nil
}

// rankGroup quotes one expiry group and keeps its two best-distance
// candidates. Quote failures skip the instrument, they never abort the run.
func (s *Selector) rankGroup(ctx context.Context, group []models.Instrument, targetDelta float64) []models.Candidate {
	cands := make([]models.Candidate, 0, len(group))
	for _, inst := range group {
		quote, err := s.market.Ticker(ctx, inst.Name)
		if err != nil {
			logger.Warn("selector: ticker %s: %v", inst.Name, err)
			continue
		}
		cands = append(cands, models.Candidate{
			Instrument:    inst,
			Quote:         quote,
			DeltaDistance: math.Abs(quote.Delta - targetDelta),
			SpreadRatio:   quote.SpreadRatio(),
		})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].DeltaDistance < cands[j].DeltaDistance })
	if len(cands) > 2 {
		cands = cands[:2]
	}
	return cands
}
