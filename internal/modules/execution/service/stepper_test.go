package service

import (
	"context"
	"errors"
	"os"
	"testing"

	"option_bot/internal/models"
	"option_bot/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

type fakeExchange struct {
	order     models.OrderHandle
	quote     models.Quote
	positions []models.Position

	editPrices  []float64
	stateErr    error
	tickerErr   error
	editErr     error
	fillAtEdit  int // order fills after this many edits (0 = never)
	closeAtPoll int // order reports closed on this state poll (0 = never)
	statePolls  int
}

func (f *fakeExchange) Ticker(context.Context, string) (models.Quote, error) {
	if f.tickerErr != nil {
		return models.Quote{}, f.tickerErr
	}
	return f.quote, nil
}

func (f *fakeExchange) OrderState(context.Context, string, string) (models.OrderHandle, error) {
	if f.stateErr != nil {
		return models.OrderHandle{}, f.stateErr
	}
	f.statePolls++
	if f.closeAtPoll > 0 && f.statePolls >= f.closeAtPoll {
		closed := f.order
		closed.State = models.OrderFilled
		closed.FilledAmount = closed.Amount
		return closed, nil
	}
	return f.order, nil
}

func (f *fakeExchange) EditOrder(_ context.Context, _, _ string, _, price float64) (models.OrderHandle, error) {
	if f.editErr != nil {
		return models.OrderHandle{}, f.editErr
	}
	f.editPrices = append(f.editPrices, price)
	f.order.Price = price
	if f.fillAtEdit > 0 && len(f.editPrices) >= f.fillAtEdit {
		f.order.State = models.OrderFilled
		f.order.FilledAmount = f.order.Amount
		f.order.AveragePrice = price
	}
	return f.order, nil
}

func (f *fakeExchange) OpenOrders(context.Context, string, string) ([]models.OrderHandle, error) {
	if f.order.State == models.OrderOpen {
		return []models.OrderHandle{f.order}, nil
	}
	return nil, nil
}

func (f *fakeExchange) Positions(context.Context, string, string, string) ([]models.Position, error) {
	return f.positions, nil
}

type fakeTokens struct {
	err   error
	calls int
}

func (f *fakeTokens) Token(context.Context, string) (string, error) {
	f.calls++
	return "tok", f.err
}

func testInstrument() models.Instrument {
	return models.Instrument{
		Name:               "BTC-27MAR26-60000-C",
		SettlementCurrency: "BTC",
		TickSize:           0.0005,
		MinTradeAmount:     0.1,
	}
}

func restingBuy() models.OrderHandle {
	return models.OrderHandle{
		OrderID:    "o-1",
		Instrument: "BTC-27MAR26-60000-C",
		Direction:  models.Buy,
		Price:      0.0300,
		Amount:     5,
		State:      models.OrderOpen,
	}
}

func TestStepperInterpolatesTowardAsk(t *testing.T) {
	ex := &fakeExchange{
		order: restingBuy(),
		quote: models.Quote{BestBid: 0.0300, BestAsk: 0.0400},
	}
	s := NewStepper(ex, &fakeTokens{}, 0, 3)

	out, err := s.Run(context.Background(), "main", testInstrument(), restingBuy())
	require.NoError(t, err)
	assert.True(t, out.Success)

	// 3 interpolation edits then the crossing edit at the ask
	require.Len(t, ex.editPrices, 4)
	assert.InDelta(t, 0.0300+0.0100/3, ex.editPrices[0], 0.0005)
	assert.InDelta(t, 0.0300+0.0200/3, ex.editPrices[1], 0.0005)
	assert.Equal(t, 0.0400, ex.editPrices[2])
	assert.Equal(t, 0.0400, ex.editPrices[3])
}

func TestStepperSellInterpolatesTowardBid(t *testing.T) {
	order := restingBuy()
	order.Direction = models.Sell
	order.Price = 0.0400
	ex := &fakeExchange{
		order: order,
		quote: models.Quote{BestBid: 0.0300, BestAsk: 0.0400},
	}
	s := NewStepper(ex, &fakeTokens{}, 0, 2)

	_, err := s.Run(context.Background(), "main", testInstrument(), order)
	require.NoError(t, err)
	require.Len(t, ex.editPrices, 3)
	assert.Equal(t, 0.0350, ex.editPrices[0])
	assert.Equal(t, 0.0300, ex.editPrices[1])
	assert.Equal(t, 0.0300, ex.editPrices[2]) // cross at the bid
}

func TestStepperEditBound(t *testing.T) {
	ex := &fakeExchange{
		order: restingBuy(),
		quote: models.Quote{BestBid: 0.0300, BestAsk: 0.0400},
	}
	s := NewStepper(ex, &fakeTokens{}, 0, 3)

	out, err := s.Run(context.Background(), "main", testInstrument(), restingBuy())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.LessOrEqual(t, len(ex.editPrices), 4, "maxStep edits plus one cross at most")
}

func TestStepperStopsWhenClosedOnFirstPoll(t *testing.T) {
	ex := &fakeExchange{
		order:       restingBuy(),
		quote:       models.Quote{BestBid: 0.0300, BestAsk: 0.0400},
		closeAtPoll: 1,
	}
	s := NewStepper(ex, &fakeTokens{}, 0, 3)

	out, err := s.Run(context.Background(), "main", testInstrument(), restingBuy())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, models.OrderFilled, out.State)
	assert.Empty(t, ex.editPrices, "closed order must not be edited")
}

func TestStepperFillMidRunSkipsCross(t *testing.T) {
	ex := &fakeExchange{
		order:      restingBuy(),
		quote:      models.Quote{BestBid: 0.0300, BestAsk: 0.0400},
		fillAtEdit: 1,
	}
	s := NewStepper(ex, &fakeTokens{}, 0, 3)

	out, err := s.Run(context.Background(), "main", testInstrument(), restingBuy())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, models.OrderFilled, out.State)
	assert.Len(t, ex.editPrices, 1)
	assert.Equal(t, 5.0, out.FilledAmount)
}

func TestStepperSwallowsPerStepErrors(t *testing.T) {
	ex := &fakeExchange{
		order:     restingBuy(),
		quote:     models.Quote{BestBid: 0.0300, BestAsk: 0.0400},
		tickerErr: errors.New("boom"),
	}
	s := NewStepper(ex, &fakeTokens{}, 0, 3)

	out, err := s.Run(context.Background(), "main", testInstrument(), restingBuy())
	require.NoError(t, err, "per-step errors must not abort the run")
	assert.True(t, out.Success)
	assert.Empty(t, ex.editPrices, "no edit possible without a quote")
}

func TestStepperCrossedBookSkipsStep(t *testing.T) {
	ex := &fakeExchange{
		order: restingBuy(),
		quote: models.Quote{BestBid: 0.0500, BestAsk: 0.0400}, // inverted
	}
	s := NewStepper(ex, &fakeTokens{}, 0, 2)

	out, err := s.Run(context.Background(), "main", testInstrument(), restingBuy())
	require.NoError(t, err)
	assert.True(t, out.Success)
	// interpolation steps skipped; the cross still goes to a positive side
	require.Len(t, ex.editPrices, 1)
	assert.Equal(t, 0.0400, ex.editPrices[0])
}

func TestStepperFinalStateUnreadableIsFailure(t *testing.T) {
	ex := &fakeExchange{
		order:    restingBuy(),
		quote:    models.Quote{BestBid: 0.0300, BestAsk: 0.0400},
		stateErr: errors.New("503"),
	}
	s := NewStepper(ex, &fakeTokens{}, 0, 2)

	out, err := s.Run(context.Background(), "main", testInstrument(), restingBuy())
	require.Error(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Message, "final state unreadable")
}

func TestStepperSnapshotAggregates(t *testing.T) {
	ex := &fakeExchange{
		order:       restingBuy(),
		quote:       models.Quote{BestBid: 0.0300, BestAsk: 0.0400},
		closeAtPoll: 1,
		positions: []models.Position{
			{Instrument: "BTC-27MAR26-60000-C", Size: 5, Delta: 1.5, TotalPnL: 0.02, RealizedPnL: 0.005},
			{Instrument: "BTC-27MAR26-70000-C", Size: 1, Delta: 0.2, TotalPnL: 0.5, RealizedPnL: 0.1},
		},
	}
	s := NewStepper(ex, &fakeTokens{}, 0, 1)

	out, err := s.Run(context.Background(), "main", testInstrument(), restingBuy())
	require.NoError(t, err)
	require.Len(t, out.Snapshot.Positions, 1, "snapshot is filtered to the traded instrument")
	assert.InDelta(t, 0.015, out.Snapshot.UnrealizedPnL, 1e-12)
	assert.InDelta(t, 0.005, out.Snapshot.RealizedPnL, 1e-12)
	assert.InDelta(t, 1.5, out.Snapshot.NetDelta, 1e-12)
}
