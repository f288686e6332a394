package runner

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"option_bot/internal/models"
	"option_bot/internal/modules/config"
	deribit "option_bot/internal/modules/deribit/service"
	exposure "option_bot/internal/modules/exposure/service"
	selector "option_bot/internal/modules/selector/service"
	"option_bot/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

type placedOrder struct {
	instrument string
	direction  models.Direction
	amount     float64
	orderType  string
	price      float64
}

type fakeExchange struct {
	insts     map[string]models.Instrument
	quotes    map[string]models.Quote
	positions []models.Position

	placed     []placedOrder
	placeState string // state handed back on placement, filled when empty
	placeErr   error
	orderState models.OrderHandle
	stateErr   error
}

func (f *fakeExchange) Token(context.Context, string) (string, error) { return "tok", nil }

func (f *fakeExchange) Instrument(_ context.Context, name string) (models.Instrument, error) {
	inst, ok := f.insts[name]
	if !ok {
		return models.Instrument{}, fmt.Errorf("instrument %s: %w", name, models.ErrNotFound)
	}
	return inst, nil
}

func (f *fakeExchange) Ticker(_ context.Context, instrument string) (models.Quote, error) {
	q, ok := f.quotes[instrument]
	if !ok {
		return models.Quote{}, fmt.Errorf("ticker %s: %w", instrument, models.ErrNotFound)
	}
	return q, nil
}

func (f *fakeExchange) PlaceOrder(_ context.Context, _, instrument string, direction models.Direction,
	amount float64, orderType string, price float64, _ string) (models.OrderHandle, error) {
	if f.placeErr != nil {
		return models.OrderHandle{}, f.placeErr
	}
	f.placed = append(f.placed, placedOrder{instrument, direction, amount, orderType, price})
	state := f.placeState
	if state == "" {
		state = models.OrderFilled
	}
	h := models.OrderHandle{
		OrderID:    fmt.Sprintf("ord-%d", len(f.placed)),
		Instrument: instrument,
		Direction:  direction,
		Price:      price,
		Amount:     amount,
		State:      state,
	}
	if state == models.OrderFilled {
		h.FilledAmount = amount
		h.AveragePrice = price
	}
	return h, nil
}

func (f *fakeExchange) OrderState(context.Context, string, string) (models.OrderHandle, error) {
	return f.orderState, f.stateErr
}

func (f *fakeExchange) Positions(context.Context, string, string, string) ([]models.Position, error) {
	return f.positions, nil
}

type update struct {
	id     int64
	params exposure.UpdateParams
}

type fakeStore struct {
	recs    []models.ExposureRecord
	upserts []models.ExposureRecord
	updates []update
	deleted []int64
}

func (f *fakeStore) Create(_ context.Context, rec models.ExposureRecord) (models.ExposureRecord, error) {
	f.recs = append(f.recs, rec)
	return rec, nil
}

func (f *fakeStore) Upsert(_ context.Context, rec models.ExposureRecord) (models.ExposureRecord, error) {
	f.upserts = append(f.upserts, rec)
	return rec, nil
}

func (f *fakeStore) Update(_ context.Context, id int64, p exposure.UpdateParams) (models.ExposureRecord, error) {
	f.updates = append(f.updates, update{id, p})
	return models.ExposureRecord{ID: id}, nil
}

func (f *fakeStore) Delete(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) Query(_ context.Context, flt models.ExposureFilter) ([]models.ExposureRecord, error) {
	var out []models.ExposureRecord
	for _, rec := range f.recs {
		if flt.Account != "" && rec.Account != flt.Account {
			continue
		}
		if flt.Kind != "" && rec.Kind != flt.Kind {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeStore) GetBySignal(_ context.Context, account, signalID string) (models.ExposureRecord, error) {
	for _, rec := range f.recs {
		if rec.Account == account && rec.SignalID == signalID {
			return rec, nil
		}
	}
	return models.ExposureRecord{}, models.ErrNotFound
}

func (f *fakeStore) PurgeStaleOrders(context.Context, time.Duration) (int64, error) { return 0, nil }

func (f *fakeStore) AggregateByAccount(context.Context) ([]models.ExposureAggregate, error) {
	return nil, nil
}

type fakeSelector struct {
	cand    models.Candidate
	err     error
	calls   int
	lastReq selector.Request
}

func (f *fakeSelector) SelectByDelta(_ context.Context, req selector.Request) (models.Candidate, error) {
	f.calls++
	f.lastReq = req
	return f.cand, f.err
}

type fakeStepper struct {
	runs    int
	outcome models.ExecutionOutcome
	err     error
}

func (f *fakeStepper) Run(_ context.Context, _ string, inst models.Instrument, initial models.OrderHandle) (models.ExecutionOutcome, error) {
	f.runs++
	out := f.outcome
	if out.Instrument == "" {
		out.Instrument = inst.Name
	}
	if out.OrderID == "" {
		out.OrderID = initial.OrderID
	}
	return out, f.err
}

type fakeNotifier struct{ msgs []string }

func (f *fakeNotifier) Send(msg string) { f.msgs = append(f.msgs, msg) }
func (f *fakeNotifier) Sendf(format string, args ...any) {
	f.Send(fmt.Sprintf(format, args...))
}

type fakeQuotes struct {
	latest    map[string]models.Quote
	forgotten []string
}

func (f *fakeQuotes) Latest(instrument string) (models.Quote, bool) {
	q, ok := f.latest[instrument]
	return q, ok
}

func (f *fakeQuotes) Forget(instruments ...string) {
	f.forgotten = append(f.forgotten, instruments...)
}

func testConfig() *config.Config {
	return &config.Config{
		Accounts:            []config.Account{{Name: "main"}},
		SpreadLimit:         0.15,
		EntryOffset:         0.2,
		WatchInterval:       time.Minute,
		WatchParallel:       2,
		OrderTTL:            24 * time.Hour,
		DefaultMinTenorDays: 7,
	}
}

func testInstrument(name, settlement string) models.Instrument {
	return models.Instrument{
		Name:               name,
		SettlementCurrency: settlement,
		OptionType:         models.OptionCall,
		TickSize:           0.0001,
		MinTradeAmount:     0.1,
		ContractSize:       1,
	}
}

type harness struct {
	r  *Runner
	ex *fakeExchange
	st *fakeStore
	sl *fakeSelector
	sp *fakeStepper
	n  *fakeNotifier
	q  *fakeQuotes
}

func newHarness() *harness {
	h := &harness{
		ex: &fakeExchange{insts: map[string]models.Instrument{}, quotes: map[string]models.Quote{}},
		st: &fakeStore{},
		sl: &fakeSelector{},
		sp: &fakeStepper{},
		n:  &fakeNotifier{},
		q:  &fakeQuotes{latest: map[string]models.Quote{}},
	}
	h.r = New(testConfig(), h.ex, h.st, h.sl, h.sp, h.n, h.q)
	return h
}

const btcCall = "BTC-26DEC25-50000-C"

func TestPlaceCashSameSettlementPassesThrough(t *testing.T) {
	h := newHarness()
	name := "SOL_USDC-26DEC25-120-C"
	h.ex.insts[name] = testInstrument(name, "USDC")
	h.ex.quotes[name] = models.Quote{BestBid: 2.0, BestAsk: 3.0} // ratio 0.2, wide
	h.ex.placeState = models.OrderOpen

	out, err := h.r.PlaceOptionOrder(context.Background(), "main", PlaceRequest{
		Instrument:  name,
		Direction:   models.Buy,
		Size:        25,
		SizeUnit:    UnitCash,
		Currency:    "usdc",
		TargetDelta: 0.3,
		MoveDelta:   0.4,
	})
	require.NoError(t, err)
	require.True(t, out.Success)

	require.Len(t, h.ex.placed, 1)
	p := h.ex.placed[0]
	assert.Equal(t, deribit.OrderTypeLimit, p.orderType)
	assert.InDelta(t, 25.0, p.amount, 1e-12)
	assert.InDelta(t, 2.5, p.price, 1e-12)
	assert.Equal(t, 0, h.sp.runs, "wide market never steps")

	require.Len(t, h.st.upserts, 1)
	assert.Equal(t, models.KindOrder, h.st.upserts[0].Kind)
	assert.Equal(t, out.OrderID, h.st.upserts[0].OrderID)
}

func TestPlaceCashConvertsThroughIndex(t *testing.T) {
	h := newHarness()
	h.ex.insts[btcCall] = testInstrument(btcCall, "BTC")
	h.ex.quotes[btcCall] = models.Quote{BestBid: 0.04, BestAsk: 0.06, IndexPrice: 50000} // ratio 0.2, wide

	_, err := h.r.PlaceOptionOrder(context.Background(), "main", PlaceRequest{
		Instrument: btcCall,
		Direction:  models.Buy,
		Size:       250, // USD notional: 250 / (0.05 * 50000) = 0.1 contracts
		SizeUnit:   UnitCash,
		Currency:   "USD",
	})
	require.NoError(t, err)
	require.Len(t, h.ex.placed, 1)
	assert.InDelta(t, 0.1, h.ex.placed[0].amount, 1e-9)
}

func TestPlaceTightSpreadStartsOffsetAndSteps(t *testing.T) {
	h := newHarness()
	h.ex.insts[btcCall] = testInstrument(btcCall, "BTC")
	h.ex.quotes[btcCall] = models.Quote{BestBid: 0.0300, BestAsk: 0.0320} // ratio ~0.032, tight
	h.ex.placeState = models.OrderOpen
	h.sp.outcome = models.ExecutionOutcome{Success: true, State: models.OrderFilled, FilledAmount: 1}

	out, err := h.r.PlaceOptionOrder(context.Background(), "main", PlaceRequest{
		Instrument:  btcCall,
		Direction:   models.Buy,
		Size:        1,
		SizeUnit:    UnitFixed,
		TargetDelta: 0.3,
		MoveDelta:   0.4,
	})
	require.NoError(t, err)
	require.True(t, out.Success)

	require.Len(t, h.ex.placed, 1)
	assert.InDelta(t, 0.0304, h.ex.placed[0].price, 1e-12, "bid + 0.2 of the spread")
	assert.Equal(t, 1, h.sp.runs)

	require.Len(t, h.st.upserts, 1)
	assert.Equal(t, models.KindPosition, h.st.upserts[0].Kind, "stepper reported a fill")
	assert.Empty(t, h.st.upserts[0].OrderID)
}

func TestPlaceForcedGoesToMarket(t *testing.T) {
	h := newHarness()
	h.ex.insts[btcCall] = testInstrument(btcCall, "BTC")
	h.ex.quotes[btcCall] = models.Quote{BestBid: 0.0300, BestAsk: 0.0320}

	_, err := h.r.PlaceOptionOrder(context.Background(), "main", PlaceRequest{
		Instrument: btcCall,
		Direction:  models.Sell,
		Size:       1,
		SizeUnit:   UnitFixed,
		Forced:     true,
	})
	require.NoError(t, err)
	require.Len(t, h.ex.placed, 1)
	assert.Equal(t, deribit.OrderTypeMarket, h.ex.placed[0].orderType)
	assert.Zero(t, h.ex.placed[0].price)
	assert.Equal(t, 0, h.sp.runs)
}

func TestPlaceSkipsRecordForReduceAndZeroDeltas(t *testing.T) {
	h := newHarness()
	h.ex.insts[btcCall] = testInstrument(btcCall, "BTC")
	h.ex.quotes[btcCall] = models.Quote{BestBid: 0.0300, BestAsk: 0.0320}

	_, err := h.r.PlaceOptionOrder(context.Background(), "main", PlaceRequest{
		Instrument:  btcCall,
		Direction:   models.Sell,
		Size:        1,
		SizeUnit:    UnitFixed,
		TargetDelta: 0.3,
		MoveDelta:   0.4,
		Reduce:      true,
	})
	require.NoError(t, err)

	_, err = h.r.PlaceOptionOrder(context.Background(), "main", PlaceRequest{
		Instrument: btcCall,
		Direction:  models.Buy,
		Size:       1,
		SizeUnit:   UnitFixed,
	})
	require.NoError(t, err)

	assert.Empty(t, h.st.upserts)
}

func TestPlaceRejectsVanishingAmount(t *testing.T) {
	h := newHarness()
	h.ex.insts[btcCall] = testInstrument(btcCall, "BTC")
	h.ex.quotes[btcCall] = models.Quote{BestBid: 0.0300, BestAsk: 0.0320}

	out, err := h.r.PlaceOptionOrder(context.Background(), "main", PlaceRequest{
		Instrument: btcCall,
		Direction:  models.Buy,
		Size:       0.04, // rounds to zero against the 0.1 lot
		SizeUnit:   UnitFixed,
	})
	require.Error(t, err)
	var iq *models.InvalidQuantityError
	assert.ErrorAs(t, err, &iq)
	assert.False(t, out.Success)
	assert.Empty(t, h.ex.placed)
}

func TestCloseBySignalPartialKeepsRecord(t *testing.T) {
	h := newHarness()
	h.ex.insts[btcCall] = testInstrument(btcCall, "BTC")
	h.ex.quotes[btcCall] = models.Quote{BestBid: 0.0300, BestAsk: 0.0302}
	h.ex.positions = []models.Position{{Instrument: btcCall, Size: 10, Direction: models.Buy}}
	h.st.recs = []models.ExposureRecord{{
		ID: 7, Account: "main", Instrument: btcCall, SignalID: "sig-1", Kind: models.KindPosition,
	}}

	res, err := h.r.CloseBySignalID(context.Background(), "main", "sig-1", 0.5, false)
	require.NoError(t, err)
	require.True(t, res.Success)

	require.Len(t, h.ex.placed, 1)
	assert.Equal(t, models.Sell, h.ex.placed[0].direction)
	assert.InDelta(t, 5.0, h.ex.placed[0].amount, 1e-12)
	assert.InDelta(t, 5.0, res.ClosedAmount, 1e-12)
	assert.False(t, res.RecordDeleted)
	assert.Empty(t, h.st.deleted)
	assert.NotEmpty(t, h.n.msgs)
}

func TestCloseBySignalFullDropsRecord(t *testing.T) {
	h := newHarness()
	h.ex.insts[btcCall] = testInstrument(btcCall, "BTC")
	h.ex.quotes[btcCall] = models.Quote{BestBid: 0.0300, BestAsk: 0.0302}
	h.ex.positions = []models.Position{{Instrument: btcCall, Size: 10, Direction: models.Buy}}
	h.st.recs = []models.ExposureRecord{{
		ID: 7, Account: "main", Instrument: btcCall, SignalID: "sig-1", Kind: models.KindPosition,
	}}

	res, err := h.r.CloseBySignalID(context.Background(), "main", "sig-1", 1, false)
	require.NoError(t, err)
	assert.True(t, res.RecordDeleted)
	assert.Equal(t, []int64{7}, h.st.deleted)
	assert.Contains(t, h.q.forgotten, btcCall)
	require.Len(t, h.ex.placed, 1)
	assert.InDelta(t, 10.0, h.ex.placed[0].amount, 1e-12)
}

func TestCloseDefersOnWideSpreadUnlessForced(t *testing.T) {
	h := newHarness()
	h.ex.insts[btcCall] = testInstrument(btcCall, "BTC")
	h.ex.quotes[btcCall] = models.Quote{BestBid: 2.0, BestAsk: 3.0} // ratio 0.2
	h.ex.positions = []models.Position{{Instrument: btcCall, Size: 10, Direction: models.Buy}}
	h.st.recs = []models.ExposureRecord{{
		ID: 7, Account: "main", Instrument: btcCall, SignalID: "sig-1", Kind: models.KindPosition,
	}}

	_, err := h.r.CloseBySignalID(context.Background(), "main", "sig-1", 1, false)
	var wide *models.SpreadTooWideError
	require.ErrorAs(t, err, &wide)
	assert.Empty(t, h.ex.placed)

	res, err := h.r.CloseBySignalID(context.Background(), "main", "sig-1", 1, true)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, h.ex.placed, 1)
	assert.Equal(t, deribit.OrderTypeMarket, h.ex.placed[0].orderType)
}

func TestCloseRejectsBadRatio(t *testing.T) {
	h := newHarness()
	for _, ratio := range []float64{0, -0.5, 1.2} {
		_, err := h.r.CloseBySignalID(context.Background(), "main", "sig-1", ratio, false)
		assert.Error(t, err, "ratio %v", ratio)
	}
	assert.Empty(t, h.ex.placed)
}

func TestCloseUnknownSignalIsNotFound(t *testing.T) {
	h := newHarness()
	_, err := h.r.CloseBySignalID(context.Background(), "main", "nope", 1, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAdjustSameContractIsNoop(t *testing.T) {
	h := newHarness()
	h.ex.insts[btcCall] = testInstrument(btcCall, "BTC")
	h.ex.positions = []models.Position{{Instrument: btcCall, Size: 2, Direction: models.Buy}}
	h.sl.cand = models.Candidate{Instrument: testInstrument(btcCall, "BTC"), SpreadRatio: 0.01}

	rec := models.ExposureRecord{ID: 3, Account: "main", Instrument: btcCall,
		TargetDelta: 0.05, MoveDelta: 0.3, Kind: models.KindPosition}
	res, err := h.r.AdjustPosition(context.Background(), "main", rec)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, res.OldInstrument, res.NewInstrument)
	assert.Empty(t, h.ex.placed)
	assert.Empty(t, h.st.updates)
}

func TestAdjustRollsIntoReplacement(t *testing.T) {
	h := newHarness()
	next := "BTC-27MAR26-60000-C"
	h.ex.insts[btcCall] = testInstrument(btcCall, "BTC")
	h.ex.insts[next] = testInstrument(next, "BTC")
	h.ex.quotes[btcCall] = models.Quote{BestBid: 0.0300, BestAsk: 0.0302}
	h.ex.quotes[next] = models.Quote{BestBid: 0.0500, BestAsk: 0.0502}
	h.ex.positions = []models.Position{{Instrument: btcCall, Size: 2, Direction: models.Buy}}
	h.sl.cand = models.Candidate{Instrument: testInstrument(next, "BTC"), SpreadRatio: 0.002, DeltaDistance: 0.01}

	rec := models.ExposureRecord{ID: 3, Account: "main", Instrument: btcCall,
		TargetDelta: 0.05, MoveDelta: 0.3, MinTenorDays: 14, Kind: models.KindPosition}
	res, err := h.r.AdjustPosition(context.Background(), "main", rec)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, btcCall, res.OldInstrument)
	assert.Equal(t, next, res.NewInstrument)

	require.Len(t, h.ex.placed, 2)
	assert.Equal(t, btcCall, h.ex.placed[0].instrument)
	assert.Equal(t, models.Sell, h.ex.placed[0].direction)
	assert.InDelta(t, 2.0, h.ex.placed[0].amount, 1e-12)
	assert.Equal(t, next, h.ex.placed[1].instrument)
	assert.Equal(t, models.Buy, h.ex.placed[1].direction)
	assert.InDelta(t, 2.0, h.ex.placed[1].amount, 1e-12)

	require.Len(t, h.st.updates, 1)
	up := h.st.updates[0]
	assert.Equal(t, int64(3), up.id)
	require.NotNil(t, up.params.Instrument)
	assert.Equal(t, next, *up.params.Instrument)
	require.NotNil(t, up.params.Kind)
	assert.Equal(t, models.KindPosition, *up.params.Kind)
	assert.Contains(t, h.q.forgotten, btcCall)

	assert.Equal(t, 0.3, h.sl.lastReq.TargetDelta, "reselects at the move delta")
	assert.Equal(t, 14, h.sl.lastReq.MinTenorDays)
	assert.True(t, h.sl.lastReq.IsCall)
}

func TestAdjustRefusesWideReplacement(t *testing.T) {
	h := newHarness()
	h.ex.insts[btcCall] = testInstrument(btcCall, "BTC")
	h.ex.positions = []models.Position{{Instrument: btcCall, Size: 2, Direction: models.Buy}}
	h.sl.cand = models.Candidate{Instrument: testInstrument("BTC-27MAR26-60000-C", "BTC"), SpreadRatio: 0.4}

	rec := models.ExposureRecord{ID: 3, Account: "main", Instrument: btcCall,
		TargetDelta: 0.05, MoveDelta: 0.3, Kind: models.KindPosition}
	_, err := h.r.AdjustPosition(context.Background(), "main", rec)
	var wide *models.SpreadTooWideError
	require.ErrorAs(t, err, &wide)
	assert.Empty(t, h.ex.placed)
}
