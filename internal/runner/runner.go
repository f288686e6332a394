package runner

import (
	"context"
	"time"

	"option_bot/internal/models"
	"option_bot/internal/modules/config"
	exposure "option_bot/internal/modules/exposure/service"
	selector "option_bot/internal/modules/selector/service"
)

// Exchange is everything the runner asks of the venue.
type Exchange interface {
	Token(ctx context.Context, account string) (string, error)
	Instrument(ctx context.Context, name string) (models.Instrument, error)
	Ticker(ctx context.Context, instrument string) (models.Quote, error)
	PlaceOrder(ctx context.Context, token, instrument string, direction models.Direction,
		amount float64, orderType string, price float64, label string) (models.OrderHandle, error)
	OrderState(ctx context.Context, token, orderID string) (models.OrderHandle, error)
	Positions(ctx context.Context, token, currency, kind string) ([]models.Position, error)
}

// ExposureStore persists intended per-account/per-instrument exposure.
type ExposureStore interface {
	Create(ctx context.Context, rec models.ExposureRecord) (models.ExposureRecord, error)
	Upsert(ctx context.Context, rec models.ExposureRecord) (models.ExposureRecord, error)
	Update(ctx context.Context, id int64, p exposure.UpdateParams) (models.ExposureRecord, error)
	Delete(ctx context.Context, id int64) error
	Query(ctx context.Context, f models.ExposureFilter) ([]models.ExposureRecord, error)
	GetBySignal(ctx context.Context, account, signalID string) (models.ExposureRecord, error)
	PurgeStaleOrders(ctx context.Context, maxAge time.Duration) (int64, error)
	AggregateByAccount(ctx context.Context) ([]models.ExposureAggregate, error)
}

// ContractSelector picks a contract by target delta.
type ContractSelector interface {
	SelectByDelta(ctx context.Context, req selector.Request) (models.Candidate, error)
}

// OrderStepper drives a resting limit order to a terminal state.
type OrderStepper interface {
	Run(ctx context.Context, account string, inst models.Instrument, initial models.OrderHandle) (models.ExecutionOutcome, error)
}

// Notifier pushes human-readable outcome messages.
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// QuoteCache serves the latest streamed quote, if one exists.
type QuoteCache interface {
	Latest(instrument string) (models.Quote, bool)
	Forget(instruments ...string)
}

// Runner wires selection, quantization, execution and the exposure store
// into the operations exposed to webhook handlers and the watch loop.
type Runner struct {
	cfg     *config.Config
	ex      Exchange
	store   ExposureStore
	sel     ContractSelector
	stepper OrderStepper
	n       Notifier
	quotes  QuoteCache

	streamCancel context.CancelFunc
	streamed     []string
}

func New(
	cfg *config.Config,
	ex Exchange,
	store ExposureStore,
	sel ContractSelector,
	stepper OrderStepper,
	n Notifier,
	quotes QuoteCache,
) *Runner {
	return &Runner{
		cfg:     cfg,
		ex:      ex,
		store:   store,
		sel:     sel,
		stepper: stepper,
		n:       n,
		quotes:  quotes,
	}
}
