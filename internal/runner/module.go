package runner

import (
	"context"

	"option_bot/internal/modules/config"
	deribit "option_bot/internal/modules/deribit/service"
	deribitws "option_bot/internal/modules/deribit_ws/service"
	execution "option_bot/internal/modules/execution/service"
	exposure "option_bot/internal/modules/exposure/service"
	selector "option_bot/internal/modules/selector/service"
	"option_bot/internal/notify"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(
				cfg *config.Config,
				ex *deribit.Client,
				store *exposure.Store,
				sel *selector.Selector,
				stepper *execution.Stepper,
				n notify.Notifier,
				ws *deribitws.Client,
			) *Runner {
				return New(cfg, ex, store, sel, stepper, n, ws)
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			r *Runner,
			ws *deribitws.Client,
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go r.Watch(ctx, ws)
					return nil
				},
			})
		}),
	)
}
