package execution

import (
	deribit "option_bot/internal/modules/deribit/service"
	"option_bot/internal/modules/execution/service"

	"option_bot/internal/modules/config"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("execution",
		fx.Provide(
			func(client *deribit.Client, cfg *config.Config) *service.Stepper {
				return service.NewStepper(client, client, cfg.StepTimeout, cfg.MaxStep)
			},
		),
	)
}
