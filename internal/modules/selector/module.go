package selector

import (
	deribit "option_bot/internal/modules/deribit/service"
	"option_bot/internal/modules/selector/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("selector",
		fx.Provide(
			func(client *deribit.Client) *service.Selector {
				return service.NewSelector(client)
			},
		),
	)
}
