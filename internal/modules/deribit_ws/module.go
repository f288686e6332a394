package deribitws

import (
	"option_bot/internal/modules/deribit_ws/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("deribit_ws",
		fx.Provide(
			service.NewClient,
		),
	)
}
