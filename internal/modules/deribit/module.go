package deribit

import (
	"option_bot/internal/modules/deribit/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("deribit",
		fx.Provide(
			service.NewClient,
		),
	)
}
