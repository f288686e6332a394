package exposure

import (
	"option_bot/internal/modules/exposure/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("exposure",
		fx.Provide(
			service.NewStore,
		),
	)
}
