package main

import (
	"context"
	"log"

	"option_bot/internal/modules/config"
	"option_bot/internal/modules/deribit"
	deribitws "option_bot/internal/modules/deribit_ws"
	"option_bot/internal/modules/execution"
	"option_bot/internal/modules/exposure"
	"option_bot/internal/modules/postgres"
	"option_bot/internal/modules/selector"
	"option_bot/internal/notify"
	"option_bot/internal/runner"
	"option_bot/pkg/logger"
	"option_bot/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
			notify.New,
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			if cfg.Jaeger.Host == "" {
				return nil
			}
			tracing.SetServiceName("option_bot")
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					closeTracer()
					return nil
				},
			})
			return nil
		}),
		config.Module(),
		postgres.Module(),
		deribit.Module(),
		deribitws.Module(),
		exposure.Module(),
		selector.Module(),
		execution.Module(),
		runner.Module(),
	)
	if err := app.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	<-app.Done()
}
