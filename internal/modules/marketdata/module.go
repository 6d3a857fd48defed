package marketdata

import (
	"context"

	"go.uber.org/fx"

	"trade_core/internal/modules/marketdata/service"
)

func Module() fx.Option {
	return fx.Module("marketdata",
		fx.Provide(
			service.NewClient, // *service.Client
		),
		fx.Invoke(func(lc fx.Lifecycle, c *service.Client, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go c.Run(ctx)
					return nil
				},
			})
		}),
	)
}
