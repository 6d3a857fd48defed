package supervisor

import (
	"context"

	"go.uber.org/fx"

	mdsvc "trade_core/internal/modules/marketdata/service"
	"trade_core/internal/modules/supervisor/service"
)

func Module() fx.Option {
	return fx.Module("supervisor",
		fx.Provide(
			func(c *mdsvc.Client) service.Prices { return c },
			service.New,
		),
		fx.Invoke(func(lc fx.Lifecycle, s *service.Supervisor) {
			runCtx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					go s.Run(runCtx)
					return nil
				},
				OnStop: func(ctx context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
