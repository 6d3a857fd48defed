package positionhealth

import (
	"go.uber.org/fx"

	"trade_core/internal/modules/position_health/service"
)

func Module() fx.Option {
	return fx.Module("position_health",
		fx.Provide(service.New),
	)
}
