package service

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_core/internal/modules/config"
	"trade_core/internal/modules/gateway"
)

// Module живёт в service, а не в пакете gateway: иначе интерфейс и
// реализация зациклились бы по импортам.
func Module() fx.Option {
	return fx.Module("gateway",
		fx.Provide(
			func(cfg *config.Config, log *zap.Logger) gateway.OrderGateway {
				return NewClient(cfg, log)
			},
		),
	)
}
