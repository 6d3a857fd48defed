package protective

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_core/internal/modules/config"
	"trade_core/internal/modules/gateway"
	ledgersvc "trade_core/internal/modules/ledger/service"
	"trade_core/internal/modules/protective/service"
)

func Module() fx.Option {
	return fx.Module("protective",
		fx.Provide(
			func(cfg *config.Config, gw gateway.OrderGateway, ledger *ledgersvc.Ledger, log *zap.Logger) *service.Manager {
				return service.New(cfg, gw, ledger, log)
			},
		),
	)
}
