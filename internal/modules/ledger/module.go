package ledger

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_core/internal/modules/config"
	"trade_core/internal/modules/ledger/service"
	"trade_core/internal/modules/ledger/service/pg"
	"trade_core/pkg/db"
)

func Module() fx.Option {
	return fx.Module("ledger",
		fx.Provide(
			func(tm *db.PgTxManager) service.Store {
				return pg.NewStore(tm)
			},
			func(cfg *config.Config, store service.Store, log *zap.Logger) *service.Ledger {
				return service.New(cfg, store, log)
			},
		),
	)
}
