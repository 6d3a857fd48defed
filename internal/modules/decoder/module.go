package decoder

import (
	"go.uber.org/fx"

	"trade_core/internal/modules/decoder/service"
)

func Module() fx.Option {
	return fx.Module("decoder",
		fx.Provide(
			service.New, // *service.Decoder
		),
	)
}
