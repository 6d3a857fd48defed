package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"trade_core/internal/models"
	"trade_core/internal/modules/config"
	"trade_core/internal/modules/decoder"
	"trade_core/internal/modules/gateway/service"
	"trade_core/internal/modules/health"
	"trade_core/internal/modules/ledger"
	"trade_core/internal/modules/marketdata"
	positionhealth "trade_core/internal/modules/position_health"
	"trade_core/internal/modules/postgres"
	"trade_core/internal/modules/protective"
	"trade_core/internal/modules/risk"
	"trade_core/internal/modules/supervisor"
	"trade_core/internal/notify"
	"trade_core/internal/runner"
	"trade_core/pkg/logger"
	"trade_core/pkg/tracing"
)

const serviceName = "trade_core"

func main() {
	if err := logger.Init(); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	logger.SetServiceName(serviceName)
	tracing.SetServiceName(serviceName)

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
			func() *zap.Logger {
				return logger.InfoLogger
			},
			func(cfg *config.Config) (notify.Notifier, error) {
				return notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
			},
			// канал предсказаний наполняет внешний inference-коллаборатор
			func() chan models.Inference {
				return make(chan models.Inference, 64)
			},
			func(ch chan models.Inference) <-chan models.Inference {
				return ch
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) {
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Service.JaegerHost,
				Port: cfg.Service.JaegerPort,
			})
			if err != nil {
				logger.Error("init tracer: %v", err)
				return
			}
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					closeTracer()
					return nil
				},
			})
		}),
		config.Module(),
		postgres.Module(),
		health.Module(),
		service.Module(), // биржевой gateway (okx)
		marketdata.Module(),
		decoder.Module(),
		risk.Module(),
		ledger.Module(),
		protective.Module(),
		positionhealth.Module(),
		supervisor.Module(),
		runner.Module(),
	)
	if err := app.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	<-app.Done()
	if err := app.Stop(context.Background()); err != nil {
		log.Fatal(err)
	}
}
