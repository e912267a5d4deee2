package bootstrap

import (
	"context"

	"github.com/krobus00/donchian-service/internal/config"
	"github.com/krobus00/donchian-service/internal/entity"
	"github.com/krobus00/donchian-service/internal/handler/status"
	"github.com/krobus00/donchian-service/internal/infrastructure"
	"github.com/krobus00/donchian-service/internal/repository"
	"github.com/krobus00/donchian-service/internal/service/broker"
	"github.com/krobus00/donchian-service/internal/service/donchian"
	"github.com/krobus00/donchian-service/internal/service/orders"
	"github.com/krobus00/donchian-service/internal/service/stream"
	"github.com/krobus00/donchian-service/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartDonchianStrategy(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	strategyConfig := config.Env.Strategy.Donchian

	db, err := infrastructure.NewPostgresConnection(ctx, config.Env.Database["market_data"])
	util.ContinueOrFatal(err)
	infrastructure.StartPostgresHealthCheck(ctx, db, config.Env.Database["market_data"].PingInterval)

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	stateStore, err := donchian.NewRedisStateStore(config.Env.Redis["strategy"].CacheDSN)
	util.ContinueOrFatal(err)

	instrumentRepo := repository.NewInstrumentRepository(db)
	marketCandleRepo := repository.NewMarketCandleRepository(db)

	gateway, err := broker.NewTBankGateway(config.Env.Broker)
	util.ContinueOrFatal(err)

	orderManager := orders.NewOrderManager(gateway, orders.WithPollInterval(strategyConfig.PollInterval))

	statusHandler := status.NewHandler(orderManager)
	dispatcher := stream.NewPriceDispatcher(js)
	candleConsumer := stream.NewCandleConsumer(js, marketCandleRepo, strategyConfig.CandleInterval)

	for _, ticker := range strategyConfig.Tickers {
		instrument, err := instrumentRepo.GetByTicker(ctx, ticker)
		util.ContinueOrFatal(err)

		donchianConfig := donchian.Config{
			SizePortfolio: strategyConfig.SizePortfolio,
			StateKey:      donchian.DefaultStateKey(ticker),
		}

		if strategyConfig.ResetStateOnStart {
			err = stateStore.Delete(ctx, donchianConfig.StateKey)
			util.ContinueOrFatal(err)
		}

		strategy, err := donchian.NewStrategy(ctx, donchianConfig, instrument, orderManager, stateStore)
		util.ContinueOrFatal(err)

		dispatcher.Register(instrument.UID, strategy)
		statusHandler.RegisterStrategy(ticker, strategy)

		refresher := donchian.NewChannelRefresher(marketCandleRepo, strategyConfig.ChannelRefreshInterval, strategyConfig.CandleInterval)
		go refresher.Run(ctx, strategy)

		logrus.WithFields(logrus.Fields{
			"ticker":         ticker,
			"instrument_uid": instrument.UID,
		}).Info("donchian strategy started")
	}

	subscribers := []entity.Subscriber{candleConsumer, dispatcher}
	for _, v := range subscribers {
		err = v.JetstreamEventSubscribe(ctx)
		util.ContinueOrFatal(err)
	}

	httpServer := infrastructure.NewHTTPServerWithConfig(infrastructure.DefaultHTTPServerConfig(), statusHandler.Mux())
	go func() {
		err := httpServer.Start()
		util.ContinueOrFatal(err)
	}()

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"order tracking": func(ctx context.Context) error {
			orderManager.CancelAll()
			return nil
		},
		"http server": func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
		"database": func(ctx context.Context) error {
			cancel()
			return db.Close()
		},
		"redis cache": func(ctx context.Context) error {
			return stateStore.Close()
		},
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
	})

	<-wait
}
