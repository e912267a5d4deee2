package bootstrap

import (
	"context"
	"sync"

	"github.com/krobus00/donchian-service/internal/config"
	"github.com/krobus00/donchian-service/internal/entity"
	"github.com/krobus00/donchian-service/internal/infrastructure"
	"github.com/krobus00/donchian-service/internal/repository"
	"github.com/krobus00/donchian-service/internal/service/broker"
	"github.com/krobus00/donchian-service/internal/service/stream"
	"github.com/krobus00/donchian-service/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartMarketDataGateway(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := infrastructure.NewPostgresConnection(ctx, config.Env.Database["market_data"])
	util.ContinueOrFatal(err)
	infrastructure.StartPostgresHealthCheck(ctx, db, config.Env.Database["market_data"].PingInterval)

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	priceSubscriptionRepo := repository.NewPriceSubscriptionRepository(db)
	marketCandleRepo := repository.NewMarketCandleRepository(db)

	// the gateway only publishes, but the streams must exist before the
	// first message goes out
	dispatcher := stream.NewPriceDispatcher(js)
	candleConsumer := stream.NewCandleConsumer(js, marketCandleRepo, config.Env.Strategy.Donchian.CandleInterval)

	publishers := []entity.Publisher{dispatcher, candleConsumer}
	for _, v := range publishers {
		err = v.JetstreamEventInit(ctx)
		util.ContinueOrFatal(err)
	}

	marketDataStream := broker.NewMarketDataStream(config.Env.Broker.Token, config.Env.Broker.StreamURL, js)

	var subscriptionWG sync.WaitGroup
	subscriptionWG.Add(1)
	go func() {
		defer subscriptionWG.Done()

		subs, err := priceSubscriptionRepo.GetAll(ctx)
		if err != nil {
			logrus.Errorf("error getting price subscriptions: %v", err)
			return
		}

		logrus.Infof("starting market data stream with %d subscriptions", len(subs))
		err = marketDataStream.Subscribe(ctx, subs)
		if err != nil {
			logrus.Errorf("error subscribing to market data: %v", err)
		}
	}()

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"market-data-ws connection": func(ctx context.Context) error {
			cancel()
			subscriptionWG.Wait()
			return nil
		},
		"database": func(ctx context.Context) error {
			cancel()
			return db.Close()
		},
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
	})

	<-wait
}
