package stream

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	"github.com/krobus00/donchian-service/internal/config"
	"github.com/krobus00/donchian-service/internal/constant"
	"github.com/krobus00/donchian-service/internal/entity"
	"github.com/krobus00/donchian-service/internal/repository"
	"github.com/krobus00/donchian-service/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// CandleConsumer persists candle events so channel bounds can be recomputed
// from history after a restart.
type CandleConsumer struct {
	js               nats.JetStreamContext
	marketCandleRepo *repository.MarketCandleRepository
	interval         string
}

func NewCandleConsumer(js nats.JetStreamContext, marketCandleRepo *repository.MarketCandleRepository, interval string) *CandleConsumer {
	return &CandleConsumer{
		js:               js,
		marketCandleRepo: marketCandleRepo,
		interval:         interval,
	}
}

func (c *CandleConsumer) JetstreamEventInit(ctx context.Context) error {
	streamConfig := &nats.StreamConfig{
		Name:      constant.CandleStreamName,
		Subjects:  []string{constant.CandleStreamSubjectAll},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Hour,
		Replicas:  1,
	}

	stream, err := c.js.StreamInfo(constant.CandleStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.CandleStreamName)
		_, err = c.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", constant.CandleStreamName)
	_, err = c.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	logrus.Infof("stream %s is ready", constant.CandleStreamName)

	return nil
}

func (c *CandleConsumer) JetstreamEventSubscribe(ctx context.Context) error {
	err := c.JetstreamEventInit(ctx)
	if err != nil {
		logrus.Error(err)
		return err
	}

	_, err = c.js.QueueSubscribe(
		constant.CandleStreamSubjectAll,
		constant.GetCandleInsertQueueGroup(c.interval),
		func(msg *nats.Msg) {
			err := util.ProcessWithTimeout(config.Env.NatsJetstream.TimeoutHandler["insert_candle"], msg, c.handleCandleEvent)
			if err != nil {
				logrus.Errorf("error processing message: %v", err)
				return
			}

			err = msg.Ack()
			if err != nil {
				logrus.Errorf("failed to acknowledge message: %v", err)
				return
			}
		},
		nats.ManualAck(),
		nats.DeliverNew(), // only process new messages, ignore old messages when subscribe for the first time
	)
	util.ContinueOrFatal(err)

	return nil
}

func (c *CandleConsumer) handleCandleEvent(ctx context.Context, msg *nats.Msg) (err error) {
	logger := logrus.WithFields(logrus.Fields{
		"req": string(msg.Data),
	})

	var req *entity.MarketCandleEvent
	err = json.Unmarshal(msg.Data, &req)
	if err != nil {
		logger.Errorf("failed to unmarshal candle event: %v", err)
		return err
	}
	if req == nil {
		return nil
	}

	candle := req.Data
	if candle.CreatedAt.IsZero() {
		candle.CreatedAt = time.Now().UTC()
	}
	candle.UpdatedAt = time.Now().UTC()

	err = c.marketCandleRepo.Create(ctx, &candle)
	if err != nil {
		logger.Errorf("failed to store candle: %v", err)
		return err
	}

	err = c.marketCandleRepo.CloseBefore(ctx, candle.InstrumentUID, candle.Interval, candle.OpenTime)
	if err != nil {
		logger.Errorf("failed to close previous candles: %v", err)
		return err
	}

	return nil
}
