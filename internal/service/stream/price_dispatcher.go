package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/krobus00/donchian-service/internal/config"
	"github.com/krobus00/donchian-service/internal/constant"
	"github.com/krobus00/donchian-service/internal/entity"
	"github.com/krobus00/donchian-service/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// PriceHandler consumes ticks for a single instrument.
type PriceHandler interface {
	OnPrice(ctx context.Context, tick entity.PriceTick) error
}

// PriceDispatcher fans price tick events from jetstream out to the handler
// registered for each instrument. Ticks for unregistered instruments are
// acked and dropped.
type PriceDispatcher struct {
	js nats.JetStreamContext

	mu       sync.RWMutex
	handlers map[string]PriceHandler
}

func NewPriceDispatcher(js nats.JetStreamContext) *PriceDispatcher {
	return &PriceDispatcher{
		js:       js,
		handlers: make(map[string]PriceHandler),
	}
}

func (d *PriceDispatcher) Register(instrumentUID string, handler PriceHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[instrumentUID] = handler
}

func (d *PriceDispatcher) JetstreamEventInit(ctx context.Context) error {
	streamConfig := &nats.StreamConfig{
		Name:      constant.PriceStreamName,
		Subjects:  []string{constant.PriceStreamSubjectAll},
		Storage:   nats.FileStorage, // use MemoryStorage for ultra-low latency
		Retention: nats.LimitsPolicy,
		MaxAge:    5 * time.Minute,
		Replicas:  1,
	}

	stream, err := d.js.StreamInfo(constant.PriceStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.PriceStreamName)
		_, err = d.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", constant.PriceStreamName)
	_, err = d.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	logrus.Infof("stream %s is ready", constant.PriceStreamName)

	return nil
}

// JetstreamEventSubscribe opens one queue subscription per registered
// instrument. Register every handler before calling it.
func (d *PriceDispatcher) JetstreamEventSubscribe(ctx context.Context) error {
	err := d.JetstreamEventInit(ctx)
	if err != nil {
		logrus.Error(err)
		return err
	}

	d.mu.RLock()
	instrumentUIDs := make([]string, 0, len(d.handlers))
	for instrumentUID := range d.handlers {
		instrumentUIDs = append(instrumentUIDs, instrumentUID)
	}
	d.mu.RUnlock()

	for _, instrumentUID := range instrumentUIDs {
		_, err = d.js.QueueSubscribe(
			constant.GetPriceStreamSubject(instrumentUID),
			constant.GetPriceQueueGroup(instrumentUID),
			func(msg *nats.Msg) {
				err := util.ProcessWithTimeout(config.Env.NatsJetstream.TimeoutHandler["price_tick"], msg, d.handlePriceTickEvent)
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

		logrus.WithField("instrument_uid", instrumentUID).Info("price subscription started")
	}

	return nil
}

func (d *PriceDispatcher) handlePriceTickEvent(ctx context.Context, msg *nats.Msg) (err error) {
	logger := logrus.WithFields(logrus.Fields{
		"req": string(msg.Data),
	})

	var req *entity.PriceTickEvent
	err = json.Unmarshal(msg.Data, &req)
	if err != nil {
		logger.Errorf("failed to unmarshal price tick: %v", err)
		return err
	}
	if req == nil {
		return nil
	}

	d.mu.RLock()
	handler := d.handlers[req.Data.InstrumentUID]
	d.mu.RUnlock()

	if handler == nil {
		return nil
	}

	err = handler.OnPrice(ctx, req.Data)
	if err != nil {
		logger.Errorf("price handler failed: %v", err)
		return err
	}

	return nil
}
