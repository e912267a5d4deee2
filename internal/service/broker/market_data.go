package broker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/krobus00/donchian-service/internal/constant"
	"github.com/krobus00/donchian-service/internal/entity"
	"github.com/krobus00/donchian-service/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultTBankStreamURL = "wss://invest-public-api.tbank.ru/ws/tinkoff.public.invest.api.contract.v1.MarketDataStreamService/MarketDataStream"

	marketDataWSReconnectMinDelay = 1 * time.Second
	marketDataWSReconnectMaxDelay = 15 * time.Second
	marketDataWSReconnectFactor   = 2.0
)

// MarketDataStream keeps one websocket open to the venue's market data
// service and republishes last price and candle messages onto jetstream.
type MarketDataStream struct {
	token     string
	streamURL string
	js        nats.JetStreamContext
}

func NewMarketDataStream(token, streamURL string, js nats.JetStreamContext) *MarketDataStream {
	if strings.TrimSpace(streamURL) == "" {
		streamURL = defaultTBankStreamURL
	}

	return &MarketDataStream{
		token:     strings.TrimSpace(token),
		streamURL: strings.TrimSpace(streamURL),
		js:        js,
	}
}

// Subscribe dials the stream, replays the stored subscription payloads and
// pumps messages until the context is canceled. Connection loss triggers a
// full resubscribe after a jittered backoff.
func (s *MarketDataStream) Subscribe(ctx context.Context, subscriptions []entity.PriceSubscription) error {
	wsHost, err := url.Parse(s.streamURL)
	if err != nil {
		return fmt.Errorf("invalid market data stream url: %w", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		logrus.Infof("connecting to %s", wsHost.String())
		header := map[string][]string{
			"Authorization": {"Bearer " + s.token},
		}
		conn, _, err := websocket.DefaultDialer.Dial(wsHost.String(), header)
		if err != nil {
			wait := marketDataReconnectDelay(attempt, rng)
			attempt++
			logrus.WithFields(logrus.Fields{"retry_in": wait.String(), "attempt": attempt}).Warnf("market data ws dial failed: %v", err)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		attempt = 0
		conn.SetPongHandler(func(string) error {
			return nil
		})

		subscribeErr := false
		for _, subscription := range subscriptions {
			logrus.Infof("start subscription for instrument: %s, interval: %s", subscription.InstrumentUID, subscription.Interval)

			if err := conn.WriteMessage(websocket.TextMessage, []byte(subscription.Payload)); err != nil {
				logrus.Warnf("market data ws subscribe failed: %v", err)
				subscribeErr = true
				break
			}
		}
		if subscribeErr {
			conn.Close()
			wait := marketDataReconnectDelay(attempt, rng)
			attempt++
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		stopPing := make(chan struct{})
		go func(c *websocket.Conn) {
			ticker := time.NewTicker(2 * time.Minute)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
						logrus.Error(err)
						return
					}
				case <-ctx.Done():
					return
				case <-stopPing:
					return
				}
			}
		}(conn)

		ctxDone := make(chan struct{})
		go func(c *websocket.Conn) {
			select {
			case <-ctx.Done():
				_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = c.Close()
			case <-ctxDone:
			}
		}(conn)

		readErr := false
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					close(stopPing)
					close(ctxDone)
					return nil
				}

				readErr = true
				logrus.Errorf("market data ws read failed: %v", err)
				break
			}

			err = s.handleMessage(ctx, message)
			if err != nil {
				logrus.Errorf("market data ws handle message failed: %v", err)
				continue
			}
		}

		close(stopPing)
		close(ctxDone)
		_ = conn.Close()

		if !readErr {
			continue
		}

		wait := marketDataReconnectDelay(attempt, rng)
		attempt++
		logrus.WithFields(logrus.Fields{"retry_in": wait.String(), "attempt": attempt}).Warn("reconnecting market data ws")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *MarketDataStream) handleMessage(ctx context.Context, message []byte) error {
	var payload struct {
		LastPrice *struct {
			InstrumentUID string         `json:"instrumentUid"`
			Price         tbankQuotation `json:"price"`
			Time          time.Time      `json:"time"`
		} `json:"lastPrice"`
		Candle *struct {
			InstrumentUID string         `json:"instrumentUid"`
			Interval      string         `json:"interval"`
			Open          tbankQuotation `json:"open"`
			High          tbankQuotation `json:"high"`
			Low           tbankQuotation `json:"low"`
			Close         tbankQuotation `json:"close"`
			Volume        string         `json:"volume"`
			Time          time.Time      `json:"time"`
			LastTradeTS   time.Time      `json:"lastTradeTs"`
		} `json:"candle"`
	}

	if err := json.Unmarshal(message, &payload); err != nil {
		return err
	}

	if payload.LastPrice != nil {
		return s.publishLastPrice(payload.LastPrice.InstrumentUID, payload.LastPrice.Price, payload.LastPrice.Time)
	}

	if payload.Candle != nil {
		candle := payload.Candle
		return s.publishCandle(candle.InstrumentUID, candle.Interval, candle.Volume, candle.Open, candle.High, candle.Low, candle.Close, candle.Time, candle.LastTradeTS)
	}

	return nil
}

func (s *MarketDataStream) publishLastPrice(instrumentUID string, rawPrice tbankQuotation, tickTime time.Time) error {
	instrumentUID = strings.TrimSpace(instrumentUID)
	if instrumentUID == "" {
		return nil
	}

	price, err := decimalFromQuotation(rawPrice)
	if err != nil {
		return fmt.Errorf("invalid last price: %w", err)
	}

	return util.PublishEvent(s.js, constant.GetPriceStreamSubject(instrumentUID), entity.PriceTickEvent{
		RetryCount: 0,
		Data: entity.PriceTick{
			InstrumentUID: instrumentUID,
			Price:         price,
			Time:          tickTime.UTC(),
		},
	})
}

func (s *MarketDataStream) publishCandle(instrumentUID, interval, rawVolume string, open, high, low, closePrice tbankQuotation, openTime, lastTradeTime time.Time) error {
	instrumentUID = strings.TrimSpace(instrumentUID)
	if instrumentUID == "" {
		return nil
	}

	openValue, err := decimalFromQuotation(open)
	if err != nil {
		return fmt.Errorf("invalid open price: %w", err)
	}

	highValue, err := decimalFromQuotation(high)
	if err != nil {
		return fmt.Errorf("invalid high price: %w", err)
	}

	lowValue, err := decimalFromQuotation(low)
	if err != nil {
		return fmt.Errorf("invalid low price: %w", err)
	}

	closeValue, err := decimalFromQuotation(closePrice)
	if err != nil {
		return fmt.Errorf("invalid close price: %w", err)
	}

	volume := int64(0)
	if strings.TrimSpace(rawVolume) != "" {
		volume, err = strconv.ParseInt(strings.TrimSpace(rawVolume), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid volume: %w", err)
		}
	}

	now := time.Now().UTC()
	data := entity.MarketCandle{
		InstrumentUID: instrumentUID,
		Interval:      interval,
		OpenTime:      openTime.UTC(),
		CloseTime:     lastTradeTime.UTC(),
		OpenPrice:     openValue,
		HighPrice:     highValue,
		LowPrice:      lowValue,
		ClosePrice:    closeValue,
		Volume:        decimal.NewFromInt(volume),
		IsClosed:      false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	return util.PublishEvent(s.js, constant.GetCandleStreamSubject(instrumentUID, interval), entity.MarketCandleEvent{
		RetryCount: 0,
		Data:       data,
	})
}

func marketDataReconnectDelay(attempt int, rng *rand.Rand) time.Duration {
	backoff := float64(marketDataWSReconnectMinDelay) * math.Pow(marketDataWSReconnectFactor, float64(attempt))
	if backoff > float64(marketDataWSReconnectMaxDelay) {
		backoff = float64(marketDataWSReconnectMaxDelay)
	}

	base := time.Duration(backoff)
	jitterWindow := marketDataWSReconnectMaxDelay - marketDataWSReconnectMinDelay
	jitter := time.Duration(rng.Int63n(int64(jitterWindow) + 1))
	result := base + jitter
	if result > marketDataWSReconnectMaxDelay {
		return marketDataWSReconnectMaxDelay
	}

	return result
}
