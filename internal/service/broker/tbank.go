package broker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/krobus00/donchian-service/internal/config"
	"github.com/krobus00/donchian-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultTBankBaseURL = "https://invest-public-api.tbank.ru/rest"

	ordersServicePath = "/tinkoff.public.invest.api.contract.v1.OrdersService"
)

// TBankGateway talks to the T-Bank invest REST API. It implements
// entity.BrokerGateway; network and decoding failures surface as
// entity.TransportError so callers can tell them apart from venue rejections.
type TBankGateway struct {
	token      string
	accountID  string
	baseURL    string
	httpClient *http.Client
}

func NewTBankGateway(brokerConfig config.BrokerConfig) (*TBankGateway, error) {
	token := strings.TrimSpace(brokerConfig.Token)
	if token == "" {
		return nil, fmt.Errorf("tbank token is required")
	}

	accountID := strings.TrimSpace(brokerConfig.AccountID)
	if accountID == "" {
		return nil, fmt.Errorf("tbank account_id is required")
	}

	baseURL := strings.TrimSpace(brokerConfig.BaseURL)
	if baseURL == "" {
		baseURL = defaultTBankBaseURL
	}

	return &TBankGateway{
		token:      token,
		accountID:  accountID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type tbankQuotation struct {
	Units string `json:"units"`
	Nano  int32  `json:"nano"`
}

func quotationFromDecimal(value decimal.Decimal) tbankQuotation {
	units := value.IntPart()
	nano := value.Sub(decimal.NewFromInt(units)).Mul(decimal.NewFromInt(1_000_000_000)).IntPart()

	return tbankQuotation{
		Units: strconv.FormatInt(units, 10),
		Nano:  int32(nano),
	}
}

func decimalFromQuotation(q tbankQuotation) (decimal.Decimal, error) {
	if strings.TrimSpace(q.Units) == "" && q.Nano == 0 {
		return decimal.Zero, nil
	}

	units := int64(0)
	if strings.TrimSpace(q.Units) != "" {
		parsed, err := strconv.ParseInt(strings.TrimSpace(q.Units), 10, 64)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid quotation units: %w", err)
		}
		units = parsed
	}

	return decimal.NewFromInt(units).Add(decimal.New(int64(q.Nano), -9)), nil
}

var tbankDirectionCodes = map[entity.OrderDirection]string{
	entity.OrderDirectionBuy:  "ORDER_DIRECTION_BUY",
	entity.OrderDirectionSell: "ORDER_DIRECTION_SELL",
}

var tbankOrderTypeCodes = map[entity.OrderType]string{
	entity.OrderTypeLimit:  "ORDER_TYPE_LIMIT",
	entity.OrderTypeMarket: "ORDER_TYPE_MARKET",
}

var tbankReportStatuses = map[string]entity.OrderReportStatus{
	"EXECUTION_REPORT_STATUS_UNSPECIFIED":   entity.OrderReportStatusUnspecified,
	"EXECUTION_REPORT_STATUS_FILL":          entity.OrderReportStatusFill,
	"EXECUTION_REPORT_STATUS_REJECTED":      entity.OrderReportStatusRejected,
	"EXECUTION_REPORT_STATUS_CANCELLED":     entity.OrderReportStatusCancelled,
	"EXECUTION_REPORT_STATUS_NEW":           entity.OrderReportStatusNew,
	"EXECUTION_REPORT_STATUS_PARTIALLYFILL": entity.OrderReportStatusPartiallyFill,
}

func (g *TBankGateway) PlaceOrder(ctx context.Context, order entity.OrderRequest) (entity.PlaceOrderResponse, error) {
	if ctx.Err() != nil {
		return entity.PlaceOrderResponse{}, ctx.Err()
	}

	direction, ok := tbankDirectionCodes[order.Direction]
	if !ok {
		return entity.PlaceOrderResponse{}, fmt.Errorf("unsupported order direction for tbank: %s", order.Direction)
	}

	orderType, ok := tbankOrderTypeCodes[order.Type]
	if !ok {
		return entity.PlaceOrderResponse{}, fmt.Errorf("unsupported order type for tbank: %s", order.Type)
	}

	payload := map[string]any{
		"instrumentId": order.InstrumentUID,
		"quantity":     strconv.FormatInt(order.Quantity, 10),
		"price":        quotationFromDecimal(order.Price),
		"direction":    direction,
		"accountId":    g.accountID,
		"orderType":    orderType,
		"orderId":      order.ClientOrderID,
	}

	var resp struct {
		OrderID               string `json:"orderId"`
		ExecutionReportStatus string `json:"executionReportStatus"`
		Message               string `json:"message"`
	}

	if err := g.call(ctx, "PostOrder", payload, &resp); err != nil {
		return entity.PlaceOrderResponse{}, err
	}

	if tbankReportStatuses[resp.ExecutionReportStatus] == entity.OrderReportStatusRejected {
		return entity.PlaceOrderResponse{}, fmt.Errorf("tbank order rejected: %s", resp.Message)
	}

	logrus.WithFields(logrus.Fields{
		"instrument_uid":  order.InstrumentUID,
		"direction":       order.Direction,
		"order_id":        resp.OrderID,
		"client_order_id": order.ClientOrderID,
	}).Info("tbank order accepted")

	return entity.PlaceOrderResponse{OrderID: resp.OrderID}, nil
}

func (g *TBankGateway) GetOrderStatus(ctx context.Context, orderID string) (entity.OrderState, error) {
	if ctx.Err() != nil {
		return entity.OrderState{}, ctx.Err()
	}

	payload := map[string]any{
		"accountId": g.accountID,
		"orderId":   orderID,
	}

	var resp struct {
		OrderID               string         `json:"orderId"`
		ExecutionReportStatus string         `json:"executionReportStatus"`
		LotsExecuted          string         `json:"lotsExecuted"`
		AveragePositionPrice  tbankQuotation `json:"averagePositionPrice"`
	}

	if err := g.call(ctx, "GetOrderState", payload, &resp); err != nil {
		return entity.OrderState{}, err
	}

	reportStatus, ok := tbankReportStatuses[resp.ExecutionReportStatus]
	if !ok {
		reportStatus = entity.OrderReportStatusUnspecified
	}

	filledLots := int64(0)
	if strings.TrimSpace(resp.LotsExecuted) != "" {
		parsed, err := strconv.ParseInt(strings.TrimSpace(resp.LotsExecuted), 10, 64)
		if err != nil {
			return entity.OrderState{}, entity.NewTransportError("get_order_state", fmt.Errorf("invalid lots executed: %w", err))
		}
		filledLots = parsed
	}

	avgPrice, err := decimalFromQuotation(resp.AveragePositionPrice)
	if err != nil {
		return entity.OrderState{}, entity.NewTransportError("get_order_state", err)
	}

	stateOrderID := resp.OrderID
	if stateOrderID == "" {
		stateOrderID = orderID
	}

	return entity.OrderState{
		OrderID:      stateOrderID,
		ReportStatus: reportStatus,
		FilledLots:   filledLots,
		AvgPrice:     avgPrice,
	}, nil
}

func (g *TBankGateway) CancelOrder(ctx context.Context, orderID string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	payload := map[string]any{
		"accountId": g.accountID,
		"orderId":   orderID,
	}

	var resp struct {
		Time string `json:"time"`
	}

	if err := g.call(ctx, "CancelOrder", payload, &resp); err != nil {
		return err
	}

	logrus.WithField("order_id", orderID).Info("tbank order cancel accepted")

	return nil
}

// call posts one OrdersService method. Transport and decode failures are
// wrapped as entity.TransportError; HTTP error statuses are venue responses
// and come back as plain errors.
func (g *TBankGateway) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := g.baseURL + ordersServicePath + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return entity.NewTransportError(method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return entity.NewTransportError(method, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return entity.NewTransportError(method, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(respBody)))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(respBody, &apiErr); err != nil || apiErr.Message == "" {
			return fmt.Errorf("tbank %s failed: status=%d body=%s", method, resp.StatusCode, string(respBody))
		}
		return fmt.Errorf("tbank %s failed: status=%d code=%d message=%s", method, resp.StatusCode, apiErr.Code, apiErr.Message)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return entity.NewTransportError(method, fmt.Errorf("parse response: %w", err))
	}

	return nil
}
