package orders

import "github.com/krobus00/donchian-service/internal/entity"

var reportStatusEvents = map[entity.OrderReportStatus]entity.OrderEventType{
	entity.OrderReportStatusPartiallyFill: entity.OrderEventPartial,
	entity.OrderReportStatusFill:          entity.OrderEventFilled,
	entity.OrderReportStatusCancelled:     entity.OrderEventCanceled,
	entity.OrderReportStatusRejected:      entity.OrderEventRejected,
}

// translateOrderState maps a broker status snapshot to an order event. It is
// a pure function of the snapshot, so re-observing unchanged state between
// polls yields the same event. Statuses without an actionable mapping produce
// no event.
func translateOrderState(state entity.OrderState) (entity.OrderEvent, bool) {
	eventType, ok := reportStatusEvents[state.ReportStatus]
	if !ok {
		return entity.OrderEvent{}, false
	}

	return entity.OrderEvent{
		OrderID:    state.OrderID,
		Type:       eventType,
		FilledLots: state.FilledLots,
		AvgPrice:   state.AvgPrice,
	}, true
}
