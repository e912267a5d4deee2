package constant

import "fmt"

const (
	PriceStreamName       = "price"
	PriceStreamSubjectAll = "price.*"

	CandleStreamName       = "candle"
	CandleStreamSubjectAll = "candle.*"

	ProductionEnvironment = "production"
)

func GetPriceStreamSubject(instrumentUID string) string {
	return fmt.Sprintf("price.%s", instrumentUID)
}

func GetPriceQueueGroup(instrumentUID string) string {
	return fmt.Sprintf("price_queue_%s", instrumentUID)
}

func GetCandleStreamSubject(instrumentUID, interval string) string {
	return fmt.Sprintf("candle.%s_%s", instrumentUID, interval)
}

func GetCandleInsertQueueGroup(interval string) string {
	return fmt.Sprintf("candle_queue_insert_%s", interval)
}
