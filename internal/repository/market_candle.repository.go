package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/donchian-service/internal/entity"
)

type MarketCandleRepository struct {
	db *sqlx.DB
}

func NewMarketCandleRepository(db *sqlx.DB) *MarketCandleRepository {
	return &MarketCandleRepository{db: db}
}

func (r *MarketCandleRepository) Create(ctx context.Context, data *entity.MarketCandle) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(data.TableName()).
		Columns(
			"instrument_uid",
			"interval",
			"open_time",
			"close_time",
			"open_price",
			"high_price",
			"low_price",
			"close_price",
			"volume",
			"is_closed",
			"created_at",
			"updated_at",
		).
		Values(
			data.InstrumentUID,
			data.Interval,
			data.OpenTime,
			data.CloseTime,
			data.OpenPrice,
			data.HighPrice,
			data.LowPrice,
			data.ClosePrice,
			data.Volume,
			data.IsClosed,
			data.CreatedAt,
			data.UpdatedAt,
		).
		Suffix(`ON CONFLICT (instrument_uid, interval, open_time)
DO UPDATE SET
	close_time = EXCLUDED.close_time,
	open_price = EXCLUDED.open_price,
	high_price = EXCLUDED.high_price,
	low_price = EXCLUDED.low_price,
	close_price = EXCLUDED.close_price,
	volume = EXCLUDED.volume,
	is_closed = EXCLUDED.is_closed,
	updated_at = EXCLUDED.updated_at`)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// CloseBefore marks every candle older than openTime as closed. The stream
// does not flag candle completion, so a candle is considered closed once a
// newer one starts.
func (r *MarketCandleRepository) CloseBefore(ctx context.Context, instrumentUID, interval string, openTime time.Time) error {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Update(entity.MarketCandle{}.TableName()).
		Set("is_closed", true).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{
			"instrument_uid": instrumentUID,
			"interval":       interval,
			"is_closed":      false,
		}).
		Where(sq.Lt{"open_time": openTime})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// GetRecentClosed returns the latest closed candles ordered oldest first, as
// the channel computation expects.
func (r *MarketCandleRepository) GetRecentClosed(ctx context.Context, instrumentUID, interval string, limit int) ([]entity.MarketCandle, error) {
	queryBuilder := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("*").
		From(entity.MarketCandle{}.TableName()).
		Where(sq.Eq{
			"instrument_uid": instrumentUID,
			"interval":       interval,
			"is_closed":      true,
		}).
		OrderBy("open_time DESC").
		Limit(uint64(limit))

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	var candles []entity.MarketCandle
	err = r.db.SelectContext(ctx, &candles, query, args...)
	if err != nil {
		return nil, err
	}

	// reverse into chronological order
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}
