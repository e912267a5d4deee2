package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/krobus00/donchian-service/internal/entity"
)

type InstrumentRepository struct {
	db *sqlx.DB
}

func NewInstrumentRepository(db *sqlx.DB) *InstrumentRepository {
	return &InstrumentRepository{db: db}
}

func (r *InstrumentRepository) GetAll(ctx context.Context) ([]entity.Instrument, error) {
	var instruments []entity.Instrument
	err := r.db.SelectContext(ctx, &instruments, "SELECT * FROM instruments order by created_at desc")
	return instruments, err
}

func (r *InstrumentRepository) GetByTicker(ctx context.Context, ticker string) (entity.Instrument, error) {
	var instrument entity.Instrument
	err := r.db.GetContext(ctx, &instrument, "SELECT * FROM instruments WHERE ticker = $1", ticker)
	return instrument, err
}

func (r *InstrumentRepository) GetByUID(ctx context.Context, uid string) (entity.Instrument, error) {
	var instrument entity.Instrument
	err := r.db.GetContext(ctx, &instrument, "SELECT * FROM instruments WHERE uid = $1", uid)
	return instrument, err
}
