package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/krobus00/donchian-service/internal/entity"
)

type PriceSubscriptionRepository struct {
	db *sqlx.DB
}

func NewPriceSubscriptionRepository(db *sqlx.DB) *PriceSubscriptionRepository {
	return &PriceSubscriptionRepository{db: db}
}

func (r *PriceSubscriptionRepository) GetAll(ctx context.Context) ([]entity.PriceSubscription, error) {
	var subscriptions []entity.PriceSubscription
	err := r.db.SelectContext(ctx, &subscriptions, "SELECT * FROM price_subscriptions order by created_at desc")
	return subscriptions, err
}

func (r *PriceSubscriptionRepository) GetByInterval(ctx context.Context, interval string) ([]entity.PriceSubscription, error) {
	var subscriptions []entity.PriceSubscription
	err := r.db.SelectContext(ctx, &subscriptions, "SELECT * FROM price_subscriptions WHERE interval = $1 order by created_at desc", interval)
	return subscriptions, err
}
