package order

import (
	"errors"
	"time"

	"github.com/ksred/atlas-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// DB exposes the underlying handle for cross-service transactions.
func (d *Database) DB() *gorm.DB {
	return d.db
}

func (d *Database) GetOrder(orderID, companyID string) (*types.HedgeOrder, error) {
	var order types.HedgeOrder
	err := d.db.Where("order_id = ? AND company_id = ?", orderID, companyID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFoundf("order", orderID)
		}
		return nil, err
	}
	return &order, nil
}

// ListFilter narrows ListOrders. Zero values mean "no filter".
type ListFilter struct {
	Status     types.OrderStatus
	ExposureID string
	Currency   string
	Side       string
	Limit      int
	Offset     int
}

func (d *Database) ListOrders(companyID string, filter ListFilter) ([]types.HedgeOrder, error) {
	query := d.db.Where("company_id = ?", companyID)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ExposureID != "" {
		query = query.Where("exposure_id = ?", filter.ExposureID)
	}
	if filter.Currency != "" {
		query = query.Where("currency = ?", filter.Currency)
	}
	if filter.Side != "" {
		query = query.Where("side = ?", filter.Side)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var orders []types.HedgeOrder
	err := query.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&orders).Error
	return orders, err
}

func (d *Database) UpdateOrder(order *types.HedgeOrder) error {
	return d.db.Save(order).Error
}

// CreateOrderWithRecommendation persists an order and, when it references a
// recommendation, marks that recommendation accepted in the same
// transaction. The recommendation must still be pending.
func (d *Database) CreateOrderWithRecommendation(order *types.HedgeOrder, decidedBy string, now time.Time) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if order.RecommendationID != "" {
		var rec types.HedgeRecommendation
		err := tx.Where("recommendation_id = ? AND company_id = ?",
			order.RecommendationID, order.CompanyID).First(&rec).Error
		if err != nil {
			tx.Rollback()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.NotFoundf("recommendation", order.RecommendationID)
			}
			return err
		}
		if rec.Status != types.RecommendationPending {
			tx.Rollback()
			return types.InvalidStatef("create order from recommendation", rec.Status)
		}

		rec.Status = types.RecommendationAccepted
		rec.DecidedAt = &now
		rec.DecidedBy = decidedBy
		if err := tx.Save(&rec).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Create(order).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

func (d *Database) GetRecommendation(recommendationID, companyID string) (*types.HedgeRecommendation, error) {
	var rec types.HedgeRecommendation
	err := d.db.Where("recommendation_id = ? AND company_id = ?", recommendationID, companyID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFoundf("recommendation", recommendationID)
		}
		return nil, err
	}
	return &rec, nil
}

func (d *Database) GetExposure(exposureID, companyID string) (*types.Exposure, error) {
	var exposure types.Exposure
	err := d.db.Where("exposure_id = ? AND company_id = ?", exposureID, companyID).
		First(&exposure).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFoundf("exposure", exposureID)
		}
		return nil, err
	}
	return &exposure, nil
}

func (d *Database) CreateQuote(quote *types.Quote) error {
	return d.db.Create(quote).Error
}

func (d *Database) GetQuote(quoteID string) (*types.Quote, error) {
	var quote types.Quote
	err := d.db.Where("quote_id = ?", quoteID).First(&quote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFoundf("quote", quoteID)
		}
		return nil, err
	}
	return &quote, nil
}

func (d *Database) ListQuotes(orderID string) ([]types.Quote, error) {
	var quotes []types.Quote
	err := d.db.Where("order_id = ?", orderID).Order("created_at DESC").Find(&quotes).Error
	return quotes, err
}

func (d *Database) UpdateQuote(quote *types.Quote) error {
	return d.db.Save(quote).Error
}

func (d *Database) GetTrade(tradeID, companyID string) (*types.Trade, error) {
	var trade types.Trade
	err := d.db.Where("trade_id = ? AND company_id = ?", tradeID, companyID).
		First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFoundf("trade", tradeID)
		}
		return nil, err
	}
	return &trade, nil
}

func (d *Database) GetTradeForOrder(orderID, companyID string) (*types.Trade, error) {
	var trade types.Trade
	err := d.db.Where("order_id = ? AND company_id = ?", orderID, companyID).
		First(&trade).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFoundf("trade for order", orderID)
		}
		return nil, err
	}
	return &trade, nil
}

func (d *Database) ListTrades(companyID string, limit, offset int) ([]types.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	var trades []types.Trade
	err := d.db.Where("company_id = ?", companyID).
		Order("trade_date DESC").Limit(limit).Offset(offset).Find(&trades).Error
	return trades, err
}
