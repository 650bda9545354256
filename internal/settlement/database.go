package settlement

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

// Settlements carry no company column; tenancy is enforced by joining
// through the owning trade on every query.

func (d *Database) GetSettlement(settlementID, companyID string) (*types.Settlement, error) {
	var settlement types.Settlement
	err := d.db.Joins("JOIN trades ON trades.trade_id = settlements.trade_id").
		Where("settlements.settlement_id = ? AND trades.company_id = ?", settlementID, companyID).
		First(&settlement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFoundf("settlement", settlementID)
		}
		return nil, err
	}
	return &settlement, nil
}

func (d *Database) ListForTrade(tradeID, companyID string) ([]types.Settlement, error) {
	var settlements []types.Settlement
	err := d.db.Joins("JOIN trades ON trades.trade_id = settlements.trade_id").
		Where("settlements.trade_id = ? AND trades.company_id = ?", tradeID, companyID).
		Order("settlements.leg").Find(&settlements).Error
	return settlements, err
}

// ListFilter narrows ListSettlements. Zero values mean "no filter".
type ListFilter struct {
	Status   types.SettlementStatus
	Currency string
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
	Offset   int
}

func (d *Database) ListSettlements(companyID string, filter ListFilter) ([]types.Settlement, error) {
	query := d.db.Joins("JOIN trades ON trades.trade_id = settlements.trade_id").
		Where("trades.company_id = ?", companyID)

	if filter.Status != "" {
		query = query.Where("settlements.status = ?", filter.Status)
	}
	if filter.Currency != "" {
		query = query.Where("settlements.currency = ?", filter.Currency)
	}
	if filter.DateFrom != nil {
		query = query.Where("settlements.settlement_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("settlements.settlement_date <= ?", *filter.DateTo)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var settlements []types.Settlement
	err := query.Order("settlements.settlement_date").
		Limit(limit).Offset(filter.Offset).Find(&settlements).Error
	return settlements, err
}

// ListDuePending returns pending settlements whose date has arrived, across
// all companies, for the background sweep.
func (d *Database) ListDuePending(asOf time.Time) ([]types.Settlement, error) {
	var settlements []types.Settlement
	err := d.db.Where("status = ? AND settlement_date <= ?", types.SettlementPending, asOf).
		Order("settlement_date").Find(&settlements).Error
	return settlements, err
}

func (d *Database) UpdateSettlement(settlement *types.Settlement) error {
	return d.db.Save(settlement).Error
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
