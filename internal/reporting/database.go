package reporting

import (
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

var liveStatuses = []types.ExposureStatus{
	types.ExposureOpen, types.ExposurePartiallyHedged, types.ExposureFullyHedged,
}

// ListLiveExposures returns every exposure still carrying risk, including
// fully hedged ones awaiting settlement.
func (d *Database) ListLiveExposures(companyID string) ([]types.Exposure, error) {
	var exposures []types.Exposure
	err := d.db.Where("company_id = ? AND status IN ?", companyID, liveStatuses).
		Order("due_date").Find(&exposures).Error
	return exposures, err
}

func (d *Database) ListCounterparties(companyID string) ([]types.Counterparty, error) {
	var counterparties []types.Counterparty
	err := d.db.Where("company_id = ?", companyID).Find(&counterparties).Error
	return counterparties, err
}

// ListTradesSince returns trades executed on or after the cutoff.
func (d *Database) ListTradesSince(companyID string, since time.Time) ([]types.Trade, error) {
	var trades []types.Trade
	err := d.db.Where("company_id = ? AND trade_date >= ?", companyID, since).
		Order("trade_date").Find(&trades).Error
	return trades, err
}

func (d *Database) GetDefaultPolicy(companyID string) (*types.HedgePolicy, error) {
	var policy types.HedgePolicy
	err := d.db.Where("company_id = ? AND is_default = ? AND is_active = ?", companyID, true, true).
		First(&policy).Error
	if err != nil {
		return nil, err
	}
	return &policy, nil
}
