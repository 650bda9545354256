package exposure

import (
	"errors"
	"time"

	"github.com/ksred/atlas-api/internal/types"
	"github.com/shopspring/decimal"
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

func (d *Database) CreateExposure(exposure *types.Exposure) error {
	return d.db.Create(exposure).Error
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

func (d *Database) UpdateExposure(exposure *types.Exposure) error {
	return d.db.Save(exposure).Error
}

// ListFilter narrows ListExposures. Zero values mean "no filter".
type ListFilter struct {
	Type           types.ExposureType
	Status         types.ExposureStatus
	CounterpartyID string
	Currency       string
	DueDateFrom    *time.Time
	DueDateTo      *time.Time
	MinAmount      *decimal.Decimal
	Limit          int
	Offset         int
}

func (d *Database) ListExposures(companyID string, filter ListFilter) ([]types.Exposure, error) {
	query := d.db.Where("company_id = ?", companyID)

	if filter.Type != "" {
		query = query.Where("exposure_type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CounterpartyID != "" {
		query = query.Where("counterparty_id = ?", filter.CounterpartyID)
	}
	if filter.Currency != "" {
		query = query.Where("currency = ?", filter.Currency)
	}
	if filter.DueDateFrom != nil {
		query = query.Where("due_date >= ?", *filter.DueDateFrom)
	}
	if filter.DueDateTo != nil {
		query = query.Where("due_date <= ?", *filter.DueDateTo)
	}
	if filter.MinAmount != nil {
		query = query.Where("amount >= ?", *filter.MinAmount)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var exposures []types.Exposure
	err := query.Order("due_date").Limit(limit).Offset(filter.Offset).Find(&exposures).Error
	return exposures, err
}

// openStatuses are the statuses counted as live exposure.
var openStatuses = []types.ExposureStatus{types.ExposureOpen, types.ExposurePartiallyHedged}

// ListOpenExposures returns OPEN and PARTIALLY_HEDGED exposures ordered by
// due date.
func (d *Database) ListOpenExposures(companyID string) ([]types.Exposure, error) {
	var exposures []types.Exposure
	err := d.db.Where("company_id = ? AND status IN ?", companyID, openStatuses).
		Order("due_date").Find(&exposures).Error
	return exposures, err
}

// setHedged writes the derived hedge fields in one UPDATE guarded on the
// previously observed hedged amount. Returns true when the guard matched.
func setHedged(tx *gorm.DB, exposureID string, observed, newHedged, newPct decimal.Decimal, status types.ExposureStatus) (bool, error) {
	result := tx.Model(&types.Exposure{}).
		Where("exposure_id = ? AND amount_hedged = ?", exposureID, observed).
		Updates(map[string]interface{}{
			"amount_hedged":    newHedged,
			"hedge_percentage": newPct,
			"status":           status,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// IncrementHedged adds delta to the exposure's hedged amount, clamped to
// [0, amount], recomputing percentage and status. The write is a
// compare-and-swap on the value read, retried a bounded number of times, so
// two concurrent executions against the same exposure can never both credit
// from the same stale read.
func (d *Database) IncrementHedged(tx *gorm.DB, exposureID, companyID string, delta decimal.Decimal) (*types.Exposure, error) {
	const maxAttempts = 5

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var exp types.Exposure
		err := tx.Where("exposure_id = ? AND company_id = ?", exposureID, companyID).
			First(&exp).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, types.NotFoundf("exposure", exposureID)
			}
			return nil, err
		}

		newHedged := clampHedged(exp.AmountHedged.Add(delta), exp.Amount)
		newPct := hedgePercentage(newHedged, exp.Amount)
		status := statusForHedge(newHedged, exp.Amount)

		ok, err := setHedged(tx, exposureID, exp.AmountHedged, newHedged, newPct, status)
		if err != nil {
			return nil, err
		}
		if ok {
			exp.AmountHedged = newHedged
			exp.HedgePercentage = newPct
			exp.Status = status
			return &exp, nil
		}
	}

	return nil, types.ErrConflict
}

func (d *Database) CreateCounterparty(counterparty *types.Counterparty) error {
	return d.db.Create(counterparty).Error
}

func (d *Database) GetCounterparty(counterpartyID, companyID string) (*types.Counterparty, error) {
	var counterparty types.Counterparty
	err := d.db.Where("counterparty_id = ? AND company_id = ?", counterpartyID, companyID).
		First(&counterparty).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFoundf("counterparty", counterpartyID)
		}
		return nil, err
	}
	return &counterparty, nil
}

func (d *Database) ListCounterparties(companyID, counterpartyType string) ([]types.Counterparty, error) {
	query := d.db.Where("company_id = ? AND is_active = ?", companyID, true)
	if counterpartyType != "" {
		query = query.Where("counterparty_type = ?", counterpartyType)
	}

	var counterparties []types.Counterparty
	err := query.Order("name").Find(&counterparties).Error
	return counterparties, err
}

func clampHedged(hedged, amount decimal.Decimal) decimal.Decimal {
	if hedged.IsNegative() {
		return decimal.Zero
	}
	if hedged.GreaterThan(amount) {
		return amount
	}
	return hedged
}

// hedgePercentage is hedged/amount*100 rounded to 2dp, zero for a zero
// amount so aggregation never divides by zero.
func hedgePercentage(hedged, amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	return hedged.Div(amount).Mul(decimal.NewFromInt(100)).Round(2)
}

func statusForHedge(hedged, amount decimal.Decimal) types.ExposureStatus {
	switch {
	case amount.IsPositive() && hedged.GreaterThanOrEqual(amount):
		return types.ExposureFullyHedged
	case hedged.IsPositive():
		return types.ExposurePartiallyHedged
	default:
		return types.ExposureOpen
	}
}
