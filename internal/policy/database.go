package policy

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

func (d *Database) CreatePolicy(policy *types.HedgePolicy) error {
	return d.db.Create(policy).Error
}

func (d *Database) GetPolicy(policyID, companyID string) (*types.HedgePolicy, error) {
	var policy types.HedgePolicy
	err := d.db.Where("policy_id = ? AND company_id = ?", policyID, companyID).
		First(&policy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFoundf("policy", policyID)
		}
		return nil, err
	}
	return &policy, nil
}

func (d *Database) GetDefaultPolicy(companyID string) (*types.HedgePolicy, error) {
	var policy types.HedgePolicy
	err := d.db.Where("company_id = ? AND is_default = ? AND is_active = ?", companyID, true, true).
		First(&policy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NotFoundf("default policy for company", companyID)
		}
		return nil, err
	}
	return &policy, nil
}

func (d *Database) ListPolicies(companyID string, activeOnly bool) ([]types.HedgePolicy, error) {
	query := d.db.Where("company_id = ?", companyID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var policies []types.HedgePolicy
	err := query.Order("priority").Find(&policies).Error
	return policies, err
}

func (d *Database) UpdatePolicy(policy *types.HedgePolicy) error {
	return d.db.Save(policy).Error
}

// ClearDefaults removes the default flag from every other policy of the
// company, keeping at most one default active.
func (d *Database) ClearDefaults(companyID, excludePolicyID string) error {
	query := d.db.Model(&types.HedgePolicy{}).
		Where("company_id = ? AND is_default = ?", companyID, true)
	if excludePolicyID != "" {
		query = query.Where("policy_id != ?", excludePolicyID)
	}
	return query.Updates(map[string]interface{}{
		"is_default": false,
		"updated_at": time.Now(),
	}).Error
}

// GetExposuresToEvaluate returns the open exposures in scope for a policy:
// live status, optional explicit id set, and the policy's type, currency
// and minimum amount filters.
func (d *Database) GetExposuresToEvaluate(companyID string, exposureIDs []string, policy *types.HedgePolicy) ([]types.Exposure, error) {
	query := d.db.Where("company_id = ? AND status IN ?", companyID,
		[]types.ExposureStatus{types.ExposureOpen, types.ExposurePartiallyHedged})

	if len(exposureIDs) > 0 {
		query = query.Where("exposure_id IN ?", exposureIDs)
	}
	if policy.ExposureType != "" {
		query = query.Where("exposure_type = ?", policy.ExposureType)
	}
	if policy.Currency != "" {
		query = query.Where("currency = ?", policy.Currency)
	}
	if policy.MinAmount.IsPositive() {
		query = query.Where("amount >= ?", policy.MinAmount)
	}

	var exposures []types.Exposure
	err := query.Order("due_date").Find(&exposures).Error
	return exposures, err
}

// ListOpenExposures returns every live exposure of the company, for
// simulation runs that ignore policy filters.
func (d *Database) ListOpenExposures(companyID string) ([]types.Exposure, error) {
	var exposures []types.Exposure
	err := d.db.Where("company_id = ? AND status IN ?", companyID,
		[]types.ExposureStatus{types.ExposureOpen, types.ExposurePartiallyHedged}).
		Order("due_date").Find(&exposures).Error
	return exposures, err
}

// SaveRecommendations persists an evaluation run atomically: either every
// generated recommendation lands or none do.
func (d *Database) SaveRecommendations(recommendations []types.HedgeRecommendation) error {
	if len(recommendations) == 0 {
		return nil
	}

	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for i := range recommendations {
		if err := tx.Create(&recommendations[i]).Error; err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit().Error
}
