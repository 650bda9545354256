package recommendation

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

// ListFilter narrows ListRecommendations. Zero values mean "no filter".
type ListFilter struct {
	Status         types.RecommendationStatus
	Action         types.HedgeAction
	Urgency        types.Urgency
	ExposureID     string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
	IncludeExpired bool
	Limit          int
	Offset         int
}

// ListRecommendations returns recommendations ordered by priority. Unless
// IncludeExpired is set, pending rows past their validity window are
// filtered out even if the sweep has not flipped them yet.
func (d *Database) ListRecommendations(companyID string, filter ListFilter, now time.Time) ([]types.HedgeRecommendation, error) {
	query := d.db.Where("company_id = ?", companyID)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Urgency != "" {
		query = query.Where("urgency = ?", filter.Urgency)
	}
	if filter.ExposureID != "" {
		query = query.Where("exposure_id = ?", filter.ExposureID)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}
	if !filter.IncludeExpired {
		query = query.Where("NOT (status = ? AND valid_until < ?)", types.RecommendationPending, now)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var recs []types.HedgeRecommendation
	err := query.Order("priority DESC, created_at DESC").
		Limit(limit).Offset(filter.Offset).Find(&recs).Error
	return recs, err
}

func (d *Database) UpdateRecommendation(rec *types.HedgeRecommendation) error {
	return d.db.Save(rec).Error
}

// ExpirePending flips every pending recommendation past its validity window
// to EXPIRED and returns the number of rows changed.
func (d *Database) ExpirePending(before time.Time) (int64, error) {
	result := d.db.Model(&types.HedgeRecommendation{}).
		Where("status = ? AND valid_until < ?", types.RecommendationPending, before).
		Updates(map[string]interface{}{
			"status":     types.RecommendationExpired,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// PendingWithExposures returns the live pending recommendations of the
// company joined to their exposures, for calendar views keyed on due date.
func (d *Database) PendingWithExposures(companyID string, from, to time.Time, now time.Time) ([]types.HedgeRecommendation, map[string]types.Exposure, error) {
	var recs []types.HedgeRecommendation
	err := d.db.Where("company_id = ? AND status = ? AND valid_until >= ?",
		companyID, types.RecommendationPending, now).
		Order("priority DESC").Find(&recs).Error
	if err != nil {
		return nil, nil, err
	}

	ids := make([]string, 0, len(recs))
	for i := range recs {
		ids = append(ids, recs[i].ExposureID)
	}

	exposuresByID := make(map[string]types.Exposure, len(ids))
	if len(ids) > 0 {
		var exposures []types.Exposure
		query := d.db.Where("company_id = ? AND exposure_id IN ?", companyID, ids)
		if !from.IsZero() {
			query = query.Where("due_date >= ?", from)
		}
		if !to.IsZero() {
			query = query.Where("due_date <= ?", to)
		}
		if err := query.Find(&exposures).Error; err != nil {
			return nil, nil, err
		}
		for i := range exposures {
			exposuresByID[exposures[i].ExposureID] = exposures[i]
		}
	}

	return recs, exposuresByID, nil
}

// ListPending returns live pending recommendations ordered by priority.
func (d *Database) ListPending(companyID string, now time.Time) ([]types.HedgeRecommendation, error) {
	var recs []types.HedgeRecommendation
	err := d.db.Where("company_id = ? AND status = ? AND valid_until >= ?",
		companyID, types.RecommendationPending, now).
		Order("priority DESC").Find(&recs).Error
	return recs, err
}
