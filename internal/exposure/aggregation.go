package exposure

import (
	"time"

	"github.com/ksred/atlas-api/internal/types"
	"github.com/shopspring/decimal"
)

// HorizonBreakdown is the aggregate of one maturity bucket.
type HorizonBreakdown struct {
	Total       decimal.Decimal `json:"total"`
	Hedged      decimal.Decimal `json:"hedged"`
	Open        decimal.Decimal `json:"open"`
	Count       int             `json:"count"`
	CoveragePct decimal.Decimal `json:"coverage_pct"`
}

// Summary is the company-wide exposure rollup over live (open or partially
// hedged) exposures of one currency.
type Summary struct {
	Currency               string                      `json:"currency"`
	TotalPayables          decimal.Decimal             `json:"total_payables"`
	TotalReceivables       decimal.Decimal             `json:"total_receivables"`
	TotalHedgedPayables    decimal.Decimal             `json:"total_hedged_payables"`
	TotalHedgedReceivables decimal.Decimal             `json:"total_hedged_receivables"`
	NetExposure            decimal.Decimal             `json:"net_exposure"`
	CoveragePercentage     decimal.Decimal             `json:"coverage_percentage"`
	ExposuresCount         int                         `json:"exposures_count"`
	ByHorizon              map[string]HorizonBreakdown `json:"by_horizon"`
}

// Amounts are summed in Go rather than with SQL aggregates: the decimal
// columns are stored as exact strings, and summing them in the database
// would silently go through floating point.

// buildSummary aggregates live exposures per type and per horizon bucket.
func buildSummary(exposures []types.Exposure, currency string, today time.Time) Summary {
	summary := Summary{
		Currency:  currency,
		ByHorizon: make(map[string]HorizonBreakdown, len(types.Horizons)),
	}

	horizonTotals := make(map[string]*HorizonBreakdown, len(types.Horizons))
	for _, h := range types.Horizons {
		horizonTotals[h.Name] = &HorizonBreakdown{}
	}

	for i := range exposures {
		exp := &exposures[i]
		if exp.Currency != currency {
			continue
		}

		switch exp.Type {
		case types.ExposurePayable:
			summary.TotalPayables = summary.TotalPayables.Add(exp.Amount)
			summary.TotalHedgedPayables = summary.TotalHedgedPayables.Add(exp.AmountHedged)
		case types.ExposureReceivable:
			summary.TotalReceivables = summary.TotalReceivables.Add(exp.Amount)
			summary.TotalHedgedReceivables = summary.TotalHedgedReceivables.Add(exp.AmountHedged)
		}
		summary.ExposuresCount++

		bucket := horizonTotals[types.HorizonFor(exp.DaysToMaturity(today)).Name]
		bucket.Total = bucket.Total.Add(exp.Amount)
		bucket.Hedged = bucket.Hedged.Add(exp.AmountHedged)
		bucket.Count++
	}

	for name, bucket := range horizonTotals {
		bucket.Open = bucket.Total.Sub(bucket.Hedged)
		bucket.CoveragePct = hedgePercentage(bucket.Hedged, bucket.Total)
		summary.ByHorizon[name] = *bucket
	}

	summary.NetExposure = summary.TotalPayables.Sub(summary.TotalReceivables)
	totalExposure := summary.TotalPayables.Add(summary.TotalReceivables)
	totalHedged := summary.TotalHedgedPayables.Add(summary.TotalHedgedReceivables)
	summary.CoveragePercentage = hedgePercentage(totalHedged, totalExposure)

	return summary
}

// GetSummary returns the aggregate exposure position for one currency.
func (s *Service) GetSummary(companyID, currency string) (*Summary, error) {
	exposures, err := s.db.ListOpenExposures(companyID)
	if err != nil {
		return nil, err
	}

	summary := buildSummary(exposures, currency, s.now())
	return &summary, nil
}

// GetByHorizon returns the live exposures falling in one maturity bucket.
func (s *Service) GetByHorizon(companyID, horizonName, currency string) ([]types.Exposure, error) {
	valid := false
	for _, h := range types.Horizons {
		if h.Name == horizonName {
			valid = true
			break
		}
	}
	if !valid {
		return nil, types.Validationf("unknown horizon %q", horizonName)
	}

	exposures, err := s.db.ListOpenExposures(companyID)
	if err != nil {
		return nil, err
	}

	today := s.now()
	matched := make([]types.Exposure, 0, len(exposures))
	for _, exp := range exposures {
		if exp.Currency != currency {
			continue
		}
		if types.HorizonFor(exp.DaysToMaturity(today)).Name == horizonName {
			matched = append(matched, exp)
		}
	}
	return matched, nil
}
