package reporting

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/atlas-api/internal/database"
	"github.com/ksred/atlas-api/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testCompany = "COMP_TEST"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func newTestService(t *testing.T, now time.Time) (*Service, *gorm.DB) {
	db := newTestDB(t)
	svc := NewService(db)
	svc.now = func() time.Time { return now }
	return svc, db
}

func seedExposure(t *testing.T, db *gorm.DB, mutate func(*types.Exposure)) *types.Exposure {
	t.Helper()
	exp := &types.Exposure{
		ExposureID: "EXP_" + uuid.New().String(),
		CompanyID:  testCompany,
		Type:       types.ExposurePayable,
		Currency:   "EUR",
		Amount:     decimal.NewFromInt(100_000),
		Status:     types.ExposureOpen,
	}
	if mutate != nil {
		mutate(exp)
	}
	require.NoError(t, db.Create(exp).Error)
	return exp
}

func TestCoverageSlicesAndTargets(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)

	cpt := &types.Counterparty{
		CounterpartyID: "CPT_" + uuid.New().String(),
		CompanyID:      testCompany,
		Name:           "Acme GmbH",
		IsActive:       true,
	}
	require.NoError(t, db.Create(cpt).Error)

	require.NoError(t, db.Create(&types.HedgePolicy{
		PolicyID:        "POL_" + uuid.New().String(),
		CompanyID:       testCompany,
		Name:            "standard",
		CoverageUnder30: decimal.NewFromInt(100),
		Coverage31To60:  decimal.NewFromInt(75),
		Coverage61To90:  decimal.NewFromInt(50),
		CoverageOver90:  decimal.NewFromInt(25),
		IsActive:        true,
		IsDefault:       true,
	}).Error)

	// Near-term payable, half hedged, with a counterparty
	seedExposure(t, db, func(e *types.Exposure) {
		e.CounterpartyID = cpt.CounterpartyID
		e.AmountHedged = decimal.NewFromInt(50_000)
		e.DueDate = now.AddDate(0, 0, 10)
		e.Status = types.ExposurePartiallyHedged
	})
	// Far receivable, unhedged, no counterparty
	seedExposure(t, db, func(e *types.Exposure) {
		e.Type = types.ExposureReceivable
		e.Amount = decimal.NewFromInt(60_000)
		e.DueDate = now.AddDate(0, 0, 120)
	})
	// Settled exposures are out of scope
	seedExposure(t, db, func(e *types.Exposure) {
		e.DueDate = now.AddDate(0, 0, 10)
		e.Status = types.ExposureSettled
	})

	report, err := svc.Coverage(testCompany)
	require.NoError(t, err)

	assert.True(t, report.TotalExposure.Equal(decimal.NewFromInt(160_000)))
	assert.True(t, report.TotalHedged.Equal(decimal.NewFromInt(50_000)))
	assert.True(t, report.CoveragePct.Equal(decimal.NewFromFloat(31.25)))

	require.Len(t, report.ByType, 2)
	assert.Equal(t, "payable", report.ByType[0].Key)
	assert.True(t, report.ByType[0].CoveragePct.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "receivable", report.ByType[1].Key)

	require.Len(t, report.ByCounterparty, 2)
	assert.Equal(t, "Acme GmbH", report.ByCounterparty[0].Key)
	assert.Equal(t, "unassigned", report.ByCounterparty[1].Key)

	// Horizon slices hold declaration order and carry the policy targets
	require.Len(t, report.ByHorizon, 4)
	assert.Equal(t, "0-30", report.ByHorizon[0].Key)
	assert.Equal(t, "91+", report.ByHorizon[3].Key)
	require.NotNil(t, report.ByHorizon[0].TargetPct)
	assert.True(t, report.ByHorizon[0].TargetPct.Equal(decimal.NewFromInt(100)))
	assert.True(t, report.ByHorizon[3].TargetPct.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, 1, report.ByHorizon[0].Count)
	assert.Equal(t, 1, report.ByHorizon[3].Count)
	assert.Zero(t, report.ByHorizon[1].Count)
}

func TestCoverageWithoutDefaultPolicy(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)

	seedExposure(t, db, func(e *types.Exposure) {
		e.DueDate = now.AddDate(0, 0, 10)
	})

	report, err := svc.Coverage(testCompany)
	require.NoError(t, err)
	assert.Nil(t, report.ByHorizon[0].TargetPct)
}

func TestMaturityLadderBucketsByMonth(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)

	seedExposure(t, db, func(e *types.Exposure) {
		e.DueDate = time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
		e.AmountHedged = decimal.NewFromInt(40_000)
	})
	seedExposure(t, db, func(e *types.Exposure) {
		e.Type = types.ExposureReceivable
		e.Amount = decimal.NewFromInt(30_000)
		e.DueDate = time.Date(2026, 5, 28, 0, 0, 0, 0, time.UTC)
	})
	seedExposure(t, db, func(e *types.Exposure) {
		e.DueDate = time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)
	})

	ladder, err := svc.MaturityLadder(testCompany)
	require.NoError(t, err)
	require.Len(t, ladder, 2)

	may := ladder[0]
	assert.Equal(t, "2026-05", may.Month)
	assert.Equal(t, 2, may.Count)
	assert.True(t, may.Payables.Equal(decimal.NewFromInt(100_000)))
	assert.True(t, may.Receivables.Equal(decimal.NewFromInt(30_000)))
	assert.True(t, may.Hedged.Equal(decimal.NewFromInt(40_000)))
	assert.True(t, may.Open.Equal(decimal.NewFromInt(90_000)))

	assert.Equal(t, "2026-07", ladder[1].Month)
}

func seedTrade(t *testing.T, db *gorm.DB, tradeDate time.Time, sold, bought int64, rate float64) {
	t.Helper()
	require.NoError(t, db.Create(&types.Trade{
		TradeID:        "TRD_" + uuid.New().String(),
		CompanyID:      testCompany,
		OrderID:        "ORD_" + uuid.New().String(),
		TradeType:      "spot",
		Side:           "buy",
		CurrencySold:   "USD",
		AmountSold:     decimal.NewFromInt(sold),
		CurrencyBought: "EUR",
		AmountBought:   decimal.NewFromInt(bought),
		ExecutedRate:   decimal.NewFromFloat(rate),
		TradeDate:      tradeDate,
		ValueDate:      tradeDate.AddDate(0, 0, 2),
		Status:         types.TradeConfirmed,
	}).Error)
}

func TestHedgingCostWeightsByVolume(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)

	seedTrade(t, db, now.AddDate(0, 0, -10), 108_000, 100_000, 1.08)
	seedTrade(t, db, now.AddDate(0, 0, -5), 330_000, 300_000, 1.10)
	// Outside the 90-day window
	seedTrade(t, db, now.AddDate(0, 0, -120), 500_000, 500_000, 1.00)

	report, err := svc.HedgingCost(testCompany, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, report.TradeCount)
	assert.True(t, report.TotalTraded.Equal(decimal.NewFromInt(438_000)))

	require.Len(t, report.ByPair, 1)
	pair := report.ByPair[0]
	assert.Equal(t, "USD/EUR", pair.Pair)
	assert.Equal(t, 2, pair.TradeCount)
	// 438000 / 400000, weighted toward the larger trade
	assert.True(t, pair.AvgExecutedRate.Equal(decimal.NewFromFloat(1.095)))
	assert.True(t, pair.BestRate.Equal(decimal.NewFromFloat(1.08)))
	assert.True(t, pair.WorstRate.Equal(decimal.NewFromFloat(1.10)))
}
