package settlement

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
	svc := NewService(newTestDB(t))
	svc.now = func() time.Time { return now }
	return svc, svc.db.DB()
}

// tradeFixture is a confirmed trade with both legs pending, backed by an
// executed order against an exposure in the given hedge status.
type tradeFixture struct {
	exposure *types.Exposure
	trade    *types.Trade
	legs     []types.Settlement
}

func seedTrade(t *testing.T, db *gorm.DB, valueDate time.Time, exposureStatus types.ExposureStatus) *tradeFixture {
	t.Helper()

	exp := &types.Exposure{
		ExposureID:   "EXP_" + uuid.New().String(),
		CompanyID:    testCompany,
		Type:         types.ExposurePayable,
		Currency:     "EUR",
		Amount:       decimal.NewFromInt(100_000),
		AmountHedged: decimal.NewFromInt(100_000),
		DueDate:      valueDate,
		Status:       exposureStatus,
	}
	require.NoError(t, db.Create(exp).Error)

	order := &types.HedgeOrder{
		OrderID:    "ORD_" + uuid.New().String(),
		CompanyID:  testCompany,
		ExposureID: exp.ExposureID,
		OrderType:  "spot",
		Side:       "buy",
		Currency:   "EUR",
		Amount:     decimal.NewFromInt(100_000),
		Status:     types.OrderExecuted,
	}
	require.NoError(t, db.Create(order).Error)

	trade := &types.Trade{
		TradeID:        "TRD_" + uuid.New().String(),
		CompanyID:      testCompany,
		OrderID:        order.OrderID,
		TradeType:      "spot",
		Side:           "buy",
		CurrencySold:   "USD",
		AmountSold:     decimal.NewFromInt(108_300),
		CurrencyBought: "EUR",
		AmountBought:   decimal.NewFromInt(100_000),
		ExecutedRate:   decimal.NewFromFloat(1.083),
		TradeDate:      valueDate.AddDate(0, 0, -2),
		ValueDate:      valueDate,
		Status:         types.TradeConfirmed,
	}
	require.NoError(t, db.Create(trade).Error)

	legs := []types.Settlement{
		{
			SettlementID:   "STL_" + uuid.New().String(),
			TradeID:        trade.TradeID,
			Leg:            "sold",
			SettlementDate: valueDate,
			Currency:       "USD",
			Amount:         trade.AmountSold,
			Status:         types.SettlementPending,
		},
		{
			SettlementID:   "STL_" + uuid.New().String(),
			TradeID:        trade.TradeID,
			Leg:            "bought",
			SettlementDate: valueDate,
			Currency:       "EUR",
			Amount:         trade.AmountBought,
			Status:         types.SettlementPending,
		},
	}
	for i := range legs {
		require.NoError(t, db.Create(&legs[i]).Error)
	}

	return &tradeFixture{exposure: exp, trade: trade, legs: legs}
}

func TestMarkProcessingFromPendingOnly(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)
	fix := seedTrade(t, db, now, types.ExposureFullyHedged)

	stl, err := svc.MarkProcessing(fix.legs[0].SettlementID, testCompany, "PAY-123")
	require.NoError(t, err)
	assert.Equal(t, types.SettlementProcessing, stl.Status)
	assert.Equal(t, "PAY-123", stl.PaymentReference)
	require.NotNil(t, stl.ProcessedAt)

	_, err = svc.MarkProcessing(fix.legs[0].SettlementID, testCompany, "PAY-124")
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestCompletingLastLegSettlesTradeAndExposure(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)
	fix := seedTrade(t, db, now, types.ExposureFullyHedged)

	// First leg: trade stays confirmed
	stl, err := svc.MarkCompleted(fix.legs[0].SettlementID, testCompany, "CONF-1")
	require.NoError(t, err)
	assert.Equal(t, types.SettlementCompleted, stl.Status)
	assert.Equal(t, "CONF-1", stl.BankConfirmation)
	require.NotNil(t, stl.ConfirmedAt)

	trade, err := svc.db.GetTrade(fix.trade.TradeID, testCompany)
	require.NoError(t, err)
	assert.Equal(t, types.TradeConfirmed, trade.Status)

	// Second leg: trade and the fully hedged exposure settle
	_, err = svc.MarkCompleted(fix.legs[1].SettlementID, testCompany, "CONF-2")
	require.NoError(t, err)

	trade, err = svc.db.GetTrade(fix.trade.TradeID, testCompany)
	require.NoError(t, err)
	assert.Equal(t, types.TradeSettled, trade.Status)

	var exp types.Exposure
	require.NoError(t, db.Where("exposure_id = ?", fix.exposure.ExposureID).First(&exp).Error)
	assert.Equal(t, types.ExposureSettled, exp.Status)
}

func TestPartiallyHedgedExposureStaysLive(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)
	fix := seedTrade(t, db, now, types.ExposurePartiallyHedged)

	_, err := svc.MarkCompleted(fix.legs[0].SettlementID, testCompany, "")
	require.NoError(t, err)
	_, err = svc.MarkCompleted(fix.legs[1].SettlementID, testCompany, "")
	require.NoError(t, err)

	trade, err := svc.db.GetTrade(fix.trade.TradeID, testCompany)
	require.NoError(t, err)
	assert.Equal(t, types.TradeSettled, trade.Status)

	// More trades are expected against this exposure
	var exp types.Exposure
	require.NoError(t, db.Where("exposure_id = ?", fix.exposure.ExposureID).First(&exp).Error)
	assert.Equal(t, types.ExposurePartiallyHedged, exp.Status)
}

func TestMarkFailedKeepsTradeUnsettled(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)
	fix := seedTrade(t, db, now, types.ExposureFullyHedged)

	stl, err := svc.MarkFailed(fix.legs[0].SettlementID, testCompany, "beneficiary account closed")
	require.NoError(t, err)
	assert.Equal(t, types.SettlementFailed, stl.Status)
	assert.Equal(t, "beneficiary account closed", stl.Notes)

	// Completing the other leg does not settle the trade
	_, err = svc.MarkCompleted(fix.legs[1].SettlementID, testCompany, "")
	require.NoError(t, err)

	trade, err := svc.db.GetTrade(fix.trade.TradeID, testCompany)
	require.NoError(t, err)
	assert.Equal(t, types.TradeConfirmed, trade.Status)

	// Failed is terminal
	_, err = svc.MarkCompleted(fix.legs[0].SettlementID, testCompany, "")
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestSettlementTenancyThroughTrade(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)
	fix := seedTrade(t, db, now, types.ExposureFullyHedged)

	_, err := svc.GetSettlement(fix.legs[0].SettlementID, "COMP_OTHER")
	assert.ErrorIs(t, err, types.ErrNotFound)

	settlements, err := svc.ListSettlements("COMP_OTHER", ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, settlements)
}

func TestCalendarGroupsBySettlementDate(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)

	seedTrade(t, db, now.AddDate(0, 0, 2), types.ExposureFullyHedged)
	seedTrade(t, db, now.AddDate(0, 0, 5), types.ExposureFullyHedged)

	days, err := svc.Calendar(testCompany, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, days, 2)

	assert.Equal(t, "2026-05-03", days[0].Date)
	assert.Equal(t, "2026-05-06", days[1].Date)
	assert.Len(t, days[0].Settlements, 2)
	assert.True(t, days[0].TotalAmount.Equal(decimal.NewFromInt(208_300)))
	assert.True(t, days[0].ByCurrency["USD"].Equal(decimal.NewFromInt(108_300)))
	assert.True(t, days[0].ByCurrency["EUR"].Equal(decimal.NewFromInt(100_000)))
}

func TestSummaryBucketsPendingByDate(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc, db := newTestService(t, now)

	seedTrade(t, db, now, types.ExposureFullyHedged)                  // due today
	seedTrade(t, db, now.AddDate(0, 0, 3), types.ExposureFullyHedged) // this week
	seedTrade(t, db, now.AddDate(0, 0, 20), types.ExposureFullyHedged)

	summary, err := svc.GetSummary(testCompany)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.PendingToday.Count)
	assert.Equal(t, 4, summary.PendingNextWeek.Count)
	assert.Equal(t, 6, summary.ByStatus[types.SettlementPending].Count)
}

func TestProcessorSweep(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	db := newTestDB(t)

	proc := NewProcessor(db, time.Minute)
	proc.settlements.now = func() time.Time { return now }

	seedTrade(t, db, now.AddDate(0, 0, -1), types.ExposureFullyHedged) // due
	future := seedTrade(t, db, now.AddDate(0, 0, 5), types.ExposureFullyHedged)

	// A stale pending recommendation is swept alongside
	require.NoError(t, db.Create(&types.HedgeRecommendation{
		RecommendationID: "REC_" + uuid.New().String(),
		CompanyID:        testCompany,
		ExposureID:       "EXP_" + uuid.New().String(),
		Action:           types.ActionHedgeNow,
		Currency:         "EUR",
		AmountToHedge:    decimal.NewFromInt(10_000),
		Status:           types.RecommendationPending,
		ValidUntil:       now.Add(-time.Hour),
	}).Error)

	processed, expired := proc.Sweep()
	assert.Equal(t, 2, processed)
	assert.Equal(t, int64(1), expired)

	// Future-dated legs untouched
	var stl types.Settlement
	require.NoError(t, db.Where("settlement_id = ?", future.legs[0].SettlementID).First(&stl).Error)
	assert.Equal(t, types.SettlementPending, stl.Status)

	// Nothing left to sweep
	processed, expired = proc.Sweep()
	assert.Zero(t, processed)
	assert.Zero(t, expired)
}
