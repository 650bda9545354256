package order

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/atlas-api/internal/database"
	"github.com/ksred/atlas-api/internal/exposure"
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

type fixture struct {
	db        *gorm.DB
	orders    *Service
	exposures *exposure.Service
	today     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	today := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	orders := NewService(db, decimal.NewFromInt(100_000))
	orders.now = func() time.Time { return today }
	exposures := exposure.NewService(db)

	return &fixture{db: db, orders: orders, exposures: exposures, today: today}
}

func (f *fixture) createExposure(t *testing.T, amount int64) *types.Exposure {
	t.Helper()
	exp, err := f.exposures.CreateExposure(testCompany, types.ExposureCreate{
		Type:      types.ExposurePayable,
		Reference: "INV-1",
		Currency:  "EUR",
		Amount:    decimal.NewFromInt(amount),
		DueDate:   f.today.AddDate(0, 0, 30),
	}, "USR_1")
	require.NoError(t, err)
	return exp
}

func (f *fixture) seedRecommendation(t *testing.T, exposureID string, amount int64) *types.HedgeRecommendation {
	t.Helper()
	rec := &types.HedgeRecommendation{
		RecommendationID: "REC_" + uuid.New().String(),
		CompanyID:        testCompany,
		ExposureID:       exposureID,
		Action:           types.ActionHedgeNow,
		Currency:         "EUR",
		AmountToHedge:    decimal.NewFromInt(amount),
		Status:           types.RecommendationPending,
		ValidUntil:       f.today.Add(24 * time.Hour),
	}
	require.NoError(t, f.db.Create(rec).Error)
	return rec
}

func orderCreate(amount int64) types.OrderCreate {
	return types.OrderCreate{
		Side:     "buy",
		Currency: "EUR",
		Amount:   decimal.NewFromInt(amount),
	}
}

func TestCreateOrderBelowThresholdAutoApproves(t *testing.T) {
	f := newFixture(t)

	ord, err := f.orders.CreateOrder(testCompany, orderCreate(50_000), "USR_1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ord.OrderID, "ORD_"))
	assert.Equal(t, types.OrderApproved, ord.Status)
	assert.False(t, ord.RequiresApproval)
	assert.Equal(t, "spot", ord.OrderType)
	// ORD-YYYYMMDD-XXXXXXXX
	assert.Regexp(t, `^ORD-20260501-[0-9A-F]{8}$`, ord.InternalReference)
}

func TestCreateOrderAtThresholdRequiresApproval(t *testing.T) {
	f := newFixture(t)

	ord, err := f.orders.CreateOrder(testCompany, orderCreate(100_000), "USR_1")
	require.NoError(t, err)
	assert.Equal(t, types.OrderPendingApproval, ord.Status)
	assert.True(t, ord.RequiresApproval)

	approved, err := f.orders.Approve(ord.OrderID, testCompany, "USR_2")
	require.NoError(t, err)
	assert.Equal(t, types.OrderApproved, approved.Status)
	assert.Equal(t, "USR_2", approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)

	// Approving twice is refused
	_, err = f.orders.Approve(ord.OrderID, testCompany, "USR_2")
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestCreateOrderStoresMarketRate(t *testing.T) {
	f := newFixture(t)

	rate := decimal.NewFromFloat(1.0845)
	data := orderCreate(50_000)
	data.CurrentRate = &rate

	ord, err := f.orders.CreateOrder(testCompany, data, "USR_1")
	require.NoError(t, err)
	require.NotNil(t, ord.MarketRateAtCreation)
	assert.True(t, ord.MarketRateAtCreation.Equal(rate))

	// Optional: absent rate stays nil
	plain, err := f.orders.CreateOrder(testCompany, orderCreate(50_000), "USR_1")
	require.NoError(t, err)
	assert.Nil(t, plain.MarketRateAtCreation)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*types.OrderCreate)
	}{
		{"bad side", func(d *types.OrderCreate) { d.Side = "hold" }},
		{"zero amount", func(d *types.OrderCreate) { d.Amount = decimal.Zero }},
		{"bad currency", func(d *types.OrderCreate) { d.Currency = "EURO" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := orderCreate(50_000)
			tt.mutate(&data)
			_, err := f.orders.CreateOrder(testCompany, data, "USR_1")
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}
}

func TestCreateFromRecommendationConsumesIt(t *testing.T) {
	f := newFixture(t)
	exp := f.createExposure(t, 200_000)
	rec := f.seedRecommendation(t, exp.ExposureID, 150_000)

	ord, err := f.orders.CreateFromRecommendation(rec.RecommendationID, testCompany, "USR_1")
	require.NoError(t, err)

	assert.Equal(t, "buy", ord.Side) // payable buys the foreign currency
	assert.True(t, ord.Amount.Equal(decimal.NewFromInt(150_000)))
	assert.Equal(t, exp.ExposureID, ord.ExposureID)
	assert.Equal(t, types.OrderPendingApproval, ord.Status)

	var reloaded types.HedgeRecommendation
	require.NoError(t, f.db.Where("recommendation_id = ?", rec.RecommendationID).First(&reloaded).Error)
	assert.Equal(t, types.RecommendationAccepted, reloaded.Status)

	// A consumed recommendation cannot back a second order
	_, err = f.orders.CreateFromRecommendation(rec.RecommendationID, testCompany, "USR_1")
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestUpdateOrderOnlyBeforeApproval(t *testing.T) {
	f := newFixture(t)

	ord, err := f.orders.CreateOrder(testCompany, orderCreate(150_000), "USR_1")
	require.NoError(t, err)

	notes := "negotiate harder"
	updated, err := f.orders.UpdateOrder(ord.OrderID, testCompany, types.OrderUpdate{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "negotiate harder", updated.Notes)

	_, err = f.orders.Approve(ord.OrderID, testCompany, "USR_2")
	require.NoError(t, err)

	_, err = f.orders.UpdateOrder(ord.OrderID, testCompany, types.OrderUpdate{Notes: &notes})
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestRejectOrder(t *testing.T) {
	f := newFixture(t)

	ord, err := f.orders.CreateOrder(testCompany, orderCreate(150_000), "USR_1")
	require.NoError(t, err)

	rejected, err := f.orders.Reject(ord.OrderID, testCompany, "USR_2", "budget freeze")
	require.NoError(t, err)
	assert.Equal(t, types.OrderRejected, rejected.Status)

	// Terminal; cannot cancel afterwards
	_, err = f.orders.Cancel(ord.OrderID, testCompany)
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestQuoteLifecycle(t *testing.T) {
	f := newFixture(t)

	ord, err := f.orders.CreateOrder(testCompany, orderCreate(50_000), "USR_1")
	require.NoError(t, err)

	bid := decimal.NewFromFloat(1.0810)
	ask := decimal.NewFromFloat(1.0830)
	quote, err := f.orders.AddQuote(ord.OrderID, testCompany, types.QuoteCreate{
		Provider:   "BANK1",
		BidRate:    &bid,
		AskRate:    &ask,
		ValidUntil: f.today.Add(10 * time.Minute),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(quote.QuoteID, "QTE_"))
	require.NotNil(t, quote.Spread)
	assert.True(t, quote.Spread.Equal(decimal.NewFromFloat(0.0020)))
	assert.True(t, quote.Amount.Equal(ord.Amount))
	assert.Equal(t, "EUR", quote.Currency)

	reloaded, err := f.orders.GetOrder(ord.OrderID, testCompany)
	require.NoError(t, err)
	assert.Equal(t, types.OrderQuoted, reloaded.Status)

	accepted, err := f.orders.AcceptQuote(ord.OrderID, quote.QuoteID, testCompany)
	require.NoError(t, err)
	assert.True(t, accepted.IsAccepted)
}

func TestAcceptExpiredQuoteFails(t *testing.T) {
	f := newFixture(t)

	ord, err := f.orders.CreateOrder(testCompany, orderCreate(50_000), "USR_1")
	require.NoError(t, err)

	quote, err := f.orders.AddQuote(ord.OrderID, testCompany, types.QuoteCreate{
		Provider:   "BANK1",
		ValidUntil: f.today.Add(time.Minute),
	})
	require.NoError(t, err)

	// Clock moves past the quote's validity
	f.orders.now = func() time.Time { return f.today.Add(time.Hour) }

	_, err = f.orders.AcceptQuote(ord.OrderID, quote.QuoteID, testCompany)
	assert.ErrorIs(t, err, types.ErrInvalidState)

	reloaded, err := f.orders.db.GetQuote(quote.QuoteID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsExpired)
	assert.False(t, reloaded.IsAccepted)
}

func TestQuoteRequiresApprovedOrder(t *testing.T) {
	f := newFixture(t)

	ord, err := f.orders.CreateOrder(testCompany, orderCreate(150_000), "USR_1")
	require.NoError(t, err)

	_, err = f.orders.AddQuote(ord.OrderID, testCompany, types.QuoteCreate{
		Provider:   "BANK1",
		ValidUntil: f.today.Add(time.Minute),
	})
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func tradeCreate(today time.Time, amount int64) types.TradeCreate {
	bought := decimal.NewFromInt(amount)
	return types.TradeCreate{
		Side:           "buy",
		CurrencySold:   "USD",
		AmountSold:     bought.Mul(decimal.NewFromFloat(1.083)).Round(2),
		CurrencyBought: "EUR",
		AmountBought:   bought,
		ExecutedRate:   decimal.NewFromFloat(1.083),
		TradeDate:      today,
		ValueDate:      today.AddDate(0, 0, 2),
	}
}

func TestExecuteCreatesTradeHedgeAndLegs(t *testing.T) {
	f := newFixture(t)
	exp := f.createExposure(t, 200_000)
	rec := f.seedRecommendation(t, exp.ExposureID, 150_000)

	ord, err := f.orders.CreateFromRecommendation(rec.RecommendationID, testCompany, "USR_1")
	require.NoError(t, err)
	_, err = f.orders.Approve(ord.OrderID, testCompany, "USR_2")
	require.NoError(t, err)

	trade, err := f.orders.Execute(ord.OrderID, testCompany, tradeCreate(f.today, 150_000), "USR_1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(trade.TradeID, "TRD_"))
	assert.Equal(t, types.TradeConfirmed, trade.Status)

	reloaded, err := f.orders.GetOrder(ord.OrderID, testCompany)
	require.NoError(t, err)
	assert.Equal(t, types.OrderExecuted, reloaded.Status)
	require.NotNil(t, reloaded.ExecutedAt)

	// Exposure credited with the bought amount
	updatedExp, err := f.exposures.GetExposure(exp.ExposureID, testCompany)
	require.NoError(t, err)
	assert.True(t, updatedExp.AmountHedged.Equal(decimal.NewFromInt(150_000)))
	assert.Equal(t, types.ExposurePartiallyHedged, updatedExp.Status)

	// Both settlement legs opened at the value date
	var legs []types.Settlement
	require.NoError(t, f.db.Where("trade_id = ?", trade.TradeID).Order("leg").Find(&legs).Error)
	require.Len(t, legs, 2)
	assert.Equal(t, "bought", legs[0].Leg)
	assert.Equal(t, "EUR", legs[0].Currency)
	assert.Equal(t, "sold", legs[1].Leg)
	assert.Equal(t, "USD", legs[1].Currency)
	for _, leg := range legs {
		assert.Equal(t, types.SettlementPending, leg.Status)
		assert.True(t, leg.SettlementDate.Equal(trade.ValueDate))
	}
}

func TestExecuteCreditsOrderAmount(t *testing.T) {
	f := newFixture(t)
	exp := f.createExposure(t, 200_000)
	rec := f.seedRecommendation(t, exp.ExposureID, 150_000)

	ord, err := f.orders.CreateFromRecommendation(rec.RecommendationID, testCompany, "USR_1")
	require.NoError(t, err)
	_, err = f.orders.Approve(ord.OrderID, testCompany, "USR_2")
	require.NoError(t, err)

	// Bank reports trade amounts that diverge from the order; the exposure
	// is still credited with the contracted order amount.
	data := tradeCreate(f.today, 10_000)
	_, err = f.orders.Execute(ord.OrderID, testCompany, data, "USR_1")
	require.NoError(t, err)

	updatedExp, err := f.exposures.GetExposure(exp.ExposureID, testCompany)
	require.NoError(t, err)
	assert.True(t, updatedExp.AmountHedged.Equal(decimal.NewFromInt(150_000)))
	assert.Equal(t, types.ExposurePartiallyHedged, updatedExp.Status)
}

func TestExecuteClampsOverHedge(t *testing.T) {
	f := newFixture(t)
	exp := f.createExposure(t, 100_000)
	rec := f.seedRecommendation(t, exp.ExposureID, 120_000)

	// Order exceeds the exposure's remainder
	ord, err := f.orders.CreateFromRecommendation(rec.RecommendationID, testCompany, "USR_1")
	require.NoError(t, err)
	_, err = f.orders.Approve(ord.OrderID, testCompany, "USR_2")
	require.NoError(t, err)

	_, err = f.orders.Execute(ord.OrderID, testCompany, tradeCreate(f.today, 120_000), "USR_1")
	require.NoError(t, err)

	updatedExp, err := f.exposures.GetExposure(exp.ExposureID, testCompany)
	require.NoError(t, err)
	assert.True(t, updatedExp.AmountHedged.Equal(decimal.NewFromInt(100_000)))
	assert.Equal(t, types.ExposureFullyHedged, updatedExp.Status)
}

func TestExecuteRequiresApprovedOrQuoted(t *testing.T) {
	f := newFixture(t)

	ord, err := f.orders.CreateOrder(testCompany, orderCreate(150_000), "USR_1")
	require.NoError(t, err)

	_, err = f.orders.Execute(ord.OrderID, testCompany, tradeCreate(f.today, 150_000), "USR_1")
	assert.ErrorIs(t, err, types.ErrInvalidState)

	// Executing twice is refused too
	_, err = f.orders.Approve(ord.OrderID, testCompany, "USR_2")
	require.NoError(t, err)
	_, err = f.orders.Execute(ord.OrderID, testCompany, tradeCreate(f.today, 150_000), "USR_1")
	require.NoError(t, err)
	_, err = f.orders.Execute(ord.OrderID, testCompany, tradeCreate(f.today, 150_000), "USR_1")
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestExecuteValidatesDates(t *testing.T) {
	f := newFixture(t)

	ord, err := f.orders.CreateOrder(testCompany, orderCreate(50_000), "USR_1")
	require.NoError(t, err)

	data := tradeCreate(f.today, 50_000)
	data.ValueDate = data.TradeDate.AddDate(0, 0, -1)
	_, err = f.orders.Execute(ord.OrderID, testCompany, data, "USR_1")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)

	ord, err := f.orders.CreateOrder(testCompany, orderCreate(50_000), "USR_1")
	require.NoError(t, err)

	cancelled, err := f.orders.Cancel(ord.OrderID, testCompany)
	require.NoError(t, err)
	assert.Equal(t, types.OrderCancelled, cancelled.Status)

	// Executed orders cannot be cancelled
	ord2, err := f.orders.CreateOrder(testCompany, orderCreate(50_000), "USR_1")
	require.NoError(t, err)
	_, err = f.orders.Execute(ord2.OrderID, testCompany, tradeCreate(f.today, 50_000), "USR_1")
	require.NoError(t, err)
	_, err = f.orders.Cancel(ord2.OrderID, testCompany)
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestOrderSummary(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.CreateOrder(testCompany, orderCreate(50_000), "USR_1")
	require.NoError(t, err)
	_, err = f.orders.CreateOrder(testCompany, orderCreate(150_000), "USR_1")
	require.NoError(t, err)

	summary, err := f.orders.GetSummary(testCompany)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalOrders)
	assert.Equal(t, 1, summary.ByStatus[types.OrderApproved].Count)
	assert.Equal(t, 1, summary.ByStatus[types.OrderPendingApproval].Count)
	assert.True(t, summary.ByStatus[types.OrderPendingApproval].TotalAmount.Equal(decimal.NewFromInt(150_000)))
}
