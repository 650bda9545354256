package exposure

import (
	"fmt"
	"strings"
	"testing"
	"time"

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

func newTestService(t *testing.T, today time.Time) *Service {
	svc := NewService(newTestDB(t))
	svc.now = func() time.Time { return today }
	return svc
}

func validCreate(dueInDays int, today time.Time) types.ExposureCreate {
	return types.ExposureCreate{
		Type:      types.ExposurePayable,
		Reference: "INV-1001",
		Currency:  "EUR",
		Amount:    decimal.NewFromInt(100_000),
		DueDate:   today.AddDate(0, 0, dueInDays),
	}
}

func TestCreateExposure(t *testing.T) {
	today := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, today)

	exp, err := svc.CreateExposure(testCompany, validCreate(20, today), "USR_1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(exp.ExposureID, "EXP_"))
	assert.Equal(t, types.ExposureOpen, exp.Status)
	assert.True(t, exp.AmountHedged.IsZero())
	assert.True(t, exp.HedgePercentage.IsZero())
	assert.Equal(t, "manual", exp.Source)

	fetched, err := svc.GetExposure(exp.ExposureID, testCompany)
	require.NoError(t, err)
	assert.True(t, fetched.Amount.Equal(decimal.NewFromInt(100_000)))
}

func TestCreateExposureValidation(t *testing.T) {
	today := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, today)

	tests := []struct {
		name   string
		mutate func(*types.ExposureCreate)
	}{
		{"bad type", func(d *types.ExposureCreate) { d.Type = "loan" }},
		{"zero amount", func(d *types.ExposureCreate) { d.Amount = decimal.Zero }},
		{"negative amount", func(d *types.ExposureCreate) { d.Amount = decimal.NewFromInt(-5) }},
		{"bad currency", func(d *types.ExposureCreate) { d.Currency = "EURO" }},
		{"missing due date", func(d *types.ExposureCreate) { d.DueDate = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validCreate(20, today)
			tt.mutate(&data)
			_, err := svc.CreateExposure(testCompany, data, "USR_1")
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}
}

func TestGetExposureScopedToCompany(t *testing.T) {
	today := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, today)

	exp, err := svc.CreateExposure(testCompany, validCreate(20, today), "USR_1")
	require.NoError(t, err)

	_, err = svc.GetExposure(exp.ExposureID, "COMP_OTHER")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestHedgeAmountClampAndStatus(t *testing.T) {
	today := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, today)

	exp, err := svc.CreateExposure(testCompany, validCreate(20, today), "USR_1")
	require.NoError(t, err)

	// Partial hedge
	updated, err := svc.UpdateHedgeAmount(exp.ExposureID, testCompany, decimal.NewFromInt(40_000))
	require.NoError(t, err)
	assert.Equal(t, types.ExposurePartiallyHedged, updated.Status)
	assert.True(t, updated.HedgePercentage.Equal(decimal.NewFromInt(40)))

	// Over-hedge clamps to the full amount
	updated, err = svc.UpdateHedgeAmount(exp.ExposureID, testCompany, decimal.NewFromInt(250_000))
	require.NoError(t, err)
	assert.Equal(t, types.ExposureFullyHedged, updated.Status)
	assert.True(t, updated.AmountHedged.Equal(updated.Amount))
	assert.True(t, updated.HedgePercentage.Equal(decimal.NewFromInt(100)))

	// Negative set clamps to zero and reopens
	updated, err = svc.UpdateHedgeAmount(exp.ExposureID, testCompany, decimal.NewFromInt(-10))
	require.NoError(t, err)
	assert.Equal(t, types.ExposureOpen, updated.Status)
	assert.True(t, updated.AmountHedged.IsZero())
}

func TestIncrementHedgedAccumulates(t *testing.T) {
	today := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, today)

	exp, err := svc.CreateExposure(testCompany, validCreate(20, today), "USR_1")
	require.NoError(t, err)

	db := svc.GetDB()
	_, err = db.IncrementHedged(db.DB(), exp.ExposureID, testCompany, decimal.NewFromInt(30_000))
	require.NoError(t, err)
	updated, err := db.IncrementHedged(db.DB(), exp.ExposureID, testCompany, decimal.NewFromInt(30_000))
	require.NoError(t, err)

	assert.True(t, updated.AmountHedged.Equal(decimal.NewFromInt(60_000)))
	assert.Equal(t, types.ExposurePartiallyHedged, updated.Status)
}

func TestUpdateExposureForbiddenWhenTerminal(t *testing.T) {
	today := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, today)

	exp, err := svc.CreateExposure(testCompany, validCreate(20, today), "USR_1")
	require.NoError(t, err)

	_, err = svc.CancelExposure(exp.ExposureID, testCompany)
	require.NoError(t, err)

	note := "too late"
	_, err = svc.UpdateExposure(exp.ExposureID, testCompany, types.ExposureUpdate{Notes: &note})
	assert.ErrorIs(t, err, types.ErrInvalidState)

	// Cancelling twice is also refused
	_, err = svc.CancelExposure(exp.ExposureID, testCompany)
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

func TestSummaryAggregatesByHorizonAndType(t *testing.T) {
	today := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, today)

	// Payable in the nearest bucket, hedged 50%
	payable := validCreate(10, today)
	exp1, err := svc.CreateExposure(testCompany, payable, "USR_1")
	require.NoError(t, err)
	_, err = svc.UpdateHedgeAmount(exp1.ExposureID, testCompany, decimal.NewFromInt(50_000))
	require.NoError(t, err)

	// Receivable in the 31-60 bucket, unhedged
	receivable := validCreate(45, today)
	receivable.Type = types.ExposureReceivable
	receivable.Amount = decimal.NewFromInt(60_000)
	_, err = svc.CreateExposure(testCompany, receivable, "USR_1")
	require.NoError(t, err)

	// Different currency is excluded from the EUR summary
	other := validCreate(10, today)
	other.Currency = "GBP"
	_, err = svc.CreateExposure(testCompany, other, "USR_1")
	require.NoError(t, err)

	summary, err := svc.GetSummary(testCompany, "EUR")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ExposuresCount)
	assert.True(t, summary.TotalPayables.Equal(decimal.NewFromInt(100_000)))
	assert.True(t, summary.TotalReceivables.Equal(decimal.NewFromInt(60_000)))
	assert.True(t, summary.NetExposure.Equal(decimal.NewFromInt(40_000)))

	near := summary.ByHorizon["0-30"]
	assert.Equal(t, 1, near.Count)
	assert.True(t, near.Hedged.Equal(decimal.NewFromInt(50_000)))
	assert.True(t, near.CoveragePct.Equal(decimal.NewFromInt(50)))

	mid := summary.ByHorizon["31-60"]
	assert.Equal(t, 1, mid.Count)
	assert.True(t, mid.Open.Equal(decimal.NewFromInt(60_000)))
}

func TestGetByHorizonValidatesName(t *testing.T) {
	today := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, today)

	_, err := svc.GetByHorizon(testCompany, "15-45", "EUR")
	assert.ErrorIs(t, err, types.ErrValidation)

	// Overdue exposures land in the nearest bucket
	overdue := validCreate(-3, today)
	exp, err := svc.CreateExposure(testCompany, overdue, "USR_1")
	require.NoError(t, err)

	matched, err := svc.GetByHorizon(testCompany, "0-30", "EUR")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, exp.ExposureID, matched[0].ExposureID)
}

func TestCounterpartyDefaults(t *testing.T) {
	today := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, today)

	cpt, err := svc.CreateCounterparty(testCompany, types.CounterpartyCreate{Name: "Acme GmbH"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(cpt.CounterpartyID, "CPT_"))
	assert.Equal(t, "supplier", cpt.Type)
	assert.Equal(t, "USD", cpt.DefaultCurrency)
	assert.Equal(t, 30, cpt.DefaultPaymentTerms)
	assert.True(t, cpt.IsActive)

	_, err = svc.CreateCounterparty(testCompany, types.CounterpartyCreate{})
	assert.ErrorIs(t, err, types.ErrValidation)
}
