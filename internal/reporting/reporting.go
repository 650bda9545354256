package reporting

import (
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/atlas-api/internal/auth"
	"github.com/ksred/atlas-api/internal/types"
	"github.com/ksred/atlas-api/pkg/response"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service builds the read-only treasury reports: coverage, maturity ladder
// and hedging cost. All aggregation happens in Go over exact decimals.
type Service struct {
	db  *Database
	now func() time.Time
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db:  NewDatabase(gormDB),
		now: time.Now,
	}
}

var hundred = decimal.NewFromInt(100)

func coveragePct(hedged, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return hedged.Div(total).Mul(hundred).Round(2)
}

// CoverageSlice is the coverage aggregate of one grouping key.
type CoverageSlice struct {
	Key         string           `json:"key"`
	Total       decimal.Decimal  `json:"total"`
	Hedged      decimal.Decimal  `json:"hedged"`
	Open        decimal.Decimal  `json:"open"`
	CoveragePct decimal.Decimal  `json:"coverage_pct"`
	TargetPct   *decimal.Decimal `json:"target_pct,omitempty"`
	Count       int              `json:"count"`
}

// CoverageReport is the company-wide hedge coverage, sliced three ways.
type CoverageReport struct {
	AsOf           time.Time       `json:"as_of"`
	TotalExposure  decimal.Decimal `json:"total_exposure"`
	TotalHedged    decimal.Decimal `json:"total_hedged"`
	CoveragePct    decimal.Decimal `json:"coverage_pct"`
	ByType         []CoverageSlice `json:"by_type"`
	ByCounterparty []CoverageSlice `json:"by_counterparty"`
	ByHorizon      []CoverageSlice `json:"by_horizon"`
}

// Coverage builds the coverage report over live exposures. Horizon slices
// carry the default policy's target when one exists.
func (s *Service) Coverage(companyID string) (*CoverageReport, error) {
	exposures, err := s.db.ListLiveExposures(companyID)
	if err != nil {
		return nil, err
	}

	policy, err := s.db.GetDefaultPolicy(companyID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	counterparties, err := s.db.ListCounterparties(companyID)
	if err != nil {
		return nil, err
	}
	counterpartyNames := make(map[string]string, len(counterparties))
	for i := range counterparties {
		counterpartyNames[counterparties[i].CounterpartyID] = counterparties[i].Name
	}

	now := s.now()
	report := &CoverageReport{AsOf: now}

	byType := make(map[string]*CoverageSlice)
	byCounterparty := make(map[string]*CoverageSlice)
	byHorizon := make(map[string]*CoverageSlice, len(types.Horizons))
	for _, h := range types.Horizons {
		slice := &CoverageSlice{Key: h.Name}
		if policy != nil {
			target := policy.TargetCoverage(h)
			slice.TargetPct = &target
		}
		byHorizon[h.Name] = slice
	}

	accumulate := func(slices map[string]*CoverageSlice, key string, exp *types.Exposure) {
		slice, ok := slices[key]
		if !ok {
			slice = &CoverageSlice{Key: key}
			slices[key] = slice
		}
		slice.Total = slice.Total.Add(exp.Amount)
		slice.Hedged = slice.Hedged.Add(exp.AmountHedged)
		slice.Count++
	}

	for i := range exposures {
		exp := &exposures[i]
		report.TotalExposure = report.TotalExposure.Add(exp.Amount)
		report.TotalHedged = report.TotalHedged.Add(exp.AmountHedged)

		accumulate(byType, string(exp.Type), exp)

		cptKey := exp.CounterpartyID
		if name, ok := counterpartyNames[cptKey]; ok {
			cptKey = name
		} else if cptKey == "" {
			cptKey = "unassigned"
		}
		accumulate(byCounterparty, cptKey, exp)

		accumulate(byHorizon, types.HorizonFor(exp.DaysToMaturity(now)).Name, exp)
	}

	report.CoveragePct = coveragePct(report.TotalHedged, report.TotalExposure)
	report.ByType = finishSlices(byType)
	report.ByCounterparty = finishSlices(byCounterparty)
	report.ByHorizon = finishHorizonSlices(byHorizon)
	return report, nil
}

func finishSlices(slices map[string]*CoverageSlice) []CoverageSlice {
	out := make([]CoverageSlice, 0, len(slices))
	for _, slice := range slices {
		slice.Open = slice.Total.Sub(slice.Hedged)
		slice.CoveragePct = coveragePct(slice.Hedged, slice.Total)
		out = append(out, *slice)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// finishHorizonSlices keeps the horizon declaration order instead of
// sorting lexically, so 91+ comes last.
func finishHorizonSlices(slices map[string]*CoverageSlice) []CoverageSlice {
	out := make([]CoverageSlice, 0, len(types.Horizons))
	for _, h := range types.Horizons {
		slice := slices[h.Name]
		slice.Open = slice.Total.Sub(slice.Hedged)
		slice.CoveragePct = coveragePct(slice.Hedged, slice.Total)
		out = append(out, *slice)
	}
	return out
}

// LadderRung is the cash due in one month.
type LadderRung struct {
	Month       string          `json:"month"` // YYYY-MM
	Payables    decimal.Decimal `json:"payables"`
	Receivables decimal.Decimal `json:"receivables"`
	Hedged      decimal.Decimal `json:"hedged"`
	Open        decimal.Decimal `json:"open"`
	Count       int             `json:"count"`
}

// MaturityLadder buckets live exposures by due month.
func (s *Service) MaturityLadder(companyID string) ([]LadderRung, error) {
	exposures, err := s.db.ListLiveExposures(companyID)
	if err != nil {
		return nil, err
	}

	byMonth := make(map[string]*LadderRung)
	for i := range exposures {
		exp := &exposures[i]
		key := exp.DueDate.Format("2006-01")
		rung, ok := byMonth[key]
		if !ok {
			rung = &LadderRung{Month: key}
			byMonth[key] = rung
		}

		switch exp.Type {
		case types.ExposurePayable:
			rung.Payables = rung.Payables.Add(exp.Amount)
		case types.ExposureReceivable:
			rung.Receivables = rung.Receivables.Add(exp.Amount)
		}
		rung.Hedged = rung.Hedged.Add(exp.AmountHedged)
		rung.Open = rung.Open.Add(exp.AmountOpen())
		rung.Count++
	}

	ladder := make([]LadderRung, 0, len(byMonth))
	for _, rung := range byMonth {
		ladder = append(ladder, *rung)
	}
	sort.Slice(ladder, func(i, j int) bool { return ladder[i].Month < ladder[j].Month })
	return ladder, nil
}

// PairCost is the realized hedging cost of one currency pair.
type PairCost struct {
	Pair            string          `json:"pair"` // SOLD/BOUGHT
	TradeCount      int             `json:"trade_count"`
	TotalSold       decimal.Decimal `json:"total_sold"`
	TotalBought     decimal.Decimal `json:"total_bought"`
	AvgExecutedRate decimal.Decimal `json:"avg_executed_rate"` // volume weighted
	BestRate        decimal.Decimal `json:"best_rate"`
	WorstRate       decimal.Decimal `json:"worst_rate"`
}

// CostReport is the realized cost of hedging over a window.
type CostReport struct {
	Since       time.Time       `json:"since"`
	TradeCount  int             `json:"trade_count"`
	TotalTraded decimal.Decimal `json:"total_traded"` // sold side
	ByPair      []PairCost      `json:"by_pair"`
}

// HedgingCost aggregates executed trades into per-pair volume-weighted
// rates over the trailing window.
func (s *Service) HedgingCost(companyID string, windowDays int) (*CostReport, error) {
	if windowDays <= 0 {
		windowDays = 90
	}
	since := s.now().AddDate(0, 0, -windowDays)

	trades, err := s.db.ListTradesSince(companyID, since)
	if err != nil {
		return nil, err
	}

	report := &CostReport{Since: since}
	byPair := make(map[string]*PairCost)

	for i := range trades {
		trade := &trades[i]
		report.TradeCount++
		report.TotalTraded = report.TotalTraded.Add(trade.AmountSold)

		key := trade.CurrencySold + "/" + trade.CurrencyBought
		pair, ok := byPair[key]
		if !ok {
			pair = &PairCost{
				Pair:      key,
				BestRate:  trade.ExecutedRate,
				WorstRate: trade.ExecutedRate,
			}
			byPair[key] = pair
		}

		pair.TradeCount++
		pair.TotalSold = pair.TotalSold.Add(trade.AmountSold)
		pair.TotalBought = pair.TotalBought.Add(trade.AmountBought)
		if trade.ExecutedRate.LessThan(pair.BestRate) {
			pair.BestRate = trade.ExecutedRate
		}
		if trade.ExecutedRate.GreaterThan(pair.WorstRate) {
			pair.WorstRate = trade.ExecutedRate
		}
	}

	for _, pair := range byPair {
		if pair.TotalBought.IsPositive() {
			pair.AvgExecutedRate = pair.TotalSold.Div(pair.TotalBought).Round(4)
		}
		report.ByPair = append(report.ByPair, *pair)
	}
	sort.Slice(report.ByPair, func(i, j int) bool { return report.ByPair[i].Pair < report.ByPair[j].Pair })
	return report, nil
}

// GinHandlers contains HTTP handlers for reporting endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) CoverageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := h.service.Coverage(auth.CompanyID(c))
		response.Handle(c, report, err)
	}
}

func (h *GinHandlers) MaturityLadderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ladder, err := h.service.MaturityLadder(auth.CompanyID(c))
		response.Handle(c, ladder, err)
	}
}

func (h *GinHandlers) HedgingCostHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		windowDays := 0
		if v := c.Query("window_days"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				response.BadRequest(c, "window_days must be an integer")
				return
			}
			windowDays = parsed
		}

		report, err := h.service.HedgingCost(auth.CompanyID(c), windowDays)
		response.Handle(c, report, err)
	}
}
