package settlement

import (
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/atlas-api/internal/auth"
	"github.com/ksred/atlas-api/internal/types"
	"github.com/ksred/atlas-api/pkg/response"
	"github.com/shopspring/decimal"
)

// CalendarDay groups the settlement legs falling due on one date.
type CalendarDay struct {
	Date        string                     `json:"date"`
	TotalAmount decimal.Decimal            `json:"total_amount"`
	ByCurrency  map[string]decimal.Decimal `json:"by_currency"`
	Settlements []types.Settlement         `json:"settlements"`
}

// Calendar returns upcoming settlements keyed by settlement date, for the
// cash planning view. Defaults to the next 30 days.
func (s *Service) Calendar(companyID string, from, to time.Time) ([]CalendarDay, error) {
	now := s.now()
	if from.IsZero() {
		from = now
	}
	if to.IsZero() {
		to = from.AddDate(0, 0, 30)
	}

	settlements, err := s.db.ListSettlements(companyID, ListFilter{
		DateFrom: &from,
		DateTo:   &to,
		Limit:    1000,
	})
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]*CalendarDay)
	for i := range settlements {
		key := settlements[i].SettlementDate.Format("2006-01-02")
		day, ok := byDate[key]
		if !ok {
			day = &CalendarDay{
				Date:       key,
				ByCurrency: make(map[string]decimal.Decimal),
			}
			byDate[key] = day
		}

		day.TotalAmount = day.TotalAmount.Add(settlements[i].Amount)
		day.ByCurrency[settlements[i].Currency] = day.ByCurrency[settlements[i].Currency].Add(settlements[i].Amount)
		day.Settlements = append(day.Settlements, settlements[i])
	}

	days := make([]CalendarDay, 0, len(byDate))
	for _, day := range byDate {
		days = append(days, *day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

// StatusSummary is the per-status settlement rollup.
type StatusSummary struct {
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Summary is the settlement cash-flow rollup.
type Summary struct {
	PendingToday    StatusSummary                              `json:"pending_today"`
	PendingNextWeek StatusSummary                              `json:"pending_next_week"`
	ByStatus        map[types.SettlementStatus]StatusSummary `json:"by_status"`
}

// GetSummary aggregates settlements due today, due over the next seven
// days, and per status.
func (s *Service) GetSummary(companyID string) (*Summary, error) {
	settlements, err := s.db.ListSettlements(companyID, ListFilter{Limit: 1000})
	if err != nil {
		return nil, err
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekEnd := today.AddDate(0, 0, 7)

	summary := &Summary{ByStatus: make(map[types.SettlementStatus]StatusSummary)}
	for i := range settlements {
		stl := &settlements[i]

		entry := summary.ByStatus[stl.Status]
		entry.Count++
		entry.TotalAmount = entry.TotalAmount.Add(stl.Amount)
		summary.ByStatus[stl.Status] = entry

		if stl.Status != types.SettlementPending {
			continue
		}
		date := time.Date(stl.SettlementDate.Year(), stl.SettlementDate.Month(), stl.SettlementDate.Day(), 0, 0, 0, 0, time.UTC)
		if date.Equal(today) {
			summary.PendingToday.Count++
			summary.PendingToday.TotalAmount = summary.PendingToday.TotalAmount.Add(stl.Amount)
		}
		if !date.Before(today) && date.Before(weekEnd) {
			summary.PendingNextWeek.Count++
			summary.PendingNextWeek.TotalAmount = summary.PendingNextWeek.TotalAmount.Add(stl.Amount)
		}
	}

	return summary, nil
}

func (h *GinHandlers) CalendarHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var from, to time.Time
		if v := c.Query("from"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				response.BadRequest(c, "from must be YYYY-MM-DD")
				return
			}
			from = parsed
		}
		if v := c.Query("to"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				response.BadRequest(c, "to must be YYYY-MM-DD")
				return
			}
			to = parsed
		}

		days, err := h.service.Calendar(auth.CompanyID(c), from, to)
		response.Handle(c, days, err)
	}
}

func (h *GinHandlers) SummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := h.service.GetSummary(auth.CompanyID(c))
		response.Handle(c, summary, err)
	}
}
