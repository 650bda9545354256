package recommendation

import (
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/atlas-api/internal/auth"
	"github.com/ksred/atlas-api/internal/types"
	"github.com/ksred/atlas-api/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service owns the recommendation lifecycle after generation: listing,
// accept/reject decisions, expiry sweeps, and the planning views built on
// pending recommendations.
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

func (s *Service) GetRecommendation(recommendationID, companyID string) (*types.HedgeRecommendation, error) {
	return s.db.GetRecommendation(recommendationID, companyID)
}

func (s *Service) ListRecommendations(companyID string, filter ListFilter) ([]types.HedgeRecommendation, error) {
	return s.db.ListRecommendations(companyID, filter, s.now())
}

// Accept marks a pending recommendation accepted. Expired-but-unswept rows
// are rejected the same as any other non-pending status.
func (s *Service) Accept(recommendationID, companyID, decidedBy string) (*types.HedgeRecommendation, error) {
	rec, err := s.db.GetRecommendation(recommendationID, companyID)
	if err != nil {
		return nil, err
	}

	if rec.Status != types.RecommendationPending {
		return nil, types.InvalidStatef("accept recommendation", rec.Status)
	}
	now := s.now()
	if rec.ValidUntil.Before(now) {
		rec.Status = types.RecommendationExpired
		if err := s.db.UpdateRecommendation(rec); err != nil {
			return nil, err
		}
		return nil, types.InvalidStatef("accept recommendation", types.RecommendationExpired)
	}

	rec.Status = types.RecommendationAccepted
	rec.DecidedAt = &now
	rec.DecidedBy = decidedBy

	if err := s.db.UpdateRecommendation(rec); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "recommendation").
		Str("recommendation_id", recommendationID).
		Str("decided_by", decidedBy).
		Msg("accepted recommendation")
	return rec, nil
}

// Reject marks a pending recommendation rejected with an optional reason.
func (s *Service) Reject(recommendationID, companyID, decidedBy, reason string) (*types.HedgeRecommendation, error) {
	rec, err := s.db.GetRecommendation(recommendationID, companyID)
	if err != nil {
		return nil, err
	}

	if rec.Status != types.RecommendationPending {
		return nil, types.InvalidStatef("reject recommendation", rec.Status)
	}

	now := s.now()
	rec.Status = types.RecommendationRejected
	rec.DecidedAt = &now
	rec.DecidedBy = decidedBy
	rec.RejectionReason = reason

	if err := s.db.UpdateRecommendation(rec); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "recommendation").
		Str("recommendation_id", recommendationID).
		Str("decided_by", decidedBy).
		Msg("rejected recommendation")
	return rec, nil
}

// ExpireOld sweeps pending recommendations past their validity window and
// returns the number expired. Safe to run repeatedly.
func (s *Service) ExpireOld() (int64, error) {
	count, err := s.db.ExpirePending(s.now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		log.Info().
			Str("service", "recommendation").
			Int64("expired", count).
			Msg("expired stale recommendations")
	}
	return count, nil
}

// CalendarDay groups the pending recommendations whose exposures mature on
// one date.
type CalendarDay struct {
	Date              string                      `json:"date"`
	TotalAmount       decimal.Decimal             `json:"total_amount"`
	PriorityBreakdown map[types.Urgency]int       `json:"priority_breakdown"`
	Recommendations   []types.HedgeRecommendation `json:"recommendations"`
}

// Calendar returns pending recommendations keyed by exposure due date,
// for the hedging planner view.
func (s *Service) Calendar(companyID string, from, to time.Time) ([]CalendarDay, error) {
	recs, exposures, err := s.db.PendingWithExposures(companyID, from, to, s.now())
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]*CalendarDay)
	for i := range recs {
		exp, ok := exposures[recs[i].ExposureID]
		if !ok {
			// Exposure outside the requested window.
			continue
		}

		key := exp.DueDate.Format("2006-01-02")
		day, ok := byDate[key]
		if !ok {
			day = &CalendarDay{
				Date:              key,
				PriorityBreakdown: make(map[types.Urgency]int),
			}
			byDate[key] = day
		}

		day.TotalAmount = day.TotalAmount.Add(recs[i].AmountToHedge)
		day.PriorityBreakdown[recs[i].Urgency]++
		day.Recommendations = append(day.Recommendations, recs[i])
	}

	days := make([]CalendarDay, 0, len(byDate))
	for _, day := range byDate {
		days = append(days, *day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

// Summary is the pending-recommendation rollup.
type Summary struct {
	PendingCount int                       `json:"pending_count"`
	TotalAmount  decimal.Decimal           `json:"total_amount"`
	ByUrgency    map[types.Urgency]int     `json:"by_urgency"`
	ByAction     map[types.HedgeAction]int `json:"by_action"`
}

// GetSummary aggregates the live pending recommendations of the company.
func (s *Service) GetSummary(companyID string) (*Summary, error) {
	recs, err := s.db.ListPending(companyID, s.now())
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		ByUrgency: make(map[types.Urgency]int),
		ByAction:  make(map[types.HedgeAction]int),
	}
	for i := range recs {
		summary.PendingCount++
		summary.TotalAmount = summary.TotalAmount.Add(recs[i].AmountToHedge)
		summary.ByUrgency[recs[i].Urgency]++
		summary.ByAction[recs[i].Action]++
	}
	return summary, nil
}

// GinHandlers contains HTTP handlers for recommendation endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) GetRecommendationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := h.service.GetRecommendation(c.Param("recommendation_id"), auth.CompanyID(c))
		response.Handle(c, rec, err)
	}
}

func (h *GinHandlers) ListRecommendationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := ListFilter{
			Status:         types.RecommendationStatus(c.Query("status")),
			Action:         types.HedgeAction(c.Query("action")),
			Urgency:        types.Urgency(c.Query("urgency")),
			ExposureID:     c.Query("exposure_id"),
			IncludeExpired: c.Query("include_expired") == "true",
		}

		recs, err := h.service.ListRecommendations(auth.CompanyID(c), filter)
		response.Handle(c, recs, err)
	}
}

func (h *GinHandlers) AcceptHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := h.service.Accept(c.Param("recommendation_id"), auth.CompanyID(c), auth.UserID(c))
		response.Handle(c, rec, err)
	}
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *GinHandlers) RejectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rejectRequest
		// Body is optional: a bare reject carries no reason.
		_ = c.ShouldBindJSON(&req)

		rec, err := h.service.Reject(c.Param("recommendation_id"), auth.CompanyID(c), auth.UserID(c), req.Reason)
		response.Handle(c, rec, err)
	}
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

func (h *GinHandlers) ExpireHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := h.service.ExpireOld()
		response.Handle(c, gin.H{"expired": count}, err)
	}
}
