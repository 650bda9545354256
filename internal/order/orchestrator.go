package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/atlas-api/internal/auth"
	"github.com/ksred/atlas-api/internal/exposure"
	"github.com/ksred/atlas-api/internal/types"
	"github.com/ksred/atlas-api/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service orchestrates hedge orders from creation through approval, quoting
// and execution. Orders above the approval threshold enter PENDING_APPROVAL
// instead of going straight to APPROVED.
type Service struct {
	db                *Database
	exposures         *exposure.Database
	approvalThreshold decimal.Decimal
	now               func() time.Time
}

func NewService(gormDB *gorm.DB, approvalThreshold decimal.Decimal) *Service {
	return &Service{
		db:                NewDatabase(gormDB),
		exposures:         exposure.NewDatabase(gormDB),
		approvalThreshold: approvalThreshold,
		now:               time.Now,
	}
}

// internalReference builds the human-facing order reference, e.g.
// ORD-20260825-3F9A01BC.
func internalReference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

// CreateOrder validates and persists a new order. Referencing a
// recommendation consumes it: the recommendation flips to ACCEPTED in the
// same transaction, so a crash between the two writes cannot leave an
// order against a still-pending recommendation.
func (s *Service) CreateOrder(companyID string, data types.OrderCreate, createdBy string) (*types.HedgeOrder, error) {
	if data.Side != "buy" && data.Side != "sell" {
		return nil, types.Validationf("side must be buy or sell")
	}
	if !data.Amount.IsPositive() {
		return nil, types.Validationf("amount must be positive")
	}
	if len(data.Currency) != 3 {
		return nil, types.Validationf("currency must be an ISO 4217 code")
	}

	if data.ExposureID != "" {
		if _, err := s.db.GetExposure(data.ExposureID, companyID); err != nil {
			return nil, err
		}
	}

	orderType := data.OrderType
	if orderType == "" {
		orderType = "spot"
	}

	now := s.now()
	requiresApproval := data.Amount.GreaterThanOrEqual(s.approvalThreshold)
	status := types.OrderApproved
	if requiresApproval {
		status = types.OrderPendingApproval
	}

	order := &types.HedgeOrder{
		OrderID:              "ORD_" + uuid.New().String(),
		CompanyID:            companyID,
		ExposureID:           data.ExposureID,
		RecommendationID:     data.RecommendationID,
		OrderType:            orderType,
		Side:                 data.Side,
		Currency:             data.Currency,
		Amount:               data.Amount,
		TargetRate:           data.TargetRate,
		LimitRate:            data.LimitRate,
		MarketRateAtCreation: data.CurrentRate,
		SettlementDate:       data.SettlementDate,
		Status:               status,
		RequiresApproval:     requiresApproval,
		InternalReference:    internalReference(now),
		Notes:                data.Notes,
		CreatedBy:            createdBy,
	}

	if err := s.db.CreateOrderWithRecommendation(order, createdBy, now); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "order").
		Str("order_id", order.OrderID).
		Str("company_id", companyID).
		Str("side", order.Side).
		Str("amount", order.Amount.String()).
		Bool("requires_approval", requiresApproval).
		Msg("created hedge order")
	return order, nil
}

// CreateFromRecommendation derives an order entirely from a pending
// recommendation: payables buy the foreign currency, receivables sell it.
func (s *Service) CreateFromRecommendation(recommendationID, companyID, createdBy string) (*types.HedgeOrder, error) {
	rec, err := s.db.GetRecommendation(recommendationID, companyID)
	if err != nil {
		return nil, err
	}
	if rec.Status != types.RecommendationPending {
		return nil, types.InvalidStatef("create order from recommendation", rec.Status)
	}

	exp, err := s.db.GetExposure(rec.ExposureID, companyID)
	if err != nil {
		return nil, err
	}

	side := "buy"
	if exp.Type == types.ExposureReceivable {
		side = "sell"
	}

	data := types.OrderCreate{
		ExposureID:       rec.ExposureID,
		RecommendationID: rec.RecommendationID,
		OrderType:        "spot",
		Side:             side,
		Currency:         rec.Currency,
		Amount:           rec.AmountToHedge,
		TargetRate:       exp.TargetRate,
		CurrentRate:      rec.CurrentRate,
		SettlementDate:   &exp.DueDate,
	}
	return s.CreateOrder(companyID, data, createdBy)
}

func (s *Service) GetOrder(orderID, companyID string) (*types.HedgeOrder, error) {
	return s.db.GetOrder(orderID, companyID)
}

func (s *Service) ListOrders(companyID string, filter ListFilter) ([]types.HedgeOrder, error) {
	return s.db.ListOrders(companyID, filter)
}

// UpdateOrder patches rates, settlement date and notes. Amount and side are
// fixed at creation; only DRAFT and PENDING_APPROVAL orders may change.
func (s *Service) UpdateOrder(orderID, companyID string, patch types.OrderUpdate) (*types.HedgeOrder, error) {
	order, err := s.db.GetOrder(orderID, companyID)
	if err != nil {
		return nil, err
	}

	if order.Status != types.OrderDraft && order.Status != types.OrderPendingApproval {
		return nil, types.InvalidStatef("update order", order.Status)
	}

	if patch.TargetRate != nil {
		order.TargetRate = patch.TargetRate
	}
	if patch.LimitRate != nil {
		order.LimitRate = patch.LimitRate
	}
	if patch.SettlementDate != nil {
		order.SettlementDate = patch.SettlementDate
	}
	if patch.Notes != nil {
		order.Notes = *patch.Notes
	}

	if err := s.db.UpdateOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}

// Approve moves a PENDING_APPROVAL order to APPROVED.
func (s *Service) Approve(orderID, companyID, approvedBy string) (*types.HedgeOrder, error) {
	order, err := s.db.GetOrder(orderID, companyID)
	if err != nil {
		return nil, err
	}

	if order.Status != types.OrderPendingApproval {
		return nil, types.InvalidStatef("approve order", order.Status)
	}

	now := s.now()
	order.Status = types.OrderApproved
	order.ApprovedBy = approvedBy
	order.ApprovedAt = &now

	if err := s.db.UpdateOrder(order); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "order").
		Str("order_id", orderID).
		Str("approved_by", approvedBy).
		Msg("approved hedge order")
	return order, nil
}

// Reject moves a PENDING_APPROVAL order to the terminal REJECTED state.
func (s *Service) Reject(orderID, companyID, rejectedBy, reason string) (*types.HedgeOrder, error) {
	order, err := s.db.GetOrder(orderID, companyID)
	if err != nil {
		return nil, err
	}

	if order.Status != types.OrderPendingApproval {
		return nil, types.InvalidStatef("reject order", order.Status)
	}

	order.Status = types.OrderRejected
	if reason != "" {
		order.Notes = reason
	}

	if err := s.db.UpdateOrder(order); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "order").
		Str("order_id", orderID).
		Str("rejected_by", rejectedBy).
		Msg("rejected hedge order")
	return order, nil
}

// Cancel moves any non-terminal order to CANCELLED. Executed orders cannot
// be cancelled; the trade exists.
func (s *Service) Cancel(orderID, companyID string) (*types.HedgeOrder, error) {
	order, err := s.db.GetOrder(orderID, companyID)
	if err != nil {
		return nil, err
	}

	if order.IsTerminal() {
		return nil, types.InvalidStatef("cancel order", order.Status)
	}

	order.Status = types.OrderCancelled
	if err := s.db.UpdateOrder(order); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "order").
		Str("order_id", orderID).
		Msg("cancelled hedge order")
	return order, nil
}

// StatusSummary is the per-status order rollup.
type StatusSummary struct {
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// OrderSummary aggregates orders per status.
type OrderSummary struct {
	ByStatus    map[types.OrderStatus]StatusSummary `json:"by_status"`
	TotalOrders int                                 `json:"total_orders"`
}

func (s *Service) GetSummary(companyID string) (*OrderSummary, error) {
	orders, err := s.db.ListOrders(companyID, ListFilter{Limit: 1000})
	if err != nil {
		return nil, err
	}

	summary := &OrderSummary{ByStatus: make(map[types.OrderStatus]StatusSummary)}
	for i := range orders {
		entry := summary.ByStatus[orders[i].Status]
		entry.Count++
		entry.TotalAmount = entry.TotalAmount.Add(orders[i].Amount)
		summary.ByStatus[orders[i].Status] = entry
		summary.TotalOrders++
	}
	return summary, nil
}

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var data types.OrderCreate
		if err := c.ShouldBindJSON(&data); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.CreateOrder(auth.CompanyID(c), data, auth.UserID(c))
		response.Handle(c, order, err)
	}
}

type fromRecommendationRequest struct {
	RecommendationID string `json:"recommendation_id" binding:"required"`
}

func (h *GinHandlers) CreateFromRecommendationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req fromRecommendationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.CreateFromRecommendation(req.RecommendationID, auth.CompanyID(c), auth.UserID(c))
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.GetOrder(c.Param("order_id"), auth.CompanyID(c))
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := ListFilter{
			Status:     types.OrderStatus(c.Query("status")),
			ExposureID: c.Query("exposure_id"),
			Currency:   c.Query("currency"),
			Side:       c.Query("side"),
		}

		orders, err := h.service.ListOrders(auth.CompanyID(c), filter)
		response.Handle(c, orders, err)
	}
}

func (h *GinHandlers) UpdateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch types.OrderUpdate
		if err := c.ShouldBindJSON(&patch); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.UpdateOrder(c.Param("order_id"), auth.CompanyID(c), patch)
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) ApproveOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.Approve(c.Param("order_id"), auth.CompanyID(c), auth.UserID(c))
		response.Handle(c, order, err)
	}
}

type rejectOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *GinHandlers) RejectOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rejectOrderRequest
		_ = c.ShouldBindJSON(&req)

		order, err := h.service.Reject(c.Param("order_id"), auth.CompanyID(c), auth.UserID(c), req.Reason)
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.Cancel(c.Param("order_id"), auth.CompanyID(c))
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) OrderSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := h.service.GetSummary(auth.CompanyID(c))
		response.Handle(c, summary, err)
	}
}
