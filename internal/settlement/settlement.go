package settlement

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/atlas-api/internal/auth"
	"github.com/ksred/atlas-api/internal/types"
	"github.com/ksred/atlas-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service drives settlement legs through their lifecycle and reconciles
// upward: when the last leg of a trade completes, the trade settles, and a
// fully hedged exposure behind it settles too.
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

func (s *Service) GetSettlement(settlementID, companyID string) (*types.Settlement, error) {
	return s.db.GetSettlement(settlementID, companyID)
}

func (s *Service) ListForTrade(tradeID, companyID string) ([]types.Settlement, error) {
	if _, err := s.db.GetTrade(tradeID, companyID); err != nil {
		return nil, err
	}
	return s.db.ListForTrade(tradeID, companyID)
}

func (s *Service) ListSettlements(companyID string, filter ListFilter) ([]types.Settlement, error) {
	return s.db.ListSettlements(companyID, filter)
}

// MarkProcessing moves a PENDING leg to PROCESSING, recording the payment
// reference when given.
func (s *Service) MarkProcessing(settlementID, companyID, paymentReference string) (*types.Settlement, error) {
	settlement, err := s.db.GetSettlement(settlementID, companyID)
	if err != nil {
		return nil, err
	}

	if settlement.Status != types.SettlementPending {
		return nil, types.InvalidStatef("process settlement", settlement.Status)
	}

	now := s.now()
	settlement.Status = types.SettlementProcessing
	settlement.ProcessedAt = &now
	if paymentReference != "" {
		settlement.PaymentReference = paymentReference
	}

	if err := s.db.UpdateSettlement(settlement); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "settlement").
		Str("settlement_id", settlementID).
		Msg("settlement processing")
	return settlement, nil
}

// MarkCompleted completes a leg and reconciles in one transaction: if every
// leg of the trade is now COMPLETED the trade flips to SETTLED, and a fully
// hedged exposure behind the trade's order flips to SETTLED as well.
func (s *Service) MarkCompleted(settlementID, companyID, bankConfirmation string) (*types.Settlement, error) {
	settlement, err := s.db.GetSettlement(settlementID, companyID)
	if err != nil {
		return nil, err
	}

	if settlement.Status != types.SettlementPending && settlement.Status != types.SettlementProcessing {
		return nil, types.InvalidStatef("complete settlement", settlement.Status)
	}

	now := s.now()
	settlement.Status = types.SettlementCompleted
	settlement.ConfirmedAt = &now
	if bankConfirmation != "" {
		settlement.BankConfirmation = bankConfirmation
	}

	tx := s.db.DB().Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Save(settlement).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	tradeSettled, err := s.reconcileTrade(tx, settlement.TradeID, companyID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "settlement").
		Str("settlement_id", settlementID).
		Str("trade_id", settlement.TradeID).
		Bool("trade_settled", tradeSettled).
		Msg("settlement completed")
	return settlement, nil
}

// reconcileTrade settles the trade if every leg is completed, then settles
// the exposure behind the trade's order if it is fully hedged. Runs inside
// the caller's transaction.
func (s *Service) reconcileTrade(tx *gorm.DB, tradeID, companyID string) (bool, error) {
	var legs []types.Settlement
	if err := tx.Where("trade_id = ?", tradeID).Find(&legs).Error; err != nil {
		return false, err
	}
	for i := range legs {
		if legs[i].Status != types.SettlementCompleted {
			return false, nil
		}
	}

	var trade types.Trade
	if err := tx.Where("trade_id = ? AND company_id = ?", tradeID, companyID).
		First(&trade).Error; err != nil {
		return false, err
	}
	if trade.Status == types.TradeSettled {
		return true, nil
	}

	trade.Status = types.TradeSettled
	if err := tx.Save(&trade).Error; err != nil {
		return false, err
	}

	var order types.HedgeOrder
	err := tx.Where("order_id = ? AND company_id = ?", trade.OrderID, companyID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, nil
		}
		return false, err
	}
	if order.ExposureID == "" {
		return true, nil
	}

	var exp types.Exposure
	err = tx.Where("exposure_id = ? AND company_id = ?", order.ExposureID, companyID).
		First(&exp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, nil
		}
		return false, err
	}

	// A partially hedged exposure stays live: more trades are expected.
	if exp.Status == types.ExposureFullyHedged {
		exp.Status = types.ExposureSettled
		if err := tx.Save(&exp).Error; err != nil {
			return false, err
		}
		log.Info().
			Str("service", "settlement").
			Str("exposure_id", exp.ExposureID).
			Msg("exposure settled")
	}

	return true, nil
}

// MarkFailed moves a PENDING or PROCESSING leg to FAILED with the failure
// note. The trade stays unsettled for manual follow-up.
func (s *Service) MarkFailed(settlementID, companyID, reason string) (*types.Settlement, error) {
	settlement, err := s.db.GetSettlement(settlementID, companyID)
	if err != nil {
		return nil, err
	}

	if settlement.Status != types.SettlementPending && settlement.Status != types.SettlementProcessing {
		return nil, types.InvalidStatef("fail settlement", settlement.Status)
	}

	settlement.Status = types.SettlementFailed
	if reason != "" {
		settlement.Notes = reason
	}

	if err := s.db.UpdateSettlement(settlement); err != nil {
		return nil, err
	}

	log.Warn().
		Str("service", "settlement").
		Str("settlement_id", settlementID).
		Str("reason", reason).
		Msg("settlement failed")
	return settlement, nil
}

// GinHandlers contains HTTP handlers for settlement endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) GetSettlementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		settlement, err := h.service.GetSettlement(c.Param("settlement_id"), auth.CompanyID(c))
		response.Handle(c, settlement, err)
	}
}

func (h *GinHandlers) ListForTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		settlements, err := h.service.ListForTrade(c.Param("trade_id"), auth.CompanyID(c))
		response.Handle(c, settlements, err)
	}
}

func (h *GinHandlers) ListSettlementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := ListFilter{
			Status:   types.SettlementStatus(c.Query("status")),
			Currency: c.Query("currency"),
		}

		settlements, err := h.service.ListSettlements(auth.CompanyID(c), filter)
		response.Handle(c, settlements, err)
	}
}

type processRequest struct {
	PaymentReference string `json:"payment_reference"`
}

func (h *GinHandlers) ProcessSettlementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req processRequest
		_ = c.ShouldBindJSON(&req)

		settlement, err := h.service.MarkProcessing(c.Param("settlement_id"), auth.CompanyID(c), req.PaymentReference)
		response.Handle(c, settlement, err)
	}
}

type completeRequest struct {
	BankConfirmation string `json:"bank_confirmation"`
}

func (h *GinHandlers) CompleteSettlementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req completeRequest
		_ = c.ShouldBindJSON(&req)

		settlement, err := h.service.MarkCompleted(c.Param("settlement_id"), auth.CompanyID(c), req.BankConfirmation)
		response.Handle(c, settlement, err)
	}
}

type failRequest struct {
	Reason string `json:"reason"`
}

func (h *GinHandlers) FailSettlementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req failRequest
		_ = c.ShouldBindJSON(&req)

		settlement, err := h.service.MarkFailed(c.Param("settlement_id"), auth.CompanyID(c), req.Reason)
		response.Handle(c, settlement, err)
	}
}
