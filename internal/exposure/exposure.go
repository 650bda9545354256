package exposure

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/atlas-api/internal/auth"
	"github.com/ksred/atlas-api/internal/types"
	"github.com/ksred/atlas-api/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service owns the exposure ledger: exposures, counterparties, hedge
// progress, and the horizon aggregations the policy engine builds on.
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

// GetDB exposes the ledger's database wrapper to collaborating services.
func (s *Service) GetDB() *Database {
	return s.db
}

// CreateExposure validates and persists a new exposure in OPEN status.
func (s *Service) CreateExposure(companyID string, data types.ExposureCreate, createdBy string) (*types.Exposure, error) {
	if !data.Type.Valid() {
		return nil, types.Validationf("unknown exposure type %q", data.Type)
	}
	if !data.Amount.IsPositive() {
		return nil, types.Validationf("amount must be positive")
	}
	if len(data.Currency) != 3 {
		return nil, types.Validationf("currency must be an ISO 4217 code")
	}
	if data.DueDate.IsZero() {
		return nil, types.Validationf("due date is required")
	}

	exposure := &types.Exposure{
		ExposureID:      "EXP_" + uuid.New().String(),
		CompanyID:       companyID,
		CounterpartyID:  data.CounterpartyID,
		Type:            data.Type,
		Reference:       data.Reference,
		Description:     data.Description,
		Currency:        data.Currency,
		Amount:          data.Amount,
		AmountHedged:    decimal.Zero,
		HedgePercentage: decimal.Zero,
		OriginalRate:    data.OriginalRate,
		TargetRate:      data.TargetRate,
		BudgetRate:      data.BudgetRate,
		InvoiceDate:     data.InvoiceDate,
		DueDate:         data.DueDate,
		Status:          types.ExposureOpen,
		Source:          "manual",
		Notes:           data.Notes,
		CreatedBy:       createdBy,
	}

	if err := s.db.CreateExposure(exposure); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "exposure").
		Str("exposure_id", exposure.ExposureID).
		Str("company_id", companyID).
		Str("currency", exposure.Currency).
		Str("amount", exposure.Amount.String()).
		Msg("created exposure")
	return exposure, nil
}

func (s *Service) GetExposure(exposureID, companyID string) (*types.Exposure, error) {
	return s.db.GetExposure(exposureID, companyID)
}

func (s *Service) ListExposures(companyID string, filter ListFilter) ([]types.Exposure, error) {
	return s.db.ListExposures(companyID, filter)
}

// UpdateExposure applies a patch. Amount and hedge progress are not
// patchable; they move only through the hedge lifecycle.
func (s *Service) UpdateExposure(exposureID, companyID string, patch types.ExposureUpdate) (*types.Exposure, error) {
	exposure, err := s.db.GetExposure(exposureID, companyID)
	if err != nil {
		return nil, err
	}

	if exposure.Status == types.ExposureCancelled || exposure.Status == types.ExposureSettled {
		return nil, types.InvalidStatef("update exposure", exposure.Status)
	}

	if patch.Description != nil {
		exposure.Description = *patch.Description
	}
	if patch.TargetRate != nil {
		exposure.TargetRate = patch.TargetRate
	}
	if patch.BudgetRate != nil {
		exposure.BudgetRate = patch.BudgetRate
	}
	if patch.DueDate != nil {
		exposure.DueDate = *patch.DueDate
	}
	if patch.Notes != nil {
		exposure.Notes = *patch.Notes
	}

	if err := s.db.UpdateExposure(exposure); err != nil {
		return nil, err
	}
	return exposure, nil
}

// CancelExposure is a soft delete: the row stays for the audit trail and
// every query filters on status.
func (s *Service) CancelExposure(exposureID, companyID string) (*types.Exposure, error) {
	exposure, err := s.db.GetExposure(exposureID, companyID)
	if err != nil {
		return nil, err
	}

	if exposure.Status == types.ExposureCancelled {
		return nil, types.InvalidStatef("cancel exposure", exposure.Status)
	}

	exposure.Status = types.ExposureCancelled
	if err := s.db.UpdateExposure(exposure); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "exposure").
		Str("exposure_id", exposureID).
		Msg("cancelled exposure")
	return exposure, nil
}

// UpdateHedgeAmount sets the absolute hedged amount, clamped to
// [0, amount], recomputing percentage and status.
func (s *Service) UpdateHedgeAmount(exposureID, companyID string, hedged decimal.Decimal) (*types.Exposure, error) {
	exposure, err := s.db.GetExposure(exposureID, companyID)
	if err != nil {
		return nil, err
	}

	target := clampHedged(hedged, exposure.Amount)
	delta := target.Sub(exposure.AmountHedged)
	return s.db.IncrementHedged(s.db.DB(), exposureID, companyID, delta)
}

func (s *Service) CreateCounterparty(companyID string, data types.CounterpartyCreate) (*types.Counterparty, error) {
	if data.Name == "" {
		return nil, types.Validationf("counterparty name is required")
	}

	counterpartyType := data.Type
	if counterpartyType == "" {
		counterpartyType = "supplier"
	}
	currency := data.DefaultCurrency
	if currency == "" {
		currency = "USD"
	}
	terms := data.DefaultPaymentTerms
	if terms == 0 {
		terms = 30
	}

	counterparty := &types.Counterparty{
		CounterpartyID:      "CPT_" + uuid.New().String(),
		CompanyID:           companyID,
		Name:                data.Name,
		TaxID:               data.TaxID,
		Country:             data.Country,
		Type:                counterpartyType,
		Category:            data.Category,
		ContactName:         data.ContactName,
		ContactEmail:        data.ContactEmail,
		DefaultPaymentTerms: terms,
		DefaultCurrency:     currency,
		IsActive:            true,
	}

	if err := s.db.CreateCounterparty(counterparty); err != nil {
		return nil, err
	}
	return counterparty, nil
}

func (s *Service) ListCounterparties(companyID, counterpartyType string) ([]types.Counterparty, error) {
	return s.db.ListCounterparties(companyID, counterpartyType)
}

// GinHandlers contains HTTP handlers for exposure endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) CreateExposureHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var data types.ExposureCreate
		if err := c.ShouldBindJSON(&data); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		exposure, err := h.service.CreateExposure(auth.CompanyID(c), data, auth.UserID(c))
		response.Handle(c, exposure, err)
	}
}

func (h *GinHandlers) GetExposureHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exposure, err := h.service.GetExposure(c.Param("exposure_id"), auth.CompanyID(c))
		response.Handle(c, exposure, err)
	}
}

func (h *GinHandlers) ListExposuresHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := ListFilter{
			Type:           types.ExposureType(c.Query("type")),
			Status:         types.ExposureStatus(c.Query("status")),
			CounterpartyID: c.Query("counterparty_id"),
			Currency:       c.Query("currency"),
		}

		exposures, err := h.service.ListExposures(auth.CompanyID(c), filter)
		response.Handle(c, exposures, err)
	}
}

func (h *GinHandlers) UpdateExposureHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch types.ExposureUpdate
		if err := c.ShouldBindJSON(&patch); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		exposure, err := h.service.UpdateExposure(c.Param("exposure_id"), auth.CompanyID(c), patch)
		response.Handle(c, exposure, err)
	}
}

type hedgeAmountRequest struct {
	AmountHedged decimal.Decimal `json:"amount_hedged" binding:"required"`
}

func (h *GinHandlers) UpdateHedgeAmountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req hedgeAmountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		exposure, err := h.service.UpdateHedgeAmount(c.Param("exposure_id"), auth.CompanyID(c), req.AmountHedged)
		response.Handle(c, exposure, err)
	}
}

func (h *GinHandlers) CancelExposureHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		exposure, err := h.service.CancelExposure(c.Param("exposure_id"), auth.CompanyID(c))
		response.Handle(c, exposure, err)
	}
}

func (h *GinHandlers) GetSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		currency := c.DefaultQuery("currency", "USD")

		summary, err := h.service.GetSummary(auth.CompanyID(c), currency)
		response.Handle(c, summary, err)
	}
}

func (h *GinHandlers) GetByHorizonHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		currency := c.DefaultQuery("currency", "USD")

		exposures, err := h.service.GetByHorizon(auth.CompanyID(c), c.Param("horizon"), currency)
		response.Handle(c, exposures, err)
	}
}

func (h *GinHandlers) CreateCounterpartyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var data types.CounterpartyCreate
		if err := c.ShouldBindJSON(&data); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		counterparty, err := h.service.CreateCounterparty(auth.CompanyID(c), data)
		response.Handle(c, counterparty, err)
	}
}

func (h *GinHandlers) ListCounterpartiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		counterparties, err := h.service.ListCounterparties(auth.CompanyID(c), c.Query("type"))
		response.Handle(c, counterparties, err)
	}
}
