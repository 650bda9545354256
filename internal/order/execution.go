package order

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/atlas-api/internal/auth"
	"github.com/ksred/atlas-api/internal/types"
	"github.com/ksred/atlas-api/pkg/response"
	"github.com/rs/zerolog/log"
)

// Execute records the execution of an APPROVED or QUOTED order. One
// transaction creates the trade, flips the order to EXECUTED, credits the
// linked exposure's hedged amount, and opens both settlement legs at the
// value date. Either everything lands or nothing does.
func (s *Service) Execute(orderID, companyID string, data types.TradeCreate, createdBy string) (*types.Trade, error) {
	order, err := s.db.GetOrder(orderID, companyID)
	if err != nil {
		return nil, err
	}

	if order.Status != types.OrderApproved && order.Status != types.OrderQuoted {
		return nil, types.InvalidStatef("execute order", order.Status)
	}

	if data.Side != "buy" && data.Side != "sell" {
		return nil, types.Validationf("side must be buy or sell")
	}
	if !data.AmountSold.IsPositive() || !data.AmountBought.IsPositive() {
		return nil, types.Validationf("trade amounts must be positive")
	}
	if !data.ExecutedRate.IsPositive() {
		return nil, types.Validationf("executed rate must be positive")
	}
	if data.ValueDate.Before(data.TradeDate) {
		return nil, types.Validationf("value date cannot precede trade date")
	}

	if data.QuoteID != "" {
		quote, err := s.db.GetQuote(data.QuoteID)
		if err != nil {
			return nil, err
		}
		if quote.OrderID != order.OrderID {
			return nil, types.NotFoundf("quote for order", data.QuoteID)
		}
	}

	tradeType := data.TradeType
	if tradeType == "" {
		tradeType = order.OrderType
	}

	now := s.now()
	trade := &types.Trade{
		TradeID:            "TRD_" + uuid.New().String(),
		CompanyID:          companyID,
		OrderID:            order.OrderID,
		QuoteID:            data.QuoteID,
		TradeType:          tradeType,
		Side:               data.Side,
		CurrencySold:       data.CurrencySold,
		AmountSold:         data.AmountSold,
		CurrencyBought:     data.CurrencyBought,
		AmountBought:       data.AmountBought,
		ExecutedRate:       data.ExecutedRate,
		CounterpartyBank:   data.CounterpartyBank,
		BankReference:      data.BankReference,
		TradeDate:          data.TradeDate,
		ValueDate:          data.ValueDate,
		Status:             types.TradeConfirmed,
		ConfirmationNumber: data.ConfirmationNumber,
		Notes:              data.Notes,
		CreatedBy:          createdBy,
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

	if err := tx.Create(trade).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	order.Status = types.OrderExecuted
	order.ExecutedAt = &now
	if data.BankReference != "" {
		order.BankReference = data.BankReference
	}
	if err := tx.Save(order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	// The exposure is credited with the order amount. Reported trade
	// amounts can differ after bank rounding; the order is the contract
	// against the exposure.
	if order.ExposureID != "" {
		if _, err := s.exposures.IncrementHedged(tx, order.ExposureID, companyID, order.Amount); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	legs := []types.Settlement{
		{
			SettlementID:   "STL_" + uuid.New().String(),
			TradeID:        trade.TradeID,
			Leg:            "sold",
			SettlementDate: trade.ValueDate,
			Currency:       trade.CurrencySold,
			Amount:         trade.AmountSold,
			Status:         types.SettlementPending,
		},
		{
			SettlementID:   "STL_" + uuid.New().String(),
			TradeID:        trade.TradeID,
			Leg:            "bought",
			SettlementDate: trade.ValueDate,
			Currency:       trade.CurrencyBought,
			Amount:         trade.AmountBought,
			Status:         types.SettlementPending,
		},
	}
	for i := range legs {
		if err := tx.Create(&legs[i]).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "order").
		Str("order_id", orderID).
		Str("trade_id", trade.TradeID).
		Str("rate", trade.ExecutedRate.String()).
		Msg("executed hedge order")
	return trade, nil
}

func (s *Service) GetTrade(tradeID, companyID string) (*types.Trade, error) {
	return s.db.GetTrade(tradeID, companyID)
}

func (s *Service) ListTrades(companyID string, limit, offset int) ([]types.Trade, error) {
	return s.db.ListTrades(companyID, limit, offset)
}

func (h *GinHandlers) ExecuteOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var data types.TradeCreate
		if err := c.ShouldBindJSON(&data); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.Execute(c.Param("order_id"), auth.CompanyID(c), data, auth.UserID(c))
		response.Handle(c, trade, err)
	}
}

func (h *GinHandlers) GetTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trade, err := h.service.GetTrade(c.Param("trade_id"), auth.CompanyID(c))
		response.Handle(c, trade, err)
	}
}

func (h *GinHandlers) ListTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trades, err := h.service.ListTrades(auth.CompanyID(c), 0, 0)
		response.Handle(c, trades, err)
	}
}
