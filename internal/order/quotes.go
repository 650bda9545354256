package order

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/atlas-api/internal/auth"
	"github.com/ksred/atlas-api/internal/types"
	"github.com/ksred/atlas-api/pkg/response"
	"github.com/rs/zerolog/log"
)

// AddQuote records a provider quote against an APPROVED or QUOTED order and
// moves the order to QUOTED. Spread is derived from bid and ask when both
// are present.
func (s *Service) AddQuote(orderID, companyID string, data types.QuoteCreate) (*types.Quote, error) {
	order, err := s.db.GetOrder(orderID, companyID)
	if err != nil {
		return nil, err
	}

	if order.Status != types.OrderApproved && order.Status != types.OrderQuoted {
		return nil, types.InvalidStatef("quote order", order.Status)
	}

	now := s.now()
	if !data.ValidUntil.After(now) {
		return nil, types.Validationf("quote validity must be in the future")
	}

	amount := order.Amount
	if data.Amount != nil {
		amount = *data.Amount
	}
	currency := data.Currency
	if currency == "" {
		currency = order.Currency
	}

	quote := &types.Quote{
		QuoteID:           "QTE_" + uuid.New().String(),
		OrderID:           order.OrderID,
		Provider:          data.Provider,
		ProviderReference: data.ProviderReference,
		BidRate:           data.BidRate,
		AskRate:           data.AskRate,
		MidRate:           data.MidRate,
		Amount:            amount,
		Currency:          currency,
		ValidFrom:         now,
		ValidUntil:        data.ValidUntil,
	}
	if data.BidRate != nil && data.AskRate != nil {
		spread := data.AskRate.Sub(*data.BidRate)
		quote.Spread = &spread
	}

	if err := s.db.CreateQuote(quote); err != nil {
		return nil, err
	}

	if order.Status != types.OrderQuoted {
		order.Status = types.OrderQuoted
		if err := s.db.UpdateOrder(order); err != nil {
			return nil, err
		}
	}

	log.Info().
		Str("service", "order").
		Str("order_id", orderID).
		Str("quote_id", quote.QuoteID).
		Str("provider", quote.Provider).
		Msg("added quote")
	return quote, nil
}

// AcceptQuote marks a quote accepted. A quote past its validity window is
// flagged expired instead and the accept fails.
func (s *Service) AcceptQuote(orderID, quoteID, companyID string) (*types.Quote, error) {
	if _, err := s.db.GetOrder(orderID, companyID); err != nil {
		return nil, err
	}

	quote, err := s.db.GetQuote(quoteID)
	if err != nil {
		return nil, err
	}
	if quote.OrderID != orderID {
		return nil, types.NotFoundf("quote for order", quoteID)
	}
	if quote.IsAccepted {
		return nil, types.InvalidStatef("accept quote", "accepted")
	}

	if quote.ValidUntil.Before(s.now()) {
		quote.IsExpired = true
		if err := s.db.UpdateQuote(quote); err != nil {
			return nil, err
		}
		return nil, types.InvalidStatef("accept quote", "expired")
	}

	quote.IsAccepted = true
	if err := s.db.UpdateQuote(quote); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "order").
		Str("order_id", orderID).
		Str("quote_id", quoteID).
		Msg("accepted quote")
	return quote, nil
}

func (s *Service) ListQuotes(orderID, companyID string) ([]types.Quote, error) {
	if _, err := s.db.GetOrder(orderID, companyID); err != nil {
		return nil, err
	}
	return s.db.ListQuotes(orderID)
}

func (h *GinHandlers) AddQuoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var data types.QuoteCreate
		if err := c.ShouldBindJSON(&data); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		quote, err := h.service.AddQuote(c.Param("order_id"), auth.CompanyID(c), data)
		response.Handle(c, quote, err)
	}
}

func (h *GinHandlers) AcceptQuoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		quote, err := h.service.AcceptQuote(c.Param("order_id"), c.Param("quote_id"), auth.CompanyID(c))
		response.Handle(c, quote, err)
	}
}

func (h *GinHandlers) ListQuotesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		quotes, err := h.service.ListQuotes(c.Param("order_id"), auth.CompanyID(c))
		response.Handle(c, quotes, err)
	}
}
