package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Create and patch payloads. Patch structs list exactly the fields that may
// be mutated for the entity, using pointers to distinguish "unset" from
// zero values.

type ExposureCreate struct {
	CounterpartyID string           `json:"counterparty_id"`
	Type           ExposureType     `json:"type" binding:"required"`
	Reference      string           `json:"reference" binding:"required"`
	Description    string           `json:"description"`
	Currency       string           `json:"currency" binding:"required"`
	Amount         decimal.Decimal  `json:"amount" binding:"required"`
	OriginalRate   *decimal.Decimal `json:"original_rate"`
	TargetRate     *decimal.Decimal `json:"target_rate"`
	BudgetRate     *decimal.Decimal `json:"budget_rate"`
	InvoiceDate    *time.Time       `json:"invoice_date"`
	DueDate        time.Time        `json:"due_date" binding:"required"`
	Notes          string           `json:"notes"`
}

type ExposureUpdate struct {
	Description *string          `json:"description"`
	TargetRate  *decimal.Decimal `json:"target_rate"`
	BudgetRate  *decimal.Decimal `json:"budget_rate"`
	DueDate     *time.Time       `json:"due_date"`
	Notes       *string          `json:"notes"`
}

type CounterpartyCreate struct {
	Name                string `json:"name" binding:"required"`
	TaxID               string `json:"tax_id"`
	Country             string `json:"country"`
	Type                string `json:"type"`
	Category            string `json:"category"`
	ContactName         string `json:"contact_name"`
	ContactEmail        string `json:"contact_email"`
	DefaultPaymentTerms int    `json:"default_payment_terms"`
	DefaultCurrency     string `json:"default_currency"`
}

type PolicyCreate struct {
	Name                 string           `json:"name" binding:"required"`
	Description          string           `json:"description"`
	ExposureType         ExposureType     `json:"exposure_type"`
	Currency             string           `json:"currency"`
	Category             string           `json:"category"`
	CoverageUnder30      decimal.Decimal  `json:"coverage_0_30"`
	Coverage31To60       decimal.Decimal  `json:"coverage_31_60"`
	Coverage61To90       decimal.Decimal  `json:"coverage_61_90"`
	CoverageOver90       decimal.Decimal  `json:"coverage_91_plus"`
	MinAmount            decimal.Decimal  `json:"min_amount"`
	MaxSingleExposure    *decimal.Decimal `json:"max_single_exposure"`
	RequireApprovalAbove *decimal.Decimal `json:"require_approval_above"`
	IsDefault            bool             `json:"is_default"`
	Priority             int              `json:"priority"`
}

type PolicyUpdate struct {
	Name                 *string          `json:"name"`
	Description          *string          `json:"description"`
	CoverageUnder30      *decimal.Decimal `json:"coverage_0_30"`
	Coverage31To60       *decimal.Decimal `json:"coverage_31_60"`
	Coverage61To90       *decimal.Decimal `json:"coverage_61_90"`
	CoverageOver90       *decimal.Decimal `json:"coverage_91_plus"`
	MinAmount            *decimal.Decimal `json:"min_amount"`
	MaxSingleExposure    *decimal.Decimal `json:"max_single_exposure"`
	RequireApprovalAbove *decimal.Decimal `json:"require_approval_above"`
	IsDefault            *bool            `json:"is_default"`
	IsActive             *bool            `json:"is_active"`
	Priority             *int             `json:"priority"`
}

type OrderCreate struct {
	ExposureID       string           `json:"exposure_id"`
	RecommendationID string           `json:"recommendation_id"`
	OrderType        string           `json:"order_type"`
	Side             string           `json:"side" binding:"required"`
	Currency         string           `json:"currency" binding:"required"`
	Amount           decimal.Decimal  `json:"amount" binding:"required"`
	TargetRate       *decimal.Decimal `json:"target_rate"`
	LimitRate        *decimal.Decimal `json:"limit_rate"`
	CurrentRate      *decimal.Decimal `json:"current_rate"`
	SettlementDate   *time.Time       `json:"settlement_date"`
	Notes            string           `json:"notes"`
}

// OrderUpdate may only be applied while DRAFT or PENDING_APPROVAL.
type OrderUpdate struct {
	TargetRate     *decimal.Decimal `json:"target_rate"`
	LimitRate      *decimal.Decimal `json:"limit_rate"`
	SettlementDate *time.Time       `json:"settlement_date"`
	Notes          *string          `json:"notes"`
}

type QuoteCreate struct {
	Provider          string           `json:"provider" binding:"required"`
	ProviderReference string           `json:"provider_reference"`
	BidRate           *decimal.Decimal `json:"bid_rate"`
	AskRate           *decimal.Decimal `json:"ask_rate"`
	MidRate           *decimal.Decimal `json:"mid_rate"`
	Amount            *decimal.Decimal `json:"amount"`
	Currency          string           `json:"currency"`
	ValidUntil        time.Time        `json:"valid_until" binding:"required"`
}

type TradeCreate struct {
	QuoteID            string          `json:"quote_id"`
	TradeType          string          `json:"trade_type"`
	Side               string          `json:"side" binding:"required"`
	CurrencySold       string          `json:"currency_sold" binding:"required"`
	AmountSold         decimal.Decimal `json:"amount_sold" binding:"required"`
	CurrencyBought     string          `json:"currency_bought" binding:"required"`
	AmountBought       decimal.Decimal `json:"amount_bought" binding:"required"`
	ExecutedRate       decimal.Decimal `json:"executed_rate" binding:"required"`
	CounterpartyBank   string          `json:"counterparty_bank"`
	BankReference      string          `json:"bank_reference"`
	TradeDate          time.Time       `json:"trade_date" binding:"required"`
	ValueDate          time.Time       `json:"value_date" binding:"required"`
	ConfirmationNumber string          `json:"confirmation_number"`
	Notes              string          `json:"notes"`
}
