package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Counterparty is a supplier, customer or bank the company holds
// foreign-currency exposures against.
type Counterparty struct {
	gorm.Model     `json:"-"`
	CounterpartyID string `gorm:"uniqueIndex" json:"counterparty_id"`
	CompanyID      string `gorm:"index" json:"company_id"`

	Name    string `json:"name"`
	TaxID   string `json:"tax_id,omitempty"`
	Country string `json:"country"`                       // ISO 3166-1 alpha-3
	Type    string `gorm:"column:counterparty_type" json:"type"` // supplier, customer, bank
	Category string `json:"category,omitempty"`

	ContactName  string `json:"contact_name,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`

	DefaultPaymentTerms int    `json:"default_payment_terms"` // days
	DefaultCurrency     string `json:"default_currency"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Exposure is a single foreign-currency payable or receivable with a due
// date and hedge progress. AmountHedged is always within [0, Amount] and
// HedgePercentage/Status are derived from it.
type Exposure struct {
	gorm.Model     `json:"-"`
	ExposureID     string `gorm:"uniqueIndex" json:"exposure_id"`
	CompanyID      string `gorm:"index" json:"company_id"`
	CounterpartyID string `gorm:"index" json:"counterparty_id,omitempty"`

	Type        ExposureType `gorm:"column:exposure_type" json:"type"`
	Reference   string       `json:"reference"` // invoice / PO number
	Description string       `json:"description,omitempty"`

	Currency        string          `json:"currency"`
	Amount          decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
	AmountHedged    decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount_hedged"`
	HedgePercentage decimal.Decimal `gorm:"type:decimal(5,2)" json:"hedge_percentage"`

	OriginalRate *decimal.Decimal `gorm:"type:decimal(10,4)" json:"original_rate,omitempty"`
	TargetRate   *decimal.Decimal `gorm:"type:decimal(10,4)" json:"target_rate,omitempty"`
	BudgetRate   *decimal.Decimal `gorm:"type:decimal(10,4)" json:"budget_rate,omitempty"`

	InvoiceDate *time.Time `json:"invoice_date,omitempty"`
	DueDate     time.Time  `gorm:"index" json:"due_date"`

	Status ExposureStatus `gorm:"index" json:"status"`

	Source    string    `json:"source"` // manual, erp_sync
	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AmountOpen is the unhedged remainder.
func (e *Exposure) AmountOpen() decimal.Decimal {
	return e.Amount.Sub(e.AmountHedged)
}

// DaysToMaturity is the number of whole calendar days from today until the
// due date, floored at zero for overdue exposures.
func (e *Exposure) DaysToMaturity(today time.Time) int {
	days := DaysBetween(today, e.DueDate)
	if days < 0 {
		return 0
	}
	return days
}

// DaysBetween counts calendar days from one date to another, ignoring the
// time-of-day component of both.
func DaysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}

// HedgePolicy holds the coverage targets per maturity horizon plus the
// filters and limits that scope which exposures it applies to. One policy
// per company may be the default.
type HedgePolicy struct {
	gorm.Model  `json:"-"`
	PolicyID    string `gorm:"uniqueIndex" json:"policy_id"`
	CompanyID   string `gorm:"index" json:"company_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Filters. Empty means "applies to all".
	ExposureType ExposureType `json:"exposure_type,omitempty"`
	Currency     string       `json:"currency,omitempty"`
	Category     string       `json:"category,omitempty"`

	// Coverage targets (%) per horizon, one column per bucket so the
	// partition is fixed in the schema rather than a free-form map.
	CoverageUnder30 decimal.Decimal `gorm:"type:decimal(5,2)" json:"coverage_0_30"`
	Coverage31To60  decimal.Decimal `gorm:"type:decimal(5,2)" json:"coverage_31_60"`
	Coverage61To90  decimal.Decimal `gorm:"type:decimal(5,2)" json:"coverage_61_90"`
	CoverageOver90  decimal.Decimal `gorm:"type:decimal(5,2)" json:"coverage_91_plus"`

	MinAmount         decimal.Decimal  `gorm:"type:decimal(15,2)" json:"min_amount"`
	MaxSingleExposure *decimal.Decimal `gorm:"type:decimal(15,2)" json:"max_single_exposure,omitempty"`

	RateToleranceUp   decimal.Decimal `gorm:"type:decimal(5,2)" json:"rate_tolerance_up"`
	RateToleranceDown decimal.Decimal `gorm:"type:decimal(5,2)" json:"rate_tolerance_down"`

	RequireApprovalAbove *decimal.Decimal `gorm:"type:decimal(15,2)" json:"require_approval_above,omitempty"`

	IsActive  bool      `json:"is_active"`
	IsDefault bool      `json:"is_default"`
	Priority  int       `json:"priority"` // lower sorts first
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TargetCoverage returns the coverage target (%) for a horizon bucket.
func (p *HedgePolicy) TargetCoverage(h Horizon) decimal.Decimal {
	switch h.Name {
	case Horizons[0].Name:
		return p.CoverageUnder30
	case Horizons[1].Name:
		return p.Coverage31To60
	case Horizons[2].Name:
		return p.Coverage61To90
	default:
		return p.CoverageOver90
	}
}

// HedgeRecommendation is an engine-generated suggestion to hedge a specific
// amount of a specific exposure. Immutable once decided.
type HedgeRecommendation struct {
	gorm.Model       `json:"-"`
	RecommendationID string `gorm:"uniqueIndex" json:"recommendation_id"`
	CompanyID        string `gorm:"index" json:"company_id"`
	ExposureID       string `gorm:"index" json:"exposure_id"`
	PolicyID         string `json:"policy_id"`

	Action HedgeAction `json:"action"`

	Currency        string          `json:"currency"`
	AmountToHedge   decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount_to_hedge"`
	CurrentCoverage decimal.Decimal `gorm:"type:decimal(5,2)" json:"current_coverage"`
	TargetCoverage  decimal.Decimal `gorm:"type:decimal(5,2)" json:"target_coverage"`

	CurrentRate *decimal.Decimal `gorm:"type:decimal(10,4)" json:"current_rate,omitempty"`

	Priority       int     `json:"priority"` // 0-100
	Urgency        Urgency `json:"urgency"`
	DaysToMaturity int     `json:"days_to_maturity"`
	Horizon        string  `json:"horizon"`

	Reasoning  string          `json:"reasoning"`
	Confidence decimal.Decimal `gorm:"type:decimal(5,2)" json:"confidence"`

	Status RecommendationStatus `gorm:"index" json:"status"`

	ValidUntil      time.Time  `json:"valid_until"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	DecidedBy       string     `json:"decided_by,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HedgeOrder is an instruction to execute an FX trade. Amount is fixed at
// creation; only DRAFT/PENDING_APPROVAL orders may be patched.
type HedgeOrder struct {
	gorm.Model       `json:"-"`
	OrderID          string `gorm:"uniqueIndex" json:"order_id"`
	CompanyID        string `gorm:"index" json:"company_id"`
	ExposureID       string `gorm:"index" json:"exposure_id,omitempty"`
	RecommendationID string `json:"recommendation_id,omitempty"`

	OrderType string `json:"order_type"` // spot, forward, ndf
	Side      string `json:"side"`       // buy, sell

	Currency string          `json:"currency"`
	Amount   decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`

	TargetRate           *decimal.Decimal `gorm:"type:decimal(10,4)" json:"target_rate,omitempty"`
	LimitRate            *decimal.Decimal `gorm:"type:decimal(10,4)" json:"limit_rate,omitempty"`
	MarketRateAtCreation *decimal.Decimal `gorm:"type:decimal(10,4)" json:"market_rate_at_creation,omitempty"`

	SettlementDate *time.Time `json:"settlement_date,omitempty"`

	Status OrderStatus `gorm:"index" json:"status"`

	RequiresApproval bool       `json:"requires_approval"`
	ApprovedBy       string     `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`

	BankReference     string     `json:"bank_reference,omitempty"`
	ExecutedAt        *time.Time `json:"executed_at,omitempty"`
	InternalReference string     `json:"internal_reference"`

	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether no further transitions are allowed.
func (o *HedgeOrder) IsTerminal() bool {
	return o.Status == OrderExecuted || o.Status == OrderCancelled || o.Status == OrderRejected
}

// Quote is a rate offer from a liquidity provider against an order.
type Quote struct {
	gorm.Model `json:"-"`
	QuoteID    string `gorm:"uniqueIndex" json:"quote_id"`
	OrderID    string `gorm:"index" json:"order_id"`

	Provider          string `json:"provider"`
	ProviderReference string `json:"provider_reference,omitempty"`

	BidRate *decimal.Decimal `gorm:"type:decimal(10,4)" json:"bid_rate,omitempty"`
	AskRate *decimal.Decimal `gorm:"type:decimal(10,4)" json:"ask_rate,omitempty"`
	MidRate *decimal.Decimal `gorm:"type:decimal(10,4)" json:"mid_rate,omitempty"`
	Spread  *decimal.Decimal `gorm:"type:decimal(6,4)" json:"spread,omitempty"`

	Amount   decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
	Currency string          `json:"currency"`

	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until"`

	IsAccepted bool `json:"is_accepted"`
	IsExpired  bool `json:"is_expired"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Trade is the confirmed execution of an order. Exactly one trade exists
// per executed order.
type Trade struct {
	gorm.Model `json:"-"`
	TradeID    string `gorm:"uniqueIndex" json:"trade_id"`
	CompanyID  string `gorm:"index" json:"company_id"`
	OrderID    string `gorm:"index" json:"order_id"`
	QuoteID    string `json:"quote_id,omitempty"`

	TradeType string `json:"trade_type"` // spot, forward, ndf
	Side      string `json:"side"`

	CurrencySold   string          `json:"currency_sold"`
	AmountSold     decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount_sold"`
	CurrencyBought string          `json:"currency_bought"`
	AmountBought   decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount_bought"`

	ExecutedRate decimal.Decimal `gorm:"type:decimal(10,4)" json:"executed_rate"`

	CounterpartyBank string `json:"counterparty_bank,omitempty"`
	BankReference    string `json:"bank_reference,omitempty"`

	TradeDate time.Time `gorm:"index" json:"trade_date"`
	ValueDate time.Time `json:"value_date"`

	Status TradeStatus `json:"status"`

	ConfirmationNumber string    `json:"confirmation_number,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	CreatedBy          string    `json:"created_by,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Settlement is the cash movement of one currency side of a trade. Every
// trade owns exactly two legs: sold and bought.
type Settlement struct {
	gorm.Model   `json:"-"`
	SettlementID string `gorm:"uniqueIndex" json:"settlement_id"`
	TradeID      string `gorm:"index" json:"trade_id"`

	Leg string `json:"leg"` // sold, bought

	SettlementDate time.Time `gorm:"index" json:"settlement_date"`

	Currency string          `json:"currency"`
	Amount   decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`

	FromAccount string `json:"from_account,omitempty"`
	ToAccount   string `json:"to_account,omitempty"`

	Status SettlementStatus `gorm:"index" json:"status"`

	PaymentReference string     `json:"payment_reference,omitempty"`
	BankConfirmation string     `json:"bank_confirmation,omitempty"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	ConfirmedAt      *time.Time `json:"confirmed_at,omitempty"`

	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
