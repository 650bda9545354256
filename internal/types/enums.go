package types

import "math"

// ExposureType distinguishes payables (we buy foreign currency to pay)
// from receivables (we sell foreign currency we will receive).
type ExposureType string

const (
	ExposurePayable    ExposureType = "payable"
	ExposureReceivable ExposureType = "receivable"
)

func (t ExposureType) Valid() bool {
	return t == ExposurePayable || t == ExposureReceivable
}

// ExposureStatus is derived from hedge progress, except for the terminal
// SETTLED and CANCELLED states.
type ExposureStatus string

const (
	ExposureOpen            ExposureStatus = "open"
	ExposurePartiallyHedged ExposureStatus = "partially_hedged"
	ExposureFullyHedged     ExposureStatus = "fully_hedged"
	ExposureSettled         ExposureStatus = "settled"
	ExposureCancelled       ExposureStatus = "cancelled"
)

// HedgeAction is the action a recommendation proposes.
type HedgeAction string

const (
	ActionHedgeNow     HedgeAction = "hedge_now"
	ActionHedgePartial HedgeAction = "hedge_partial"
	ActionWait         HedgeAction = "wait"
	ActionReview       HedgeAction = "review"
)

// RecommendationStatus: PENDING is the only state that may transition.
type RecommendationStatus string

const (
	RecommendationPending  RecommendationStatus = "pending"
	RecommendationAccepted RecommendationStatus = "accepted"
	RecommendationRejected RecommendationStatus = "rejected"
	RecommendationExpired  RecommendationStatus = "expired"
)

// OrderStatus follows DRAFT -> PENDING_APPROVAL -> APPROVED -> QUOTED ->
// EXECUTED, with REJECTED/CANCELLED reachable from any non-terminal state.
type OrderStatus string

const (
	OrderDraft           OrderStatus = "draft"
	OrderPendingApproval OrderStatus = "pending_approval"
	OrderApproved        OrderStatus = "approved"
	OrderQuoted          OrderStatus = "quoted"
	OrderExecuted        OrderStatus = "executed"
	OrderCancelled       OrderStatus = "cancelled"
	OrderRejected        OrderStatus = "rejected"
)

// AllOrderStatuses is used by summary rollups.
var AllOrderStatuses = []OrderStatus{
	OrderDraft, OrderPendingApproval, OrderApproved,
	OrderQuoted, OrderExecuted, OrderCancelled, OrderRejected,
}

type TradeStatus string

const (
	TradeConfirmed         TradeStatus = "confirmed"
	TradePendingSettlement TradeStatus = "pending_settlement"
	TradeSettled           TradeStatus = "settled"
	TradeFailed            TradeStatus = "failed"
)

type SettlementStatus string

const (
	SettlementPending    SettlementStatus = "pending"
	SettlementProcessing SettlementStatus = "processing"
	SettlementCompleted  SettlementStatus = "completed"
	SettlementFailed     SettlementStatus = "failed"
)

var AllSettlementStatuses = []SettlementStatus{
	SettlementPending, SettlementProcessing, SettlementCompleted, SettlementFailed,
}

// Urgency buckets derived from recommendation priority.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

var AllUrgencies = []Urgency{UrgencyCritical, UrgencyHigh, UrgencyNormal, UrgencyLow}

// Horizon is a maturity bucket. Buckets are closed day intervals and
// together partition [0, inf): every non-negative days-to-maturity lands in
// exactly one bucket.
type Horizon struct {
	Name    string
	MinDays int
	MaxDays int
}

var Horizons = [...]Horizon{
	{Name: "0-30", MinDays: 0, MaxDays: 30},
	{Name: "31-60", MinDays: 31, MaxDays: 60},
	{Name: "61-90", MinDays: 61, MaxDays: 90},
	{Name: "91+", MinDays: 91, MaxDays: math.MaxInt32},
}

// HorizonFor returns the bucket containing days. Negative input is treated
// as already due, i.e. the nearest bucket.
func HorizonFor(days int) Horizon {
	if days < 0 {
		days = 0
	}
	for _, h := range Horizons {
		if days >= h.MinDays && days <= h.MaxDays {
			return h
		}
	}
	// Unreachable: the last bucket is open-ended.
	return Horizons[len(Horizons)-1]
}

// IsNearest reports whether this is the 0-30 bucket.
func (h Horizon) IsNearest() bool { return h.MinDays == 0 }

// IsFarthest reports whether this is the open-ended bucket.
func (h Horizon) IsFarthest() bool { return h.MaxDays == math.MaxInt32 }
