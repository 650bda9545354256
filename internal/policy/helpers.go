package policy

import (
	"fmt"

	"github.com/ksred/atlas-api/internal/types"
	"github.com/shopspring/decimal"
)

var (
	oneMillion     = decimal.NewFromInt(1_000_000)
	oneHundredK    = decimal.NewFromInt(100_000)
	half           = decimal.NewFromFloat(0.5)
	hundredPercent = decimal.NewFromInt(100)
)

// determineAction picks the recommended action for one exposure.
//
// Oversized exposures always go to manual review. The nearest horizon
// always hedges now. Mid horizons hedge now only when badly behind target,
// otherwise partially. The farthest horizon hedges only on a favorable rate
// versus the exposure's target rate, else waits.
func determineAction(
	exp *types.Exposure,
	policy *types.HedgePolicy,
	horizon types.Horizon,
	currentCoverage, targetCoverage decimal.Decimal,
	currentRate *decimal.Decimal,
) types.HedgeAction {
	if policy.MaxSingleExposure != nil && exp.Amount.GreaterThanOrEqual(*policy.MaxSingleExposure) {
		return types.ActionReview
	}

	if horizon.IsNearest() {
		return types.ActionHedgeNow
	}

	if !horizon.IsFarthest() {
		if currentCoverage.LessThan(targetCoverage.Mul(half)) {
			return types.ActionHedgeNow
		}
		return types.ActionHedgePartial
	}

	if currentRate != nil && exp.TargetRate != nil {
		if exp.Type == types.ExposurePayable {
			// Buying foreign currency: a rate at or below target is favorable.
			if currentRate.LessThanOrEqual(*exp.TargetRate) {
				return types.ActionHedgeNow
			}
		} else {
			if currentRate.GreaterThanOrEqual(*exp.TargetRate) {
				return types.ActionHedgeNow
			}
		}
	}

	return types.ActionWait
}

var horizonBasePriority = map[string]int{
	types.Horizons[0].Name: 90,
	types.Horizons[1].Name: 70,
	types.Horizons[2].Name: 50,
	types.Horizons[3].Name: 30,
}

// calculatePriority maps horizon and size to a 0-100 priority and its
// urgency bucket.
func calculatePriority(horizon types.Horizon, amountToHedge decimal.Decimal) (int, types.Urgency) {
	priority := horizonBasePriority[horizon.Name]

	if amountToHedge.GreaterThanOrEqual(oneMillion) {
		priority += 10
	} else if amountToHedge.GreaterThanOrEqual(oneHundredK) {
		priority += 5
	}
	if priority > 100 {
		priority = 100
	}

	var urgency types.Urgency
	switch {
	case priority >= 85:
		urgency = types.UrgencyCritical
	case priority >= 70:
		urgency = types.UrgencyHigh
	case priority >= 50:
		urgency = types.UrgencyNormal
	default:
		urgency = types.UrgencyLow
	}

	return priority, urgency
}

var horizonConfidence = map[string]int64{
	types.Horizons[0].Name: 95,
	types.Horizons[1].Name: 85,
	types.Horizons[2].Name: 75,
	types.Horizons[3].Name: 60,
}

// confidenceFor is a fixed lookup by horizon: a proxy for how reliable the
// maturity signal is at that distance, not a statistical measure.
func confidenceFor(horizon types.Horizon) decimal.Decimal {
	return decimal.NewFromInt(horizonConfidence[horizon.Name])
}

var actionText = map[types.HedgeAction]string{
	types.ActionHedgeNow:     "Hedge immediately",
	types.ActionHedgePartial: "Hedge partially",
	types.ActionWait:         "Wait for a better rate",
	types.ActionReview:       "Requires manual review",
}

var actionTail = map[types.HedgeAction]string{
	types.ActionHedgeNow:     " The approaching maturity requires immediate action.",
	types.ActionHedgePartial: " Partial coverage is recommended to reduce exposure.",
	types.ActionWait:         " Current conditions suggest waiting for a better rate.",
	types.ActionReview:       " The significant amount requires additional approval.",
}

// buildReasoning renders the audit explanation deterministically from the
// evaluation facts.
func buildReasoning(
	exp *types.Exposure,
	action types.HedgeAction,
	horizon types.Horizon,
	currentCoverage, targetCoverage, amountToHedge decimal.Decimal,
	daysToMaturity int,
) string {
	kind := "payable"
	if exp.Type == types.ExposureReceivable {
		kind = "receivable"
	}

	return fmt.Sprintf(
		"%s: exposure %s (%s) for %s %s matures in %d days (horizon %s). Current coverage: %s%%, target: %s%%.%s",
		actionText[action],
		exp.Reference,
		kind,
		exp.Currency,
		amountToHedge.StringFixed(2),
		daysToMaturity,
		horizon.Name,
		currentCoverage.StringFixed(1),
		targetCoverage.StringFixed(1),
		actionTail[action],
	)
}
