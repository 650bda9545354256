package policy

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

// Service is the policy engine: policy CRUD plus the evaluation and
// simulation runs that turn open exposures into hedge recommendations.
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

// CreatePolicy persists a new coverage policy. Marking it default clears
// the flag from every other policy of the company.
func (s *Service) CreatePolicy(companyID string, data types.PolicyCreate, createdBy string) (*types.HedgePolicy, error) {
	if data.Name == "" {
		return nil, types.Validationf("policy name is required")
	}
	for _, target := range []decimal.Decimal{data.CoverageUnder30, data.Coverage31To60, data.Coverage61To90, data.CoverageOver90} {
		if target.IsNegative() || target.GreaterThan(hundredPercent) {
			return nil, types.Validationf("coverage targets must be between 0 and 100")
		}
	}
	if data.ExposureType != "" && !data.ExposureType.Valid() {
		return nil, types.Validationf("unknown exposure type %q", data.ExposureType)
	}

	if data.IsDefault {
		if err := s.db.ClearDefaults(companyID, ""); err != nil {
			return nil, err
		}
	}

	priority := data.Priority
	if priority == 0 {
		priority = 100
	}

	policy := &types.HedgePolicy{
		PolicyID:             "POL_" + uuid.New().String(),
		CompanyID:            companyID,
		Name:                 data.Name,
		Description:          data.Description,
		ExposureType:         data.ExposureType,
		Currency:             data.Currency,
		Category:             data.Category,
		CoverageUnder30:      data.CoverageUnder30,
		Coverage31To60:       data.Coverage31To60,
		Coverage61To90:       data.Coverage61To90,
		CoverageOver90:       data.CoverageOver90,
		MinAmount:            data.MinAmount,
		MaxSingleExposure:    data.MaxSingleExposure,
		RateToleranceUp:      decimal.NewFromInt(2),
		RateToleranceDown:    decimal.NewFromInt(2),
		RequireApprovalAbove: data.RequireApprovalAbove,
		IsActive:             true,
		IsDefault:            data.IsDefault,
		Priority:             priority,
		CreatedBy:            createdBy,
	}

	if err := s.db.CreatePolicy(policy); err != nil {
		return nil, err
	}

	log.Info().
		Str("service", "policy").
		Str("policy_id", policy.PolicyID).
		Str("company_id", companyID).
		Str("name", policy.Name).
		Msg("created hedge policy")
	return policy, nil
}

func (s *Service) GetPolicy(policyID, companyID string) (*types.HedgePolicy, error) {
	return s.db.GetPolicy(policyID, companyID)
}

func (s *Service) ListPolicies(companyID string) ([]types.HedgePolicy, error) {
	return s.db.ListPolicies(companyID, true)
}

func (s *Service) UpdatePolicy(policyID, companyID string, patch types.PolicyUpdate) (*types.HedgePolicy, error) {
	policy, err := s.db.GetPolicy(policyID, companyID)
	if err != nil {
		return nil, err
	}

	if patch.IsDefault != nil && *patch.IsDefault {
		if err := s.db.ClearDefaults(companyID, policyID); err != nil {
			return nil, err
		}
	}

	if patch.Name != nil {
		policy.Name = *patch.Name
	}
	if patch.Description != nil {
		policy.Description = *patch.Description
	}
	if patch.CoverageUnder30 != nil {
		policy.CoverageUnder30 = *patch.CoverageUnder30
	}
	if patch.Coverage31To60 != nil {
		policy.Coverage31To60 = *patch.Coverage31To60
	}
	if patch.Coverage61To90 != nil {
		policy.Coverage61To90 = *patch.Coverage61To90
	}
	if patch.CoverageOver90 != nil {
		policy.CoverageOver90 = *patch.CoverageOver90
	}
	if patch.MinAmount != nil {
		policy.MinAmount = *patch.MinAmount
	}
	if patch.MaxSingleExposure != nil {
		policy.MaxSingleExposure = patch.MaxSingleExposure
	}
	if patch.RequireApprovalAbove != nil {
		policy.RequireApprovalAbove = patch.RequireApprovalAbove
	}
	if patch.IsDefault != nil {
		policy.IsDefault = *patch.IsDefault
	}
	if patch.IsActive != nil {
		policy.IsActive = *patch.IsActive
	}
	if patch.Priority != nil {
		policy.Priority = *patch.Priority
	}

	if err := s.db.UpdatePolicy(policy); err != nil {
		return nil, err
	}
	return policy, nil
}

// EvaluationError records a single exposure whose scoring failed without
// aborting the batch.
type EvaluationError struct {
	ExposureID string `json:"exposure_id"`
	Error      string `json:"error"`
}

// EvaluationResult is the outcome of one evaluation run: the generated
// recommendations plus any per-exposure failures.
type EvaluationResult struct {
	Recommendations []types.HedgeRecommendation `json:"recommendations"`
	Errors          []EvaluationError           `json:"errors,omitempty"`
}

// Evaluate runs a policy over the open exposures of the company (or an
// explicit id set) and persists the generated recommendations in one
// transaction. Exposures already at or above their horizon's target
// produce nothing. Scoring failures are isolated per exposure and reported
// alongside the generated subset.
func (s *Service) Evaluate(companyID, policyID string, exposureIDs []string, currentRate *decimal.Decimal) (*EvaluationResult, error) {
	logger := log.With().
		Str("service", "policy").
		Str("company_id", companyID).
		Logger()

	var (
		policy *types.HedgePolicy
		err    error
	)
	if policyID != "" {
		policy, err = s.db.GetPolicy(policyID, companyID)
	} else {
		policy, err = s.db.GetDefaultPolicy(companyID)
	}
	if err != nil {
		return nil, err
	}

	exposures, err := s.db.GetExposuresToEvaluate(companyID, exposureIDs, policy)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := &EvaluationResult{}

	for i := range exposures {
		exp := &exposures[i]
		rec, evalErr := s.evaluateExposure(exp, policy, currentRate, now)
		if evalErr != nil {
			logger.Warn().
				Str("exposure_id", exp.ExposureID).
				Err(evalErr).
				Msg("failed to score exposure")
			result.Errors = append(result.Errors, EvaluationError{
				ExposureID: exp.ExposureID,
				Error:      evalErr.Error(),
			})
			continue
		}
		if rec != nil {
			result.Recommendations = append(result.Recommendations, *rec)
		}
	}

	if err := s.db.SaveRecommendations(result.Recommendations); err != nil {
		return nil, err
	}

	logger.Info().
		Str("policy_id", policy.PolicyID).
		Int("exposures_evaluated", len(exposures)).
		Int("recommendations", len(result.Recommendations)).
		Int("errors", len(result.Errors)).
		Msg("completed policy evaluation")

	return result, nil
}

// evaluateExposure scores one exposure against the policy. A nil
// recommendation means the exposure is already compliant.
func (s *Service) evaluateExposure(
	exp *types.Exposure,
	policy *types.HedgePolicy,
	currentRate *decimal.Decimal,
	now time.Time,
) (*types.HedgeRecommendation, error) {
	if !exp.Amount.IsPositive() {
		return nil, types.Validationf("exposure %s has non-positive amount", exp.ExposureID)
	}

	days := exp.DaysToMaturity(now)
	horizon := types.HorizonFor(days)
	targetCoverage := policy.TargetCoverage(horizon)
	currentCoverage := exp.HedgePercentage

	if currentCoverage.GreaterThanOrEqual(targetCoverage) {
		return nil, nil
	}

	targetHedged := exp.Amount.Mul(targetCoverage).Div(hundredPercent)
	amountToHedge := targetHedged.Sub(exp.AmountHedged).Round(2)
	if !amountToHedge.IsPositive() {
		return nil, nil
	}

	action := determineAction(exp, policy, horizon, currentCoverage, targetCoverage, currentRate)
	priority, urgency := calculatePriority(horizon, amountToHedge)
	confidence := confidenceFor(horizon)
	reasoning := buildReasoning(exp, action, horizon, currentCoverage, targetCoverage, amountToHedge, days)

	validHours := 48
	if urgency == types.UrgencyHigh || urgency == types.UrgencyCritical {
		validHours = 24
	}

	return &types.HedgeRecommendation{
		RecommendationID: "REC_" + uuid.New().String(),
		CompanyID:        exp.CompanyID,
		ExposureID:       exp.ExposureID,
		PolicyID:         policy.PolicyID,
		Action:           action,
		Currency:         exp.Currency,
		AmountToHedge:    amountToHedge,
		CurrentCoverage:  currentCoverage,
		TargetCoverage:   targetCoverage,
		CurrentRate:      currentRate,
		Priority:         priority,
		Urgency:          urgency,
		DaysToMaturity:   days,
		Horizon:          horizon.Name,
		Reasoning:        reasoning,
		Confidence:       confidence,
		Status:           types.RecommendationPending,
		ValidUntil:       now.Add(time.Duration(validHours) * time.Hour),
	}, nil
}

// SimulationHorizon is the what-if aggregate of one bucket.
type SimulationHorizon struct {
	Total             decimal.Decimal `json:"total"`
	CurrentHedged     decimal.Decimal `json:"current_hedged"`
	TargetCoveragePct decimal.Decimal `json:"target_coverage_pct"`
	WouldHedge        decimal.Decimal `json:"would_hedge"`
	ExposuresCount    int             `json:"exposures_count"`
}

// SimulationResult previews the effect of a rule set without persisting
// anything.
type SimulationResult struct {
	TotalExposure      decimal.Decimal              `json:"total_exposure"`
	WouldHedge         decimal.Decimal              `json:"would_hedge"`
	CoveragePercentage decimal.Decimal              `json:"coverage_percentage"`
	ByHorizon          map[string]SimulationHorizon `json:"by_horizon"`
	EstimatedOrders    int                          `json:"estimated_orders"`
}

// SimulationRules carries the coverage targets of a what-if run.
type SimulationRules struct {
	CoverageUnder30 decimal.Decimal `json:"coverage_0_30"`
	Coverage31To60  decimal.Decimal `json:"coverage_31_60"`
	Coverage61To90  decimal.Decimal `json:"coverage_61_90"`
	CoverageOver90  decimal.Decimal `json:"coverage_91_plus"`
}

func (r SimulationRules) targetFor(h types.Horizon) decimal.Decimal {
	switch h.Name {
	case types.Horizons[0].Name:
		return r.CoverageUnder30
	case types.Horizons[1].Name:
		return r.Coverage31To60
	case types.Horizons[2].Name:
		return r.Coverage61To90
	default:
		return r.CoverageOver90
	}
}

// Simulate runs the coverage arithmetic of an evaluation over all live
// exposures without writing recommendations.
func (s *Service) Simulate(companyID string, rules SimulationRules) (*SimulationResult, error) {
	exposures, err := s.db.ListOpenExposures(companyID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := &SimulationResult{
		ByHorizon: make(map[string]SimulationHorizon, len(types.Horizons)),
	}

	buckets := make(map[string]*SimulationHorizon, len(types.Horizons))
	for _, h := range types.Horizons {
		buckets[h.Name] = &SimulationHorizon{TargetCoveragePct: rules.targetFor(h)}
	}

	for i := range exposures {
		exp := &exposures[i]
		horizon := types.HorizonFor(exp.DaysToMaturity(now))
		bucket := buckets[horizon.Name]

		bucket.Total = bucket.Total.Add(exp.Amount)
		bucket.CurrentHedged = bucket.CurrentHedged.Add(exp.AmountHedged)
		bucket.ExposuresCount++

		target := exp.Amount.Mul(rules.targetFor(horizon)).Div(hundredPercent)
		if target.GreaterThan(exp.AmountHedged) {
			result.EstimatedOrders++
		}
	}

	for name, bucket := range buckets {
		horizonTarget := bucket.Total.Mul(bucket.TargetCoveragePct).Div(hundredPercent)
		bucket.WouldHedge = decimal.Max(decimal.Zero, horizonTarget.Sub(bucket.CurrentHedged)).Round(2)

		result.TotalExposure = result.TotalExposure.Add(bucket.Total)
		result.WouldHedge = result.WouldHedge.Add(bucket.WouldHedge)
		result.ByHorizon[name] = *bucket
	}

	if result.TotalExposure.IsPositive() {
		result.CoveragePercentage = result.WouldHedge.Div(result.TotalExposure).Mul(hundredPercent).Round(2)
	}

	return result, nil
}

// GinHandlers contains HTTP handlers for policy endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) CreatePolicyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var data types.PolicyCreate
		if err := c.ShouldBindJSON(&data); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		policy, err := h.service.CreatePolicy(auth.CompanyID(c), data, auth.UserID(c))
		response.Handle(c, policy, err)
	}
}

func (h *GinHandlers) GetPolicyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		policy, err := h.service.GetPolicy(c.Param("policy_id"), auth.CompanyID(c))
		response.Handle(c, policy, err)
	}
}

func (h *GinHandlers) ListPoliciesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		policies, err := h.service.ListPolicies(auth.CompanyID(c))
		response.Handle(c, policies, err)
	}
}

func (h *GinHandlers) UpdatePolicyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch types.PolicyUpdate
		if err := c.ShouldBindJSON(&patch); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		policy, err := h.service.UpdatePolicy(c.Param("policy_id"), auth.CompanyID(c), patch)
		response.Handle(c, policy, err)
	}
}

type evaluateRequest struct {
	PolicyID    string           `json:"policy_id"`
	ExposureIDs []string         `json:"exposure_ids"`
	CurrentRate *decimal.Decimal `json:"current_rate"`
}

func (h *GinHandlers) EvaluateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req evaluateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.Evaluate(auth.CompanyID(c), req.PolicyID, req.ExposureIDs, req.CurrentRate)
		response.Handle(c, result, err)
	}
}

func (h *GinHandlers) SimulateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var rules SimulationRules
		if err := c.ShouldBindJSON(&rules); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.Simulate(auth.CompanyID(c), rules)
		response.Handle(c, result, err)
	}
}
