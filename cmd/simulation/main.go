package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/atlas-api/internal/auth"
	"github.com/ksred/atlas-api/internal/database"
	"github.com/ksred/atlas-api/internal/exposure"
	"github.com/ksred/atlas-api/internal/order"
	"github.com/ksred/atlas-api/internal/policy"
	"github.com/ksred/atlas-api/internal/recommendation"
	"github.com/ksred/atlas-api/internal/reporting"
	"github.com/ksred/atlas-api/internal/settlement"
	"github.com/ksred/atlas-api/internal/types"
	"github.com/ksred/atlas-api/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	minExposures  = 10
	maxExposures  = 40
	serverAddress = "http://localhost:8080"
)

var (
	currencies    = []string{"EUR", "GBP", "JPY", "CHF"}
	exposureTypes = []string{"payable", "receivable"}
	suppliers     = []string{"Hamburg Machinery GmbH", "Osaka Components KK", "Zurich Precision AG", "Leeds Textiles Ltd"}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes min, max, mean, median, p95 and p99 durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the hedging API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

func newSimulationClient() (*simulationClient, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":     {name: "Authentication"},
			"exposure": {name: "Create Exposure"},
			"evaluate": {name: "Evaluate Policy"},
			"order":    {name: "Create Order"},
			"approve":  {name: "Approve Order"},
			"quote":    {name: "Quote Order"},
			"execute":  {name: "Execute Order"},
			"settle":   {name: "Settle Leg"},
			"report":   {name: "Coverage Report"},
		},
	}

	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

// do sends an authenticated request and decodes the response envelope into
// out. A nil out discards the payload.
func (sc *simulationClient) do(statKey, method, path string, payload, out interface{}) error {
	start := time.Now()
	defer func() {
		if rs, ok := sc.stats[statKey]; ok {
			rs.addDuration(time.Since(start))
		}
	}()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+sc.authToken)

	resp, err := sc.client.Do(req)
	if err != nil {
		if rs, ok := sc.stats[statKey]; ok {
			rs.failures++
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		if rs, ok := sc.stats[statKey]; ok {
			rs.failures++
		}
		var envelope struct {
			Error *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		if envelope.Error != nil {
			return fmt.Errorf("%s %s: %s (%s)", method, path, envelope.Error.Message, envelope.Error.Code)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	return json.Unmarshal(envelope.Data, out)
}

func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the hedging lifecycle simulation: exposures are booked, the
// default policy is evaluated, recommendations become orders, orders get
// quoted and executed, and the resulting settlement legs are confirmed.
func main() {
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	stats := struct {
		Exposures       int
		Recommendations int
		Orders          int
		Approved        int
		Executed        int
		LegsSettled     int
		Failed          int
		StartTime       time.Time
		Currencies      map[string]int
	}{
		StartTime:  time.Now(),
		Currencies: make(map[string]int),
	}

	// Counterparties
	counterpartyIDs := make([]string, 0, len(suppliers))
	for _, name := range suppliers {
		var cpt types.Counterparty
		err := simClient.do("exposure", "POST", "/api/v1/counterparties", map[string]interface{}{
			"name": name,
			"type": "supplier",
		}, &cpt)
		if err != nil {
			log.Error().Err(err).Str("name", name).Msg("Failed to create counterparty")
			continue
		}
		counterpartyIDs = append(counterpartyIDs, cpt.CounterpartyID)
	}

	// Default policy: full cover inside 30 days, tapering off with distance
	var pol types.HedgePolicy
	err = simClient.do("evaluate", "POST", "/api/v1/policies", map[string]interface{}{
		"name":             "Standard treasury policy",
		"coverage_0_30":    "100",
		"coverage_31_60":   "75",
		"coverage_61_90":   "50",
		"coverage_91_plus": "25",
		"min_amount":       "1000",
		"is_default":       true,
	}, &pol)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create policy")
	}
	log.Info().Str("policy_id", pol.PolicyID).Msg("Created default policy")

	// Exposures
	targetExposures := rand.Intn(maxExposures-minExposures) + minExposures
	for i := 0; i < targetExposures; i++ {
		currency := currencies[rand.Intn(len(currencies))]
		amount := decimal.NewFromInt(int64(rand.Intn(400_000) + 5_000))
		dueInDays := rand.Intn(180) + 1

		var exp types.Exposure
		err := simClient.do("exposure", "POST", "/api/v1/exposures", map[string]interface{}{
			"counterparty_id": counterpartyIDs[rand.Intn(len(counterpartyIDs))],
			"type":            exposureTypes[rand.Intn(len(exposureTypes))],
			"reference":       fmt.Sprintf("INV-%05d", rand.Intn(99999)),
			"currency":        currency,
			"amount":          amount,
			"due_date":        time.Now().AddDate(0, 0, dueInDays).Format(time.RFC3339),
		}, &exp)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create exposure")
			stats.Failed++
			continue
		}
		stats.Exposures++
		stats.Currencies[currency]++
	}
	log.Info().Int("exposures", stats.Exposures).Msg("Booked exposures")

	// Evaluate the default policy
	var evaluation struct {
		Recommendations []types.HedgeRecommendation `json:"recommendations"`
	}
	if err := simClient.do("evaluate", "POST", "/api/v1/policies/evaluate", map[string]interface{}{}, &evaluation); err != nil {
		log.Fatal().Err(err).Msg("Policy evaluation failed")
	}
	stats.Recommendations = len(evaluation.Recommendations)
	log.Info().Int("recommendations", stats.Recommendations).Msg("Policy evaluated")

	// Drive each actionable recommendation through the order lifecycle
	for _, rec := range evaluation.Recommendations {
		if rec.Action != types.ActionHedgeNow && rec.Action != types.ActionHedgePartial {
			continue
		}

		var ord types.HedgeOrder
		err := simClient.do("order", "POST", "/api/v1/orders/from-recommendation", map[string]string{
			"recommendation_id": rec.RecommendationID,
		}, &ord)
		if err != nil {
			log.Error().Err(err).Str("recommendation_id", rec.RecommendationID).Msg("Failed to create order")
			stats.Failed++
			continue
		}
		stats.Orders++

		if ord.Status == types.OrderPendingApproval {
			if err := simClient.do("approve", "POST", "/api/v1/orders/"+ord.OrderID+"/approve", nil, &ord); err != nil {
				log.Error().Err(err).Str("order_id", ord.OrderID).Msg("Failed to approve order")
				stats.Failed++
				continue
			}
			stats.Approved++
		}

		// Quote with a small random spread around parity
		mid := decimal.NewFromFloat(1 + rand.Float64()*0.2)
		bid := mid.Sub(decimal.NewFromFloat(0.002))
		ask := mid.Add(decimal.NewFromFloat(0.002))
		var quote types.Quote
		err = simClient.do("quote", "POST", "/api/v1/orders/"+ord.OrderID+"/quotes", map[string]interface{}{
			"provider":    "SIMBANK",
			"bid_rate":    bid,
			"ask_rate":    ask,
			"mid_rate":    mid,
			"valid_until": time.Now().Add(10 * time.Minute).Format(time.RFC3339),
		}, &quote)
		if err != nil {
			log.Error().Err(err).Str("order_id", ord.OrderID).Msg("Failed to quote order")
			stats.Failed++
			continue
		}
		if err := simClient.do("quote", "POST", "/api/v1/orders/"+ord.OrderID+"/quotes/"+quote.QuoteID+"/accept", nil, nil); err != nil {
			log.Error().Err(err).Str("quote_id", quote.QuoteID).Msg("Failed to accept quote")
		}

		rate := ask
		sold := ord.Amount.Mul(rate).Round(2)
		currencySold, currencyBought := "USD", ord.Currency
		amountSold, amountBought := sold, ord.Amount
		if ord.Side == "sell" {
			currencySold, currencyBought = ord.Currency, "USD"
			amountSold, amountBought = ord.Amount, sold
		}

		var trade types.Trade
		err = simClient.do("execute", "POST", "/api/v1/orders/"+ord.OrderID+"/execute", map[string]interface{}{
			"quote_id":        quote.QuoteID,
			"side":            ord.Side,
			"currency_sold":   currencySold,
			"amount_sold":     amountSold,
			"currency_bought": currencyBought,
			"amount_bought":   amountBought,
			"executed_rate":   rate,
			"trade_date":      time.Now().Format(time.RFC3339),
			"value_date":      time.Now().AddDate(0, 0, 2).Format(time.RFC3339),
		}, &trade)
		if err != nil {
			log.Error().Err(err).Str("order_id", ord.OrderID).Msg("Failed to execute order")
			stats.Failed++
			continue
		}
		stats.Executed++
		log.Info().
			Str("order_id", ord.OrderID).
			Str("trade_id", trade.TradeID).
			Str("rate", trade.ExecutedRate.String()).
			Msg("Order executed")

		// Confirm both settlement legs
		var legs []types.Settlement
		if err := simClient.do("settle", "GET", "/api/v1/trades/"+trade.TradeID+"/settlements", nil, &legs); err != nil {
			log.Error().Err(err).Str("trade_id", trade.TradeID).Msg("Failed to list settlements")
			continue
		}
		for _, leg := range legs {
			if err := simClient.do("settle", "POST", "/api/v1/settlements/"+leg.SettlementID+"/process", nil, nil); err != nil {
				log.Error().Err(err).Str("settlement_id", leg.SettlementID).Msg("Failed to process settlement")
				continue
			}
			err := simClient.do("settle", "POST", "/api/v1/settlements/"+leg.SettlementID+"/complete", map[string]string{
				"bank_confirmation": fmt.Sprintf("SWIFT-%06d", rand.Intn(999999)),
			}, nil)
			if err != nil {
				log.Error().Err(err).Str("settlement_id", leg.SettlementID).Msg("Failed to complete settlement")
				continue
			}
			stats.LegsSettled++
		}
	}

	// Final coverage report
	var coverage struct {
		TotalExposure decimal.Decimal `json:"total_exposure"`
		TotalHedged   decimal.Decimal `json:"total_hedged"`
		CoveragePct   decimal.Decimal `json:"coverage_pct"`
	}
	if err := simClient.do("report", "GET", "/api/v1/reports/coverage", nil, &coverage); err != nil {
		log.Error().Err(err).Msg("Failed to fetch coverage report")
	}

	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("HEDGING SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Exposures booked:   %d
Recommendations:    %d
Orders created:     %d
Orders approved:    %d
Orders executed:    %d
Legs settled:       %d
Failures:           %d
Total exposure:     %s
Total hedged:       %s
Coverage:           %s%%
Duration:           %v

Currency Distribution
---------------------
`, stats.Exposures, stats.Recommendations, stats.Orders, stats.Approved,
		stats.Executed, stats.LegsSettled, stats.Failed,
		coverage.TotalExposure.StringFixed(2), coverage.TotalHedged.StringFixed(2),
		coverage.CoveragePct.StringFixed(1), duration.Round(time.Millisecond))

	maxCount := 0
	for _, count := range stats.Currencies {
		if count > maxCount {
			maxCount = count
		}
	}
	for currency, count := range stats.Currencies {
		barLength := 0
		if maxCount > 0 {
			barLength = int(float64(count) / float64(maxCount) * 20)
		}
		fmt.Printf("%-4s: %s (%d)\n", currency, strings.Repeat("#", barLength), count)
	}
	fmt.Println("\n" + strings.Repeat("=", 80))

	log.Info().
		Int("exposures", stats.Exposures).
		Int("executed", stats.Executed).
		Int("legs_settled", stats.LegsSettled).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// startServer initializes and starts the hedging API server with an
// in-memory database so runs are self-contained.
func startServer() error {
	db, err := database.NewDatabase("file::memory:?cache=shared")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	const jwtSecret = "atlas-secret-key"
	authService := auth.NewService(jwtSecret, 24*time.Hour)
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret, "COMP_SIM", "USR_SIM")

	exposureService := exposure.NewService(db)
	policyService := policy.NewService(db)
	recommendationService := recommendation.NewService(db)
	orderService := order.NewService(db, decimal.NewFromInt(100_000))
	settlementService := settlement.NewService(db)
	reportingService := reporting.NewService(db)

	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	exposureHandlers := exposure.NewGinHandlers(exposureService)
	policyHandlers := policy.NewGinHandlers(policyService)
	recommendationHandlers := recommendation.NewGinHandlers(recommendationService)
	orderHandlers := order.NewGinHandlers(orderService)
	settlementHandlers := settlement.NewGinHandlers(settlementService)
	reportingHandlers := reporting.NewGinHandlers(reportingService)

	setupRoutes(router, jwtSecret,
		authHandlers, exposureHandlers, policyHandlers, recommendationHandlers,
		orderHandlers, settlementHandlers, reportingHandlers)

	return router.Run(":8080")
}

// setupRoutes configures the simulated server's endpoints. Mirrors the
// production server without the rate limiter or internal group.
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	exposureHandlers *exposure.GinHandlers,
	policyHandlers *policy.GinHandlers,
	recommendationHandlers *recommendation.GinHandlers,
	orderHandlers *order.GinHandlers,
	settlementHandlers *settlement.GinHandlers,
	reportingHandlers *reporting.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(jwtSecret))
		{
			protected.POST("/counterparties", exposureHandlers.CreateCounterpartyHandler())
			protected.POST("/exposures", exposureHandlers.CreateExposureHandler())
			protected.GET("/exposures/summary", exposureHandlers.GetSummaryHandler())

			protected.POST("/policies", policyHandlers.CreatePolicyHandler())
			protected.POST("/policies/evaluate", policyHandlers.EvaluateHandler())

			protected.GET("/recommendations", recommendationHandlers.ListRecommendationsHandler())

			protected.POST("/orders/from-recommendation", orderHandlers.CreateFromRecommendationHandler())
			protected.POST("/orders/:order_id/approve", orderHandlers.ApproveOrderHandler())
			protected.POST("/orders/:order_id/quotes", orderHandlers.AddQuoteHandler())
			protected.POST("/orders/:order_id/quotes/:quote_id/accept", orderHandlers.AcceptQuoteHandler())
			protected.POST("/orders/:order_id/execute", orderHandlers.ExecuteOrderHandler())

			protected.GET("/trades/:trade_id/settlements", settlementHandlers.ListForTradeHandler())
			protected.POST("/settlements/:settlement_id/process", settlementHandlers.ProcessSettlementHandler())
			protected.POST("/settlements/:settlement_id/complete", settlementHandlers.CompleteSettlementHandler())

			protected.GET("/reports/coverage", reportingHandlers.CoverageHandler())
		}
	}
}
