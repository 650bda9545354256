package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/atlas-api/internal/auth"
	"github.com/ksred/atlas-api/internal/config"
	"github.com/ksred/atlas-api/internal/database"
	"github.com/ksred/atlas-api/internal/exposure"
	"github.com/ksred/atlas-api/internal/order"
	"github.com/ksred/atlas-api/internal/policy"
	"github.com/ksred/atlas-api/internal/recommendation"
	"github.com/ksred/atlas-api/internal/reporting"
	"github.com/ksred/atlas-api/internal/settlement"
	"github.com/ksred/atlas-api/pkg/middleware"
	"github.com/ksred/atlas-api/pkg/response"

	"github.com/gin-gonic/gin"
)

func configureLogging(cfg *config.Config) {
	if cfg.Log.Pretty {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// main initializes and runs the hedging API server with graceful shutdown
// support.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	configureLogging(cfg)

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	approvalThreshold, err := decimal.NewFromString(cfg.Hedging.ApprovalThreshold)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Invalid approval threshold")
	}

	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpireHour)*time.Hour)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret, "COMP_TEST", "USR_TEST")

	exposureService := exposure.NewService(db)
	exposureHandlers := exposure.NewGinHandlers(exposureService)

	policyService := policy.NewService(db)
	policyHandlers := policy.NewGinHandlers(policyService)

	recommendationService := recommendation.NewService(db)
	recommendationHandlers := recommendation.NewGinHandlers(recommendationService)

	orderService := order.NewService(db, approvalThreshold)
	orderHandlers := order.NewGinHandlers(orderService)

	settlementService := settlement.NewService(db)
	settlementHandlers := settlement.NewGinHandlers(settlementService)

	reportingService := reporting.NewService(db)
	reportingHandlers := reporting.NewGinHandlers(reportingService)

	// Create and start the background sweep
	processor := settlement.NewProcessor(db, time.Duration(cfg.Hedging.SweepIntervalSeconds)*time.Second)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go processor.Start(processorCtx)

	router.Use(middleware.RateLimit())

	setupRoutes(router, cfg,
		authHandlers, exposureHandlers, policyHandlers, recommendationHandlers,
		orderHandlers, settlementHandlers, reportingHandlers, processor)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers, grouped by
// lifecycle stage. Auth routes are public; everything else requires a JWT
// carrying the tenant; the internal group is for scheduler triggers.
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	authHandlers *auth.GinHandlers,
	exposureHandlers *exposure.GinHandlers,
	policyHandlers *policy.GinHandlers,
	recommendationHandlers *recommendation.GinHandlers,
	orderHandlers *order.GinHandlers,
	settlementHandlers *settlement.GinHandlers,
	reportingHandlers *reporting.GinHandlers,
	processor *settlement.Processor,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Exposure ledger
		exposures := v1.Group("/exposures")
		exposures.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			exposures.POST("", exposureHandlers.CreateExposureHandler())
			exposures.GET("", exposureHandlers.ListExposuresHandler())
			exposures.GET("/summary", exposureHandlers.GetSummaryHandler())
			exposures.GET("/by-horizon/:horizon", exposureHandlers.GetByHorizonHandler())
			exposures.GET("/:exposure_id", exposureHandlers.GetExposureHandler())
			exposures.PATCH("/:exposure_id", exposureHandlers.UpdateExposureHandler())
			exposures.PUT("/:exposure_id/hedge-amount", exposureHandlers.UpdateHedgeAmountHandler())
			exposures.DELETE("/:exposure_id", exposureHandlers.CancelExposureHandler())
		}

		counterparties := v1.Group("/counterparties")
		counterparties.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			counterparties.POST("", exposureHandlers.CreateCounterpartyHandler())
			counterparties.GET("", exposureHandlers.ListCounterpartiesHandler())
		}

		// Policy engine
		policies := v1.Group("/policies")
		policies.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			policies.POST("", policyHandlers.CreatePolicyHandler())
			policies.GET("", policyHandlers.ListPoliciesHandler())
			policies.POST("/evaluate", policyHandlers.EvaluateHandler())
			policies.POST("/simulate", policyHandlers.SimulateHandler())
			policies.GET("/:policy_id", policyHandlers.GetPolicyHandler())
			policies.PATCH("/:policy_id", policyHandlers.UpdatePolicyHandler())
		}

		// Recommendation lifecycle
		recommendations := v1.Group("/recommendations")
		recommendations.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			recommendations.GET("", recommendationHandlers.ListRecommendationsHandler())
			recommendations.GET("/summary", recommendationHandlers.SummaryHandler())
			recommendations.GET("/calendar", recommendationHandlers.CalendarHandler())
			recommendations.GET("/:recommendation_id", recommendationHandlers.GetRecommendationHandler())
			recommendations.POST("/:recommendation_id/accept", recommendationHandlers.AcceptHandler())
			recommendations.POST("/:recommendation_id/reject", recommendationHandlers.RejectHandler())
		}

		// Order orchestration
		orders := v1.Group("/orders")
		orders.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			orders.POST("", orderHandlers.CreateOrderHandler())
			orders.POST("/from-recommendation", orderHandlers.CreateFromRecommendationHandler())
			orders.GET("", orderHandlers.ListOrdersHandler())
			orders.GET("/summary", orderHandlers.OrderSummaryHandler())
			orders.GET("/:order_id", orderHandlers.GetOrderHandler())
			orders.PATCH("/:order_id", orderHandlers.UpdateOrderHandler())
			orders.POST("/:order_id/approve", orderHandlers.ApproveOrderHandler())
			orders.POST("/:order_id/reject", orderHandlers.RejectOrderHandler())
			orders.POST("/:order_id/cancel", orderHandlers.CancelOrderHandler())
			orders.POST("/:order_id/quotes", orderHandlers.AddQuoteHandler())
			orders.GET("/:order_id/quotes", orderHandlers.ListQuotesHandler())
			orders.POST("/:order_id/quotes/:quote_id/accept", orderHandlers.AcceptQuoteHandler())
			orders.POST("/:order_id/execute", orderHandlers.ExecuteOrderHandler())
		}

		// Trades and settlement lifecycle
		trades := v1.Group("/trades")
		trades.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			trades.GET("", orderHandlers.ListTradesHandler())
			trades.GET("/:trade_id", orderHandlers.GetTradeHandler())
			trades.GET("/:trade_id/settlements", settlementHandlers.ListForTradeHandler())
		}

		settlements := v1.Group("/settlements")
		settlements.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			settlements.GET("", settlementHandlers.ListSettlementsHandler())
			settlements.GET("/calendar", settlementHandlers.CalendarHandler())
			settlements.GET("/summary", settlementHandlers.SummaryHandler())
			settlements.GET("/:settlement_id", settlementHandlers.GetSettlementHandler())
			settlements.POST("/:settlement_id/process", settlementHandlers.ProcessSettlementHandler())
			settlements.POST("/:settlement_id/complete", settlementHandlers.CompleteSettlementHandler())
			settlements.POST("/:settlement_id/fail", settlementHandlers.FailSettlementHandler())
		}

		// Reports
		reports := v1.Group("/reports")
		reports.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			reports.GET("/coverage", reportingHandlers.CoverageHandler())
			reports.GET("/maturity-ladder", reportingHandlers.MaturityLadderHandler())
			reports.GET("/hedging-cost", reportingHandlers.HedgingCostHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(cfg.JWT.Secret))
		{
			internal.POST("/sweep", func(c *gin.Context) {
				processed, expired := processor.Sweep()
				response.Success(c, gin.H{
					"settlements_processing":  processed,
					"recommendations_expired": expired,
				})
			})
			internal.POST("/recommendations/expire", recommendationHandlers.ExpireHandler())
		}
	}
}
