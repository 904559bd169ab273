package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stackbill/stackbill/internal/api/cron"
	v1 "github.com/stackbill/stackbill/internal/api/v1"
	"github.com/stackbill/stackbill/internal/config"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/rest/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Tier               *v1.TierHandler
	Proration          *v1.ProrationHandler
	Coupon             *v1.CouponHandler
	UpgradeRequest     *v1.UpgradeRequestHandler
	BillingTransaction *v1.BillingTransactionHandler
	PaymentMethod      *v1.PaymentMethodHandler
	BillingCron        *cron.BillingCronHandler
}

// NewRouter builds the gin engine with the standard middleware chain.
func NewRouter(cfg *config.Configuration, log *logger.Logger, h Handlers) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.SentryMiddleware(cfg))
	router.Use(middleware.ContextMiddleware)
	router.Use(middleware.SentryTenantContextMiddleware)
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/v1")
	{
		tiers := api.Group("/tiers")
		{
			tiers.POST("", h.Tier.CreateTier)
			tiers.GET("", h.Tier.ListTiers)
			tiers.GET("/:id", h.Tier.GetTier)
			tiers.GET("/code/:code", h.Tier.GetTierByCode)
			tiers.PUT("/:id", h.Tier.UpdateTier)
			tiers.DELETE("/:id", h.Tier.DeleteTier)
		}

		api.POST("/proration/preview", h.Proration.PreviewTierChange)

		coupons := api.Group("/coupons")
		{
			coupons.POST("", h.Coupon.CreateCoupon)
			coupons.GET("", h.Coupon.ListCoupons)
			coupons.POST("/validate", h.Coupon.ValidateCoupon)
			coupons.GET("/:id", h.Coupon.GetCoupon)
			coupons.PUT("/:id", h.Coupon.UpdateCoupon)
			coupons.DELETE("/:id", h.Coupon.DeleteCoupon)
		}

		requests := api.Group("/upgrade-requests")
		{
			requests.POST("", h.UpgradeRequest.CreateUpgradeRequest)
			requests.GET("", h.UpgradeRequest.ListUpgradeRequests)
			requests.GET("/:id", h.UpgradeRequest.GetUpgradeRequest)
			requests.POST("/:id/payment-proof", h.UpgradeRequest.UploadPaymentProof)
			requests.POST("/:id/start-review", h.UpgradeRequest.StartReview)
			requests.POST("/:id/review", h.UpgradeRequest.ReviewRequest)
			requests.POST("/:id/cancel", h.UpgradeRequest.CancelRequest)
		}

		transactions := api.Group("/transactions")
		{
			transactions.POST("", h.BillingTransaction.CreateManualTransaction)
			transactions.GET("", h.BillingTransaction.ListTransactions)
			transactions.GET("/:id", h.BillingTransaction.GetTransaction)
			transactions.POST("/:id/coupon", h.BillingTransaction.ApplyCoupon)
			transactions.POST("/:id/discount", h.BillingTransaction.ApplyManualDiscount)
			transactions.POST("/:id/bonus-days", h.BillingTransaction.AddBonusDays)
			transactions.POST("/:id/notes", h.BillingTransaction.AnnotateTransaction)
			transactions.POST("/:id/approve", h.BillingTransaction.ApproveTransaction)
			transactions.POST("/:id/reject", h.BillingTransaction.RejectTransaction)
		}

		paymentMethods := api.Group("/payment-methods")
		{
			paymentMethods.GET("", h.PaymentMethod.ListActivePaymentMethods)
			paymentMethods.GET("/:id", h.PaymentMethod.GetPaymentMethod)
		}
	}

	jobs := router.Group("/cron")
	{
		jobs.POST("/downgrades/apply", h.BillingCron.ApplyScheduledDowngrades)
		jobs.POST("/expiries/materialize", h.BillingCron.MaterializeExpiries)
	}

	return router
}
