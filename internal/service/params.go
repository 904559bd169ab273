package service

import (
	"github.com/stackbill/stackbill/internal/cache"
	"github.com/stackbill/stackbill/internal/config"
	"github.com/stackbill/stackbill/internal/domain/billingtransaction"
	"github.com/stackbill/stackbill/internal/domain/coupon"
	"github.com/stackbill/stackbill/internal/domain/couponredemption"
	"github.com/stackbill/stackbill/internal/domain/paymentmethod"
	"github.com/stackbill/stackbill/internal/domain/proration"
	"github.com/stackbill/stackbill/internal/domain/tenant"
	"github.com/stackbill/stackbill/internal/domain/tier"
	"github.com/stackbill/stackbill/internal/domain/upgraderequest"
	"github.com/stackbill/stackbill/internal/events"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/postgres"
)

// ServiceParams carries the shared dependencies injected into every service.
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient

	Cache     cache.Cache
	Publisher events.Publisher

	ProrationCalc proration.Calculator

	TierRepo          tier.Repository
	TenantRepo        tenant.Repository
	RequestRepo       upgraderequest.Repository
	TransactionRepo   billingtransaction.Repository
	CouponRepo        coupon.Repository
	RedemptionRepo    couponredemption.Repository
	PaymentMethodRepo paymentmethod.Repository
}
