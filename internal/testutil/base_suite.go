package testutil

import (
	"context"

	"github.com/stretchr/testify/suite"

	"github.com/stackbill/stackbill/internal/config"
	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/types"
)

// Stores bundles the in-memory repositories handed to services under test.
type Stores struct {
	TierRepo          *InMemoryTierStore
	TenantRepo        *InMemoryTenantStore
	RequestRepo       *InMemoryUpgradeRequestStore
	TransactionRepo   *InMemoryBillingTransactionStore
	CouponRepo        *InMemoryCouponStore
	RedemptionRepo    *InMemoryCouponRedemptionStore
	PaymentMethodRepo *InMemoryPaymentMethodStore
}

// BaseServiceTestSuite wires fresh stores, a mock transactional client, and a
// capturing event publisher before every test.
type BaseServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	cfg       *config.Configuration
	logger    *logger.Logger
	stores    Stores
	db        *MockDB
	publisher *InMemoryPublisher
}

func (s *BaseServiceTestSuite) SetupTest() {
	ctx := context.Background()
	ctx = types.SetRequestID(ctx, types.GenerateUUID())
	ctx = types.SetActorID(ctx, "admin_test")
	s.ctx = ctx

	s.cfg = config.GetDefaultConfig()
	s.logger = logger.GetLogger()
	s.db = NewMockDB()
	s.publisher = NewInMemoryPublisher()
	s.stores = Stores{
		TierRepo:          NewInMemoryTierStore(),
		TenantRepo:        NewInMemoryTenantStore(),
		RequestRepo:       NewInMemoryUpgradeRequestStore(),
		TransactionRepo:   NewInMemoryBillingTransactionStore(),
		CouponRepo:        NewInMemoryCouponStore(),
		RedemptionRepo:    NewInMemoryCouponRedemptionStore(),
		PaymentMethodRepo: NewInMemoryPaymentMethodStore(),
	}
}

func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.cfg
}

func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetDB() *MockDB {
	return s.db
}

func (s *BaseServiceTestSuite) GetPublisher() *InMemoryPublisher {
	return s.publisher
}

// ClearStores empties every store without recreating them.
func (s *BaseServiceTestSuite) ClearStores() {
	s.stores.TierRepo.Clear()
	s.stores.TenantRepo.Clear()
	s.stores.RequestRepo.Clear()
	s.stores.TransactionRepo.Clear()
	s.stores.CouponRepo.Clear()
	s.stores.RedemptionRepo.Clear()
	s.stores.PaymentMethodRepo.Clear()
	s.publisher.Clear()
}
