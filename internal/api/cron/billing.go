package cron

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stackbill/stackbill/internal/logger"
	"github.com/stackbill/stackbill/internal/service"
)

// BillingCronHandler exposes the periodic billing jobs over HTTP so an
// external scheduler can drive them. The same jobs also run on the in-process
// schedule; both paths are idempotent.
type BillingCronHandler struct {
	requestService service.UpgradeRequestService
	logger         *logger.Logger
}

func NewBillingCronHandler(
	requestService service.UpgradeRequestService,
	logger *logger.Logger,
) *BillingCronHandler {
	return &BillingCronHandler{
		requestService: requestService,
		logger:         logger,
	}
}

// ApplyScheduledDowngrades applies every scheduled downgrade whose effective
// date has passed.
func (h *BillingCronHandler) ApplyScheduledDowngrades(c *gin.Context) {
	h.logger.Infow("starting downgrade sweep cron job", "time", time.Now().UTC().Format(time.RFC3339))

	applied, err := h.requestService.RunScheduledDowngradeSweep(c.Request.Context())
	if err != nil {
		h.logger.Errorw("downgrade sweep failed", "error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed downgrade sweep cron job", "applied", applied)
	c.JSON(http.StatusOK, gin.H{"status": "success", "applied": applied})
}

// MaterializeExpiries persists the expired status for stale pending requests.
func (h *BillingCronHandler) MaterializeExpiries(c *gin.Context) {
	h.logger.Infow("starting expiry sweep cron job", "time", time.Now().UTC().Format(time.RFC3339))

	expired, err := h.requestService.MaterializeExpiries(c.Request.Context())
	if err != nil {
		h.logger.Errorw("expiry sweep failed", "error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed expiry sweep cron job", "expired", expired)
	c.JSON(http.StatusOK, gin.H{"status": "success", "expired": expired})
}
