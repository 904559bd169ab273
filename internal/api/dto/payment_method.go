package dto

import (
	"github.com/stackbill/stackbill/internal/domain/paymentmethod"
)

type PaymentMethodResponse struct {
	*paymentmethod.PaymentMethod
}

type ListPaymentMethodsResponse struct {
	Items []*PaymentMethodResponse `json:"items"`
}
