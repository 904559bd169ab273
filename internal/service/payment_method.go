package service

import (
	"context"

	"github.com/stackbill/stackbill/internal/api/dto"
)

// PaymentMethodService exposes the offline payment method catalog. The
// catalog is seeded operationally; this service only reads it.
type PaymentMethodService interface {
	GetPaymentMethod(ctx context.Context, id string) (*dto.PaymentMethodResponse, error)
	ListActivePaymentMethods(ctx context.Context) (*dto.ListPaymentMethodsResponse, error)
}

type paymentMethodService struct {
	ServiceParams
}

func NewPaymentMethodService(params ServiceParams) PaymentMethodService {
	return &paymentMethodService{ServiceParams: params}
}

func (s *paymentMethodService) GetPaymentMethod(ctx context.Context, id string) (*dto.PaymentMethodResponse, error) {
	pm, err := s.PaymentMethodRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.PaymentMethodResponse{PaymentMethod: pm}, nil
}

func (s *paymentMethodService) ListActivePaymentMethods(ctx context.Context) (*dto.ListPaymentMethodsResponse, error) {
	methods, err := s.PaymentMethodRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	resp := &dto.ListPaymentMethodsResponse{Items: make([]*dto.PaymentMethodResponse, len(methods))}
	for i, pm := range methods {
		resp.Items[i] = &dto.PaymentMethodResponse{PaymentMethod: pm}
	}
	return resp, nil
}
