package types

import (
	ierr "github.com/stackbill/stackbill/internal/errors"
)

const (
	defaultFilterLimit = 50
	maxFilterLimit     = 200
)

// QueryFilter is the shared pagination envelope for list operations.
type QueryFilter struct {
	Limit  *int `json:"limit,omitempty" form:"limit"`
	Offset *int `json:"offset,omitempty" form:"offset"`
}

func NewDefaultQueryFilter() *QueryFilter {
	limit := defaultFilterLimit
	offset := 0
	return &QueryFilter{Limit: &limit, Offset: &offset}
}

func (f *QueryFilter) GetLimit() int {
	if f == nil || f.Limit == nil {
		return defaultFilterLimit
	}
	return *f.Limit
}

func (f *QueryFilter) GetOffset() int {
	if f == nil || f.Offset == nil {
		return 0
	}
	return *f.Offset
}

func (f *QueryFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.Limit != nil && (*f.Limit <= 0 || *f.Limit > maxFilterLimit) {
		return ierr.NewError("invalid limit").
			WithHintf("Limit must be between 1 and %d", maxFilterLimit).
			Mark(ierr.ErrValidation)
	}
	if f.Offset != nil && *f.Offset < 0 {
		return ierr.NewError("invalid offset").
			WithHint("Offset must not be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}
