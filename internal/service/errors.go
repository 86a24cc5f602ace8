package service

import "errors"

// Sentinel errors mapped to HTTP statuses by the handler layer.
var (
	ErrClientNotFound        = errors.New("client not found")
	ErrQuotationNotFound     = errors.New("quotation not found")
	ErrApprovalNotFound      = errors.New("discount approval not found")
	ErrCountryNotFound       = errors.New("country not found")
	ErrNoDefaultCountry      = errors.New("no default country configured")
	ErrNoTaxFramework        = errors.New("no active tax framework for country")
	ErrQuotationLocked       = errors.New("quotation already has a pending discount approval")
	ErrInvalidApprovalStatus = errors.New("discount approval is not pending")
	ErrValidation            = errors.New("validation failed")
	ErrUnauthorized          = errors.New("not allowed to act on this resource")
)
