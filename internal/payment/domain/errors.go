package domain

import "errors"

var (
	ErrOrderNotFound      = errors.New("order_not_found")
	ErrPaymentNotFound    = errors.New("payment_not_found")
	ErrOrderNotPayable    = errors.New("order_not_payable")
	ErrPaymentNotVoidable = errors.New("payment_not_voidable")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrMissingToken       = errors.New("missing_token")
	ErrProviderNotFound   = errors.New("provider_not_found")
	ErrInvalidConfig      = errors.New("invalid_config")
)
