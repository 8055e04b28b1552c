package domain

import "errors"

var (
	ErrInvalidListing      = errors.New("invalid listing")
	ErrNotFound            = errors.New("item not found")
	ErrAlreadySold         = errors.New("item already sold")
	ErrPaymentMismatch     = errors.New("payment does not match price")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrMissingIdentity     = errors.New("missing identity")
	ErrAmountOverflow      = errors.New("amount overflow")
)
