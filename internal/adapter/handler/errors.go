package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/nft-market/internal/core/domain"
	"github.com/rl1809/nft-market/internal/core/service"
)

type errorMapping struct {
	target  error
	status  int
	code    codes.Code
	message string
}

// order matters: the first matching sentinel wins
var errorMappings = []errorMapping{
	{domain.ErrInvalidListing, http.StatusBadRequest, codes.InvalidArgument, "invalid listing"},
	{domain.ErrPaymentMismatch, http.StatusBadRequest, codes.InvalidArgument, "payment does not match price"},
	{domain.ErrInvalidAmount, http.StatusBadRequest, codes.InvalidArgument, "invalid amount"},
	{domain.ErrMissingIdentity, http.StatusBadRequest, codes.InvalidArgument, "missing identity"},
	{domain.ErrNotFound, http.StatusNotFound, codes.NotFound, "item not found"},
	{domain.ErrAlreadySold, http.StatusGone, codes.FailedPrecondition, "already sold"},
	{service.ErrDuplicateRequest, http.StatusConflict, codes.AlreadyExists, "duplicate request"},
	{domain.ErrAmountOverflow, http.StatusUnprocessableEntity, codes.FailedPrecondition, "amount overflow"},
	{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity, codes.FailedPrecondition, "insufficient balance"},
	{domain.ErrUnauthorized, http.StatusForbidden, codes.PermissionDenied, "unauthorized"},
}

func classify(err error) errorMapping {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m
		}
	}
	return errorMapping{status: http.StatusInternalServerError, code: codes.Internal, message: "internal error"}
}
