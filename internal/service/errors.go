package service

import (
	"errors"

	"cardvault-api/internal/model"
	"cardvault-api/pkg/apierror"
)

// domainError maps inventory sentinel errors to API errors. Anything else
// is returned unchanged.
func domainError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apierror.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, model.ErrCardNotFound):
		return apierror.NotFound(err.Error())
	case errors.Is(err, model.ErrDuplicateCard),
		errors.Is(err, model.ErrInsufficientPacks),
		errors.Is(err, model.ErrInvalidCard),
		errors.Is(err, model.ErrInvalidLevel),
		errors.Is(err, model.ErrInvalidQuantity),
		errors.Is(err, model.ErrInvalidPackName):
		return apierror.BadRequest(err.Error())
	}
	return err
}

// isBusinessError reports whether err is a terminal client error whose
// response may be stored and replayed.
func isBusinessError(err error) bool {
	apiErr, ok := apierror.As(err)
	if !ok {
		return false
	}
	switch apiErr.Code {
	case "BAD_REQUEST", "VALIDATION_ERROR", "NOT_FOUND", "FORBIDDEN":
		return true
	}
	return false
}

// Cache keys.
func listingsCacheKey(t model.ItemType, name string) string {
	return "listings:item:" + string(t) + ":" + name
}

func rapCacheKey(t model.ItemType, name string) string {
	return "rap:" + string(t) + ":" + name
}

const historyCacheKey = "history:all"

const presenceCachePrefix = "presence:"

func presenceCacheKey(userID string) string {
	return presenceCachePrefix + userID
}
