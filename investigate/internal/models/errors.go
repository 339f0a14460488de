package models

import "errors"

// Sentinel errors shared across the service. Callers wrap them with
// fmt.Errorf("%w: ...") and test with errors.Is.
var (
	ErrNotFound                = errors.New("not found")
	ErrValidation              = errors.New("validation failed")
	ErrStorageUnavailable      = errors.New("storage unavailable")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrPartialAnalysis         = errors.New("partial analysis failure")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrTooManyEntities         = errors.New("too many entities")
	ErrGeoNotFound             = errors.New("geolocation not found")
	ErrConflict                = errors.New("conflict")
)
