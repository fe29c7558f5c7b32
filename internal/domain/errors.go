package domain

import "errors"

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrEmptySelection = errors.New("at least one date must be selected")
	ErrInvalidDate    = errors.New("date is not one of the proposed dates")
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("organizer token does not match event")
)

var (
	ErrAlreadyConfirmed = errors.New("event is already confirmed")
	ErrNotConfirmed     = errors.New("event is not confirmed yet")
)

// ErrStoreIO marks failures of the underlying persistence.
var ErrStoreIO = errors.New("store failure")
