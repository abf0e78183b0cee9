package domain

import "errors"

var (
	// ErrUnknownSymbol is returned when a price source is asked to track a
	// symbol it has no configured mapping for.
	ErrUnknownSymbol = errors.New("symbol not found in source products")
	// ErrNonPositivePrice is returned when creating a price that is zero or
	// negative.
	ErrNonPositivePrice = errors.New("price must be greater than zero")
	// ErrInvalidConfidence is returned when creating a price with a zero or
	// negative confidence interval.
	ErrInvalidConfidence = errors.New("price confidence must be greater than zero")
	// ErrSourceAlreadyStarted is returned when starting a price source twice.
	ErrSourceAlreadyStarted = errors.New("price source already started")
)
