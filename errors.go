package repscan

import "errors"

var (
	// ErrFileTooLarge is reported when a file exceeds the configured
	// hashing size ceiling. Terminal for the file; the slot publishes
	// [ResultFileTooLarge].
	ErrFileTooLarge = errors.New("file too large to hash")

	// ErrBusy is reported when the dispatcher's queue depth bound is
	// exceeded. The slot's previous occupant stays authoritative.
	ErrBusy = errors.New("scan queue is full")

	// ErrUnknownService is reported for a service name no configured
	// adapter answers to.
	ErrUnknownService = errors.New("unknown service")
)
