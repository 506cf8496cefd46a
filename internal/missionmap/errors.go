package missionmap

import "errors"

var (
	// ErrPrecondition is returned when an operation needs a loaded map.
	ErrPrecondition = errors.New("precondition failed")

	// ErrInputDecode is returned for malformed metadata or an unreadable raster.
	ErrInputDecode = errors.New("input decode failed")

	// ErrConfiguration is returned for invalid map configuration such as a
	// non-positive resolution.
	ErrConfiguration = errors.New("invalid configuration")
)
