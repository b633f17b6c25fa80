package sdfmesh

import "errors"

// Error kinds. Every error returned by the packages of this module wraps
// exactly one of these and can be tested with errors.Is.
var (
	// ErrConstruction is returned for invalid domain parameters or invalid
	// mesher options, before any work is done.
	ErrConstruction = errors.New("construction error")
	// ErrResolution is returned when a sizing criterion has an unsupported shape.
	ErrResolution = errors.New("resolution error")
	// ErrStaging is returned when intermediate files cannot be written or removed.
	ErrStaging = errors.New("staging error")
	// ErrEngine is returned when the refinement engine fails.
	ErrEngine = errors.New("engine error")
	// ErrLoad is returned when engine output cannot be parsed.
	ErrLoad = errors.New("load error")
)
