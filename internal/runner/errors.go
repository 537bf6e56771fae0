package runner

import "errors"

var (
	// ErrImport means the bootstrap module could not be loaded. The worker
	// exits and the error is delivered through ThreadID.
	ErrImport = errors.New("runner: bootstrap import failed")

	// ErrUnrecognizedSignal means the script raised something other than one
	// of the worker's markers. The worker exits abnormally.
	ErrUnrecognizedSignal = errors.New("runner: unrecognized signal from script")

	// ErrHardHaltUnsupported is returned by HaltHard.
	ErrHardHaltUnsupported = errors.New("runner: hard halt is not supported")

	// ErrOwnershipViolation is the panic value raised by Close when the
	// entity group is still referenced by someone other than the closer.
	ErrOwnershipViolation = errors.New("runner: entity group has other owners")

	// ErrWorkerExited is delivered through ThreadID when the worker died
	// before it could publish its id for any reason other than an import
	// failure.
	ErrWorkerExited = errors.New("runner: worker exited before startup completed")
)
