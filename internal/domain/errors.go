package domain

import "errors"

// Lifecycle and download failures surfaced to the route layer. The HTTP
// boundary maps these with errors.Is; none are retried.
var (
	// ErrInvalidTransition: client submit attempted outside need_statements.
	ErrInvalidTransition = errors.New("package already submitted")

	// ErrPreconditionFailed: submit attempted with zero statements.
	ErrPreconditionFailed = errors.New("at least one statement is required")

	// ErrInvalidState: statement add/remove outside need_statements.
	ErrInvalidState = errors.New("cannot upload or delete statements in current status")

	// ErrEmptyPackage: bundle requested for a package with no statements.
	ErrEmptyPackage = errors.New("no statements to download")

	// ErrBundlingFailed: statements exist but no file content was retrievable.
	ErrBundlingFailed = errors.New("could not fetch any statement files")
)
