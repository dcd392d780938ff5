package domain

import "context"

// Sandbox defines the contract for executing a request within an isolated container environment.
// Implementations handle the low-level container lifecycle management.
type Sandbox interface {
	// Run compiles (when the language needs it) and runs the request's first file.
	// A program that exits non-zero is a normal result, not an error; errors are reserved
	// for failures of the sandbox itself.
	Run(ctx context.Context, req ServiceRequest) (*ServiceResponse, error)

	// Supports reports whether the sandbox has a runtime for the given language or alias.
	Supports(language string) bool
}
