package executor

import (
	"fmt"

	"fuzzkit/internal/finding"
)

// ConfigurationError reports driver misuse detected before the mutation
// engine is invoked: double preparation, incompatible corpus arguments, or
// invalid run configuration. It is always fatal.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("executor: %s: %v", e.Msg, e.Err)
	}
	return "executor: " + e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// FindingError is the run's primary result when a captured finding
// terminated it: the target failed under fuzzing.
type FindingError struct {
	Finding finding.Finding
}

func (e *FindingError) Error() string {
	return fmt.Sprintf("fuzz target failed (finding %d): %v", e.Finding.Ordinal, e.Finding.Cause)
}

func (e *FindingError) Unwrap() error { return e.Finding.Cause }

// ExitCodeError reports that the engine itself exited abnormally without a
// captured finding, so operators can tell engine failures apart from target
// failures.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("fuzzing engine exited with exit code %d", e.Code)
}
