package executor

import "fuzzkit/internal/finding"

// Target describes the operation to fuzz. How input bytes are decoded into
// typed arguments is the invocation mechanism's concern; the driver only
// needs a handle that maps bytes to an Outcome.
type Target struct {
	// Class and Method name the target operation. They scope the default
	// generated-corpus directory.
	Class  string
	Method string

	// Invoke runs the target once with a generated input. It is required
	// for in-process engines and unused when the target is compiled into
	// an external engine binary.
	Invoke func(data []byte) finding.Outcome

	// BeforeEach and AfterEach are optional lifecycle callbacks invoked
	// around every execution. A callback error counts as a failure of
	// that execution.
	BeforeEach func() error
	AfterEach  func() error
}
