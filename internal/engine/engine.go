// Package engine defines the boundary to the external mutation engine: the
// coverage-guided core that decides which bytes to try next and drives
// repeated target invocations. The driver only hands it a libFuzzer-style
// argument vector and receives a process-style exit status back.
package engine

import "context"

// TestOneFunc executes the target once with a generated input. It returns
// true when the run must stop early, i.e. the keep-going threshold tripped.
type TestOneFunc func(data []byte) (stop bool)

// Engine runs the fuzzing loop. args is the full argument vector, args[0]
// being the program-name placeholder. test is invoked synchronously for each
// input on the engine's own control threads; in-process engines must honor a
// true return by stopping, out-of-process engines may ignore test entirely.
//
// The exit status follows process conventions: 0 for a clean run, non-zero
// when the engine itself aborted.
type Engine interface {
	Run(ctx context.Context, args []string, test TestOneFunc) (exit int, err error)
}

// Func adapts a plain function to the Engine interface.
type Func func(ctx context.Context, args []string, test TestOneFunc) (int, error)

// Run implements Engine.
func (f Func) Run(ctx context.Context, args []string, test TestOneFunc) (int, error) {
	return f(ctx, args, test)
}
